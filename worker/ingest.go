package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Ingestor serves POST /optimize: it decodes a Job, runs it synchronously
// and answers with the JobResult.
type Ingestor struct {
	run func(context.Context, Job) (JobResult, error)
}

// NewIngestor creates an HTTP handler around run.
func NewIngestor(run func(context.Context, Job) (JobResult, error)) *Ingestor {
	return &Ingestor{run: run}
}

// ServeHTTP handles POST with a JSON Job and returns a JobResult.
func (i *Ingestor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var job Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if job.SeedSequence == "" || job.Target == "" {
		http.Error(w, "seed_sequence and target are required", http.StatusBadRequest)
		return
	}

	res, err := i.run(r.Context(), job)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrInvalidJob):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}
