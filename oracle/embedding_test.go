package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/metrics"
)

// embeddingServer embeds every text as [len(text), 1].
func embeddingServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		requests.Add(1)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		used := 0
		for i, text := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(text)), 1},
			}
			used += len(text)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": used, "total_tokens": used},
		})
	}))
}

func testHead() *Head {
	return &Head{
		Bias:        1,
		Candidate:   []float64{1, 0},
		Target:      []float64{0, 1},
		Interaction: []float64{1, 1},
	}
}

func TestEmbeddingOracleScoresWithHead(t *testing.T) {
	var requests atomic.Int32
	server := embeddingServer(t, &requests)
	defer server.Close()

	reg := prometheus.NewRegistry()
	o, err := NewEmbeddingOracle(EmbeddingConfig{
		BaseURL: server.URL + "/v1",
		APIKey:  "test",
		Model:   "esm2-test",
	}, testHead(), metrics.NewPrometheusMetrics(reg))
	require.NoError(t, err)

	// c=[3,1] t=[2,1]: 1 + 3 + 1 + (6 + 1) = 12
	// c=[1,1] t=[2,1]: 1 + 1 + 1 + (2 + 1) = 6
	scores, err := o.Score(context.Background(), []core.Pair{
		{Candidate: "AAA", Target: "KK"},
		{Candidate: "A", Target: "KK"},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 6}, scores)
	assert.Equal(t, int32(2), requests.Load())

	_, err = o.Score(context.Background(), []core.Pair{{Candidate: "AA", Target: "KK"}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), requests.Load(), "target embedding is memoized")

	assert.Equal(t, 8.0, counterValue(t, reg, "bindopt_embedding_tokens_total"))
}

func TestEmbeddingOracleRespectsBatchBudget(t *testing.T) {
	var requests atomic.Int32
	server := embeddingServer(t, &requests)
	defer server.Close()

	o, err := NewEmbeddingOracle(EmbeddingConfig{
		BaseURL:       server.URL + "/v1",
		APIKey:        "test",
		Model:         "esm2-test",
		MaxBatchItems: 2,
	}, testHead(), nil)
	require.NoError(t, err)

	batch := make([]core.Pair, 5)
	for i := range batch {
		batch[i] = core.Pair{Candidate: fmt.Sprintf("%0*d", i+1, 0), Target: "K"}
	}
	scores, err := o.Score(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, scores, 5)
	// three candidate requests plus one target request
	assert.Equal(t, int32(4), requests.Load())
	for i := 1; i < len(scores); i++ {
		assert.Greater(t, scores[i], scores[i-1])
	}
}

func TestLoadHead(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "head.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("bias: 0.5\ncandidate: [1, 2]\ntarget: [3, 4]\ninteraction: [5, 6]\n"), 0o644))
	head, err := LoadHead(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 0.5, head.Bias)
	assert.Equal(t, 2, head.Dim())

	tomlPath := filepath.Join(dir, "head.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("bias = 1.0\ncandidate = [1.0]\ntarget = [1.0]\ninteraction = [1.0]\n"), 0o644))
	head, err = LoadHead(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 1, head.Dim())

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("candidate: [1, 2]\ntarget: [1]\ninteraction: [1, 2]\n"), 0o644))
	_, err = LoadHead(badPath)
	require.Error(t, err)

	_, err = head.Apply([]float32{1, 2}, []float32{1})
	require.Error(t, err)
}
