package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/limiter"
)

// HTTPConfig configures a remote scoring service.
type HTTPConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url" json:"base_url"`
	APIKey  string        `yaml:"api_key" toml:"api_key" json:"-"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// HTTPOracle scores pairs through POST {base}/score.
type HTTPOracle struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

type scoreRequest struct {
	Pairs []core.Pair `json:"pairs"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// NewHTTPOracle creates a new HTTP fitness oracle
func NewHTTPOracle(config HTTPConfig) (*HTTPOracle, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("http oracle: base url is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	return &HTTPOracle{
		client:  &http.Client{Timeout: config.Timeout},
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
	}, nil
}

// Score implements core.FitnessOracle
func (o *HTTPOracle) Score(ctx context.Context, pairs []core.Pair) ([]float64, error) {
	if len(pairs) == 0 {
		return []float64{}, nil
	}

	reqBody, err := json.Marshal(scoreRequest{Pairs: pairs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/score", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, limiter.NewHTTPError(resp.StatusCode, "score service error", string(body))
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}
	if err := Check(pairs, out.Scores); err != nil {
		return nil, err
	}
	return out.Scores, nil
}
