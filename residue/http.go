package residue

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

// HTTPConfig configures a remote masked-language-model endpoint.
type HTTPConfig struct {
	BaseURL    string        `yaml:"base_url" toml:"base_url" json:"base_url"`
	APIKey     string        `yaml:"api_key" toml:"api_key" json:"-"`
	MaskToken  string        `yaml:"mask_token" toml:"mask_token" json:"mask_token"`
	Vocabulary []string      `yaml:"vocabulary" toml:"vocabulary" json:"vocabulary"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// HTTPOracle predicts residue distributions through POST {base}/predict. Each
// query is sent as a token list with placeholders replaced by the mask token.
type HTTPOracle struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	maskToken  string
	vocab      []string
	protection *limiter.ProtectionManager
}

type predictRequest struct {
	Sequences [][]string `json:"sequences"`
}

type predictResponse struct {
	Distributions [][][]float64 `json:"distributions"`
}

// NewHTTPOracle creates a new remote residue oracle. pm may be nil, in which
// case calls are not rate limited or retried.
func NewHTTPOracle(config HTTPConfig, pm *limiter.ProtectionManager) (*HTTPOracle, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("residue oracle: base url is required")
	}
	if config.MaskToken == "" {
		config.MaskToken = MaskToken
	}
	if len(config.Vocabulary) == 0 {
		config.Vocabulary = DefaultVocabulary()
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	return &HTTPOracle{
		client:     &http.Client{Timeout: config.Timeout},
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		maskToken:  config.MaskToken,
		vocab:      config.Vocabulary,
		protection: pm,
	}, nil
}

// Vocabulary implements core.ResidueOracle
func (o *HTTPOracle) Vocabulary() []string {
	return o.vocab
}

// Predict implements core.ResidueOracle
func (o *HTTPOracle) Predict(ctx context.Context, sequences []string) ([][][]float64, error) {
	if len(sequences) == 0 {
		return [][][]float64{}, nil
	}
	if o.protection == nil {
		return o.predict(ctx, sequences)
	}
	result, err := o.protection.ExecuteWithProtection(ctx, "residue", func(ctx context.Context) (interface{}, error) {
		return o.predict(ctx, sequences)
	})
	if err != nil {
		return nil, err
	}
	return result.([][][]float64), nil
}

func (o *HTTPOracle) predict(ctx context.Context, sequences []string) ([][][]float64, error) {
	req := predictRequest{Sequences: make([][]string, len(sequences))}
	for i, seq := range sequences {
		req.Sequences[i] = o.tokenize(seq)
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal predict request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/predict", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, limiter.NewHTTPError(resp.StatusCode, "residue service error", string(body))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode predict response: %w", err)
	}
	if err := checkShape(sequences, out.Distributions, len(o.vocab)); err != nil {
		return nil, err
	}
	return out.Distributions, nil
}

func (o *HTTPOracle) tokenize(seq string) []string {
	tokens := make([]string, len(seq))
	for i := 0; i < len(seq); i++ {
		if seq[i] == core.MaskPlaceholder {
			tokens[i] = o.maskToken
		} else {
			tokens[i] = string(seq[i])
		}
	}
	return tokens
}
