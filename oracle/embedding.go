package oracle

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/snow-ghost/bindopt/pkg/tokens"
)

// EmbeddingConfig configures an OpenAI-compatible embedding endpoint and the
// linear head applied on top of it.
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url" toml:"base_url" json:"base_url"`
	APIKey         string `yaml:"api_key" toml:"api_key" json:"-"`
	Model          string `yaml:"model" toml:"model" json:"model"`
	HeadPath       string `yaml:"head_path" toml:"head_path" json:"head_path"`
	MaxBatchTokens int    `yaml:"max_batch_tokens" toml:"max_batch_tokens" json:"max_batch_tokens"`
	MaxBatchItems  int    `yaml:"max_batch_items" toml:"max_batch_items" json:"max_batch_items"`
}

// Head is a linear scoring head over a candidate embedding c and a target
// embedding t: Bias + Candidate.c + Target.t + Interaction.(c*t).
type Head struct {
	Bias        float64   `yaml:"bias" toml:"bias"`
	Candidate   []float64 `yaml:"candidate" toml:"candidate"`
	Target      []float64 `yaml:"target" toml:"target"`
	Interaction []float64 `yaml:"interaction" toml:"interaction"`
}

// LoadHead reads a head from a YAML or TOML file, chosen by extension.
func LoadHead(path string) (*Head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read head file: %w", err)
	}

	var head Head
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &head); err != nil {
			return nil, fmt.Errorf("failed to parse head TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &head); err != nil {
			return nil, fmt.Errorf("failed to parse head YAML: %w", err)
		}
	}
	if err := head.Validate(); err != nil {
		return nil, err
	}
	return &head, nil
}

// Dim returns the embedding dimension the head expects.
func (h *Head) Dim() int {
	return len(h.Candidate)
}

// Validate checks that all weight vectors share one non-zero dimension.
func (h *Head) Validate() error {
	d := len(h.Candidate)
	if d == 0 {
		return fmt.Errorf("head has no weights")
	}
	if len(h.Target) != d || len(h.Interaction) != d {
		return fmt.Errorf("head weight dimensions differ: candidate=%d target=%d interaction=%d",
			d, len(h.Target), len(h.Interaction))
	}
	return nil
}

// Apply scores one (candidate, target) embedding pair.
func (h *Head) Apply(c, t []float32) (float64, error) {
	if len(c) != h.Dim() || len(t) != h.Dim() {
		return math.NaN(), fmt.Errorf("embedding dimension %d/%d does not match head dimension %d", len(c), len(t), h.Dim())
	}
	s := h.Bias
	for i := range c {
		ci, ti := float64(c[i]), float64(t[i])
		s += h.Candidate[i]*ci + h.Target[i]*ti + h.Interaction[i]*ci*ti
	}
	return s, nil
}

// EmbeddingOracle scores pairs with a linear head over remote embeddings.
// Target embeddings are fetched once per distinct target.
type EmbeddingOracle struct {
	client  *openai.Client
	model   string
	head    *Head
	encoder tokens.Encoder
	config  EmbeddingConfig
	metrics *metrics.PrometheusMetrics

	mu      sync.Mutex
	targets map[string][]float32
}

// NewEmbeddingOracle creates an embedding oracle. When head is nil it is
// loaded from config.HeadPath. m may be nil.
func NewEmbeddingOracle(config EmbeddingConfig, head *Head, m *metrics.PrometheusMetrics) (*EmbeddingOracle, error) {
	if head == nil {
		if config.HeadPath == "" {
			return nil, fmt.Errorf("embedding oracle: head_path is required")
		}
		loaded, err := LoadHead(config.HeadPath)
		if err != nil {
			return nil, err
		}
		head = loaded
	} else if err := head.Validate(); err != nil {
		return nil, err
	}

	if config.APIKey == "" {
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}
	if config.MaxBatchItems <= 0 {
		config.MaxBatchItems = 256
	}
	if config.MaxBatchTokens <= 0 {
		config.MaxBatchTokens = 8000
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	return &EmbeddingOracle{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   config.Model,
		head:    head,
		encoder: tokens.ForModel(config.Model),
		config:  config,
		metrics: m,
		targets: make(map[string][]float32),
	}, nil
}

// Score implements core.FitnessOracle
func (o *EmbeddingOracle) Score(ctx context.Context, pairs []core.Pair) ([]float64, error) {
	if len(pairs) == 0 {
		return []float64{}, nil
	}

	candidates := make([]string, len(pairs))
	for i, p := range pairs {
		candidates[i] = p.Candidate
	}
	candEmb, err := o.embed(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}

	targetEmb, err := o.targetEmbeddings(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("embed targets: %w", err)
	}

	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		s, err := o.head.Apply(candEmb[i], targetEmb[p.Target])
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		scores[i] = s
	}
	return scores, nil
}

func (o *EmbeddingOracle) targetEmbeddings(ctx context.Context, pairs []core.Pair) (map[string][]float32, error) {
	out := make(map[string][]float32)
	var missing []string

	o.mu.Lock()
	for _, p := range pairs {
		if _, seen := out[p.Target]; seen {
			continue
		}
		if emb, ok := o.targets[p.Target]; ok {
			out[p.Target] = emb
			continue
		}
		out[p.Target] = nil
		missing = append(missing, p.Target)
	}
	o.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}
	embs, err := o.embed(ctx, missing)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for i, t := range missing {
		o.targets[t] = embs[i]
		out[t] = embs[i]
	}
	return out, nil
}

// embed returns one embedding per text, in order, using as few requests as
// the token and item budgets allow.
func (o *EmbeddingOracle) embed(ctx context.Context, texts []string) ([][]float32, error) {
	batches, counted, err := tokens.Pack(o.encoder, texts, o.config.MaxBatchTokens, o.config.MaxBatchItems)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	billed := 0
	for _, batch := range batches {
		input := make([]string, len(batch))
		for j, idx := range batch {
			input[j] = texts[idx]
		}

		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: input,
			Model: openai.EmbeddingModel(o.model),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(resp.Data) != len(input) {
			return nil, fmt.Errorf("%w: sent %d texts, got %d embeddings", core.ErrOracleMismatch, len(input), len(resp.Data))
		}
		for j, data := range resp.Data {
			pos := j
			if data.Index >= 0 && data.Index < len(batch) {
				pos = data.Index
			}
			out[batch[pos]] = data.Embedding
		}
		billed += resp.Usage.TotalTokens
	}

	if billed == 0 {
		billed = counted
	}
	o.metrics.RecordTokens(o.model, billed)
	return out, nil
}
