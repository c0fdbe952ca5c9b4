package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/metrics"
)

// DefaultBatchSize is the number of sequences per residue oracle query.
const DefaultBatchSize = 512

// SimultaneousGenerator drafts every row first and then resolves all marked
// positions from one oracle pass per batch.
//
// Substitution sites are drafted as the lowercase original residue: the query
// shows the model the original residue and the draw excludes it. Insertion
// sites are drafted as the placeholder and exclude nothing.
type SimultaneousGenerator struct {
	editor    *Editor
	oracle    core.ResidueOracle
	sampler   *Sampler
	batchSize int
	logger    *slog.Logger
}

// NewSimultaneousGenerator creates the oracle-guided batch variant.
// batchSize <= 0 uses DefaultBatchSize.
func NewSimultaneousGenerator(cfg EditConfig, oracle core.ResidueOracle, batchSize int, logger *slog.Logger, m *metrics.PrometheusMetrics) (*SimultaneousGenerator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	editor, err := NewEditor(cfg)
	if err != nil {
		return nil, err
	}
	sampler, err := NewSampler(oracle.Vocabulary(), logger, m)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SimultaneousGenerator{
		editor:    editor,
		oracle:    oracle,
		sampler:   sampler,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

var lowercaseMarker = marker{
	substitute: func(_ core.Rand, current byte) byte { return toLower(current) },
	insert:     func(core.Rand) byte { return core.MaskPlaceholder },
}

// Propose runs ProposeBatch for a single row.
func (g *SimultaneousGenerator) Propose(ctx context.Context, rng core.Rand, sequence string, mask []bool) (string, []bool, error) {
	seqs, masks, err := g.ProposeBatch(ctx, []core.Rand{rng}, []string{sequence}, [][]bool{mask})
	if err != nil {
		return "", nil, err
	}
	return seqs[0], masks[0], nil
}

// ProposeBatch implements core.BatchGenerator.
func (g *SimultaneousGenerator) ProposeBatch(ctx context.Context, rngs []core.Rand, sequences []string, masks [][]bool) ([]string, [][]bool, error) {
	if len(rngs) != len(sequences) || len(masks) != len(sequences) {
		return nil, nil, fmt.Errorf("batch of %d sequences with %d masks and %d random streams", len(sequences), len(masks), len(rngs))
	}

	drafts := make([][]byte, len(sequences))
	outMasks := make([][]bool, len(sequences))
	var marked []int
	for i, seq := range sequences {
		if upper := strings.ToUpper(seq); upper != seq {
			g.logger.Warn("converting sequence to uppercase", "row", i, "sequence", seq)
			seq = upper
		}
		draft, outMask, err := g.editor.apply(rngs[i], seq, masks[i], lowercaseMarker)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		drafts[i], outMasks[i] = draft, outMask
		if hasMarks(draft) {
			marked = append(marked, i)
		}
	}

	// Rows holding only deletions have nothing to resolve and stay out of the query.
	for start := 0; start < len(marked); start += g.batchSize {
		end := min(start+g.batchSize, len(marked))
		if err := g.resolve(ctx, rngs, drafts, marked[start:end]); err != nil {
			return nil, nil, err
		}
	}

	out := make([]string, len(drafts))
	for i, d := range drafts {
		out[i] = string(d)
	}
	return out, outMasks, nil
}

func (g *SimultaneousGenerator) resolve(ctx context.Context, rngs []core.Rand, drafts [][]byte, rows []int) error {
	queries := make([]string, len(rows))
	for j, row := range rows {
		queries[j] = strings.ToUpper(string(drafts[row]))
	}

	probs, err := g.oracle.Predict(ctx, queries)
	if err != nil {
		return fmt.Errorf("predict batch of %d: %w", len(queries), err)
	}
	if len(probs) != len(queries) {
		return fmt.Errorf("%w: %d distributions for %d queries", core.ErrOracleMismatch, len(probs), len(queries))
	}

	for j, row := range rows {
		draft := drafts[row]
		if len(probs[j]) != len(draft) {
			return fmt.Errorf("%w: row %d has %d positions, oracle returned %d", core.ErrOracleMismatch, row, len(draft), len(probs[j]))
		}
		for pos, ch := range draft {
			var forbidden byte
			switch {
			case ch == core.MaskPlaceholder:
			case isLower(ch):
				forbidden = toUpper(ch)
			default:
				continue
			}
			r, err := g.sampler.Sample(rngs[row], probs[j][pos], forbidden)
			if err != nil {
				return fmt.Errorf("row %d position %d: %w", row, pos, err)
			}
			draft[pos] = r
		}
	}
	return nil
}

func hasMarks(draft []byte) bool {
	for _, ch := range draft {
		if ch == core.MaskPlaceholder || isLower(ch) {
			return true
		}
	}
	return false
}

func isLower(b byte) bool { return b >= 'a' && b <= 'z' }

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func toUpper(b byte) byte {
	if isLower(b) {
		return b - ('a' - 'A')
	}
	return b
}
