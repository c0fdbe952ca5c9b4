package core

import "context"

// Generator proposes one edited (sequence, mask) pair from the current one.
type Generator interface {
	Propose(ctx context.Context, rng Rand, sequence string, mask []bool) (string, []bool, error)
}

// BatchGenerator proposes for a whole population in one call. The orchestrator
// prefers it over Generator when a generator implements both.
type BatchGenerator interface {
	ProposeBatch(ctx context.Context, rngs []Rand, sequences []string, masks [][]bool) ([]string, [][]bool, error)
}

// FitnessOracle scores (candidate, target) pairs. Output order matches input
// order one to one and inputs are never modified.
type FitnessOracle interface {
	Score(ctx context.Context, pairs []Pair) ([]float64, error)
}

// ResidueOracle returns, for every character of every query sequence, a
// categorical weight vector over Vocabulary(). MaskPlaceholder marks the
// characters the caller wants predicted.
type ResidueOracle interface {
	Vocabulary() []string
	Predict(ctx context.Context, sequences []string) ([][][]float64, error)
}

// Selector resolves accept/reject for every row and advances its schedule.
type Selector interface {
	Step(rows Population, proposals []Proposal, rngs []Rand) (StepResult, error)
	Temperature() float64
}

// SnapshotStore persists the population after each generation.
type SnapshotStore interface {
	Prepare() error
	Save(generation int, rows Population) error
}
