// Package mock provides fitness oracles for tests and dry runs.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/snow-ghost/bindopt/core"
)

// ConstantOracle scores every pair with the same value and counts calls.
type ConstantOracle struct {
	Value float64

	mu    sync.Mutex
	calls int
	items int
}

// NewConstantOracle creates a constant oracle
func NewConstantOracle(value float64) *ConstantOracle {
	return &ConstantOracle{Value: value}
}

// Score implements core.FitnessOracle
func (o *ConstantOracle) Score(ctx context.Context, pairs []core.Pair) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.calls++
	o.items += len(pairs)
	o.mu.Unlock()

	scores := make([]float64, len(pairs))
	for i := range scores {
		scores[i] = o.Value
	}
	return scores, nil
}

// Calls returns how many times Score ran and how many pairs it saw in total.
func (o *ConstantOracle) Calls() (calls, items int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls, o.items
}

// FuncOracle scores each pair with Fn.
type FuncOracle struct {
	Fn func(candidate, target string) float64

	mu      sync.Mutex
	batches [][]core.Pair
}

// NewFuncOracle creates a per-pair oracle
func NewFuncOracle(fn func(candidate, target string) float64) *FuncOracle {
	return &FuncOracle{Fn: fn}
}

// Score implements core.FitnessOracle
func (o *FuncOracle) Score(ctx context.Context, pairs []core.Pair) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.batches = append(o.batches, append([]core.Pair(nil), pairs...))
	o.mu.Unlock()

	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		scores[i] = o.Fn(p.Candidate, p.Target)
	}
	return scores, nil
}

// Batches returns a copy of every batch Score received.
func (o *FuncOracle) Batches() [][]core.Pair {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]core.Pair(nil), o.batches...)
}

// Length scores a candidate by its length. Handy for hill-climbing tests.
func Length(candidate, _ string) float64 {
	return float64(len(candidate))
}

// ErrUnavailable is returned by FailingOracle when no Err is set.
var ErrUnavailable = errors.New("oracle unavailable")

// FailingOracle fails every call, or only after After successful calls.
type FailingOracle struct {
	Err   error
	After int

	mu    sync.Mutex
	calls int
}

// Score implements core.FitnessOracle
func (o *FailingOracle) Score(_ context.Context, pairs []core.Pair) ([]float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.calls > o.After {
		if o.Err != nil {
			return nil, o.Err
		}
		return nil, ErrUnavailable
	}
	return make([]float64, len(pairs)), nil
}

// ShortOracle returns one score fewer than asked for.
type ShortOracle struct{}

// Score implements core.FitnessOracle
func (ShortOracle) Score(_ context.Context, pairs []core.Pair) ([]float64, error) {
	if len(pairs) == 0 {
		return []float64{0}, nil
	}
	return make([]float64, len(pairs)-1), nil
}
