package selector

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/snow-ghost/bindopt/core"
)

// DefaultEpsilon keeps the acceptance exponent finite at zero temperature.
const DefaultEpsilon = 1e-8

// Config configures a Metropolis selector.
type Config struct {
	Objective        core.Objective `json:"objective" yaml:"objective" toml:"objective"`
	Temperature      float64        `json:"temperature" yaml:"temperature" toml:"temperature"`
	TemperatureDecay float64        `json:"temperature_decay" yaml:"temperature_decay" toml:"temperature_decay"`
	Epsilon          float64        `json:"epsilon" yaml:"epsilon" toml:"epsilon"`
}

// DefaultConfig is pure hill climbing on a minimized fitness.
func DefaultConfig() Config {
	return Config{
		Objective:        core.Minimize,
		Temperature:      0,
		TemperatureDecay: 1.0,
		Epsilon:          DefaultEpsilon,
	}
}

// Metropolis accepts a proposal with probability min(1, exp(-delta/T)),
// where delta is the change in fitness against the objective. There is no
// proposal-ratio correction. The temperature is instance state and is
// multiplied by the decay once per Step.
type Metropolis struct {
	objective   core.Objective
	temperature float64
	decay       float64
	epsilon     float64
	logger      *slog.Logger
}

// NewMetropolis validates cfg. A zero decay drops the temperature to zero
// after the first step; start from DefaultConfig to keep a constant one. A
// zero epsilon means DefaultEpsilon.
func NewMetropolis(cfg Config, logger *slog.Logger) (*Metropolis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	objective, err := core.ParseObjective(string(cfg.Objective))
	if err != nil {
		return nil, err
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	switch {
	case cfg.Temperature < 0 || math.IsNaN(cfg.Temperature) || math.IsInf(cfg.Temperature, 0):
		return nil, fmt.Errorf("temperature should be finite and non-negative, got %v", cfg.Temperature)
	case cfg.TemperatureDecay < 0 || math.IsNaN(cfg.TemperatureDecay) || math.IsInf(cfg.TemperatureDecay, 0):
		return nil, fmt.Errorf("temperature decay should be finite and non-negative, got %v", cfg.TemperatureDecay)
	case cfg.Epsilon < 0 || math.IsNaN(cfg.Epsilon):
		return nil, fmt.Errorf("epsilon should be positive, got %v", cfg.Epsilon)
	}

	return &Metropolis{
		objective:   objective,
		temperature: cfg.Temperature,
		decay:       cfg.TemperatureDecay,
		epsilon:     cfg.Epsilon,
		logger:      logger,
	}, nil
}

// Temperature returns the current temperature.
func (m *Metropolis) Temperature() float64 {
	return m.temperature
}

// Advance applies n generations of decay without selecting, so a run resumed
// at generation n continues the schedule of an uninterrupted one.
func (m *Metropolis) Advance(n int) {
	if n <= 0 {
		return
	}
	m.temperature *= math.Pow(m.decay, float64(n))
}

// Objective returns the optimization direction.
func (m *Metropolis) Objective() core.Objective {
	return m.objective
}

// Probability returns the acceptance probability of moving from current to
// proposed at the current temperature. A NaN fitness is never accepted.
func (m *Metropolis) Probability(current, proposed float64) float64 {
	delta := proposed - current
	if m.objective == core.Maximize {
		delta = current - proposed
	}
	if math.IsNaN(delta) {
		return 0
	}
	logP := math.Min(0, -delta/(m.temperature+m.epsilon))
	return math.Exp(logP)
}

// Step implements core.Selector. Accepted rows take the proposal's sequence,
// a copy of its mask and its fitness; rejected rows are left untouched.
func (m *Metropolis) Step(rows core.Population, proposals []core.Proposal, rngs []core.Rand) (core.StepResult, error) {
	if len(proposals) != len(rows) || len(rngs) != len(rows) {
		return core.StepResult{}, fmt.Errorf("selector step: %d rows, %d proposals, %d random streams", len(rows), len(proposals), len(rngs))
	}

	accepted := make([]bool, len(rows))
	count := 0
	for i := range rows {
		p := m.Probability(rows[i].Fitness, proposals[i].Fitness)
		if rngs[i].Float64() < p {
			rows[i].Sequence = proposals[i].Sequence
			rows[i].Mask = append([]bool(nil), proposals[i].Mask...)
			rows[i].Fitness = proposals[i].Fitness
			accepted[i] = true
			count++
		}
	}

	rate := 0.0
	if len(rows) > 0 {
		rate = float64(count) / float64(len(rows))
	}
	m.logger.Debug("metropolis step", "accepted", count, "rows", len(rows), "acceptance_rate", rate, "temperature", m.temperature)

	m.temperature *= m.decay

	return core.StepResult{
		Accepted:       accepted,
		AcceptanceRate: rate,
		Temperature:    m.temperature,
	}, nil
}
