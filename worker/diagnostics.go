package worker

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/snow-ghost/bindopt/core"
)

// GenerationDiagnostics summarizes the population after one generation.
type GenerationDiagnostics struct {
	Generation      int     `json:"generation"`
	AcceptanceRate  float64 `json:"acceptance_rate"`
	Temperature     float64 `json:"temperature"`
	Accepted        int     `json:"accepted"`
	BestFitness     float64 `json:"best_fitness"`
	MeanFitness     float64 `json:"mean_fitness"`
	StdFitness      float64 `json:"std_fitness"`
	MeanLength      float64 `json:"mean_length"`
	UniqueSequences int     `json:"unique_sequences"`
}

func diagnose(generation int, rows core.Population, step core.StepResult, objective core.Objective) GenerationDiagnostics {
	fitness := make([]float64, len(rows))
	lengths := make([]float64, len(rows))
	unique := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		fitness[i] = row.Fitness
		lengths[i] = float64(len(row.Sequence))
		unique[row.Sequence] = struct{}{}
	}

	accepted := 0
	for _, ok := range step.Accepted {
		if ok {
			accepted++
		}
	}

	d := GenerationDiagnostics{
		Generation:      generation,
		AcceptanceRate:  step.AcceptanceRate,
		Temperature:     step.Temperature,
		Accepted:        accepted,
		MeanLength:      stat.Mean(lengths, nil),
		UniqueSequences: len(unique),
	}
	if len(rows) > 1 {
		d.MeanFitness, d.StdFitness = stat.MeanStdDev(fitness, nil)
	} else if len(rows) == 1 {
		d.MeanFitness = fitness[0]
	}
	if len(rows) > 0 {
		if objective == core.Maximize {
			d.BestFitness = floats.Max(fitness)
		} else {
			d.BestFitness = floats.Min(fitness)
		}
	}
	return d
}
