// Package snapshot persists populations: per-generation CSV files, the
// acceptance table, a SQLite store, and the merge of all generations into
// unique candidates.
package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/snow-ghost/bindopt/core"
)

// Header is the column layout of population CSV files.
var Header = []string{"row", "id", "sequence", "mask", "target", "fitness"}

// WritePopulation writes pop as CSV with a header line.
func WritePopulation(w io.Writer, pop core.Population) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for i, c := range pop {
		record := []string{
			strconv.Itoa(i),
			c.ID,
			c.Sequence,
			core.FormatMask(c.Mask),
			c.Target,
			strconv.FormatFloat(c.Fitness, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPopulation parses CSV written by WritePopulation. Columns are found by
// header name so extra columns are ignored.
func ReadPopulation(r io.Reader) (core.Population, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"sequence", "mask", "target", "fitness"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var pop core.Population
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}

		mask, err := core.ParseMask(field("mask"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fitness, err := strconv.ParseFloat(field("fitness"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid fitness: %w", line, err)
		}
		pop = append(pop, core.Candidate{
			ID:       field("id"),
			Sequence: field("sequence"),
			Mask:     mask,
			Target:   field("target"),
			Fitness:  fitness,
		})
	}
	return pop, nil
}

// WritePopulationFile writes pop to path through a temporary file so readers
// never see a partial snapshot.
func WritePopulationFile(path string, pop core.Population) error {
	return writeAtomic(path, func(w io.Writer) error { return WritePopulation(w, pop) })
}

// ReadPopulationFile reads a population CSV file.
func ReadPopulationFile(path string) (core.Population, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pop, err := ReadPopulation(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pop, nil
}

// WriteAcceptance writes the per-generation acceptance table. Generations are
// numbered from first.
func WriteAcceptance(path string, first int, rates []float64) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"generation", "acceptance_rate"}); err != nil {
			return err
		}
		for i, rate := range rates {
			if err := cw.Write([]string{strconv.Itoa(first + i), strconv.FormatFloat(rate, 'g', -1, 64)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
