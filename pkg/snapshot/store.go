package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/snow-ghost/bindopt/core"
)

// ErrNoSnapshots is returned when a directory holds no generation files.
var ErrNoSnapshots = errors.New("no generation snapshots found")

// CSVStore writes one generation_<n>.csv file per generation into Dir.
type CSVStore struct {
	Dir string
}

// NewCSVStore creates a CSV snapshot store
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{Dir: dir}
}

// Prepare implements core.SnapshotStore
func (s *CSVStore) Prepare() error {
	if s.Dir == "" {
		return fmt.Errorf("snapshot directory is empty")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return nil
}

// Save implements core.SnapshotStore
func (s *CSVStore) Save(generation int, rows core.Population) error {
	return WritePopulationFile(GenerationPath(s.Dir, generation), rows)
}

// GenerationPath returns the snapshot file name of a generation.
func GenerationPath(dir string, generation int) string {
	return filepath.Join(dir, fmt.Sprintf("generation_%d.csv", generation))
}

// Generations lists the generation numbers present in dir, ascending.
func Generations(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var gens []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "generation_") || !strings.HasSuffix(name, ".csv") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "generation_"), ".csv"))
		if err != nil || n < 0 {
			continue
		}
		gens = append(gens, n)
	}
	sort.Ints(gens)
	return gens, nil
}

// LoadLatest returns the highest generation in dir and its population.
func LoadLatest(dir string) (int, core.Population, error) {
	gens, err := Generations(dir)
	if err != nil {
		return 0, nil, err
	}
	if len(gens) == 0 {
		return 0, nil, fmt.Errorf("%s: %w", dir, ErrNoSnapshots)
	}
	last := gens[len(gens)-1]
	pop, err := ReadPopulationFile(GenerationPath(dir, last))
	if err != nil {
		return 0, nil, err
	}
	return last, pop, nil
}
