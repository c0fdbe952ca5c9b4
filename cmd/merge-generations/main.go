package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/snapshot"
)

func main() {
	var (
		dir     = flag.String("dir", "", "Directory holding generation_<n>.csv snapshots")
		dbPath  = flag.String("sqlite", "", "SQLite snapshot database to merge instead of a directory")
		limit   = flag.Int("limit", 0, "Only merge generations below this number (0 = all)")
		output  = flag.String("output", "-", "Output CSV path, - for stdout")
		verbose = flag.Bool("verbose", false, "Verbose output")
	)
	flag.Parse()

	if (*dir == "") == (*dbPath == "") {
		log.Fatal("exactly one of -dir or -sqlite is required")
	}

	var (
		pop core.Population
		err error
	)
	if *dbPath != "" {
		pop, err = mergeSQLite(*dbPath)
	} else {
		pop, err = snapshot.Merge(*dir, *limit)
	}
	if err != nil {
		log.Fatalf("Failed to merge snapshots: %v", err)
	}

	if *output == "-" {
		if err := snapshot.WritePopulation(os.Stdout, pop); err != nil {
			log.Fatalf("Failed to write population: %v", err)
		}
	} else if err := snapshot.WritePopulationFile(*output, pop); err != nil {
		log.Fatalf("Failed to write population: %v", err)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Merged %d unique candidates\n", len(pop))
	}
}

func mergeSQLite(path string) (core.Population, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	store, err := snapshot.NewSQLiteStore(path, "")
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Unique()
}
