package snapshot

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/snow-ghost/bindopt/core"
)

// SQLiteStore keeps every generation of every run in one SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	runID string
}

// NewSQLiteStore opens (or creates) the database at dbPath. Rows saved
// through this store are tagged with runID.
func NewSQLiteStore(dbPath, runID string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteStore{db: db, path: dbPath, runID: runID}, nil
}

// RunID returns the run the store writes under.
func (s *SQLiteStore) RunID() string {
	return s.runID
}

// Prepare implements core.SnapshotStore
func (s *SQLiteStore) Prepare() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	query := `
	CREATE TABLE IF NOT EXISTS candidates (
		run_id TEXT NOT NULL,
		generation INTEGER NOT NULL,
		row INTEGER NOT NULL,
		id TEXT,
		sequence TEXT NOT NULL,
		mask TEXT NOT NULL,
		target TEXT NOT NULL,
		fitness REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, generation, row)
	);

	CREATE INDEX IF NOT EXISTS idx_candidates_sequence ON candidates(sequence);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Save implements core.SnapshotStore
func (s *SQLiteStore) Save(generation int, rows core.Population) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO candidates (
		run_id, generation, row, id, sequence, mask, target, fitness
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range rows {
		if _, err := stmt.Exec(s.runID, generation, i, c.ID, c.Sequence, core.FormatMask(c.Mask), c.Target, c.Fitness); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Load returns the rows saved for a generation of the store's run.
func (s *SQLiteStore) Load(generation int) (core.Population, error) {
	rows, err := s.db.Query(`
	SELECT id, sequence, mask, target, fitness FROM candidates
	WHERE run_id = ? AND generation = ? ORDER BY row
	`, s.runID, generation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// LatestGeneration returns the highest saved generation of the store's run.
func (s *SQLiteStore) LatestGeneration() (int, error) {
	var gen sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(generation) FROM candidates WHERE run_id = ?`, s.runID).Scan(&gen); err != nil {
		return 0, err
	}
	if !gen.Valid {
		return 0, ErrNoSnapshots
	}
	return int(gen.Int64), nil
}

// Unique returns the first occurrence of every sequence over all runs,
// ordered by run, generation and row.
func (s *SQLiteStore) Unique() (core.Population, error) {
	rows, err := s.db.Query(`
	SELECT id, sequence, mask, target, fitness FROM candidates
	ORDER BY created_at, run_id, generation, row
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := scanCandidates(rows)
	if err != nil {
		return nil, err
	}
	return Unique(all), nil
}

func scanCandidates(rows *sql.Rows) (core.Population, error) {
	var pop core.Population
	for rows.Next() {
		var (
			c    core.Candidate
			id   sql.NullString
			mask string
		)
		if err := rows.Scan(&id, &c.Sequence, &mask, &c.Target, &c.Fitness); err != nil {
			return nil, err
		}
		c.ID = id.String

		var err error
		if c.Mask, err = core.ParseMask(mask); err != nil {
			return nil, err
		}
		pop = append(pop, c)
	}
	return pop, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
