package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore appends run results to a SQLite catalog. Only outputs are
// stored (labels and coordinates); nothing is ever read back into a run.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the catalog at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		generated_at TEXT NOT NULL,
		input TEXT NOT NULL,
		images INTEGER NOT NULL,
		components INTEGER NOT NULL,
		clusters INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		inertia REAL
	);
	CREATE TABLE IF NOT EXISTS assignments (
		run_id INTEGER NOT NULL REFERENCES runs(id),
		path TEXT NOT NULL,
		cluster INTEGER NOT NULL,
		x REAL,
		y REAL,
		PRIMARY KEY (run_id, path)
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_cluster ON assignments(run_id, cluster);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating catalog schema: %v", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save stores r as a new run and returns its id.
func (s *SQLiteStore) Save(ctx context.Context, r *Report) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (generated_at, input, images, components, clusters, seed, inertia)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.GeneratedAt.UTC().Format(time.RFC3339Nano), r.Input, r.Images, r.Components, r.Clusters, r.Seed, r.Inertia)
	if err != nil {
		return 0, fmt.Errorf("error inserting run: %v", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO assignments (run_id, path, cluster, x, y) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, a := range r.Assignments {
		if _, err := stmt.ExecContext(ctx, runID, a.Path, a.Cluster, a.X, a.Y); err != nil {
			return 0, fmt.Errorf("error inserting assignment for %s: %v", a.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// ClusterSizes returns the number of images per cluster for a run.
func (s *SQLiteStore) ClusterSizes(ctx context.Context, runID int64) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cluster, COUNT(*) FROM assignments WHERE run_id = ? GROUP BY cluster`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sizes := map[int]int{}
	for rows.Next() {
		var cluster, count int
		if err := rows.Scan(&cluster, &count); err != nil {
			return nil, err
		}
		sizes[cluster] = count
	}
	return sizes, rows.Err()
}
