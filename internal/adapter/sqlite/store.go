package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"drift/internal/converge"
	"drift/internal/deploy"
)

// CycleRecord is one persisted per-node convergence outcome.
type CycleRecord struct {
	ID               int64
	Node             deploy.NodeAddress
	Phase            string
	ChangesAttempted int
	ChangesSucceeded int
	Failures         []string
	Started          time.Time
	Finished         time.Time
}

// Store persists convergence history so operators can answer "what did the
// last deploy do to this node" after the process is gone.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS cycles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	node TEXT NOT NULL,
	phase TEXT NOT NULL,
	changes_attempted INTEGER NOT NULL,
	changes_succeeded INTEGER NOT NULL,
	failures_json TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cycle history schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordReport persists every result of a cluster-wide cycle.
func (s *Store) RecordReport(report converge.Report) error {
	for _, result := range report.Results {
		if err := s.RecordCycle(result); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RecordCycle(result converge.Result) error {
	failures := make([]string, 0, len(result.Failures))
	for _, failure := range result.Failures {
		failures = append(failures, failure.Error())
	}
	payload, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("marshal cycle failures: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO cycles (node, phase, changes_attempted, changes_succeeded, failures_json, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(result.Node),
		result.Phase.String(),
		result.ChangesAttempted,
		result.ChangesSucceeded,
		string(payload),
		result.Started.UTC().Format(time.RFC3339Nano),
		result.Finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record cycle for %s: %w", result.Node, err)
	}
	return nil
}

// ListCycles returns up to limit records, newest first. A non-empty node
// filters to that node's history.
func (s *Store) ListCycles(node deploy.NodeAddress, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, node, phase, changes_attempted, changes_succeeded, failures_json, started_at, finished_at
		FROM cycles`
	args := []any{}
	if node != "" {
		query += ` WHERE node = ?`
		args = append(args, string(node))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	out := make([]CycleRecord, 0)
	for rows.Next() {
		record, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle rows: %w", err)
	}
	return out, nil
}

// LastCycle returns the most recent record for a node.
func (s *Store) LastCycle(node deploy.NodeAddress) (CycleRecord, bool, error) {
	row := s.db.QueryRow(
		`SELECT id, node, phase, changes_attempted, changes_succeeded, failures_json, started_at, finished_at
		 FROM cycles WHERE node = ? ORDER BY id DESC LIMIT 1`,
		string(node),
	)
	record, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CycleRecord{}, false, nil
		}
		return CycleRecord{}, false, err
	}
	return record, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (CycleRecord, error) {
	var record CycleRecord
	var node, failuresJSON, started, finished string
	if err := row.Scan(&record.ID, &node, &record.Phase, &record.ChangesAttempted,
		&record.ChangesSucceeded, &failuresJSON, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CycleRecord{}, sql.ErrNoRows
		}
		return CycleRecord{}, fmt.Errorf("scan cycle row: %w", err)
	}
	record.Node = deploy.NodeAddress(node)
	if err := json.Unmarshal([]byte(failuresJSON), &record.Failures); err != nil {
		return CycleRecord{}, fmt.Errorf("unmarshal cycle failures: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
		record.Started = t
	}
	if t, err := time.Parse(time.RFC3339Nano, finished); err == nil {
		record.Finished = t
	}
	return record, nil
}
