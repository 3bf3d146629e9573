// Package baseline persists accepted findings so known defects stop
// failing subsequent runs. Acceptance is keyed by a content fingerprint
// (unit, member, member type, nested type), never by source position, so
// unrelated edits do not invalidate the baseline.
package baseline

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/funvibe/veq/internal/analyzer"
)

// Store manages the baseline database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Entry is one accepted finding.
type Entry struct {
	Fingerprint string
	Unit        string
	Member      string
	Type        string
	Inner       string
	AcceptedAt  time.Time
	RunID       string
}

// RunRecord is the stored summary of one analysis run.
type RunRecord struct {
	ID         string
	CreatedAt  time.Time
	Source     string
	Provider   string
	Findings   int
	Suppressed int
}

// Open creates or opens a baseline store at path. The special path
// ":memory:" opens a private in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create baseline directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open baseline database: %w", err)
	}
	// sqlite has a single writer, and a :memory: database exists per
	// connection, so the pool must not grow past one.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize baseline schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		source TEXT NOT NULL,
		provider TEXT NOT NULL,
		findings INTEGER NOT NULL,
		suppressed INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS accepted (
		fingerprint TEXT PRIMARY KEY,
		unit TEXT NOT NULL,
		member TEXT NOT NULL,
		member_type TEXT NOT NULL,
		inner TEXT NOT NULL DEFAULT '',
		accepted_at DATETIME NOT NULL,
		run_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_accepted_unit ON accepted(unit);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Fingerprint derives the stable identity of a finding.
func Fingerprint(f *analyzer.Finding) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", f.Unit, f.Member, f.Type, f.Inner)))
	return hex.EncodeToString(h[:])
}

// Accept records findings as known. Already-accepted findings are left
// untouched. Returns the number of newly accepted entries.
func (s *Store) Accept(findings []*analyzer.Finding, runID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	accepted := 0
	for _, f := range findings {
		res, err := s.db.Exec(`
			INSERT OR IGNORE INTO accepted (fingerprint, unit, member, member_type, inner, accepted_at, run_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, Fingerprint(f), f.Unit, f.Member, f.Type, f.Inner, now, runID)
		if err != nil {
			return accepted, fmt.Errorf("failed to accept finding %s.%s: %w", f.Unit, f.Member, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			accepted++
		}
	}
	return accepted, nil
}

// Known reports whether the finding is in the accepted baseline.
func (s *Store) Known(f *analyzer.Finding) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM accepted WHERE fingerprint = ?`, Fingerprint(f)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query baseline: %w", err)
	}
	return count > 0, nil
}

// Filter splits findings into unaccepted ones and a suppressed count.
// Order is preserved.
func (s *Store) Filter(findings []*analyzer.Finding) ([]*analyzer.Finding, int, error) {
	kept := make([]*analyzer.Finding, 0, len(findings))
	suppressed := 0
	for _, f := range findings {
		known, err := s.Known(f)
		if err != nil {
			return nil, 0, err
		}
		if known {
			suppressed++
			continue
		}
		kept = append(kept, f)
	}
	return kept, suppressed, nil
}

// Accepted lists the baseline entries ordered by unit then member.
func (s *Store) Accepted() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT fingerprint, unit, member, member_type, inner, accepted_at, COALESCE(run_id, '')
		FROM accepted
		ORDER BY unit, member
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list baseline: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Fingerprint, &e.Unit, &e.Member, &e.Type, &e.Inner, &e.AcceptedAt, &e.RunID); err != nil {
			return nil, fmt.Errorf("failed to scan baseline entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes every accepted entry. Run history is kept.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM accepted`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear baseline: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RecordRun stores the summary of one analysis run.
func (s *Store) RecordRun(rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, created_at, source, provider, findings, suppressed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CreatedAt, rec.Source, rec.Provider, rec.Findings, rec.Suppressed)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Runs lists stored run summaries, newest first.
func (s *Store) Runs(limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, created_at, source, provider, findings, suppressed
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Source, &r.Provider, &r.Findings, &r.Suppressed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
