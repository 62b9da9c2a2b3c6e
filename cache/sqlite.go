package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"UCEGo/global"
)

// SqliteStore persists capability records in a single sqlite table keyed by
// normalized contact URI. Capability and availability reads share the table
// and differ only in the expiry window applied to retrieved_at.
type SqliteStore struct {
	db          *sql.DB
	path        string
	capExpiry   time.Duration
	availExpiry time.Duration
	mu          sync.RWMutex
}

func Open(path string, capExpiry, availExpiry time.Duration) (*SqliteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create cache directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	pragmas := `
	PRAGMA foreign_keys = ON;
	PRAGMA journal_mode = WAL;
	PRAGMA busy_timeout = 5000;
	`
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS capabilities (
		contact_uri        TEXT PRIMARY KEY,
		mechanism          TEXT NOT NULL,
		source             TEXT NOT NULL,
		feature_tags       TEXT NOT NULL DEFAULT '[]',
		tuples             TEXT NOT NULL DEFAULT '[]',
		terminated         INTEGER NOT NULL DEFAULT 0,
		termination_reason TEXT NOT NULL DEFAULT '',
		retrieved_at       INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create capabilities table: %w", err)
	}

	return &SqliteStore{
		db:          db,
		path:        path,
		capExpiry:   capExpiry,
		availExpiry: availExpiry,
	}, nil
}

func (s *SqliteStore) ReadCapabilities(uris []string) []Result {
	results := make([]Result, 0, len(uris))
	for _, uri := range uris {
		results = append(results, s.readOne(uri, s.capExpiry))
	}
	return results
}

func (s *SqliteStore) ReadAvailability(uri string) Result {
	return s.readOne(uri, s.availExpiry)
}

func (s *SqliteStore) readOne(uri string, expiry time.Duration) Result {
	uri = global.NormalizeURI(uri)

	s.mu.RLock()
	row := s.db.QueryRow(`SELECT mechanism, source, feature_tags, tuples, terminated, termination_reason, retrieved_at
		FROM capabilities WHERE contact_uri = ?`, uri)
	s.mu.RUnlock()

	var (
		mechanism, source, tagsJSON, tuplesJSON, reason string
		terminated                                      int
		retrievedAt                                     int64
	)
	err := row.Scan(&mechanism, &source, &tagsJSON, &tuplesJSON, &terminated, &reason, &retrievedAt)
	if err == sql.ErrNoRows {
		return Result{Status: StatusNotFound}
	}
	if err != nil {
		global.LogError(global.LTCache, fmt.Sprintf("read [%s] failed - %v", uri, err))
		return Result{Status: StatusError}
	}

	record := global.Capability{
		ContactURI:        uri,
		Mechanism:         global.CapabilityMechanism(mechanism),
		Source:            global.SourceCached,
		Terminated:        terminated != 0,
		TerminationReason: reason,
		RetrievedAt:       time.UnixMilli(retrievedAt),
	}
	if err := json.Unmarshal([]byte(tagsJSON), &record.FeatureTags); err != nil {
		global.LogError(global.LTCache, fmt.Sprintf("decode feature tags [%s] failed - %v", uri, err))
		return Result{Status: StatusError}
	}
	if err := json.Unmarshal([]byte(tuplesJSON), &record.Tuples); err != nil {
		global.LogError(global.LTCache, fmt.Sprintf("decode tuples [%s] failed - %v", uri, err))
		return Result{Status: StatusError}
	}

	if time.Since(record.RetrievedAt) > expiry {
		return Result{Status: StatusExpired, Record: record}
	}
	return Result{Status: StatusFresh, Record: record}
}

// Write upserts the given records. A record retrieved over the network replaces
// any cached row for the same contact in full.
func (s *SqliteStore) Write(records []global.Capability) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO capabilities
		(contact_uri, mechanism, source, feature_tags, tuples, terminated, termination_reason, retrieved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_uri) DO UPDATE SET
			mechanism = excluded.mechanism,
			source = excluded.source,
			feature_tags = excluded.feature_tags,
			tuples = excluded.tuples,
			terminated = excluded.terminated,
			termination_reason = excluded.termination_reason,
			retrieved_at = excluded.retrieved_at`)
	if err != nil {
		return fmt.Errorf("prepare cache write: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		uri := global.NormalizeURI(record.ContactURI)
		if uri == "" {
			continue
		}
		tagsJSON, err := json.Marshal(record.FeatureTags)
		if err != nil {
			return fmt.Errorf("encode feature tags [%s]: %w", uri, err)
		}
		tuplesJSON, err := json.Marshal(record.Tuples)
		if err != nil {
			return fmt.Errorf("encode tuples [%s]: %w", uri, err)
		}
		retrievedAt := record.RetrievedAt
		if retrievedAt.IsZero() {
			retrievedAt = time.Now()
		}
		terminated := 0
		if record.Terminated {
			terminated = 1
		}
		if _, err := stmt.Exec(uri, string(record.Mechanism), string(record.Source),
			string(tagsJSON), string(tuplesJSON), terminated, record.TerminationReason,
			retrievedAt.UnixMilli()); err != nil {
			return fmt.Errorf("write cache record [%s]: %w", uri, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache write: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
