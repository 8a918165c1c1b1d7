// Package sitememory persists per-site browsing history — cookies, success
// rate, timing patterns, and the selectors/extraction strategies that
// worked last time — so a later session against the same origin starts
// from what was already learned about it. Backed by SQLite via the
// pure-Go modernc.org/sqlite driver, so the binary stays cgo-free.
package sitememory

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one site's learned state. The JSON-valued fields are opaque
// blobs to the store itself — callers decide their shape — mirroring the
// source system's "stash whatever worked, read it back verbatim" design.
type Record struct {
	SiteURL             string
	SessionData         map[string]interface{}
	Cookies             []map[string]interface{}
	LastAccessed        time.Time
	AccessCount         int64
	SuccessRate         float64
	CustomData          map[string]interface{}
	ExtractionPatterns  map[string]interface{}
	PerformanceMetrics  map[string]interface{}
	TimingPatterns      map[string]interface{}
	SiteCharacteristics map[string]interface{}
	AntiDetectionRules  map[string]interface{}
	OptimalSelectors    map[string]string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Store wraps a SQLite connection holding the site_memory table. A single
// open connection (SetMaxOpenConns(1)) serializes database access, and mu
// additionally serializes Save and CleanupExpired within the process.
// SQLite itself only allows one writer at a time, so there's no benefit
// to letting database/sql hand out a second connection that would just
// block on SQLITE_BUSY.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	mu  sync.Mutex
}

// Open creates or opens the site memory database at path, running any
// pending schema migrations before returning.
func Open(path string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open site memory db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping site memory db: %w", err)
	}

	s := &Store{db: db, ttl: ttl}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init site memory schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate site memory schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
