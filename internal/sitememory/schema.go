package sitememory

import (
	"database/sql"
	"strings"
	"time"
)

// schemaVersion is the current site_memory schema generation. Bump this and
// add a migration step below whenever a new column is introduced, the same
// way the source system tracked DB_VERSION.
const schemaVersion = 2

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS site_memory (
			site_url TEXT PRIMARY KEY,
			session_data TEXT NOT NULL DEFAULT '{}',
			cookies TEXT NOT NULL DEFAULT '[]',
			last_accessed REAL NOT NULL DEFAULT 0,
			access_count INTEGER NOT NULL DEFAULT 0,
			success_rate REAL NOT NULL DEFAULT 0.0,
			custom_data TEXT NOT NULL DEFAULT '{}',
			extraction_patterns TEXT NOT NULL DEFAULT '{}',
			performance_metrics TEXT NOT NULL DEFAULT '{}',
			timing_patterns TEXT NOT NULL DEFAULT '{}',
			site_characteristics TEXT NOT NULL DEFAULT '{}',
			anti_detection_rules TEXT NOT NULL DEFAULT '{}',
			optimal_selectors TEXT NOT NULL DEFAULT '{}',
			created_at REAL NOT NULL DEFAULT 0,
			updated_at REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_site_memory_last_accessed ON site_memory(last_accessed)`,
		`CREATE INDEX IF NOT EXISTS idx_site_memory_access_count ON site_memory(access_count)`,
		`CREATE INDEX IF NOT EXISTS idx_site_memory_success_rate ON site_memory(success_rate)`,
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			migrated_at REAL NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) currentVersion() int {
	var version sql.NullInt64
	row := s.db.QueryRow(`SELECT MAX(version) FROM schema_version`)
	if err := row.Scan(&version); err != nil {
		return 0
	}
	if !version.Valid {
		return 0
	}
	return int(version.Int64)
}

// migrate adds any columns a schema_version bump has introduced since this
// database was created, tolerating "duplicate column name" the way the
// source system does — a retried migration on an already-current database
// is a no-op, not an error.
func (s *Store) migrate() error {
	current := s.currentVersion()
	if current >= schemaVersion {
		return nil
	}

	if current < 2 {
		newColumns := []string{
			`ALTER TABLE site_memory ADD COLUMN extraction_patterns TEXT NOT NULL DEFAULT '{}'`,
			`ALTER TABLE site_memory ADD COLUMN performance_metrics TEXT NOT NULL DEFAULT '{}'`,
			`ALTER TABLE site_memory ADD COLUMN timing_patterns TEXT NOT NULL DEFAULT '{}'`,
			`ALTER TABLE site_memory ADD COLUMN site_characteristics TEXT NOT NULL DEFAULT '{}'`,
			`ALTER TABLE site_memory ADD COLUMN anti_detection_rules TEXT NOT NULL DEFAULT '{}'`,
			`ALTER TABLE site_memory ADD COLUMN optimal_selectors TEXT NOT NULL DEFAULT '{}'`,
			`ALTER TABLE site_memory ADD COLUMN updated_at REAL NOT NULL DEFAULT 0`,
		}

		for _, stmt := range newColumns {
			if _, err := s.db.Exec(stmt); err != nil {
				if !strings.Contains(strings.ToLower(err.Error()), "duplicate column name") {
					return err
				}
			}
		}

		if _, err := s.db.Exec(
			`INSERT OR REPLACE INTO schema_version (version, migrated_at) VALUES (?, ?)`,
			schemaVersion, float64(time.Now().Unix()),
		); err != nil {
			return err
		}
	}

	return nil
}
