package inventory

import (
	"database/sql"
	"errors"
	"fmt"
)

const currentSchemaVersion = 3

// runMigrations brings the SQLite schema up to currentSchemaVersion
func (s *SQLiteStore) runMigrations() error {
	version, err := s.SchemaVersion()
	if err != nil {
		return err
	}

	if version < 1 {
		if err := s.migrate(1, sqliteSchema); err != nil {
			return fmt.Errorf("migration to v1 failed: %w", err)
		}
	}

	if version < 2 {
		if err := s.migrate(2,
			`CREATE INDEX IF NOT EXISTS idx_devices_rack ON devices(rack_id)`,
			`CREATE INDEX IF NOT EXISTS idx_devices_role ON devices(role_id)`,
		); err != nil {
			return fmt.Errorf("migration to v2 failed: %w", err)
		}
	}

	if version < 3 {
		if err := s.migrate(3,
			`CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status)`,
		); err != nil {
			return fmt.Errorf("migration to v3 failed: %w", err)
		}
	}

	return nil
}

// SchemaVersion returns the applied schema version, 0 for an empty database
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var tableName string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='dcb_schema_version'
	`).Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM dcb_schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// migrate runs statements and records version in one transaction
func (s *SQLiteStore) migrate(version int, statements ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements = append([]string{
		`CREATE TABLE IF NOT EXISTS dcb_schema_version (
			version INTEGER PRIMARY KEY
		)`,
	}, statements...)
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	if _, err := tx.Exec("INSERT OR IGNORE INTO dcb_schema_version (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}
