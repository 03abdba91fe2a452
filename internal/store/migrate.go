package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite3/*.sql
var migrationFiles embed.FS

// applyMigrations brings db up to the latest schema version, creating the
// files/metadata/checkpoints tables on a fresh store.
func applyMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: migration init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migration up: %w", err)
	}
	return nil
}

// schemaValid reports whether the three required tables exist with the
// columns this package expects (spec §4.2, is_schema_valid).
func schemaValid(db *sql.DB) (bool, error) {
	for table, cols := range map[string][]string{
		"files":       {"id", "logical_name", "byte_size", "mtime", "sha256"},
		"metadata":    {"file_id", "checkpoint_size", "total_lines", "total_uc_size"},
		"checkpoints": {"file_id", "checkpoint_idx", "uc_offset", "uc_size", "c_offset", "c_size", "bits", "dict_compressed", "num_lines", "last_line_num"},
	} {
		rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return false, err
		}
		seen := map[string]bool{}
		for rows.Next() {
			var cid int
			var name, ctype string
			var notnull, pk int
			var dflt interface{}
			if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				rows.Close()
				return false, err
			}
			seen[name] = true
		}
		rows.Close()
		if len(seen) == 0 {
			return false, nil
		}
		for _, c := range cols {
			if !seen[c] {
				return false, nil
			}
		}
	}
	return true, nil
}
