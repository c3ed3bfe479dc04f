// Package store provides database migrations for Story Weaver databases.
// Schema changes are strictly additive: a migration may create tables or add
// columns but never drops or rewrites existing story data.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storyweaver/internal/logging"
)

// Schema versions:
// v1: stories collection
// v2: assets collection (story data untouched)
// v3: settings blob
const CurrentSchemaVersion = 3

// Migration defines one versioned schema step.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// MigrationResult holds the result of a migration run.
type MigrationResult struct {
	FromVersion   int
	ToVersion     int
	MigrationsRun int
	Duration      time.Duration
}

// migrations lists every schema step in version order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "stories collection",
		Statements: []string{`
		CREATE TABLE IF NOT EXISTS stories (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT 0
		)`,
			`CREATE INDEX IF NOT EXISTS idx_stories_updated ON stories(updated_at)`,
		},
	},
	{
		Version:     2,
		Description: "assets collection",
		Statements: []string{`
		CREATE TABLE IF NOT EXISTS assets (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT 0,
			story_id TEXT NOT NULL DEFAULT ''
		)`,
			`CREATE INDEX IF NOT EXISTS idx_assets_created ON assets(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_assets_story ON assets(story_id)`,
		},
	},
	{
		Version:     3,
		Description: "settings blob",
		Statements: []string{`
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		},
	},
}

// RunMigrations upgrades db to CurrentSchemaVersion.
func RunMigrations(ctx context.Context, db *sql.DB) (*MigrationResult, error) {
	return migrateTo(ctx, db, CurrentSchemaVersion)
}

// migrateTo applies every migration up to and including target.
func migrateTo(ctx context.Context, db *sql.DB, target int) (*MigrationResult, error) {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	start := time.Now()
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}

	from := GetSchemaVersion(ctx, db)
	result := &MigrationResult{FromVersion: from, ToVersion: from}
	logging.Store("Schema version %d, target %d", from, target)

	for _, m := range migrations {
		if m.Version <= from || m.Version > target {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return result, err
		}
		result.ToVersion = m.Version
		result.MigrationsRun++
	}

	result.Duration = time.Since(start)
	logging.Store("Schema migrations complete: %d -> %d (%d applied)", result.FromVersion, result.ToVersion, result.MigrationsRun)
	return result, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	logging.Store("Migrating -> v%d: %s", m.Version, m.Description)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration v%d: %w", m.Version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		logging.StoreDebug("Executing: %s", stmt)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			logging.StoreError("Migration v%d failed: %v", m.Version, err)
			return fmt.Errorf("migration v%d failed: %w", m.Version, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
	}
	return nil
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			description TEXT
		)
	`)
	if err != nil {
		logging.StoreError("Failed to create schema_versions table: %v", err)
		return fmt.Errorf("failed to create schema_versions table: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version of a database.
// Databases created before version tracking are inferred from their tables.
func GetSchemaVersion(ctx context.Context, db *sql.DB) int {
	if tableExists(ctx, db, "schema_versions") {
		var version sql.NullInt64
		if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_versions").Scan(&version); err == nil && version.Valid {
			return int(version.Int64)
		}
	}
	return inferSchemaVersion(ctx, db)
}

// inferSchemaVersion determines schema version by examining table structure.
func inferSchemaVersion(ctx context.Context, db *sql.DB) int {
	switch {
	case tableExists(ctx, db, "settings"):
		return 3
	case tableExists(ctx, db, "assets"):
		return 2
	case tableExists(ctx, db, "stories"):
		return 1
	}
	return 0
}

// tableExists checks if a table exists in the database.
func tableExists(ctx context.Context, db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRowContext(ctx, query, table).Scan(&count); err != nil {
		logging.StoreDebug("Table existence check failed for %s: %v", table, err)
		return false
	}
	return count > 0
}
