package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

// Migration represents a single database migration.
// Each migration has a unique ID and is applied at most once.
type Migration struct {
	ID          int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

// migrations are applied in order. Append new ones; never renumber.
var migrations = []Migration{
	{
		ID:          1,
		Description: "rebuild full-text index from transactions",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			// rows imported before the triggers existed are missing from the index
			_, err := tx.ExecContext(ctx, `INSERT INTO transactions_fts(transactions_fts) VALUES ('rebuild')`)
			return err
		},
	},
	{
		ID:          2,
		Description: "index transactions by date and type",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_transactions_date_type ON transactions(date, type)`)
			return err
		},
	},
}

// ApplyMigrations applies all pending migrations to the database
func ApplyMigrations(ctx context.Context, db *sql.DB, logger *log.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		logger.Info("Applying migration", "id", m.ID, "description", m.Description)
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.ID, err)
		}
	}

	return nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.Up(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (id) VALUES (?)`, m.ID); err != nil {
		return err
	}
	return tx.Commit()
}
