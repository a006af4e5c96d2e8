package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/behzadon/podium/internal/storage/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	upMarker   = "-- Up Migration"
	downMarker = "-- Down Migration"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Create and run the share journal migrations.`,
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations("up")
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Rollback the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations("down")
		},
	}

	migrateCreateCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return createMigration(GetConfig().Migration.Dir, args[0], time.Now())
		},
	}
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateCreateCmd)
}

func runMigrations(direction string) error {
	cfg := GetConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			logger.Error("Failed to sync logger", zap.Error(err))
		}
	}()

	db, err := postgres.Connect(cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	if err := createMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	files, err := getMigrationFiles(cfg.Migration.Dir)
	if err != nil {
		return fmt.Errorf("get migration files: %w", err)
	}

	applied, err := getAppliedMigrations(db)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	if direction == "up" {
		for _, file := range files {
			if !applied[filepath.Base(file)] {
				if err := runMigration(db, file, "up", logger); err != nil {
					return fmt.Errorf("run migration %s: %w", file, err)
				}
			}
		}
		return nil
	}

	last := lastApplied(files, applied)
	if last == "" {
		fmt.Println("No migrations to rollback")
		return nil
	}
	if err := runMigration(db, last, "down", logger); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	return nil
}

func createMigration(dir, name string, now time.Time) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create migrations directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.sql", now.Format("20060102150405"), strings.ToLower(name))
	path := filepath.Join(dir, filename)

	content := fmt.Sprintf(`-- Migration: %s
-- Created at: %s

%s

%s
`, name, now.Format(time.RFC3339), upMarker, downMarker)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write migration file: %w", err)
	}

	fmt.Printf("Created migration: %s\n", path)
	return nil
}

func createMigrationsTable(db *sqlx.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`
	_, err := db.Exec(query)
	return err
}

func getMigrationFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func getAppliedMigrations(db *sqlx.DB) (map[string]bool, error) {
	var names []string
	if err := db.Select(&names, `SELECT name FROM migrations ORDER BY applied_at`); err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(names))
	for _, name := range names {
		applied[name] = true
	}
	return applied, nil
}

// lastApplied returns the newest migration file that has been applied.
func lastApplied(files []string, applied map[string]bool) string {
	var last string
	for _, file := range files {
		if applied[filepath.Base(file)] {
			last = file
		}
	}
	return last
}

// splitMigration returns the up and down halves of a migration file.
func splitMigration(content string) (string, string, error) {
	parts := strings.Split(content, downMarker)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid migration file format")
	}
	up := parts[0]
	if i := strings.Index(up, upMarker); i >= 0 {
		up = up[i+len(upMarker):]
	}
	return strings.TrimSpace(up), strings.TrimSpace(parts[1]), nil
}

func rollbackTx(tx *sql.Tx, logger *zap.Logger) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logger.Error("Failed to rollback transaction", zap.Error(err))
	}
}

func runMigration(db *sqlx.DB, filename string, direction string, logger *zap.Logger) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	upMigration, downMigration, err := splitMigration(string(content))
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackTx(tx, logger)

	var migrationSQL string
	if direction == "up" {
		migrationSQL = upMigration
		_, err = tx.Exec("INSERT INTO migrations (name) VALUES ($1)", filepath.Base(filename))
	} else {
		migrationSQL = downMigration
		_, err = tx.Exec("DELETE FROM migrations WHERE name = $1", filepath.Base(filename))
	}
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	if migrationSQL != "" {
		if _, err := tx.Exec(migrationSQL); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	fmt.Printf("Executed %s migration: %s\n", direction, filename)
	return nil
}
