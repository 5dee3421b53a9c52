package store

import (
	"embed"
	"fmt"
	"path"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var embedMigrations embed.FS

// Migrate applies all pending goose migrations for the store's dialect.
func (s *Store) Migrate() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(s.driver); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.Up(s.db.DB, path.Join("migrations", s.driver)); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	s.logger.Info("database migrated", "driver", s.driver)
	return nil
}
