package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/docbed/docbed/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	migrationOnce sync.Once
	migrationErr  error
)

// migrationLockID serializes schema changes across instances.
const migrationLockID = 7211

// Migrate applies pending schema migrations exactly once per process,
// under a Postgres advisory lock for multi-instance safety.
func (db *DB) Migrate(ctx context.Context, connString string) error {
	migrationOnce.Do(func() {
		sqlDB, err := sql.Open("pgx", connString)
		if err != nil {
			migrationErr = fmt.Errorf("opening migration connection: %w", err)
			return
		}
		defer sqlDB.Close()
		migrationErr = runMigrations(ctx, sqlDB)
	})
	return migrationErr
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer func() {
		if _, err := db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			logger.FromContext(ctx).Error("failed to release migration lock", "error", err)
		}
	}()
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// ResetMigrationsForTest resets the migration singleton. Test code only.
func ResetMigrationsForTest() {
	migrationOnce = sync.Once{}
	migrationErr = nil
}
