package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/records"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager owns the connection pool behind the
// PostgreSQL record index.
type PostgresRepositoryManager struct {
	db      *sql.DB
	records *records.PostgresRepository
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// RunMigrations sets up goose with the embedded migrations for dialect and
// applies the ones in dir.
func RunMigrations(ctx context.Context, db *sql.DB, dialect, dir string) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, dir); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager connects, migrates and returns the manager.
func NewPostgresRepositoryManager(ctx context.Context, dsn string) (*PostgresRepositoryManager, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(ctx, db, "pgx", migrations.DirPostgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PostgresRepositoryManager{db: db, records: records.NewPostgresRepository(db)}, nil
}

func (m *PostgresRepositoryManager) Records() records.Repository { return m.records }

func (m *PostgresRepositoryManager) Backend() string { return "postgres" }

func (m *PostgresRepositoryManager) Close() error { return m.db.Close() }
