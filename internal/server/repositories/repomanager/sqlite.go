package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/evidencekeeper/internal/filex"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/records"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLitePrefix selects the embedded index: "sqlite:<path>".
const SQLitePrefix = "sqlite:"

type SQLiteRepositoryManager struct {
	db      *sql.DB
	records *records.SQLiteRepository
}

// NewSQLiteRepositoryManager opens (creating if needed) the database file at
// path and migrates it. A single connection keeps SQLite single-writer.
func NewSQLiteRepositoryManager(ctx context.Context, path string) (*SQLiteRepositoryManager, error) {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db, "sqlite3", migrations.DirSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteRepositoryManager{db: db, records: records.NewSQLiteRepository(db)}, nil
}

func (m *SQLiteRepositoryManager) Records() records.Repository { return m.records }

func (m *SQLiteRepositoryManager) Backend() string { return "sqlite" }

func (m *SQLiteRepositoryManager) Close() error { return m.db.Close() }
