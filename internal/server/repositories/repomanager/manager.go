// Package repomanager picks and opens the record index backend: the JSON
// file by default, SQLite for a "sqlite:<path>" DSN and PostgreSQL for any
// other DSN.
package repomanager

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/records"
)

type RepositoryManager interface {
	Records() records.Repository
	Backend() string
	Close() error
}

func Open(ctx context.Context, dsn, recordsFile string, l logging.Logger) (RepositoryManager, error) {
	switch {
	case dsn == "":
		return NewFileRepositoryManager(recordsFile, l)
	case strings.HasPrefix(dsn, SQLitePrefix):
		return NewSQLiteRepositoryManager(ctx, strings.TrimPrefix(dsn, SQLitePrefix))
	default:
		return NewPostgresRepositoryManager(ctx, dsn)
	}
}

type FileRepositoryManager struct {
	records *records.FileRepository
}

func NewFileRepositoryManager(path string, l logging.Logger) (*FileRepositoryManager, error) {
	r, err := records.NewFileRepository(path, l)
	if err != nil {
		return nil, err
	}
	return &FileRepositoryManager{records: r}, nil
}

func (m *FileRepositoryManager) Records() records.Repository { return m.records }

func (m *FileRepositoryManager) Backend() string { return "file" }

func (m *FileRepositoryManager) Close() error { return nil }
