package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/filex"
	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/google/uuid"
)

type document struct {
	Records []*models.EvidenceRecord `json:"records"`
}

// FileRepository keeps every record in one JSON document. Writers are
// serialized by a mutex and the document is replaced by rename, so a crash
// mid-write leaves the previous version in place.
type FileRepository struct {
	path   string
	mu     sync.Mutex
	logger logging.Logger
	now    func() time.Time
	newID  func() string
}

func NewFileRepository(path string, l logging.Logger) (*FileRepository, error) {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	r := &FileRepository{
		path:   path,
		logger: l.With("module", "records"),
		now:    time.Now,
		newID:  uuid.NewString,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.load(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// load reads the document, rewriting it as empty when it is missing,
// unreadable or malformed. Callers hold mu.
func (r *FileRepository) load(ctx context.Context) ([]*models.EvidenceRecord, error) {
	data, err := os.ReadFile(r.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, r.reset(ctx, "missing")
	case err != nil:
		r.logger.Warn(ctx, "records file unreadable", "path", r.path, "error", err)
		return nil, r.reset(ctx, "unreadable")
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, r.reset(ctx, "empty")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		r.logger.Warn(ctx, "records file corrupt", "path", r.path, "error", err)
		return nil, r.reset(ctx, "corrupt")
	}

	out := make([]*models.EvidenceRecord, 0, len(doc.Records))
	for _, rec := range doc.Records {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *FileRepository) reset(ctx context.Context, reason string) error {
	if reason != "missing" {
		r.logger.Warn(ctx, "reinitializing records file", "path", r.path, "reason", reason)
	}
	if err := r.write(nil); err != nil {
		return fmt.Errorf("reinitialize %s: %w", r.path, err)
	}
	return nil
}

func (r *FileRepository) write(recs []*models.EvidenceRecord) error {
	if recs == nil {
		recs = []*models.EvidenceRecord{}
	}
	data, err := json.MarshalIndent(document{Records: recs}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}

func (r *FileRepository) Save(ctx context.Context, rec *models.EvidenceRecord) (*models.EvidenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	saved := rec.Clone()
	saved.LocalID = r.newID()
	saved.CreatedAt = r.now().UTC()

	if err := r.write(append(recs, saved)); err != nil {
		return nil, fmt.Errorf("save record %s: %w", saved.RecordID, err)
	}

	r.logger.Info(ctx, "record saved", "local_id", saved.LocalID, "record_id", saved.RecordID, "total", len(recs)+1)
	return saved.Clone(), nil
}

func (r *FileRepository) FindByRecordID(ctx context.Context, recordID string) (*models.EvidenceRecord, error) {
	recs, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.RecordID == recordID {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("record %s: %w", recordID, common.ErrNotFound)
}

func (r *FileRepository) FindByPlate(ctx context.Context, plate string) ([]*models.EvidenceRecord, error) {
	recs, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	out := []*models.EvidenceRecord{}
	for _, rec := range recs {
		if PlateMatches(rec.Plate, plate) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *FileRepository) All(ctx context.Context) ([]*models.EvidenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*models.EvidenceRecord{}
	}
	return recs, nil
}

func (r *FileRepository) DeleteByLocalID(ctx context.Context, localID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, err := r.load(ctx)
	if err != nil {
		return err
	}

	kept := recs[:0]
	for _, rec := range recs {
		if rec.LocalID != localID {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(recs) {
		return fmt.Errorf("local id %s: %w", localID, common.ErrNotFound)
	}

	if err := r.write(kept); err != nil {
		return fmt.Errorf("delete record %s: %w", localID, err)
	}
	r.logger.Info(ctx, "record deleted", "local_id", localID)
	return nil
}
