package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/dbx"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/google/uuid"
)

const selectSQLiteRecords = `SELECT r.local_id, r.record_id, r.plate, r.anchored_at, r.content_hash, r.content_id,
		r.file_name, r.file_size, r.created_at,
		COALESCE((SELECT json_group_object(l.ledger, l.ref) FROM evidence_ledger_refs l WHERE l.local_id = r.local_id), '{}')
	FROM evidence_records r
	`

// SQLiteRepository is the embedded single-file index. The caller is
// expected to open the database with one connection so writes serialize.
type SQLiteRepository struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now, newID: uuid.NewString}
}

func (r *SQLiteRepository) Save(ctx context.Context, rec *models.EvidenceRecord) (*models.EvidenceRecord, error) {
	saved := rec.Clone()
	saved.LocalID = r.newID()
	saved.CreatedAt = r.now().UTC()

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `INSERT INTO evidence_records
			(local_id, record_id, plate, anchored_at, content_hash, content_id, file_name, file_size, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

		_, err := tx.ExecContext(ctx, query, saved.LocalID, saved.RecordID, saved.Plate, saved.Timestamp,
			saved.ContentHash, saved.ContentID, saved.FileName, saved.FileSize, saved.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}

		names := make([]string, 0, len(saved.LedgerRefs))
		for name := range saved.LedgerRefs {
			names = append(names, name)
		}
		slices.Sort(names)

		for _, name := range names {
			_, err := tx.ExecContext(ctx, `INSERT INTO evidence_ledger_refs (local_id, ledger, ref) VALUES (?, ?, ?)`,
				saved.LocalID, name, saved.LedgerRefs[name].String())
			if err != nil {
				return fmt.Errorf("insert ledger ref %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *SQLiteRepository) FindByRecordID(ctx context.Context, recordID string) (*models.EvidenceRecord, error) {
	recs, err := r.query(ctx, selectSQLiteRecords+`WHERE r.record_id = ? ORDER BY r.seq LIMIT 1`, recordID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("record %s: %w", recordID, common.ErrNotFound)
	}
	return recs[0], nil
}

func (r *SQLiteRepository) FindByPlate(ctx context.Context, plate string) ([]*models.EvidenceRecord, error) {
	return r.query(ctx, selectSQLiteRecords+`WHERE upper(trim(r.plate)) = ? OR r.plate = ? ORDER BY r.seq`,
		NormalizePlate(plate), plate)
}

func (r *SQLiteRepository) All(ctx context.Context) ([]*models.EvidenceRecord, error) {
	return r.query(ctx, selectSQLiteRecords+`ORDER BY r.seq`)
}

// DeleteByLocalID removes the refs explicitly rather than relying on the
// foreign_keys pragma being enabled on the connection.
func (r *SQLiteRepository) DeleteByLocalID(ctx context.Context, localID string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM evidence_ledger_refs WHERE local_id = ?`, localID); err != nil {
			return fmt.Errorf("failed to delete ledger refs: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM evidence_records WHERE local_id = ?`, localID)
		if err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("local id %s: %w", localID, common.ErrNotFound)
		}
		return nil
	})
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.EvidenceRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	result := []*models.EvidenceRecord{}
	for rows.Next() {
		var (
			item      = models.EvidenceRecord{}
			createdAt string
			refs      string
		)
		err := rows.Scan(&item.LocalID, &item.RecordID, &item.Plate, &item.Timestamp, &item.ContentHash,
			&item.ContentID, &item.FileName, &item.FileSize, &createdAt, &refs)
		if err != nil {
			return nil, err
		}
		if item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("decode created_at of %s: %w", item.LocalID, err)
		}
		if err := json.Unmarshal([]byte(refs), &item.LedgerRefs); err != nil {
			return nil, fmt.Errorf("decode ledger refs of %s: %w", item.LocalID, err)
		}
		result = append(result, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
