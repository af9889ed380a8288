// Package records is the durable local index of evidence records. It is
// the fallback source of truth when no ledger can answer.
package records

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
)

type Repository interface {
	// Save appends rec, assigning LocalID and CreatedAt. It never overwrites.
	Save(ctx context.Context, rec *models.EvidenceRecord) (*models.EvidenceRecord, error)
	// FindByRecordID returns the first match in insertion order or common.ErrNotFound.
	FindByRecordID(ctx context.Context, recordID string) (*models.EvidenceRecord, error)
	// FindByPlate returns every match in insertion order.
	FindByPlate(ctx context.Context, plate string) ([]*models.EvidenceRecord, error)
	All(ctx context.Context) ([]*models.EvidenceRecord, error)
	DeleteByLocalID(ctx context.Context, localID string) error
}

// NormalizePlate is the lookup-side form of a plate.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// PlateMatches compares a stored plate with a query: normalized on both
// sides, or an exact literal match.
func PlateMatches(stored, query string) bool {
	return stored == query || NormalizePlate(stored) == NormalizePlate(query)
}
