package records

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

func newSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(ctx, db, migrations.DirSQLite))

	r := NewSQLiteRepository(db)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestSQLite_SaveAndFind(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	tx := "0x" + strings.Repeat("ab", 32)
	rec := record("ABC123", 1700000000)
	rec.LedgerRefs = models.LedgerRefs{
		"scroll":   models.ConfirmedRef(tx),
		"arbitrum": models.FailedRef("rpc down"),
	}
	rec.FileName = "clip.mp4"
	rec.FileSize = 12

	saved, err := r.Save(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.LocalID)
	assert.Empty(t, rec.LocalID, "input must not be mutated")

	got, err := r.FindByRecordID(ctx, "ABC123-1700000000")
	require.NoError(t, err)
	assert.Equal(t, saved.LocalID, got.LocalID)
	assert.Equal(t, "clip.mp4", got.FileName)
	assert.Equal(t, int64(12), got.FileSize)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), got.CreatedAt)
	assert.Equal(t, tx, got.LedgerRefs["scroll"].String())
	assert.Equal(t, models.LedgerFailed, got.LedgerRefs["arbitrum"].State)

	_, err = r.FindByRecordID(ctx, "NOPE-1700000000")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLite_FindByPlate_NormalizesQuerySide(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	for i, p := range []string{"ABC123  ", "xyz999", "abc123"} {
		_, err := r.Save(ctx, record(p, int64(1700000000+i)))
		require.NoError(t, err)
	}

	got, err := r.FindByPlate(ctx, "abc123")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ABC123  ", got[0].Plate)
	assert.Equal(t, "abc123", got[1].Plate)

	none, err := r.FindByPlate(ctx, "nope")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLite_AllAndDelete(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()

	all, err := r.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	a, err := r.Save(ctx, record("A", 1700000000))
	require.NoError(t, err)
	noRefs := record("B", 1700000001)
	noRefs.LedgerRefs = nil
	_, err = r.Save(ctx, noRefs)
	require.NoError(t, err)

	all, err = r.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Empty(t, all[1].LedgerRefs)

	require.NoError(t, r.DeleteByLocalID(ctx, a.LocalID))
	assert.ErrorIs(t, r.DeleteByLocalID(ctx, a.LocalID), common.ErrNotFound)

	all, err = r.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "B", all[0].Plate)
}
