package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/leaseledger/lease-ledger-api/internal/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	conn, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	ddl, err := os.ReadFile(filepath.Join("..", "db", "migrations", "000001_create_ledger.up.sql"))
	require.NoError(t, err)
	_, err = conn.Exec(string(ddl))
	require.NoError(t, err)

	return NewRepository(conn)
}

func newPlaceholder(name string) *models.Location {
	now := time.Now()
	return &models.Location{
		ID:           name + "-id",
		LocationName: name,
		Status:       models.StatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPlaceholderLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ph := newPlaceholder("lease.pdf")
	require.NoError(t, repo.CreatePlaceholder(ctx, ph))

	got, err := repo.GetByID(ctx, ph.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "lease.pdf", got.LocationName)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Empty(t, got.AdditionalInfo)

	require.NoError(t, repo.UpdateStatus(ctx, ph.ID, models.StatusFailed))
	got, err = repo.GetByID(ctx, ph.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestGetByIDMissing(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsumeMappedIsOneShot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ph := newPlaceholder("upload.pdf")
	require.NoError(t, repo.CreatePlaceholder(ctx, ph))
	require.NoError(t, repo.UpdateStatus(ctx, ph.ID, models.StatusMapped))

	consumed, err := repo.ConsumeMapped(ctx, ph.ID)
	require.NoError(t, err)
	assert.True(t, consumed)

	consumed, err = repo.ConsumeMapped(ctx, ph.ID)
	require.NoError(t, err)
	assert.False(t, consumed)

	got, err := repo.GetByID(ctx, ph.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsumeMappedIgnoresOtherStatuses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ph := newPlaceholder("upload.pdf")
	require.NoError(t, repo.CreatePlaceholder(ctx, ph))

	consumed, err := repo.ConsumeMapped(ctx, ph.ID)
	require.NoError(t, err)
	assert.False(t, consumed)

	got, err := repo.GetByID(ctx, ph.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func promote(t *testing.T, repo *Repository, loc *models.Location) error {
	t.Helper()
	return repo.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		loc.Status = models.StatusCompleted
		return repo.SaveLocationTx(context.Background(), tx, loc)
	})
}

func TestCompletedNameUniqueIndex(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newPlaceholder("a.pdf")
	second := newPlaceholder("b.pdf")
	require.NoError(t, repo.CreatePlaceholder(ctx, first))
	require.NoError(t, repo.CreatePlaceholder(ctx, second))

	first.LocationName = "Central Mall"
	require.NoError(t, promote(t, repo, first))

	second.LocationName = "Central Mall"
	err := promote(t, repo, second)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err), "expected unique violation, got: %v", err)

	// Placeholders at other statuses may still share the name
	third := newPlaceholder("c.pdf")
	third.LocationName = "Central Mall"
	require.NoError(t, repo.CreatePlaceholder(ctx, third))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(context.Canceled))
}

func TestLatestDocumentDateAndOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	loc := newPlaceholder("loc.pdf")
	require.NoError(t, repo.CreatePlaceholder(ctx, loc))

	insert := func(id, date string) {
		require.NoError(t, repo.WithTx(ctx, func(tx *sqlx.Tx) error {
			return repo.InsertDocumentTx(ctx, tx, &models.ContractDocument{
				ID:           id,
				LocationID:   loc.ID,
				FileURL:      "http://blob/" + id,
				UploadedAt:   date,
				DocumentType: models.DocumentTypeAgreement,
				CreatedAt:    time.Now(),
			})
		}))
	}

	insert("d1", "2024-01-15")
	insert("d2", "2024-06-01")
	insert("d3", "2024-03-10")

	var date string
	var ok bool
	require.NoError(t, repo.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		date, ok, err = repo.LatestDocumentDateTx(ctx, tx, loc.ID)
		return err
	}))
	assert.True(t, ok)
	assert.Equal(t, "2024-06-01", date)

	docs, err := repo.DocumentsByLocation(ctx, loc.ID)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"2024-06-01", "2024-03-10", "2024-01-15"},
		[]string{docs[0].UploadedAt, docs[1].UploadedAt, docs[2].UploadedAt})
}

func TestLatestDocumentDateEmpty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	loc := newPlaceholder("loc.pdf")
	require.NoError(t, repo.CreatePlaceholder(ctx, loc))

	require.NoError(t, repo.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, ok, err := repo.LatestDocumentDateTx(ctx, tx, loc.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestListCompletedNamesExcludesPlaceholders(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	done := newPlaceholder("done.pdf")
	pending := newPlaceholder("pending.pdf")
	require.NoError(t, repo.CreatePlaceholder(ctx, done))
	require.NoError(t, repo.CreatePlaceholder(ctx, pending))

	done.LocationName = "Harbor Kiosk"
	require.NoError(t, promote(t, repo, done))

	names, err := repo.ListCompletedNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Harbor Kiosk"}, names)
}

func TestAdditionalInfoRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	loc := newPlaceholder("info.pdf")
	require.NoError(t, repo.CreatePlaceholder(ctx, loc))

	loc.LocationName = "Airport Stand"
	loc.AdditionalInfo = models.FlatMap{"parking": "2 spots", "indexation": "3% yearly"}
	require.NoError(t, promote(t, repo, loc))

	got, err := repo.GetByID(ctx, loc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.FlatMap{"parking": "2 spots", "indexation": "3% yearly"}, got.AdditionalInfo)
}
