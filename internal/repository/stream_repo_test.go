package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/streammon/monitor/internal/ledger"
	"github.com/streammon/monitor/internal/models"
)

func setupStreamTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Stream{}, &models.StreamError{}, &models.MetricsSample{}))
	return db
}

func TestStreamRepo_CreateAndGet(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	stream := &models.Stream{Name: "Channel 1", URL: "http://example.com/index.m3u8"}
	require.NoError(t, repo.SaveStream(ctx, stream))
	assert.False(t, stream.ID.IsZero())
	assert.Equal(t, int64(1), stream.Version)

	found, err := repo.GetStream(ctx, stream.ID.String())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Channel 1", found.Name)
}

func TestStreamRepo_GetStream_NotFound(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	found, err := repo.GetStream(ctx, models.NewULID().String())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStreamRepo_GetStream_MalformedID(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	found, err := repo.GetStream(ctx, "not-a-ulid")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStreamRepo_ListStreams(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.SaveStream(ctx, &models.Stream{Name: "B", URL: "http://b.example/index.m3u8"}))
	require.NoError(t, repo.SaveStream(ctx, &models.Stream{Name: "A", URL: "http://a.example/index.m3u8"}))

	streams, err := repo.ListStreams(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "A", streams[0].Name)
	assert.Equal(t, "B", streams[1].Name)
}

func TestStreamRepo_SaveStream_VersionConflict(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	stream := &models.Stream{Name: "Channel 1", URL: "http://example.com/index.m3u8"}
	require.NoError(t, repo.SaveStream(ctx, stream))

	stale, err := repo.GetStream(ctx, stream.ID.String())
	require.NoError(t, err)

	stream.Status = models.StatusOnline
	require.NoError(t, repo.SaveStream(ctx, stream))
	assert.Equal(t, int64(2), stream.Version)

	stale.Status = models.StatusError
	err = repo.SaveStream(ctx, stale)
	assert.ErrorIs(t, err, models.ErrVersionConflict)
}

func TestStreamRepo_SaveStream_AppendsAndPrunesLedger(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()
	now := time.Now()

	stream := &models.Stream{Name: "Channel 1", URL: "http://example.com/index.m3u8"}
	stream.StreamErrors = ledger.Append(stream.StreamErrors, models.ErrorTypeManifestRetrieval, "timeout", "VIDEO", "unknown", now)
	require.NoError(t, repo.SaveStream(ctx, stream))
	require.Len(t, stream.StreamErrors, 1)

	found, err := repo.GetStream(ctx, stream.ID.String())
	require.NoError(t, err)
	require.Len(t, found.StreamErrors, 1)

	// Age everything out, save again, and confirm the row was pruned.
	found.StreamErrors = ledger.AgeOut(found.StreamErrors, time.Millisecond, now.Add(time.Hour))
	require.NoError(t, repo.SaveStream(ctx, found))

	refetched, err := repo.GetStream(ctx, stream.ID.String())
	require.NoError(t, err)
	assert.Empty(t, refetched.StreamErrors)
}
