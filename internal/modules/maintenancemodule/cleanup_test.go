package maintenancemodule

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/modules/assetmodule"
	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
	"github.com/harmonia-media/harmonia/internal/storage"
)

type cleanerFixture struct {
	db      *gorm.DB
	store   *storage.DiskStorage
	assets  *assetmodule.Manager
	cache   *enrichmentmodule.MetadataCache
	cleaner *Cleaner
}

func newCleanerFixture(t *testing.T, cacheTTL time.Duration) *cleanerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&database.Artist{},
		&database.Album{},
		&assetmodule.MediaAsset{},
		&enrichmentmodule.MetadataCacheEntry{},
	))

	store, err := storage.NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	assets := assetmodule.NewManager(db, nil, store, 95)
	cache := enrichmentmodule.NewMetadataCache(db, cacheTTL)

	return &cleanerFixture{
		db:      db,
		store:   store,
		assets:  assets,
		cache:   cache,
		cleaner: NewCleaner(store, assets, cache, nil),
	}
}

// saveAsset stores an image backed by a real artist row.
func (f *cleanerFixture) saveAsset(t *testing.T) string {
	t.Helper()
	artist := &database.Artist{ID: uuid.New(), Name: "fixture artist"}
	require.NoError(t, f.db.Create(artist).Error)
	return f.saveAssetFor(t, artist.ID)
}

// saveAssetFor stores an image for the given entity id without touching
// the catalog, so tests can point assets at deleted entities.
func (f *cleanerFixture) saveAssetFor(t *testing.T, entityID uuid.UUID) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))

	response, err := f.assets.SaveAsset(&assetmodule.AssetRequest{
		EntityType: assetmodule.EntityTypeArtist,
		EntityID:   entityID,
		Type:       assetmodule.AssetTypeProfile,
		Source:     "audiodb",
		Data:       buf.Bytes(),
		Format:     "image/png",
		Preferred:  true,
	})
	require.NoError(t, err)
	return response.Path
}

func TestFullCleanupRemovesOrphans(t *testing.T) {
	f := newCleanerFixture(t, time.Hour)

	kept := f.saveAsset(t)
	require.NoError(t, f.store.Save("artists/zz/orphan.webp", []byte("stray")))

	report, err := f.cleaner.FullCleanup(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrphanedCount)
	assert.Equal(t, 1, report.RemovedCount)
	assert.Contains(t, report.OrphanedFiles, "artists/zz/orphan.webp")
	assert.EqualValues(t, len("stray"), report.OrphanedBytes)
	assert.Zero(t, report.MissingCount)

	assert.False(t, f.store.Exists("artists/zz/orphan.webp"))
	assert.True(t, f.store.Exists(kept))
}

func TestFullCleanupDryRunKeepsFiles(t *testing.T) {
	f := newCleanerFixture(t, time.Hour)

	f.saveAsset(t)
	require.NoError(t, f.store.Save("artists/zz/orphan.webp", []byte("stray")))

	report, err := f.cleaner.FullCleanup(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.OrphanedCount)
	assert.Zero(t, report.RemovedCount)
	assert.True(t, f.store.Exists("artists/zz/orphan.webp"))
}

func TestFullCleanupRemovesStaleEntityAssets(t *testing.T) {
	f := newCleanerFixture(t, time.Hour)

	kept := f.saveAsset(t)
	stale := f.saveAssetFor(t, uuid.New())

	report, err := f.cleaner.FullCleanup(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.StaleCount)
	assert.Equal(t, 1, report.StaleRemoved)
	assert.Contains(t, report.StaleAssets, stale)
	assert.Zero(t, report.OrphanedCount)

	assert.False(t, f.store.Exists(stale))
	assert.True(t, f.store.Exists(kept))

	var remaining int64
	require.NoError(t, f.db.Model(&assetmodule.MediaAsset{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}

func TestFullCleanupDryRunKeepsStaleEntityAssets(t *testing.T) {
	f := newCleanerFixture(t, time.Hour)
	stale := f.saveAssetFor(t, uuid.New())

	report, err := f.cleaner.FullCleanup(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, report.StaleCount)
	assert.Zero(t, report.StaleRemoved)
	assert.True(t, f.store.Exists(stale))
}

func TestFullCleanupReportsMissingFiles(t *testing.T) {
	f := newCleanerFixture(t, time.Hour)

	path := f.saveAsset(t)
	require.NoError(t, f.store.Remove(path, false))

	report, err := f.cleaner.FullCleanup(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, report.MissingCount)
	assert.Contains(t, report.MissingFiles, path)
	assert.Zero(t, report.OrphanedCount)
}

func TestFullCleanupPurgesExpiredCache(t *testing.T) {
	f := newCleanerFixture(t, -time.Minute)
	f.cache.Set("artist", "a1", "audiodb", enrichmentmodule.CachedPayload{Biography: "stale"})

	report, err := f.cleaner.FullCleanup(context.Background(), true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.PurgedCacheRows)
}

func TestPurgeExpiredCacheDirect(t *testing.T) {
	f := newCleanerFixture(t, -time.Minute)
	f.cache.Set("album", "b1", "audiodb", enrichmentmodule.CachedPayload{Description: "stale"})
	f.cache.Set("album", "b2", "audiodb", enrichmentmodule.CachedPayload{Description: "stale"})

	purged, err := f.cleaner.PurgeExpiredCache(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)
}

func TestStorageStats(t *testing.T) {
	f := newCleanerFixture(t, time.Hour)
	f.saveAsset(t)

	report, err := f.cleaner.StorageStats()
	require.NoError(t, err)
	assert.Equal(t, f.store.Root(), report.Root)
	assert.EqualValues(t, 1, report.Files)
	assert.Positive(t, report.Bytes)
}
