package enrichmentmodule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/modules/assetmodule"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&database.Artist{},
		&database.Album{},
		&database.Track{},
		&database.Genre{},
		&database.ArtistGenre{},
		&database.AlbumGenre{},
		&assetmodule.MediaAsset{},
		&MetadataCacheEntry{},
		&MetadataConflict{},
		&EnrichmentLog{},
	))
	return db
}

func timeNowPtr() *time.Time {
	now := time.Now()
	return &now
}

type fakeImages struct {
	set   ImageSet
	err   error
	calls int
}

func (f *fakeImages) ArtistImages(ctx context.Context, name, mbid string) (ImageSet, error) {
	f.calls++
	return f.set, f.err
}

type fakeCover struct {
	set   CoverSet
	err   error
	calls int
}

func (f *fakeCover) AlbumCover(ctx context.Context, title, artist, mbid string) (CoverSet, error) {
	f.calls++
	return f.set, f.err
}

type fakeTags struct {
	artistTags []TagCount
	albumTags  []TagCount
	err        error
	calls      int
}

func (f *fakeTags) ArtistTags(ctx context.Context, name string) ([]TagCount, error) {
	f.calls++
	return f.artistTags, f.err
}

func (f *fakeTags) AlbumTags(ctx context.Context, title, artist string) ([]TagCount, error) {
	f.calls++
	return f.albumTags, f.err
}
