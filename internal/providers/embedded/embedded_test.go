package embedded

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
)

func openCatalog(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.Artist{}, &database.Album{}, &database.Track{}))
	return db
}

func seedAlbum(t *testing.T, db *gorm.DB, artistName, title string) *database.Album {
	t.Helper()
	artist := &database.Artist{ID: uuid.New(), Name: artistName}
	require.NoError(t, db.Create(artist).Error)
	album := &database.Album{ID: uuid.New(), ArtistID: artist.ID, Title: title}
	require.NoError(t, db.Create(album).Error)
	return album
}

func addTrack(t *testing.T, db *gorm.DB, album *database.Album, number int, path string) {
	t.Helper()
	require.NoError(t, db.Create(&database.Track{
		ID:          uuid.New(),
		AlbumID:     album.ID,
		ArtistID:    album.ArtistID,
		Title:       "Track",
		TrackNumber: number,
		Path:        path,
	}).Error)
}

func TestAlbumCoverUnknownAlbum(t *testing.T) {
	source := NewSource(hclog.NewNullLogger(), openCatalog(t))

	_, err := source.AlbumCover(context.Background(), "Nothing Here", "", "")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)
}

func TestAlbumCoverNoReadableTracks(t *testing.T) {
	db := openCatalog(t)
	album := seedAlbum(t, db, "Burial", "Untrue")
	addTrack(t, db, album, 1, "") // never ingested from disk
	addTrack(t, db, album, 2, filepath.Join(t.TempDir(), "notes.txt"))

	source := NewSource(hclog.NewNullLogger(), db)
	_, err := source.AlbumCover(context.Background(), "Untrue", "Burial", "")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)
}

func TestAlbumCoverSkipsUnparsableFiles(t *testing.T) {
	db := openCatalog(t)
	album := seedAlbum(t, db, "Burial", "Untrue")

	// A supported extension whose content dhowden/tag cannot parse is
	// skipped, not fatal.
	bogus := filepath.Join(t.TempDir(), "one.mp3")
	require.NoError(t, os.WriteFile(bogus, []byte("not really audio"), 0o644))
	addTrack(t, db, album, 1, bogus)

	source := NewSource(hclog.NewNullLogger(), db)
	_, err := source.AlbumCover(context.Background(), "Untrue", "Burial", "")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)
}

func TestAlbumCoverScopedByArtist(t *testing.T) {
	db := openCatalog(t)
	seedAlbum(t, db, "Burial", "Untrue")

	source := NewSource(hclog.NewNullLogger(), db)
	_, err := source.AlbumCover(context.Background(), "Untrue", "Someone Else", "")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)
}

func TestAlbumCoverHonorsContextCancellation(t *testing.T) {
	db := openCatalog(t)
	album := seedAlbum(t, db, "Burial", "Untrue")
	addTrack(t, db, album, 1, filepath.Join(t.TempDir(), "one.mp3"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	source := NewSource(hclog.NewNullLogger(), db)
	_, err := source.AlbumCover(ctx, "Untrue", "Burial", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
