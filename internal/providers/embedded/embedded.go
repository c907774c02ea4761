// Package embedded serves album covers out of the catalog's own audio
// files. It is registered at the lowest priority: when every remote
// source comes up empty, a front cover embedded in the album's tracks is
// still better than none.
package embedded

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/modules/assetmodule"
	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
	"github.com/harmonia-media/harmonia/internal/tagreader"
)

// maxTracksScanned bounds how many of an album's files are opened per
// lookup. Covers are nearly always on the first track.
const maxTracksScanned = 10

// Source looks up an album's tracks and extracts the first embedded
// front cover it finds. The bytes are returned as a data URI so they pass
// through the same fetch validation as remote covers.
type Source struct {
	logger hclog.Logger
	db     *gorm.DB
	reader *tagreader.Reader
}

func NewSource(logger hclog.Logger, db *gorm.DB) *Source {
	return &Source{
		logger: logger.Named("embedded"),
		db:     db,
		reader: tagreader.NewReader(),
	}
}

// AlbumCover scans the album's tracks in track order for embedded art.
func (s *Source) AlbumCover(ctx context.Context, title, artist, mbid string) (enrichmentmodule.CoverSet, error) {
	album, err := s.findAlbum(title, artist)
	if err != nil {
		return enrichmentmodule.CoverSet{}, err
	}

	var tracks []database.Track
	err = s.db.Where("album_id = ? AND path <> ''", album.ID).
		Order("track_number ASC").
		Limit(maxTracksScanned).
		Find(&tracks).Error
	if err != nil {
		return enrichmentmodule.CoverSet{}, err
	}

	for _, track := range tracks {
		if ctx.Err() != nil {
			return enrichmentmodule.CoverSet{}, ctx.Err()
		}
		if !s.reader.CanReadFile(track.Path) {
			continue
		}
		data, mimeType, err := s.reader.ReadEmbeddedCover(track.Path)
		if err != nil {
			continue
		}
		s.logger.Debug("embedded cover found", "album", title, "track", track.Path)
		return enrichmentmodule.CoverSet{
			Original: assetmodule.EncodeDataURL(mimeType, data),
		}, nil
	}
	return enrichmentmodule.CoverSet{}, enrichmentmodule.ErrNotFound
}

// findAlbum matches the album by title, narrowed by artist name when the
// caller supplies one.
func (s *Source) findAlbum(title, artist string) (*database.Album, error) {
	query := s.db.Model(&database.Album{}).Where("albums.title = ?", title)
	if artist != "" {
		query = query.Joins("JOIN artists ON artists.id = albums.artist_id").
			Where("artists.name = ?", artist)
	}

	var album database.Album
	if err := query.First(&album).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, enrichmentmodule.ErrNotFound
		}
		return nil, err
	}
	return &album, nil
}
