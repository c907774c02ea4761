package audiodb

import (
	"context"
	"strings"

	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
)

// AudioDB fields are curated single values rather than vote tallies, so
// mapped tags carry fixed weights that keep genre ahead of style and
// mood after the engine's count filter.
const (
	genreWeight = 10
	styleWeight = 5
	moodWeight  = 3
)

// Source adapts the AudioDB client to the engine's provider interfaces:
// biographies, artist images, album covers, and genre tags.
type Source struct {
	client *Client
}

func NewSource(client *Client) *Source {
	return &Source{client: client}
}

// ArtistBiography returns the artist's English biography.
func (s *Source) ArtistBiography(ctx context.Context, name, mbid string) (string, error) {
	artist, err := s.client.SearchArtist(ctx, name)
	if err != nil {
		return "", err
	}
	if artist == nil {
		return "", enrichmentmodule.ErrNotFound
	}
	return strings.TrimSpace(artist.StrBiographyEN), nil
}

// AlbumDescription returns the album's English description.
func (s *Source) AlbumDescription(ctx context.Context, title, artist, mbid string) (string, error) {
	album, err := s.client.SearchAlbum(ctx, artist, title)
	if err != nil {
		return "", err
	}
	if album == nil {
		return "", enrichmentmodule.ErrNotFound
	}
	return strings.TrimSpace(album.StrDescriptionEN), nil
}

// ArtistImages returns the artist's image slots.
func (s *Source) ArtistImages(ctx context.Context, name, mbid string) (enrichmentmodule.ImageSet, error) {
	artist, err := s.client.SearchArtist(ctx, name)
	if err != nil {
		return enrichmentmodule.ImageSet{}, err
	}
	if artist == nil {
		return enrichmentmodule.ImageSet{}, enrichmentmodule.ErrNotFound
	}
	return enrichmentmodule.ImageSet{
		Profile:    artist.StrArtistThumb,
		Background: artist.StrArtistFanart,
		Banner:     artist.StrArtistBanner,
		Logo:       artist.StrArtistLogo,
	}, nil
}

// AlbumCover returns the album's cover URLs. AudioDB serves one thumb
// (plus an HQ variant on paid keys), mapped to the medium and large
// slots.
func (s *Source) AlbumCover(ctx context.Context, title, artist, mbid string) (enrichmentmodule.CoverSet, error) {
	album, err := s.client.SearchAlbum(ctx, artist, title)
	if err != nil {
		return enrichmentmodule.CoverSet{}, err
	}
	if album == nil {
		return enrichmentmodule.CoverSet{}, enrichmentmodule.ErrNotFound
	}
	return enrichmentmodule.CoverSet{
		Medium: album.StrAlbumThumb,
		Large:  album.StrAlbumThumbHQ,
	}, nil
}

// ArtistTags returns weighted genre tags for an artist.
func (s *Source) ArtistTags(ctx context.Context, name string) ([]enrichmentmodule.TagCount, error) {
	artist, err := s.client.SearchArtist(ctx, name)
	if err != nil {
		return nil, err
	}
	if artist == nil {
		return nil, enrichmentmodule.ErrNotFound
	}
	return weightedTags(artist.StrGenre, artist.StrStyle, artist.StrMood), nil
}

// AlbumTags returns weighted genre tags for an album.
func (s *Source) AlbumTags(ctx context.Context, title, artist string) ([]enrichmentmodule.TagCount, error) {
	album, err := s.client.SearchAlbum(ctx, artist, title)
	if err != nil {
		return nil, err
	}
	if album == nil {
		return nil, enrichmentmodule.ErrNotFound
	}
	return weightedTags(album.StrGenre, album.StrStyle, ""), nil
}

func weightedTags(genre, style, mood string) []enrichmentmodule.TagCount {
	var tags []enrichmentmodule.TagCount
	if genre != "" {
		tags = append(tags, enrichmentmodule.TagCount{Name: genre, Count: genreWeight})
	}
	if style != "" && !strings.EqualFold(style, genre) {
		tags = append(tags, enrichmentmodule.TagCount{Name: style, Count: styleWeight})
	}
	if mood != "" {
		tags = append(tags, enrichmentmodule.TagCount{Name: mood, Count: moodWeight})
	}
	return tags
}
