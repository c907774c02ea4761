package enrichmentmodule

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/logger"
	"github.com/harmonia-media/harmonia/internal/tagreader"
)

// GenreResolver assigns genres to artists and albums. Sources are tried
// in order: the configured preferred tag source, tags carried on the
// canonical-ID match, and finally the entity's own track genres (read
// from the catalog, falling back to embedded file tags).
type GenreResolver struct {
	db        *gorm.DB
	registry  *Registry
	cache     *MetadataCache
	tags      *tagreader.Reader
	preferred string
	minCount  int
	maxGenres int
}

func NewGenreResolver(db *gorm.DB, registry *Registry, cache *MetadataCache, preferred string, minCount, maxGenres int) *GenreResolver {
	return &GenreResolver{
		db:        db,
		registry:  registry,
		cache:     cache,
		tags:      tagreader.NewReader(),
		preferred: preferred,
		minCount:  minCount,
		maxGenres: maxGenres,
	}
}

// normalizeGenre title-cases a raw tag name and trims noise.
func normalizeGenre(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(name))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// selectGenres filters tags by minimum count, sorts by descending count,
// normalizes names, and caps the list.
func (g *GenreResolver) selectGenres(tags []TagCount) []string {
	filtered := make([]TagCount, 0, len(tags))
	for _, t := range tags {
		if t.Count >= g.minCount {
			filtered = append(filtered, t)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Count > filtered[j].Count
	})

	seen := make(map[string]bool)
	var names []string
	for _, t := range filtered {
		name := normalizeGenre(t.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		if len(names) >= g.maxGenres {
			break
		}
	}
	return names
}

// preferredTags returns weighted tags from the configured tag source,
// going through the metadata cache like every other provider lookup.
// Not-found outcomes are cached too so repeat runs stay quiet.
func (g *GenreResolver) preferredTags(entityType, entityID, label string, fetch func(TagProvider) ([]TagCount, error)) []TagCount {
	provider := g.registry.TagSource(g.preferred)
	if provider == nil {
		return nil
	}

	if cached := g.cache.Get(entityType, entityID, g.preferred); cached != nil {
		if cached.NotFound {
			return nil
		}
		if cached.Tags != nil {
			return cached.Tags.Tags
		}
	}

	tags, err := fetch(provider)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.cache.Set(entityType, entityID, g.preferred, CachedPayload{NotFound: true})
			return nil
		}
		logger.Warn("Tag lookup failed for %s via %s: %v", label, g.preferred, err)
		return nil
	}

	g.cache.Set(entityType, entityID, g.preferred, CachedPayload{Tags: &CachedTags{Tags: tags}})
	return tags
}

// ArtistGenres resolves genre names for an artist. matchTags are the tags
// attached to an accepted canonical-ID match, used as the second source.
func (g *GenreResolver) ArtistGenres(ctx context.Context, artist *database.Artist, matchTags []TagCount) []string {
	tags := g.preferredTags(EntityArtist, artist.ID.String(), artist.Name, func(p TagProvider) ([]TagCount, error) {
		return p.ArtistTags(ctx, artist.Name)
	})
	if names := g.selectGenres(tags); len(names) > 0 {
		return names
	}

	if names := g.selectGenres(matchTags); len(names) > 0 {
		return names
	}

	return g.trackGenres(g.db.Where("artist_id = ?", artist.ID))
}

// AlbumGenres resolves genre names for an album.
func (g *GenreResolver) AlbumGenres(ctx context.Context, album *database.Album, artistName string, matchTags []TagCount) []string {
	tags := g.preferredTags(EntityAlbum, album.ID.String(), album.Title, func(p TagProvider) ([]TagCount, error) {
		return p.AlbumTags(ctx, album.Title, artistName)
	})
	if names := g.selectGenres(tags); len(names) > 0 {
		return names
	}

	if names := g.selectGenres(matchTags); len(names) > 0 {
		return names
	}

	return g.trackGenres(g.db.Where("album_id = ?", album.ID))
}

// trackGenres aggregates genre values across the entity's tracks. Tracks
// without a stored genre fall back to the embedded file tag when the file
// is readable. Every track counts as one vote, so the minimum-count
// filter does not apply here; ordering still follows vote counts.
func (g *GenreResolver) trackGenres(scope *gorm.DB) []string {
	var tracks []database.Track
	if err := scope.Find(&tracks).Error; err != nil {
		logger.Warn("Failed to load tracks for genre aggregation: %v", err)
		return nil
	}

	counts := make(map[string]int)
	for _, t := range tracks {
		genre := t.Genre
		if genre == "" && t.Path != "" && g.tags.CanReadFile(t.Path) {
			if embedded, err := g.tags.ReadGenre(t.Path); err == nil {
				genre = embedded
			}
		}
		name := normalizeGenre(genre)
		if name != "" {
			counts[name]++
		}
	}

	type vote struct {
		name  string
		count int
	}
	votes := make([]vote, 0, len(counts))
	for name, count := range counts {
		votes = append(votes, vote{name, count})
	}
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].count != votes[j].count {
			return votes[i].count > votes[j].count
		}
		return votes[i].name < votes[j].name
	})

	var names []string
	for _, v := range votes {
		names = append(names, v.name)
		if len(names) >= g.maxGenres {
			break
		}
	}
	return names
}

// ensureGenre looks up a genre by name, creating it on first use.
func (g *GenreResolver) ensureGenre(name string) (database.Genre, error) {
	var genre database.Genre
	err := g.db.Where("name = ?", name).First(&genre).Error
	if err == nil {
		return genre, nil
	}
	if err != gorm.ErrRecordNotFound {
		return genre, err
	}
	genre = database.Genre{ID: uuid.New(), Name: name}
	if err := g.db.Create(&genre).Error; err != nil {
		return genre, err
	}
	return genre, nil
}

// ApplyArtistGenres persists genre names for an artist, replacing the
// existing assignments.
func (g *GenreResolver) ApplyArtistGenres(artistID uuid.UUID, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if err := g.db.Where("artist_id = ?", artistID).Delete(&database.ArtistGenre{}).Error; err != nil {
		return err
	}
	for _, name := range names {
		genre, err := g.ensureGenre(name)
		if err != nil {
			return err
		}
		link := database.ArtistGenre{ArtistID: artistID, GenreID: genre.ID}
		if err := g.db.Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// ApplyAlbumGenres persists genre names for an album, replacing the
// existing assignments.
func (g *GenreResolver) ApplyAlbumGenres(albumID uuid.UUID, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if err := g.db.Where("album_id = ?", albumID).Delete(&database.AlbumGenre{}).Error; err != nil {
		return err
	}
	for _, name := range names {
		genre, err := g.ensureGenre(name)
		if err != nil {
			return err
		}
		link := database.AlbumGenre{AlbumID: albumID, GenreID: genre.ID}
		if err := g.db.Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}
