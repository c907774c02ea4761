package musicbrainz

import (
	"context"
	"strings"

	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
)

// Searcher adapts the MusicBrainz client to the engine's canonical-ID
// interface.
type Searcher struct {
	client *Client
}

func NewSearcher(client *Client) *Searcher {
	return &Searcher{client: client}
}

func mapTags(tags []Tag) []enrichmentmodule.TagCount {
	if len(tags) == 0 {
		return nil
	}
	mapped := make([]enrichmentmodule.TagCount, 0, len(tags))
	for _, t := range tags {
		mapped = append(mapped, enrichmentmodule.TagCount{Name: t.Name, Count: t.Count})
	}
	return mapped
}

func creditNames(credits []ArtistCredit) string {
	names := make([]string, 0, len(credits))
	for _, c := range credits {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

// SearchArtist returns artist candidates for a name.
func (s *Searcher) SearchArtist(ctx context.Context, name string, limit int) ([]enrichmentmodule.CandidateMatch, error) {
	artists, err := s.client.SearchArtists(ctx, name, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]enrichmentmodule.CandidateMatch, 0, len(artists))
	for _, a := range artists {
		disambiguation := a.Disambiguation
		if disambiguation == "" && a.Country != "" {
			disambiguation = a.Country
		}
		matches = append(matches, enrichmentmodule.CandidateMatch{
			ExternalID:     a.ID,
			Name:           a.Name,
			Score:          float64(a.Score),
			Disambiguation: disambiguation,
			Tags:           mapTags(a.Tags),
		})
	}
	return matches, nil
}

// SearchAlbum returns release-group candidates for a title and artist.
func (s *Searcher) SearchAlbum(ctx context.Context, title, artist string, limit int) ([]enrichmentmodule.CandidateMatch, error) {
	groups, err := s.client.SearchReleaseGroups(ctx, title, artist, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]enrichmentmodule.CandidateMatch, 0, len(groups))
	for _, g := range groups {
		disambiguation := g.Disambiguation
		if disambiguation == "" {
			parts := []string{}
			if credit := creditNames(g.ArtistCredit); credit != "" {
				parts = append(parts, credit)
			}
			if g.FirstRelease != "" {
				parts = append(parts, g.FirstRelease)
			}
			disambiguation = strings.Join(parts, ", ")
		}
		matches = append(matches, enrichmentmodule.CandidateMatch{
			ExternalID:     g.ID,
			Name:           g.Title,
			Score:          float64(g.Score),
			Disambiguation: disambiguation,
			Tags:           mapTags(g.Tags),
		})
	}
	return matches, nil
}

// SearchTrack returns recording candidates for a track.
func (s *Searcher) SearchTrack(ctx context.Context, params enrichmentmodule.TrackSearchParams, limit int) ([]enrichmentmodule.CandidateMatch, error) {
	recordings, err := s.client.SearchRecordings(ctx, params.Title, params.Artist, params.Album, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]enrichmentmodule.CandidateMatch, 0, len(recordings))
	for _, r := range recordings {
		disambiguation := r.Disambiguation
		if disambiguation == "" {
			disambiguation = creditNames(r.ArtistCredit)
		}
		matches = append(matches, enrichmentmodule.CandidateMatch{
			ExternalID:     r.ID,
			Name:           r.Title,
			Score:          float64(r.Score),
			Disambiguation: disambiguation,
			Tags:           mapTags(r.Tags),
		})
	}
	return matches, nil
}

// ByID fetches one artist candidate directly by MBID. Direct lookups are
// exact, so the score is pinned to the maximum.
func (s *Searcher) ByID(ctx context.Context, externalID string) (*enrichmentmodule.CandidateMatch, error) {
	artist, err := s.client.LookupArtist(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return &enrichmentmodule.CandidateMatch{
		ExternalID:     artist.ID,
		Name:           artist.Name,
		Score:          100,
		Disambiguation: artist.Disambiguation,
		Tags:           mapTags(artist.Tags),
	}, nil
}
