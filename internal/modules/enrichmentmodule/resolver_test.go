package enrichmentmodule

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registryWithSearcher(t *testing.T, searcher *fakeSearcher) *Registry {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, registry.Register(&Agent{
		Name:         "musicbrainz",
		Enabled:      true,
		Capabilities: CapCanonicalID,
		Search:       searcher,
	}))
	return registry
}

func TestResolveArtistAppliesConfidentMatch(t *testing.T) {
	searcher := &fakeSearcher{artistResults: []CandidateMatch{
		{ExternalID: "mbid-1", Name: "Autechre", Score: 100},
	}}
	resolver := NewResolver(registryWithSearcher(t, searcher), 90, 95, 70)

	decision := resolver.ResolveArtist(context.Background(), "Autechre")
	require.Equal(t, ActionApply, decision.Action)
	assert.Equal(t, "mbid-1", decision.Best.ExternalID)
	assert.Equal(t, 1, searcher.calls)
}

func TestResolveIgnoresWithoutSearchAgent(t *testing.T) {
	resolver := NewResolver(NewRegistry(), 90, 95, 70)

	assert.Equal(t, ActionIgnore, resolver.ResolveArtist(context.Background(), "Autechre").Action)
	assert.Equal(t, ActionIgnore, resolver.ResolveAlbum(context.Background(), "Amber", "Autechre").Action)
	assert.Equal(t, ActionIgnore, resolver.ResolveTrack(context.Background(), TrackSearchParams{Title: "Clay"}).Action)
}

func TestResolveSearchErrorIsNonFatal(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("rate limited")}
	resolver := NewResolver(registryWithSearcher(t, searcher), 90, 95, 70)

	decision := resolver.ResolveArtist(context.Background(), "Autechre")
	assert.Equal(t, ActionIgnore, decision.Action)
	assert.Nil(t, decision.Best)
}

func TestResolveUsesHighestPrioritySearcher(t *testing.T) {
	primary := &fakeSearcher{artistResults: []CandidateMatch{{ExternalID: "primary", Score: 100}}}
	secondary := &fakeSearcher{artistResults: []CandidateMatch{{ExternalID: "secondary", Score: 100}}}

	registry := NewRegistry()
	require.NoError(t, registry.Register(&Agent{
		Name: "backup", Priority: 10, Enabled: true,
		Capabilities: CapCanonicalID, Search: secondary,
	}))
	require.NoError(t, registry.Register(&Agent{
		Name: "main", Priority: 1, Enabled: true,
		Capabilities: CapCanonicalID, Search: primary,
	}))

	decision := NewResolver(registry, 90, 95, 70).ResolveArtist(context.Background(), "Plaid")
	require.Equal(t, ActionApply, decision.Action)
	assert.Equal(t, "primary", decision.Best.ExternalID)
	assert.Zero(t, secondary.calls)
}

func TestResolveTrackStricterThreshold(t *testing.T) {
	searcher := &fakeSearcher{trackResults: []CandidateMatch{
		{ExternalID: "rec-1", Score: 93},
	}}
	resolver := NewResolver(registryWithSearcher(t, searcher), 90, 95, 70)

	decision := resolver.ResolveTrack(context.Background(), TrackSearchParams{Title: "Eyen"})
	assert.Equal(t, ActionReview, decision.Action)
}

func TestCandidateByID(t *testing.T) {
	searcher := &fakeSearcher{byID: &CandidateMatch{ExternalID: "mbid-9", Name: "Seefeel"}}
	resolver := NewResolver(registryWithSearcher(t, searcher), 90, 95, 70)

	match, err := resolver.CandidateByID(context.Background(), "mbid-9")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "Seefeel", match.Name)

	empty := NewResolver(NewRegistry(), 90, 95, 70)
	match, err = empty.CandidateByID(context.Background(), "mbid-9")
	require.NoError(t, err)
	assert.Nil(t, match)
}
