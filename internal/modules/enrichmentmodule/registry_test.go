package enrichmentmodule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	artistResults []CandidateMatch
	albumResults  []CandidateMatch
	trackResults  []CandidateMatch
	byID          *CandidateMatch
	err           error
	calls         int
}

func (f *fakeSearcher) SearchArtist(ctx context.Context, name string, limit int) ([]CandidateMatch, error) {
	f.calls++
	return f.artistResults, f.err
}

func (f *fakeSearcher) SearchAlbum(ctx context.Context, title, artist string, limit int) ([]CandidateMatch, error) {
	f.calls++
	return f.albumResults, f.err
}

func (f *fakeSearcher) SearchTrack(ctx context.Context, params TrackSearchParams, limit int) ([]CandidateMatch, error) {
	f.calls++
	return f.trackResults, f.err
}

func (f *fakeSearcher) ByID(ctx context.Context, externalID string) (*CandidateMatch, error) {
	f.calls++
	return f.byID, f.err
}

type fakeBiography struct {
	artistText string
	albumText  string
	err        error
	calls      int
}

func (f *fakeBiography) ArtistBiography(ctx context.Context, name, mbid string) (string, error) {
	f.calls++
	return f.artistText, f.err
}

func (f *fakeBiography) AlbumDescription(ctx context.Context, title, artist, mbid string) (string, error) {
	f.calls++
	return f.albumText, f.err
}

func TestRegistryKeepsFirstRegistration(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&Agent{Name: "musicbrainz", Enabled: true, Priority: 1}))
	require.NoError(t, registry.Register(&Agent{Name: "musicbrainz", Enabled: false, Priority: 9}))

	agent := registry.Agent("musicbrainz")
	require.NotNil(t, agent)
	assert.Equal(t, 1, agent.Priority)
	assert.True(t, agent.Enabled)
}

func TestRegistryRejectsUnbackedCapability(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(&Agent{
		Name:         "broken",
		Enabled:      true,
		Capabilities: CapBiography,
	})
	assert.ErrorContains(t, err, "without implementation")
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	err := NewRegistry().Register(&Agent{Enabled: true})
	assert.Error(t, err)
}

func TestAgentsWithCapabilityOrdersByPriority(t *testing.T) {
	registry := NewRegistry()
	bio := &fakeBiography{}

	require.NoError(t, registry.Register(&Agent{
		Name: "secondary", Priority: 10, Enabled: true,
		Capabilities: CapBiography, Biography: bio,
	}))
	require.NoError(t, registry.Register(&Agent{
		Name: "primary", Priority: 1, Enabled: true,
		Capabilities: CapBiography, Biography: bio,
	}))
	require.NoError(t, registry.Register(&Agent{
		Name: "disabled", Priority: 0, Enabled: false,
		Capabilities: CapBiography, Biography: bio,
	}))
	require.NoError(t, registry.Register(&Agent{
		Name: "covers-only", Priority: 0, Enabled: true,
		Capabilities: CapCover, Cover: &fakeCover{},
	}))

	agents := registry.AgentsWithCapability(CapBiography)
	require.Len(t, agents, 2)
	assert.Equal(t, "primary", agents[0].Name)
	assert.Equal(t, "secondary", agents[1].Name)
}

func TestAgentsWithCapabilityBreaksTiesByName(t *testing.T) {
	registry := NewRegistry()
	bio := &fakeBiography{}

	require.NoError(t, registry.Register(&Agent{
		Name: "bravo", Priority: 5, Enabled: true,
		Capabilities: CapBiography, Biography: bio,
	}))
	require.NoError(t, registry.Register(&Agent{
		Name: "alpha", Priority: 5, Enabled: true,
		Capabilities: CapBiography, Biography: bio,
	}))

	agents := registry.AgentsWithCapability(CapBiography)
	require.Len(t, agents, 2)
	assert.Equal(t, "alpha", agents[0].Name)
}

func TestRegistryTagSource(t *testing.T) {
	registry := NewRegistry()
	tags := &fakeTags{}

	require.NoError(t, registry.Register(&Agent{
		Name: "audiodb", Enabled: true, Tags: tags,
	}))
	require.NoError(t, registry.Register(&Agent{
		Name: "disabled-tags", Enabled: false, Tags: tags,
	}))

	assert.NotNil(t, registry.TagSource("audiodb"))
	assert.Nil(t, registry.TagSource("disabled-tags"))
	assert.Nil(t, registry.TagSource("missing"))
}

func TestRegistryIsEnabled(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&Agent{Name: "on", Enabled: true}))
	require.NoError(t, registry.Register(&Agent{Name: "off", Enabled: false}))

	assert.True(t, registry.IsEnabled("on"))
	assert.False(t, registry.IsEnabled("off"))
	assert.False(t, registry.IsEnabled("missing"))
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "none", Capability(0).String())
	assert.Equal(t, "biography|cover", (CapBiography | CapCover).String())
}
