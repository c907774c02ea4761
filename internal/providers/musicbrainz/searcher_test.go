package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
)

// newTestSearcher points a searcher at a stub service. The rate limit is
// set high so tests never sleep.
func newTestSearcher(t *testing.T, handler http.HandlerFunc) *Searcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(hclog.NewNullLogger(), "harmonia-test/1.0", 1000)
	client.SetBaseURL(server.URL)
	return NewSearcher(client)
}

func TestSearchArtistMapsCandidates(t *testing.T) {
	var gotPath, gotAccept, gotAgent, gotFmt string
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotAgent = r.Header.Get("User-Agent")
		gotFmt = r.URL.Query().Get("fmt")
		w.Write([]byte(`{"artists": [
			{"id": "mbid-1", "name": "Boards of Canada", "score": 100,
			 "disambiguation": "Scottish electronic duo",
			 "tags": [{"name": "idm", "count": 7}, {"name": "ambient", "count": 3}]},
			{"id": "mbid-2", "name": "Boards of Canada", "score": 41, "country": "US"}
		]}`))
	})

	matches, err := searcher.SearchArtist(context.Background(), "Boards of Canada", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "/artist", gotPath)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "harmonia-test/1.0", gotAgent)
	assert.Equal(t, "json", gotFmt)

	assert.Equal(t, "mbid-1", matches[0].ExternalID)
	assert.Equal(t, float64(100), matches[0].Score)
	assert.Equal(t, "Scottish electronic duo", matches[0].Disambiguation)
	assert.Equal(t, []enrichmentmodule.TagCount{{Name: "idm", Count: 7}, {Name: "ambient", Count: 3}}, matches[0].Tags)

	// Country stands in when no disambiguation is present.
	assert.Equal(t, "US", matches[1].Disambiguation)
	assert.Nil(t, matches[1].Tags)
}

func TestSearchAlbumBuildsDisambiguationFromCredits(t *testing.T) {
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/release-group", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("query"), `releasegroup:"Geogaddi"`)
		assert.Contains(t, r.URL.Query().Get("query"), `artist:"Boards of Canada"`)
		w.Write([]byte(`{"release-groups": [
			{"id": "rg-1", "title": "Geogaddi", "score": 97,
			 "artist-credit": [{"name": "Boards of Canada"}],
			 "first-release-date": "2002-02-18"}
		]}`))
	})

	matches, err := searcher.SearchAlbum(context.Background(), "Geogaddi", "Boards of Canada", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rg-1", matches[0].ExternalID)
	assert.Equal(t, "Boards of Canada, 2002-02-18", matches[0].Disambiguation)
}

func TestSearchTrackConstrainsByArtistAndRelease(t *testing.T) {
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		assert.Contains(t, query, `recording:"Music Is Math"`)
		assert.Contains(t, query, `artist:"Boards of Canada"`)
		assert.Contains(t, query, `release:"Geogaddi"`)
		w.Write([]byte(`{"recordings": [{"id": "rec-1", "title": "Music Is Math", "score": 98}]}`))
	})

	matches, err := searcher.SearchTrack(context.Background(), enrichmentmodule.TrackSearchParams{
		Title: "Music Is Math", Artist: "Boards of Canada", Album: "Geogaddi",
	}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rec-1", matches[0].ExternalID)
	assert.Equal(t, float64(98), matches[0].Score)
}

func TestByIDPinsScore(t *testing.T) {
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/artist/mbid-1", r.URL.Path)
		assert.Equal(t, "tags", r.URL.Query().Get("inc"))
		w.Write([]byte(`{"id": "mbid-1", "name": "Autechre", "tags": [{"name": "idm", "count": 4}]}`))
	})

	match, err := searcher.ByID(context.Background(), "mbid-1")
	require.NoError(t, err)
	assert.Equal(t, float64(100), match.Score)
	assert.Equal(t, "Autechre", match.Name)
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := searcher.ByID(context.Background(), "nope")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)
}

func TestServiceUnavailableSurfacesRateLimit(t *testing.T) {
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := searcher.SearchArtist(context.Background(), "anyone", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
