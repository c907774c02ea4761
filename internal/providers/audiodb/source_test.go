package audiodb

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

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(hclog.NewNullLogger(), "2", "harmonia-test/1.0")
	client.SetBaseURL(server.URL)
	return NewSource(client)
}

func TestArtistBiographyTrimsText(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.php", r.URL.Path)
		assert.Equal(t, "Burial", r.URL.Query().Get("s"))
		w.Write([]byte(`{"artists": [{"idArtist": "1", "strArtist": "Burial",
			"strBiographyEN": "  South London producer.\n"}]}`))
	})

	bio, err := source.ArtistBiography(context.Background(), "Burial", "")
	require.NoError(t, err)
	assert.Equal(t, "South London producer.", bio)
}

func TestMissingArtistIsNotFound(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		// AudioDB signals a miss with a null array, not a status code.
		w.Write([]byte(`{"artists": null}`))
	})

	_, err := source.ArtistBiography(context.Background(), "Nobody", "")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)

	_, err = source.ArtistImages(context.Background(), "Nobody", "")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)

	_, err = source.ArtistTags(context.Background(), "Nobody")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)
}

func TestArtistImagesMapSlots(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"artists": [{"idArtist": "1",
			"strArtistThumb": "https://img/thumb.jpg",
			"strArtistFanart": "https://img/fanart.jpg",
			"strArtistBanner": "https://img/banner.jpg",
			"strArtistLogo": "https://img/logo.png"}]}`))
	})

	images, err := source.ArtistImages(context.Background(), "Burial", "")
	require.NoError(t, err)
	assert.Equal(t, enrichmentmodule.ImageSet{
		Profile:    "https://img/thumb.jpg",
		Background: "https://img/fanart.jpg",
		Banner:     "https://img/banner.jpg",
		Logo:       "https://img/logo.png",
	}, images)
}

func TestAlbumCoverMapsThumbTiers(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/searchalbum.php", r.URL.Path)
		assert.Equal(t, "Burial", r.URL.Query().Get("s"))
		assert.Equal(t, "Untrue", r.URL.Query().Get("a"))
		w.Write([]byte(`{"album": [{"idAlbum": "9",
			"strAlbumThumb": "https://img/cover.jpg",
			"strAlbumThumbHQ": "https://img/cover-hq.jpg"}]}`))
	})

	cover, err := source.AlbumCover(context.Background(), "Untrue", "Burial", "")
	require.NoError(t, err)
	assert.Equal(t, "https://img/cover.jpg", cover.Medium)
	assert.Equal(t, "https://img/cover-hq.jpg", cover.Large)
	assert.Empty(t, cover.Original)
}

func TestArtistTagsAreWeighted(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"artists": [{"idArtist": "1",
			"strGenre": "Electronic", "strStyle": "Dubstep", "strMood": "Brooding"}]}`))
	})

	tags, err := source.ArtistTags(context.Background(), "Burial")
	require.NoError(t, err)
	assert.Equal(t, []enrichmentmodule.TagCount{
		{Name: "Electronic", Count: genreWeight},
		{Name: "Dubstep", Count: styleWeight},
		{Name: "Brooding", Count: moodWeight},
	}, tags)
}

func TestWeightedTagsDropStyleEqualToGenre(t *testing.T) {
	tags := weightedTags("Ambient", "ambient", "")
	assert.Equal(t, []enrichmentmodule.TagCount{{Name: "Ambient", Count: genreWeight}}, tags)

	assert.Nil(t, weightedTags("", "", ""))
}

func TestServerErrorPropagates(t *testing.T) {
	source := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := source.AlbumDescription(context.Background(), "Untrue", "Burial", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
