package coverart

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

func newArchiveSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	source := NewSource(hclog.NewNullLogger(), "harmonia-test/1.0")
	source.SetBaseURL(server.URL)
	return source
}

func TestAlbumCoverReturnsFrontTiers(t *testing.T) {
	source := newArchiveSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/release-group/rg-1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"images": [
			{"id": 1, "front": false, "back": true, "image": "https://caa/back.jpg"},
			{"id": 2, "front": true, "image": "https://caa/front.jpg",
			 "thumbnails": {"250": "https://caa/front-250.jpg",
			                "500": "https://caa/front-500.jpg",
			                "1200": "https://caa/front-1200.jpg"}}
		]}`))
	})

	cover, err := source.AlbumCover(context.Background(), "Untrue", "Burial", "rg-1")
	require.NoError(t, err)
	assert.Equal(t, enrichmentmodule.CoverSet{
		Small:    "https://caa/front-250.jpg",
		Medium:   "https://caa/front-500.jpg",
		Large:    "https://caa/front-1200.jpg",
		Original: "https://caa/front.jpg",
	}, cover)
}

func TestAlbumCoverWithoutIDSkipsLookup(t *testing.T) {
	called := false
	source := newArchiveSource(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := source.AlbumCover(context.Background(), "Untrue", "Burial", "")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)
	assert.False(t, called)
}

func TestAlbumCoverMissingReleaseGroup(t *testing.T) {
	source := newArchiveSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := source.AlbumCover(context.Background(), "Untrue", "Burial", "rg-1")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)
}

func TestFrontImageSelection(t *testing.T) {
	flagged := []Image{{ID: "1", Back: true}, {ID: "2", Front: true}}
	assert.Equal(t, "2", string(frontImage(flagged).ID))

	// Some archive entries only carry the type list.
	typed := []Image{{ID: "1", Types: []string{"Back"}}, {ID: "2", Types: []string{"Front"}}}
	assert.Equal(t, "2", string(frontImage(typed).ID))

	fallback := []Image{{ID: "7"}, {ID: "8"}}
	assert.Equal(t, "7", string(frontImage(fallback).ID))

	assert.Nil(t, frontImage(nil))
}

func TestEmptyImageListIsNotFound(t *testing.T) {
	source := newArchiveSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"images": []}`))
	})

	_, err := source.AlbumCover(context.Background(), "Untrue", "Burial", "rg-1")
	assert.ErrorIs(t, err, enrichmentmodule.ErrNotFound)
}
