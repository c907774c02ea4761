package enrichmentmodule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/config"
	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/modules/assetmodule"
	"github.com/harmonia-media/harmonia/internal/storage"
)

type enricherFixture struct {
	db       *gorm.DB
	enricher *Enricher
	searcher *fakeSearcher
	bio      *fakeBiography
	images   *fakeImages
	cover    *fakeCover
	tags     *fakeTags
}

func newEnricherFixture(t *testing.T) *enricherFixture {
	t.Helper()

	db := openTestDB(t)
	searcher := &fakeSearcher{}
	bio := &fakeBiography{}
	images := &fakeImages{}
	cover := &fakeCover{}
	tags := &fakeTags{}

	registry := NewRegistry()
	require.NoError(t, registry.Register(&Agent{
		Name: "musicbrainz", Priority: 0, Enabled: true,
		Capabilities: CapCanonicalID, Search: searcher,
	}))
	require.NoError(t, registry.Register(&Agent{
		Name: "audiodb", Priority: 10, Enabled: true,
		Capabilities: CapBiography | CapImages,
		Biography:    bio, Images: images, Tags: tags,
	}))
	require.NoError(t, registry.Register(&Agent{
		Name: "coverartarchive", Priority: 5, Enabled: true,
		Capabilities: CapCover, Cover: cover,
	}))

	store, err := storage.NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	cache := NewMetadataCache(db, time.Hour)
	enricher := NewEnricher(EnricherDeps{
		DB:        db,
		Registry:  registry,
		Resolver:  NewResolver(registry, 90, 95, 70),
		Cache:     cache,
		Conflicts: NewConflictStore(db),
		Audit:     NewAuditLog(db),
		Genres:    NewGenreResolver(db, registry, cache, "audiodb", 3, 5),
		Assets:    assetmodule.NewManager(db, nil, store, 95),
		Fetcher:   assetmodule.NewFetcher("harmonia-test", time.Second, 1<<20, 1),
		Prober:    assetmodule.NewProber("harmonia-test", time.Second),
		Policy:    assetmodule.NewQualityPolicy(1000, 1000, 0.5),
		Config:    config.EnrichmentConfig{},
	})

	return &enricherFixture{db: db, enricher: enricher, searcher: searcher, bio: bio, images: images, cover: cover, tags: tags}
}

func (f *enricherFixture) createArtist(t *testing.T, name string) *database.Artist {
	t.Helper()
	artist := &database.Artist{ID: uuid.New(), Name: name}
	require.NoError(t, f.db.Create(artist).Error)
	return artist
}

func TestEnrichArtistAppliesConfidentMetadata(t *testing.T) {
	f := newEnricherFixture(t)
	f.searcher.artistResults = []CandidateMatch{{ExternalID: "mbid-ae", Name: "Autechre", Score: 100}}
	f.bio.artistText = "Manchester electronic duo."

	artist := f.createArtist(t, "Autechre")

	result, err := f.enricher.EnrichArtist(context.Background(), artist.ID.String(), false)
	require.NoError(t, err)

	assert.Contains(t, result.Applied, "musicbrainz_id")
	assert.Contains(t, result.Applied, "biography")
	assert.Zero(t, result.Conflicts)

	var saved database.Artist
	require.NoError(t, f.db.First(&saved, "id = ?", artist.ID).Error)
	require.NotNil(t, saved.MusicBrainzID)
	assert.Equal(t, "mbid-ae", *saved.MusicBrainzID)
	assert.Equal(t, "Manchester electronic duo.", saved.Biography)
	assert.NotNil(t, saved.MbidSearchedAt)
	assert.NotNil(t, saved.EnrichedAt)

	history, err := NewAuditLog(f.db).History(EntityArtist, artist.ID.String(), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, history)

	var run *EnrichmentLog
	for i := range history {
		if history[i].Action == ActionRun {
			run = &history[i]
			break
		}
	}
	require.NotNil(t, run)
	assert.Equal(t, StatusSuccess, run.Status)
	assert.Contains(t, run.FieldsUpdated, "biography")
	assert.Empty(t, run.ErrorMessage)
}

func TestEnrichArtistMissingEntityRecordsErrorRun(t *testing.T) {
	f := newEnricherFixture(t)
	missingID := uuid.New().String()

	_, err := f.enricher.EnrichArtist(context.Background(), missingID, false)
	require.Error(t, err)

	history, err := NewAuditLog(f.db).History(EntityArtist, missingID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ActionRun, history[0].Action)
	assert.Equal(t, StatusError, history[0].Status)
	assert.NotEmpty(t, history[0].ErrorMessage)
}

func TestEnrichArtistSecondRunSkipsProviders(t *testing.T) {
	f := newEnricherFixture(t)
	f.searcher.artistResults = []CandidateMatch{{ExternalID: "mbid-ae", Score: 100}}
	f.bio.artistText = "Manchester electronic duo."
	f.tags.artistTags = []TagCount{{Name: "electronic", Count: 10}}

	artist := f.createArtist(t, "Autechre")

	_, err := f.enricher.EnrichArtist(context.Background(), artist.ID.String(), false)
	require.NoError(t, err)

	searchCalls := f.searcher.calls
	bioCalls := f.bio.calls
	tagCalls := f.tags.calls

	_, err = f.enricher.EnrichArtist(context.Background(), artist.ID.String(), false)
	require.NoError(t, err)

	assert.Equal(t, searchCalls, f.searcher.calls)
	assert.Equal(t, bioCalls, f.bio.calls)
	assert.Equal(t, tagCalls, f.tags.calls)
}

func TestEnrichArtistReviewScoreRaisesConflict(t *testing.T) {
	f := newEnricherFixture(t)
	f.searcher.artistResults = []CandidateMatch{
		{ExternalID: "mbid-a", Name: "Orbital", Score: 80},
		{ExternalID: "mbid-b", Name: "Orbital (US)", Score: 72},
	}

	artist := f.createArtist(t, "Orbital")

	result, err := f.enricher.EnrichArtist(context.Background(), artist.ID.String(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)

	var saved database.Artist
	require.NoError(t, f.db.First(&saved, "id = ?", artist.ID).Error)
	assert.Nil(t, saved.MusicBrainzID)
	assert.NotNil(t, saved.MbidSearchedAt)

	pending, err := NewConflictStore(f.db).ListPending(EntityArtist, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "musicbrainz_id", pending[0].Field)
	assert.Equal(t, "mbid-a", pending[0].ProposedValue)
	assert.Len(t, pending[0].DecodedCandidates(), 2)
}

func TestEnrichArtistSearchedStampPreventsRetry(t *testing.T) {
	f := newEnricherFixture(t)
	f.searcher.artistResults = []CandidateMatch{{ExternalID: "mbid-a", Score: 40}}

	artist := f.createArtist(t, "Unknown Artist")

	_, err := f.enricher.EnrichArtist(context.Background(), artist.ID.String(), false)
	require.NoError(t, err)
	searchCalls := f.searcher.calls

	_, err = f.enricher.EnrichArtist(context.Background(), artist.ID.String(), false)
	require.NoError(t, err)
	assert.Equal(t, searchCalls, f.searcher.calls)
}

func TestEnrichArtistNotFoundIsCached(t *testing.T) {
	f := newEnricherFixture(t)
	f.bio.err = ErrNotFound

	artist := f.createArtist(t, "Obscure Act")

	result, err := f.enricher.EnrichArtist(context.Background(), artist.ID.String(), false)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	bioCalls := f.bio.calls
	require.Positive(t, bioCalls)

	_, err = f.enricher.EnrichArtist(context.Background(), artist.ID.String(), false)
	require.NoError(t, err)
	assert.Equal(t, bioCalls, f.bio.calls)
}

func TestEnrichArtistForceRefreshRoutesChangedTextToReview(t *testing.T) {
	f := newEnricherFixture(t)
	f.bio.artistText = "original biography"

	artist := f.createArtist(t, "Plaid")

	_, err := f.enricher.EnrichArtist(context.Background(), artist.ID.String(), false)
	require.NoError(t, err)

	f.bio.artistText = "rewritten biography"
	result, err := f.enricher.EnrichArtist(context.Background(), artist.ID.String(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)

	var saved database.Artist
	require.NoError(t, f.db.First(&saved, "id = ?", artist.ID).Error)
	assert.Equal(t, "original biography", saved.Biography)

	pending, err := NewConflictStore(f.db).ListPending(EntityArtist, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "biography", pending[0].Field)
	assert.Equal(t, "rewritten biography", pending[0].ProposedValue)
}

func TestEnrichArtistMissingArtistFails(t *testing.T) {
	f := newEnricherFixture(t)
	_, err := f.enricher.EnrichArtist(context.Background(), uuid.NewString(), false)
	assert.Error(t, err)
}

func TestEnrichAllArtistsSkipsAlreadyEnriched(t *testing.T) {
	f := newEnricherFixture(t)

	fresh := f.createArtist(t, "Fresh")
	done := f.createArtist(t, "Done")
	now := time.Now()
	require.NoError(t, f.db.Model(done).Update("enriched_at", &now).Error)

	batch, err := f.enricher.EnrichAllArtists(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Total)
	assert.Equal(t, 1, batch.Succeeded)

	var saved database.Artist
	require.NoError(t, f.db.First(&saved, "id = ?", fresh.ID).Error)
	assert.NotNil(t, saved.EnrichedAt)
}
