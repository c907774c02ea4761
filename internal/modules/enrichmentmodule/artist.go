package enrichmentmodule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/events"
	"github.com/harmonia-media/harmonia/internal/logger"
	"github.com/harmonia-media/harmonia/internal/modules/assetmodule"
)

// Artist image slots, keyed by conflict/audit field name.
var artistImageSlots = []struct {
	Field     string
	AssetType assetmodule.AssetType
	Pick      func(ImageSet) string
}{
	{"image_profile", assetmodule.AssetTypeProfile, func(s ImageSet) string { return s.Profile }},
	{"image_background", assetmodule.AssetTypeBackground, func(s ImageSet) string { return s.Background }},
	{"image_banner", assetmodule.AssetTypeBanner, func(s ImageSet) string { return s.Banner }},
	{"image_logo", assetmodule.AssetTypeLogo, func(s ImageSet) string { return s.Logo }},
}

// EnrichArtist runs the full pipeline for one artist: canonical ID,
// biography, images, genres. Individual step failures accumulate into
// the result; the run itself only fails when the artist cannot be loaded
// or saved. EnrichedAt is stamped even on a partial run.
func (e *Enricher) EnrichArtist(ctx context.Context, artistID string, forceRefresh bool) (*Result, error) {
	started := time.Now()

	var artist database.Artist
	if err := e.db.First(&artist, "id = ?", artistID).Error; err != nil {
		e.audit.RecordRun(EntityArtist, artistID, StatusError, nil,
			[]string{fmt.Sprintf("load: %v", err)}, time.Since(started))
		return nil, fmt.Errorf("artist %s not found: %w", artistID, err)
	}

	result := &Result{EntityType: EntityArtist, EntityID: artistID}
	e.publishEvent(events.EventEnrichmentStarted, "Artist enrichment started", map[string]interface{}{
		"entity_type": EntityArtist,
		"entity_id":   artistID,
		"name":        artist.Name,
		"force":       forceRefresh,
	})

	if forceRefresh {
		e.cache.InvalidateEntity(EntityArtist, artistID)
		e.publishEvent(events.EventCacheInvalidated, "Cache invalidated", map[string]interface{}{
			"entity_type": EntityArtist,
			"entity_id":   artistID,
		})
	}

	matchTags := e.resolveArtistID(ctx, &artist, forceRefresh, result)
	e.enrichArtistBiography(ctx, &artist, forceRefresh, result)
	e.enrichArtistImages(ctx, &artist, result)

	names := e.genres.ArtistGenres(ctx, &artist, matchTags)
	if len(names) > 0 {
		if err := e.genres.ApplyArtistGenres(artist.ID, names); err != nil {
			result.addError("genres", err)
		} else {
			result.addApplied("genres")
			e.audit.Record(EntityArtist, artistID, "genres", "", fmt.Sprintf("%v", names), "aggregate", ActionApplied)
		}
	}

	now := time.Now()
	artist.EnrichedAt = &now
	if err := e.db.Save(&artist).Error; err != nil {
		return nil, fmt.Errorf("failed to save artist %s: %w", artistID, err)
	}

	result.Duration = time.Since(started)
	e.audit.RecordRun(EntityArtist, artistID, RunStatus(result.Applied, result.Errors),
		result.Applied, result.Errors, result.Duration)
	e.publishEvent(events.EventEnrichmentCompleted, "Artist enrichment completed", map[string]interface{}{
		"entity_type": EntityArtist,
		"entity_id":   artistID,
		"applied":     result.Applied,
		"conflicts":   result.Conflicts,
		"errors":      len(result.Errors),
	})
	return result, nil
}

// resolveArtistID fills the artist's canonical ID when missing. Returns
// the tags carried on an auto-applied match for the genre chain.
func (e *Enricher) resolveArtistID(ctx context.Context, artist *database.Artist, forceRefresh bool, result *Result) []TagCount {
	if artist.MusicBrainzID != nil && !forceRefresh {
		return nil
	}
	if artist.MbidSearchedAt != nil && !forceRefresh {
		return nil
	}

	decision := e.resolver.ResolveArtist(ctx, artist.Name)
	now := time.Now()
	artist.MbidSearchedAt = &now

	switch decision.Action {
	case ActionApply:
		old := ""
		if artist.MusicBrainzID != nil {
			old = *artist.MusicBrainzID
		}
		artist.MusicBrainzID = &decision.Best.ExternalID
		result.addApplied("musicbrainz_id")
		e.audit.Record(EntityArtist, artist.ID.String(), "musicbrainz_id", old, decision.Best.ExternalID,
			e.searchSourceName(), ActionApplied)
		return decision.Best.Tags
	case ActionReview:
		current := ""
		if artist.MusicBrainzID != nil {
			current = *artist.MusicBrainzID
		}
		e.raiseConflict(result, ConflictProposal{
			EntityType:    EntityArtist,
			EntityID:      artist.ID.String(),
			Field:         "musicbrainz_id",
			CurrentValue:  current,
			ProposedValue: decision.Best.ExternalID,
			Candidates:    decision.Candidates,
			Source:        e.searchSourceName(),
			Reason:        fmt.Sprintf("best match score %.1f below auto-apply threshold", decision.Best.Score),
		})
	}
	return nil
}

func (e *Enricher) enrichArtistBiography(ctx context.Context, artist *database.Artist, forceRefresh bool, result *Result) {
	if artist.Biography != "" && !forceRefresh {
		return
	}

	mbid := ""
	if artist.MusicBrainzID != nil {
		mbid = *artist.MusicBrainzID
	}
	text, source, err := e.fetchBiography(ctx, EntityArtist, artist.ID.String(), func(p BiographyProvider) (string, error) {
		return p.ArtistBiography(ctx, artist.Name, mbid)
	})
	if err != nil {
		result.addError("biography", err)
	}
	if text == "" {
		return
	}

	if artist.Biography != "" && artist.Biography != text {
		// Force refresh found different text for an already filled field;
		// route it through review instead of silently overwriting.
		e.raiseConflict(result, ConflictProposal{
			EntityType:    EntityArtist,
			EntityID:      artist.ID.String(),
			Field:         "biography",
			CurrentValue:  artist.Biography,
			ProposedValue: text,
			Source:        source,
			Reason:        "refreshed biography differs from stored text",
		})
		return
	}

	old := artist.Biography
	artist.Biography = text
	result.addApplied("biography")
	e.audit.Record(EntityArtist, artist.ID.String(), "biography", old, text, source, ActionApplied)
}

func (e *Enricher) enrichArtistImages(ctx context.Context, artist *database.Artist, result *Result) {
	mbid := ""
	if artist.MusicBrainzID != nil {
		mbid = *artist.MusicBrainzID
	}

	images, sources, err := e.fetchImages(ctx, artist.ID.String(), artist.Name, mbid)
	if err != nil {
		result.addError("images", err)
	}
	if images.Empty() {
		return
	}

	for _, slot := range artistImageSlots {
		url := slot.Pick(images)
		if url == "" {
			continue
		}
		source := sources[string(slot.AssetType)]
		if source == "" {
			source = "unknown"
		}
		e.applyArtistImage(ctx, artist, slot.Field, slot.AssetType, url, source, result)
	}
}

// applyArtistImage stores a new image directly or proposes a replacement
// when a stored one exists and the candidate is clearly better.
func (e *Enricher) applyArtistImage(ctx context.Context, artist *database.Artist, field string, assetType assetmodule.AssetType, url, source string, result *Result) {
	current, err := e.assets.CurrentAsset(assetmodule.EntityTypeArtist, artist.ID, assetType)
	if err != nil {
		result.addError(field, err)
		return
	}

	if current == nil {
		saved, err := e.fetcher.DownloadAndSave(ctx, e.assets, url,
			assetmodule.EntityTypeArtist, artist.ID, assetType, source)
		if err != nil {
			var verr *assetmodule.ValidationError
			if errors.As(err, &verr) {
				logger.Warn("Rejected %s for artist %s: %v", field, artist.Name, err)
			} else {
				result.addError(field, err)
			}
			return
		}
		e.setArtistImagePath(artist, assetType, saved.Path)
		result.addApplied(field)
		e.audit.Record(EntityArtist, artist.ID.String(), field, "", url, source, ActionApplied)
		return
	}

	currentDims := assetmodule.Dimensions{
		Width: current.Width, Height: current.Height,
		Known: current.Width > 0 && current.Height > 0, Reachable: true,
	}
	candidateDims := e.prober.DimensionsFromURL(ctx, url)
	verdict := e.policy.ShouldProposeReplacement(currentDims, candidateDims)
	if !verdict.Propose {
		return
	}

	e.raiseConflict(result, ConflictProposal{
		EntityType:    EntityArtist,
		EntityID:      artist.ID.String(),
		Field:         field,
		CurrentValue:  current.Path,
		ProposedValue: url,
		Source:        source,
		Reason: fmt.Sprintf("%s (%.0f%% larger: %dx%d vs %dx%d)", verdict.Reason,
			verdict.QualityImprovement*100, candidateDims.Width, candidateDims.Height,
			currentDims.Width, currentDims.Height),
	})
}

func (e *Enricher) setArtistImagePath(artist *database.Artist, assetType assetmodule.AssetType, path string) {
	switch assetType {
	case assetmodule.AssetTypeProfile:
		artist.ImagePath = path
	case assetmodule.AssetTypeBackground:
		artist.BackgroundPath = path
	case assetmodule.AssetTypeBanner:
		artist.BannerPath = path
	case assetmodule.AssetTypeLogo:
		artist.LogoPath = path
	}
}

// raiseConflict records a proposal and publishes the conflict event.
func (e *Enricher) raiseConflict(result *Result, proposal ConflictProposal) {
	conflict, err := e.conflicts.Create(proposal)
	if err != nil {
		result.addError(proposal.Field, err)
		return
	}
	result.Conflicts++
	e.audit.Record(proposal.EntityType, proposal.EntityID, proposal.Field,
		proposal.CurrentValue, proposal.ProposedValue, proposal.Source, ActionConflictRaised)
	e.publishEvent(events.EventConflictCreated, "Metadata conflict created", map[string]interface{}{
		"conflict_id": conflict.ID,
		"entity_type": proposal.EntityType,
		"entity_id":   proposal.EntityID,
		"field":       proposal.Field,
	})
}

// searchSourceName returns the active canonical-ID agent name for audit
// entries.
func (e *Enricher) searchSourceName() string {
	agents := e.registry.AgentsWithCapability(CapCanonicalID)
	if len(agents) == 0 {
		return "unknown"
	}
	return agents[0].Name
}

// EnrichAllArtists runs enrichment over every artist missing it, or over
// the whole catalog on force. The batch never aborts on a single
// failure.
func (e *Enricher) EnrichAllArtists(ctx context.Context, forceRefresh bool) (*BatchResult, error) {
	started := time.Now()

	query := e.db.Model(&database.Artist{})
	if !forceRefresh {
		query = query.Where("enriched_at IS NULL")
	}
	var artists []database.Artist
	if err := query.Find(&artists).Error; err != nil {
		return nil, fmt.Errorf("failed to list artists: %w", err)
	}

	batch := &BatchResult{Total: len(artists)}
	e.publishEvent(events.EventBatchStarted, "Artist batch enrichment started", map[string]interface{}{
		"entity_type": EntityArtist,
		"total":       batch.Total,
	})

	for i, artist := range artists {
		if ctx.Err() != nil {
			break
		}
		result, err := e.EnrichArtist(ctx, artist.ID.String(), forceRefresh)
		if err != nil {
			batch.Failed++
			logger.Warn("Batch enrichment failed for artist %s: %v", artist.Name, err)
			continue
		}
		batch.Succeeded++
		batch.Conflicts += result.Conflicts

		if (i+1)%10 == 0 {
			e.publishEvent(events.EventBatchProgress, "Artist batch enrichment progress", map[string]interface{}{
				"entity_type": EntityArtist,
				"processed":   i + 1,
				"total":       batch.Total,
			})
		}
	}

	batch.Duration = time.Since(started)
	e.publishEvent(events.EventBatchCompleted, "Artist batch enrichment completed", map[string]interface{}{
		"entity_type": EntityArtist,
		"total":       batch.Total,
		"succeeded":   batch.Succeeded,
		"failed":      batch.Failed,
		"conflicts":   batch.Conflicts,
	})
	return batch, nil
}
