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
	"github.com/harmonia-media/harmonia/internal/tagreader"
)

// EnrichAlbum runs the full pipeline for one album: canonical ID,
// description, cover art, per-track canonical IDs, genres. Step failures
// accumulate; the run only fails when the album cannot be loaded or
// saved.
func (e *Enricher) EnrichAlbum(ctx context.Context, albumID string, forceRefresh bool) (*Result, error) {
	started := time.Now()

	var album database.Album
	if err := e.db.First(&album, "id = ?", albumID).Error; err != nil {
		e.audit.RecordRun(EntityAlbum, albumID, StatusError, nil,
			[]string{fmt.Sprintf("load: %v", err)}, time.Since(started))
		return nil, fmt.Errorf("album %s not found: %w", albumID, err)
	}

	var artist database.Artist
	artistName := ""
	if err := e.db.First(&artist, "id = ?", album.ArtistID).Error; err == nil {
		artistName = artist.Name
	}

	result := &Result{EntityType: EntityAlbum, EntityID: albumID}
	e.publishEvent(events.EventEnrichmentStarted, "Album enrichment started", map[string]interface{}{
		"entity_type": EntityAlbum,
		"entity_id":   albumID,
		"title":       album.Title,
		"force":       forceRefresh,
	})

	if forceRefresh {
		e.cache.InvalidateEntity(EntityAlbum, albumID)
		e.publishEvent(events.EventCacheInvalidated, "Cache invalidated", map[string]interface{}{
			"entity_type": EntityAlbum,
			"entity_id":   albumID,
		})
	}

	matchTags := e.resolveAlbumID(ctx, &album, artistName, forceRefresh, result)
	e.enrichAlbumDescription(ctx, &album, artistName, forceRefresh, result)
	e.enrichAlbumCover(ctx, &album, artistName, result)
	e.resolveTrackIDs(ctx, &album, artistName, forceRefresh, result)

	names := e.genres.AlbumGenres(ctx, &album, artistName, matchTags)
	if len(names) > 0 {
		if err := e.genres.ApplyAlbumGenres(album.ID, names); err != nil {
			result.addError("genres", err)
		} else {
			result.addApplied("genres")
			e.audit.Record(EntityAlbum, albumID, "genres", "", fmt.Sprintf("%v", names), "aggregate", ActionApplied)
		}
	}

	now := time.Now()
	album.EnrichedAt = &now
	if err := e.db.Save(&album).Error; err != nil {
		return nil, fmt.Errorf("failed to save album %s: %w", albumID, err)
	}

	result.Duration = time.Since(started)
	e.audit.RecordRun(EntityAlbum, albumID, RunStatus(result.Applied, result.Errors),
		result.Applied, result.Errors, result.Duration)
	e.publishEvent(events.EventEnrichmentCompleted, "Album enrichment completed", map[string]interface{}{
		"entity_type": EntityAlbum,
		"entity_id":   albumID,
		"applied":     result.Applied,
		"conflicts":   result.Conflicts,
		"errors":      len(result.Errors),
	})
	return result, nil
}

func (e *Enricher) resolveAlbumID(ctx context.Context, album *database.Album, artistName string, forceRefresh bool, result *Result) []TagCount {
	if album.MusicBrainzID != nil && !forceRefresh {
		return nil
	}
	if album.MbidSearchedAt != nil && !forceRefresh {
		return nil
	}

	decision := e.resolver.ResolveAlbum(ctx, album.Title, artistName)
	now := time.Now()
	album.MbidSearchedAt = &now

	switch decision.Action {
	case ActionApply:
		old := ""
		if album.MusicBrainzID != nil {
			old = *album.MusicBrainzID
		}
		album.MusicBrainzID = &decision.Best.ExternalID
		result.addApplied("musicbrainz_id")
		e.audit.Record(EntityAlbum, album.ID.String(), "musicbrainz_id", old, decision.Best.ExternalID,
			e.searchSourceName(), ActionApplied)
		return decision.Best.Tags
	case ActionReview:
		current := ""
		if album.MusicBrainzID != nil {
			current = *album.MusicBrainzID
		}
		e.raiseConflict(result, ConflictProposal{
			EntityType:    EntityAlbum,
			EntityID:      album.ID.String(),
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

func (e *Enricher) enrichAlbumDescription(ctx context.Context, album *database.Album, artistName string, forceRefresh bool, result *Result) {
	if album.Description != "" && !forceRefresh {
		return
	}

	mbid := ""
	if album.MusicBrainzID != nil {
		mbid = *album.MusicBrainzID
	}
	text, source, err := e.fetchBiography(ctx, EntityAlbum, album.ID.String(), func(p BiographyProvider) (string, error) {
		return p.AlbumDescription(ctx, album.Title, artistName, mbid)
	})
	if err != nil {
		result.addError("description", err)
	}
	if text == "" {
		return
	}

	if album.Description != "" && album.Description != text {
		e.raiseConflict(result, ConflictProposal{
			EntityType:    EntityAlbum,
			EntityID:      album.ID.String(),
			Field:         "description",
			CurrentValue:  album.Description,
			ProposedValue: text,
			Source:        source,
			Reason:        "refreshed description differs from stored text",
		})
		return
	}

	old := album.Description
	album.Description = text
	result.addApplied("description")
	e.audit.Record(EntityAlbum, album.ID.String(), "description", old, text, source, ActionApplied)
}

// enrichAlbumCover applies the best provider cover, falling back to an
// embedded file cover when no provider has one and the album has no
// stored cover yet.
func (e *Enricher) enrichAlbumCover(ctx context.Context, album *database.Album, artistName string, result *Result) {
	mbid := ""
	if album.MusicBrainzID != nil {
		mbid = *album.MusicBrainzID
	}

	cover, source, err := e.fetchCover(ctx, album.ID.String(), album.Title, artistName, mbid)
	if err != nil {
		result.addError("cover", err)
	}

	current, cerr := e.assets.CurrentAsset(assetmodule.EntityTypeAlbum, album.ID, assetmodule.AssetTypeCover)
	if cerr != nil {
		result.addError("cover", cerr)
		return
	}

	url := cover.Best()
	if url == "" {
		if current == nil {
			e.applyEmbeddedCover(album, result)
		}
		return
	}

	if current == nil {
		saved, err := e.fetcher.DownloadAndSave(ctx, e.assets, url,
			assetmodule.EntityTypeAlbum, album.ID, assetmodule.AssetTypeCover, source)
		if err != nil {
			var verr *assetmodule.ValidationError
			if errors.As(err, &verr) {
				logger.Warn("Rejected cover for album %s: %v", album.Title, err)
			} else {
				result.addError("cover", err)
			}
			return
		}
		album.CoverPath = saved.Path
		result.addApplied("cover")
		e.audit.Record(EntityAlbum, album.ID.String(), "cover", "", url, source, ActionApplied)
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
		EntityType:    EntityAlbum,
		EntityID:      album.ID.String(),
		Field:         "cover",
		CurrentValue:  current.Path,
		ProposedValue: url,
		Source:        source,
		Reason: fmt.Sprintf("%s (%.0f%% larger: %dx%d vs %dx%d)", verdict.Reason,
			verdict.QualityImprovement*100, candidateDims.Width, candidateDims.Height,
			currentDims.Width, currentDims.Height),
	})
}

// applyEmbeddedCover pulls a cover image out of the album's own audio
// files. Last resort, applied directly because there is nothing to
// conflict with.
func (e *Enricher) applyEmbeddedCover(album *database.Album, result *Result) {
	var tracks []database.Track
	if err := e.db.Where("album_id = ?", album.ID).Limit(10).Find(&tracks).Error; err != nil {
		return
	}

	reader := tagreader.NewReader()
	for _, track := range tracks {
		if track.Path == "" || !reader.CanReadFile(track.Path) {
			continue
		}
		data, mimeType, err := reader.ReadEmbeddedCover(track.Path)
		if err != nil || len(data) == 0 {
			continue
		}

		saved, err := e.assets.SaveAsset(&assetmodule.AssetRequest{
			EntityType: assetmodule.EntityTypeAlbum,
			EntityID:   album.ID,
			Type:       assetmodule.AssetTypeCover,
			Source:     "embedded",
			Data:       data,
			Format:     mimeType,
			Preferred:  true,
		})
		if err != nil {
			logger.Warn("Failed to save embedded cover for album %s: %v", album.Title, err)
			continue
		}

		album.CoverPath = saved.Path
		result.addApplied("cover")
		e.audit.Record(EntityAlbum, album.ID.String(), "cover", "", track.Path, "embedded", ActionApplied)
		return
	}
}

// resolveTrackIDs fills canonical IDs for the album's tracks under the
// stricter track threshold.
func (e *Enricher) resolveTrackIDs(ctx context.Context, album *database.Album, artistName string, forceRefresh bool, result *Result) {
	var tracks []database.Track
	if err := e.db.Where("album_id = ?", album.ID).Find(&tracks).Error; err != nil {
		result.addError("tracks", err)
		return
	}

	for i := range tracks {
		track := &tracks[i]
		if track.MusicBrainzID != nil && !forceRefresh {
			continue
		}
		if track.MbidSearchedAt != nil && !forceRefresh {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		decision := e.resolver.ResolveTrack(ctx, TrackSearchParams{
			Title:  track.Title,
			Artist: artistName,
			Album:  album.Title,
		})
		now := time.Now()
		track.MbidSearchedAt = &now

		switch decision.Action {
		case ActionApply:
			track.MusicBrainzID = &decision.Best.ExternalID
			e.audit.Record(EntityTrack, track.ID.String(), "musicbrainz_id", "", decision.Best.ExternalID,
				e.searchSourceName(), ActionApplied)
		case ActionReview:
			e.raiseConflict(result, ConflictProposal{
				EntityType:    EntityTrack,
				EntityID:      track.ID.String(),
				Field:         "musicbrainz_id",
				ProposedValue: decision.Best.ExternalID,
				Candidates:    decision.Candidates,
				Source:        e.searchSourceName(),
				Reason:        fmt.Sprintf("best match score %.1f below auto-apply threshold", decision.Best.Score),
			})
		}

		if err := e.db.Save(track).Error; err != nil {
			result.addError("tracks", err)
		}
	}
}

// EnrichAllAlbums runs enrichment over every album missing it, or over
// the whole catalog on force.
func (e *Enricher) EnrichAllAlbums(ctx context.Context, forceRefresh bool) (*BatchResult, error) {
	started := time.Now()

	query := e.db.Model(&database.Album{})
	if !forceRefresh {
		query = query.Where("enriched_at IS NULL")
	}
	var albums []database.Album
	if err := query.Find(&albums).Error; err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}

	batch := &BatchResult{Total: len(albums)}
	e.publishEvent(events.EventBatchStarted, "Album batch enrichment started", map[string]interface{}{
		"entity_type": EntityAlbum,
		"total":       batch.Total,
	})

	for i, album := range albums {
		if ctx.Err() != nil {
			break
		}
		result, err := e.EnrichAlbum(ctx, album.ID.String(), forceRefresh)
		if err != nil {
			batch.Failed++
			logger.Warn("Batch enrichment failed for album %s: %v", album.Title, err)
			continue
		}
		batch.Succeeded++
		batch.Conflicts += result.Conflicts

		if (i+1)%10 == 0 {
			e.publishEvent(events.EventBatchProgress, "Album batch enrichment progress", map[string]interface{}{
				"entity_type": EntityAlbum,
				"processed":   i + 1,
				"total":       batch.Total,
			})
		}
	}

	batch.Duration = time.Since(started)
	e.publishEvent(events.EventBatchCompleted, "Album batch enrichment completed", map[string]interface{}{
		"entity_type": EntityAlbum,
		"total":       batch.Total,
		"succeeded":   batch.Succeeded,
		"failed":      batch.Failed,
		"conflicts":   batch.Conflicts,
	})
	return batch, nil
}
