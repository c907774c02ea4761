package enrichmentmodule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/config"
	"github.com/harmonia-media/harmonia/internal/events"
	"github.com/harmonia-media/harmonia/internal/logger"
	"github.com/harmonia-media/harmonia/internal/modules/assetmodule"
)

// Entity type names used across cache, conflicts, and audit entries.
const (
	EntityArtist = "artist"
	EntityAlbum  = "album"
	EntityTrack  = "track"
)

// Audit action names.
const (
	ActionApplied        = "applied"
	ActionConflictRaised = "conflict_raised"
	ActionResolved       = "conflict_resolved"
	ActionRun            = "enrichment_run"
)

// Result is the outcome of enriching one entity. Errors are accumulated
// per step; a partially failed run is still a run, and EnrichedAt is
// stamped either way so the sweep does not loop on a broken provider.
type Result struct {
	EntityType string        `json:"entity_type"`
	EntityID   string        `json:"entity_id"`
	Applied    []string      `json:"applied,omitempty"`
	Conflicts  int           `json:"conflicts"`
	NotFound   []string      `json:"not_found,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
}

func (r *Result) addApplied(field string) {
	r.Applied = append(r.Applied, field)
}

func (r *Result) addError(step string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", step, err))
}

// BatchResult summarizes a batch enrichment run.
type BatchResult struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Conflicts int           `json:"conflicts"`
	Duration  time.Duration `json:"duration"`
}

// Enricher runs the per-entity enrichment pipeline. All provider access
// goes through the cache first; provider failures degrade individual
// steps instead of aborting the run.
type Enricher struct {
	db        *gorm.DB
	registry  *Registry
	resolver  *Resolver
	cache     *MetadataCache
	conflicts *ConflictStore
	audit     *AuditLog
	genres    *GenreResolver
	eventBus  events.EventBus

	assets  *assetmodule.Manager
	fetcher *assetmodule.Fetcher
	prober  *assetmodule.Prober
	policy  assetmodule.QualityPolicy

	cfg config.EnrichmentConfig
}

// EnricherDeps carries the collaborators an Enricher needs.
type EnricherDeps struct {
	DB        *gorm.DB
	Registry  *Registry
	Resolver  *Resolver
	Cache     *MetadataCache
	Conflicts *ConflictStore
	Audit     *AuditLog
	Genres    *GenreResolver
	EventBus  events.EventBus
	Assets    *assetmodule.Manager
	Fetcher   *assetmodule.Fetcher
	Prober    *assetmodule.Prober
	Policy    assetmodule.QualityPolicy
	Config    config.EnrichmentConfig
}

func NewEnricher(deps EnricherDeps) *Enricher {
	return &Enricher{
		db:        deps.DB,
		registry:  deps.Registry,
		resolver:  deps.Resolver,
		cache:     deps.Cache,
		conflicts: deps.Conflicts,
		audit:     deps.Audit,
		genres:    deps.Genres,
		eventBus:  deps.EventBus,
		assets:    deps.Assets,
		fetcher:   deps.Fetcher,
		prober:    deps.Prober,
		policy:    deps.Policy,
		cfg:       deps.Config,
	}
}

// fetchBiography walks biography-capable agents in priority order and
// returns the first non-empty text with its source name. Responses,
// including not-found outcomes, are cached per agent.
func (e *Enricher) fetchBiography(ctx context.Context, entityType, entityID string, fetch func(BiographyProvider) (string, error)) (string, string, error) {
	var lastErr error
	for _, agent := range e.registry.AgentsWithCapability(CapBiography) {
		if cached := e.cache.Get(entityType, entityID, agent.Name); cached != nil {
			if cached.NotFound {
				continue
			}
			text := cached.Biography
			if entityType == EntityAlbum {
				text = cached.Description
			}
			if text != "" {
				return text, agent.Name, nil
			}
		}

		text, err := fetch(agent.Biography)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				e.cache.Set(entityType, entityID, agent.Name, CachedPayload{NotFound: true})
				continue
			}
			logger.Warn("Biography lookup via %s failed for %s/%s: %v", agent.Name, entityType, entityID, err)
			lastErr = err
			continue
		}
		if text == "" {
			continue
		}

		payload := CachedPayload{Biography: text}
		if entityType == EntityAlbum {
			payload = CachedPayload{Description: text}
		}
		e.cache.Set(entityType, entityID, agent.Name, payload)
		return text, agent.Name, nil
	}
	return "", "", lastErr
}

// fetchImages merges image sets from image-capable agents in priority
// order, stopping once every slot is filled. Returns the merged set and
// the per-slot source names.
func (e *Enricher) fetchImages(ctx context.Context, entityID, name, mbid string) (ImageSet, map[string]string, error) {
	var merged ImageSet
	sources := make(map[string]string)
	var lastErr error

	for _, agent := range e.registry.AgentsWithCapability(CapImages) {
		if merged.Complete() {
			break
		}

		var set ImageSet
		if cached := e.cache.Get(EntityArtist, entityID, agent.Name); cached != nil && cached.Images != nil {
			set = *cached.Images
		} else if cached != nil && cached.NotFound {
			continue
		} else {
			fetched, err := agent.Images.ArtistImages(ctx, name, mbid)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					e.cache.Set(EntityArtist, entityID, agent.Name, CachedPayload{NotFound: true})
					continue
				}
				logger.Warn("Image lookup via %s failed for artist %s: %v", agent.Name, name, err)
				lastErr = err
				continue
			}
			set = fetched
			e.cache.Set(EntityArtist, entityID, agent.Name, CachedPayload{Images: &fetched})
		}

		noteImageSources(sources, merged, set, agent.Name)
		merged.Merge(set)
	}
	return merged, sources, lastErr
}

// noteImageSources records which agent supplied each slot about to be
// filled by a merge.
func noteImageSources(sources map[string]string, merged, incoming ImageSet, agent string) {
	if merged.Profile == "" && incoming.Profile != "" {
		sources["profile"] = agent
	}
	if merged.Background == "" && incoming.Background != "" {
		sources["background"] = agent
	}
	if merged.Banner == "" && incoming.Banner != "" {
		sources["banner"] = agent
	}
	if merged.Logo == "" && incoming.Logo != "" {
		sources["logo"] = agent
	}
}

// fetchCover merges cover sets from cover-capable agents in priority
// order. Returns the merged set and the name of the first contributing
// agent.
func (e *Enricher) fetchCover(ctx context.Context, entityID, title, artist, mbid string) (CoverSet, string, error) {
	var merged CoverSet
	var source string
	var lastErr error

	for _, agent := range e.registry.AgentsWithCapability(CapCover) {
		if merged.Complete() {
			break
		}

		var set CoverSet
		if cached := e.cache.Get(EntityAlbum, entityID, agent.Name); cached != nil && cached.Cover != nil {
			set = *cached.Cover
		} else if cached != nil && cached.NotFound {
			continue
		} else {
			fetched, err := agent.Cover.AlbumCover(ctx, title, artist, mbid)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					e.cache.Set(EntityAlbum, entityID, agent.Name, CachedPayload{NotFound: true})
					continue
				}
				logger.Warn("Cover lookup via %s failed for album %s: %v", agent.Name, title, err)
				lastErr = err
				continue
			}
			set = fetched
			e.cache.Set(EntityAlbum, entityID, agent.Name, CachedPayload{Cover: &fetched})
		}

		if source == "" && !set.Empty() {
			source = agent.Name
		}
		merged.Merge(set)
	}
	return merged, source, lastErr
}

// publishEvent publishes an enrichment lifecycle event when a bus is
// wired.
func (e *Enricher) publishEvent(eventType events.EventType, title string, data map[string]interface{}) {
	if e.eventBus == nil {
		return
	}
	event := events.NewModuleEvent("enrichment", eventType, title, "")
	event.Data = data
	e.eventBus.PublishAsync(event)
}
