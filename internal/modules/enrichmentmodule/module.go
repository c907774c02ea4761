package enrichmentmodule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/config"
	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/events"
	"github.com/harmonia-media/harmonia/internal/logger"
	"github.com/harmonia-media/harmonia/internal/modules/assetmodule"
	"github.com/harmonia-media/harmonia/internal/modules/modulemanager"
)

func init() {
	Register()
}

// Register registers this module with the module system.
func Register() {
	modulemanager.Register(&Module{
		id:   "system.enrichment",
		name: "Metadata Enrichment",
		core: true,
	})
}

// Module coordinates metadata enrichment: the agent registry, the
// provider cache, conflict review, and the background sweep.
type Module struct {
	id   string
	name string
	core bool

	db        *gorm.DB
	eventBus  events.EventBus
	registry  *Registry
	resolver  *Resolver
	cache     *MetadataCache
	conflicts *ConflictStore
	audit     *AuditLog
	enricher  *Enricher
	cfg       config.EnrichmentConfig

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup

	initialized bool
}

func (m *Module) ID() string   { return m.id }
func (m *Module) Name() string { return m.name }
func (m *Module) Core() bool   { return m.core }

// Migrate creates the enrichment schema.
func (m *Module) Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&MetadataCacheEntry{}, &MetadataConflict{}, &EnrichmentLog{}); err != nil {
		return fmt.Errorf("failed to migrate enrichment schema: %w", err)
	}
	return nil
}

// Init builds the enrichment pipeline. The asset module must load first;
// module IDs sort that way.
func (m *Module) Init() error {
	cfg := config.Get()
	m.cfg = cfg.Enrichment
	m.db = database.GetDB()
	m.eventBus = events.GetGlobalEventBus()

	assetMod, ok := modulemanager.GetModule("system.assets")
	if !ok {
		return fmt.Errorf("asset module is not registered")
	}
	assets, ok := assetMod.(*assetmodule.Module)
	if !ok {
		return fmt.Errorf("unexpected asset module type %T", assetMod)
	}

	m.registry = NewRegistry()
	m.resolver = NewResolver(m.registry, m.cfg.AutoApplyThreshold, m.cfg.TrackAutoApplyThreshold, m.cfg.ReviewThreshold)
	m.cache = NewMetadataCache(m.db, time.Duration(m.cfg.CacheTTLDays)*24*time.Hour)
	m.conflicts = NewConflictStore(m.db)
	m.audit = NewAuditLog(m.db)

	genres := NewGenreResolver(m.db, m.registry, m.cache, m.cfg.PreferredTagSource, m.cfg.MinTagCount, m.cfg.MaxGenres)

	m.enricher = NewEnricher(EnricherDeps{
		DB:        m.db,
		Registry:  m.registry,
		Resolver:  m.resolver,
		Cache:     m.cache,
		Conflicts: m.conflicts,
		Audit:     m.audit,
		Genres:    genres,
		EventBus:  m.eventBus,
		Assets:    assets.Manager(),
		Fetcher:   assets.Fetcher(),
		Prober:    assets.Prober(),
		Policy:    assets.Policy(),
		Config:    m.cfg,
	})

	m.initialized = true
	logger.Info("Enrichment module initialized (auto-apply >= %.0f, track >= %.0f, review >= %.0f)",
		m.cfg.AutoApplyThreshold, m.cfg.TrackAutoApplyThreshold, m.cfg.ReviewThreshold)
	return nil
}

// Registry exposes the agent registry so providers can be wired at
// startup.
func (m *Module) Registry() *Registry { return m.registry }

// Enricher exposes the enrichment pipeline to other modules.
func (m *Module) Enricher() *Enricher { return m.enricher }

// Cache exposes the metadata cache to other modules.
func (m *Module) Cache() *MetadataCache { return m.cache }

// Conflicts exposes the conflict store.
func (m *Module) Conflicts() *ConflictStore { return m.conflicts }

// Start launches the background sweep that enriches entities the catalog
// has not processed yet.
func (m *Module) Start() error {
	if !m.cfg.SweepEnabled {
		logger.Info("Enrichment sweep disabled")
		return nil
	}

	m.sweepStop = make(chan struct{})
	m.sweepWG.Add(1)
	go m.sweepLoop()
	logger.Info("Enrichment sweep started (interval %s, batch %d)", m.cfg.SweepInterval, m.cfg.SweepBatchSize)
	return nil
}

// Stop terminates the sweep worker.
func (m *Module) Stop() error {
	if m.sweepStop != nil {
		close(m.sweepStop)
		m.sweepWG.Wait()
		m.sweepStop = nil
	}
	return nil
}

func (m *Module) sweepLoop() {
	defer m.sweepWG.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.sweepStop:
			return
		case <-ticker.C:
			m.runSweep()
		}
	}
}

// runSweep enriches one batch of unprocessed artists and albums.
func (m *Module) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SweepInterval)
	defer cancel()

	var artists []database.Artist
	if err := m.db.Where("enriched_at IS NULL").Limit(m.cfg.SweepBatchSize).Find(&artists).Error; err != nil {
		logger.Warn("Sweep failed to list artists: %v", err)
	}
	for _, artist := range artists {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.enricher.EnrichArtist(ctx, artist.ID.String(), false); err != nil {
			logger.Warn("Sweep enrichment failed for artist %s: %v", artist.Name, err)
		}
	}

	var albums []database.Album
	if err := m.db.Where("enriched_at IS NULL").Limit(m.cfg.SweepBatchSize).Find(&albums).Error; err != nil {
		logger.Warn("Sweep failed to list albums: %v", err)
	}
	for _, album := range albums {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.enricher.EnrichAlbum(ctx, album.ID.String(), false); err != nil {
			logger.Warn("Sweep enrichment failed for album %s: %v", album.Title, err)
		}
	}
}

// ApplyConflict resolves a conflict and, on acceptance, applies the
// proposed value to the entity.
func (m *Module) ApplyConflict(ctx context.Context, id uint, status string) (*MetadataConflict, error) {
	conflict, err := m.conflicts.Resolve(id, status)
	if err != nil {
		return nil, err
	}

	if status == ConflictAccepted {
		if err := m.applyAcceptedConflict(ctx, conflict); err != nil {
			return conflict, fmt.Errorf("conflict %d resolved but apply failed: %w", id, err)
		}
		m.audit.Record(conflict.EntityType, conflict.EntityID, conflict.Field,
			conflict.CurrentValue, conflict.ProposedValue, conflict.Source, ActionResolved)
	}

	if m.eventBus != nil {
		event := events.NewModuleEvent("enrichment", events.EventConflictResolved, "Metadata conflict resolved", "")
		event.Data = map[string]interface{}{
			"conflict_id": conflict.ID,
			"entity_type": conflict.EntityType,
			"entity_id":   conflict.EntityID,
			"field":       conflict.Field,
			"status":      status,
		}
		m.eventBus.PublishAsync(event)
	}
	return conflict, nil
}

func (m *Module) applyAcceptedConflict(ctx context.Context, conflict *MetadataConflict) error {
	switch conflict.Field {
	case "musicbrainz_id":
		return m.applyCanonicalID(conflict)
	case "biography":
		return m.db.Model(&database.Artist{}).Where("id = ?", conflict.EntityID).
			Update("biography", conflict.ProposedValue).Error
	case "description":
		return m.db.Model(&database.Album{}).Where("id = ?", conflict.EntityID).
			Update("description", conflict.ProposedValue).Error
	case "cover", "image_profile", "image_background", "image_banner", "image_logo":
		return m.applyImageConflict(ctx, conflict)
	default:
		return fmt.Errorf("no apply handler for field %q", conflict.Field)
	}
}

func (m *Module) applyCanonicalID(conflict *MetadataConflict) error {
	switch conflict.EntityType {
	case EntityArtist:
		return m.db.Model(&database.Artist{}).Where("id = ?", conflict.EntityID).
			Update("music_brainz_id", conflict.ProposedValue).Error
	case EntityAlbum:
		return m.db.Model(&database.Album{}).Where("id = ?", conflict.EntityID).
			Update("music_brainz_id", conflict.ProposedValue).Error
	case EntityTrack:
		return m.db.Model(&database.Track{}).Where("id = ?", conflict.EntityID).
			Update("music_brainz_id", conflict.ProposedValue).Error
	default:
		return fmt.Errorf("unknown entity type %q", conflict.EntityType)
	}
}

// applyImageConflict downloads the accepted replacement image and stores
// it over the current one.
func (m *Module) applyImageConflict(ctx context.Context, conflict *MetadataConflict) error {
	entityID, err := uuid.Parse(conflict.EntityID)
	if err != nil {
		return fmt.Errorf("invalid entity ID %q: %w", conflict.EntityID, err)
	}

	var entityType assetmodule.EntityType
	var assetType assetmodule.AssetType
	switch conflict.Field {
	case "cover":
		entityType, assetType = assetmodule.EntityTypeAlbum, assetmodule.AssetTypeCover
	case "image_profile":
		entityType, assetType = assetmodule.EntityTypeArtist, assetmodule.AssetTypeProfile
	case "image_background":
		entityType, assetType = assetmodule.EntityTypeArtist, assetmodule.AssetTypeBackground
	case "image_banner":
		entityType, assetType = assetmodule.EntityTypeArtist, assetmodule.AssetTypeBanner
	case "image_logo":
		entityType, assetType = assetmodule.EntityTypeArtist, assetmodule.AssetTypeLogo
	}

	saved, err := m.enricher.fetcher.DownloadAndSave(ctx, m.enricher.assets,
		conflict.ProposedValue, entityType, entityID, assetType, conflict.Source)
	if err != nil {
		return err
	}
	if saved == nil {
		return errors.New("accepted conflict has no proposed URL")
	}

	switch conflict.Field {
	case "cover":
		return m.db.Model(&database.Album{}).Where("id = ?", conflict.EntityID).
			Update("cover_path", saved.Path).Error
	case "image_profile":
		return m.db.Model(&database.Artist{}).Where("id = ?", conflict.EntityID).
			Update("image_path", saved.Path).Error
	case "image_background":
		return m.db.Model(&database.Artist{}).Where("id = ?", conflict.EntityID).
			Update("background_path", saved.Path).Error
	case "image_banner":
		return m.db.Model(&database.Artist{}).Where("id = ?", conflict.EntityID).
			Update("banner_path", saved.Path).Error
	default:
		return m.db.Model(&database.Artist{}).Where("id = ?", conflict.EntityID).
			Update("logo_path", saved.Path).Error
	}
}
