package server

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/harmonia-media/harmonia/internal/config"
	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/events"
	"github.com/harmonia-media/harmonia/internal/logger"
	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
	"github.com/harmonia-media/harmonia/internal/modules/modulemanager"
	"github.com/harmonia-media/harmonia/internal/providers/audiodb"
	"github.com/harmonia-media/harmonia/internal/providers/coverart"
	"github.com/harmonia-media/harmonia/internal/providers/embedded"
	"github.com/harmonia-media/harmonia/internal/providers/musicbrainz"

	// Imported for their module registration side effects.
	_ "github.com/harmonia-media/harmonia/internal/modules/assetmodule"
	_ "github.com/harmonia-media/harmonia/internal/modules/maintenancemodule"
)

const eventBusBuffer = 256

var systemEventBus events.EventBus

// Setup boots the system: event bus, modules, metadata providers, and
// the HTTP router.
func Setup() (*gin.Engine, error) {
	cfg := config.Get()

	systemEventBus = events.NewEventBus(eventBusBuffer)
	if err := systemEventBus.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to start event bus: %w", err)
	}
	events.SetGlobalEventBus(systemEventBus)

	if err := modulemanager.LoadAll(database.GetDB()); err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}

	if err := registerProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to register metadata providers: %w", err)
	}

	if err := modulemanager.StartAll(); err != nil {
		return nil, fmt.Errorf("failed to start modules: %w", err)
	}

	router := newRouter()
	modulemanager.RegisterRoutes(router)

	startup := events.NewSystemEvent(events.EventSystemStarted, "System started", "")
	systemEventBus.PublishAsync(startup)

	logger.Info("Server setup complete, %d modules loaded", len(modulemanager.ListModules()))
	return router, nil
}

// registerProviders wires the metadata sources into the enrichment
// registry. MusicBrainz carries canonical-ID search, AudioDB carries
// biographies, images, covers, and tags, the Cover Art Archive carries
// covers keyed by canonical ID, and the embedded source reads cover art
// out of the catalog's own files.
func registerProviders(cfg *config.Config) error {
	mod, ok := modulemanager.GetModule("system.enrichment")
	if !ok {
		return fmt.Errorf("enrichment module is not registered")
	}
	enrichment, ok := mod.(*enrichmentmodule.Module)
	if !ok {
		return fmt.Errorf("unexpected enrichment module type %T", mod)
	}
	registry := enrichment.Registry()

	hcl := hclog.New(&hclog.LoggerOptions{
		Name:  "providers",
		Level: hclog.LevelFromString(cfg.Logging.Level),
	})

	mbClient := musicbrainz.NewClient(hcl, cfg.Enrichment.UserAgent, 1)
	if err := registry.Register(&enrichmentmodule.Agent{
		Name:         "musicbrainz",
		Priority:     0,
		Enabled:      true,
		Capabilities: enrichmentmodule.CapCanonicalID,
		Search:       musicbrainz.NewSearcher(mbClient),
	}); err != nil {
		return err
	}

	adbSource := audiodb.NewSource(audiodb.NewClient(hcl, "", cfg.Enrichment.UserAgent))
	if err := registry.Register(&enrichmentmodule.Agent{
		Name:     "audiodb",
		Priority: 10,
		Enabled:  true,
		Capabilities: enrichmentmodule.CapBiography |
			enrichmentmodule.CapImages | enrichmentmodule.CapCover,
		Biography: adbSource,
		Images:    adbSource,
		Cover:     adbSource,
		Tags:      adbSource,
	}); err != nil {
		return err
	}

	if err := registry.Register(&enrichmentmodule.Agent{
		Name:         "coverartarchive",
		Priority:     5,
		Enabled:      true,
		Capabilities: enrichmentmodule.CapCover,
		Cover:        coverart.NewSource(hcl, cfg.Enrichment.UserAgent),
	}); err != nil {
		return err
	}

	// Last resort: covers embedded in the album's own files.
	return registry.Register(&enrichmentmodule.Agent{
		Name:         "embedded",
		Priority:     100,
		Enabled:      true,
		Capabilities: enrichmentmodule.CapCover,
		Cover:        embedded.NewSource(hcl, database.GetDB()),
	})
}

// Shutdown stops module workers and drains the event bus.
func Shutdown(ctx context.Context) {
	modulemanager.StopAll()

	if systemEventBus != nil {
		stopped := events.NewSystemEvent(events.EventSystemStopped, "System stopping", "")
		systemEventBus.PublishAsync(stopped)
		if err := systemEventBus.Stop(ctx); err != nil {
			logger.Warn("Event bus shutdown: %v", err)
		}
	}
}
