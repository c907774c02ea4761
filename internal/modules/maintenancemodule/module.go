package maintenancemodule

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/config"
	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/events"
	"github.com/harmonia-media/harmonia/internal/logger"
	"github.com/harmonia-media/harmonia/internal/modules/assetmodule"
	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
	"github.com/harmonia-media/harmonia/internal/modules/modulemanager"
	"github.com/harmonia-media/harmonia/internal/storage"
)

// Well-known job names.
const (
	JobPurgeExpiredCache = "cleanup-expired-cache"
	JobFullCleanup       = "full-cleanup"
)

func init() {
	Register()
}

// Register registers this module with the module system.
func Register() {
	modulemanager.Register(&Module{
		id:   "system.maintenance",
		name: "Maintenance",
		core: true,
	})
}

// Module owns scheduled maintenance: cache purging, storage cleanup, and
// the storage watcher.
type Module struct {
	id   string
	name string
	core bool

	db       *gorm.DB
	eventBus events.EventBus
	queue    *JobQueue
	cleaner  *Cleaner
	watcher  *Watcher
	cfg      config.MaintenanceConfig

	initialized bool
}

func (m *Module) ID() string   { return m.id }
func (m *Module) Name() string { return m.name }
func (m *Module) Core() bool   { return m.core }

// Migrate creates the job queue schema.
func (m *Module) Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ScheduledJob{}, &JobRun{}); err != nil {
		return fmt.Errorf("failed to migrate maintenance schema: %w", err)
	}
	return nil
}

// Init wires the cleaner and job queue. Depends on the asset and
// enrichment modules, which load first by ID order.
func (m *Module) Init() error {
	cfg := config.Get()
	m.cfg = cfg.Maintenance
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

	enrichMod, ok := modulemanager.GetModule("system.enrichment")
	if !ok {
		return fmt.Errorf("enrichment module is not registered")
	}
	enrichment, ok := enrichMod.(*enrichmentmodule.Module)
	if !ok {
		return fmt.Errorf("unexpected enrichment module type %T", enrichMod)
	}

	store, err := storage.NewDiskStorage(cfg.Assets.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open asset storage: %w", err)
	}

	m.cleaner = NewCleaner(store, assets.Manager(), enrichment.Cache(), m.eventBus)
	m.queue = NewJobQueue(m.db, m.cfg.MaxAttempts, m.cfg.RetryBackoff, m.cfg.ManualBackoff, m.cfg.PollInterval)

	if err := m.queue.RegisterRepeatable(JobPurgeExpiredCache, m.cfg.CachePurgeTime, func(ctx context.Context) error {
		_, err := m.cleaner.PurgeExpiredCache(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := m.queue.RegisterRepeatable(JobFullCleanup, m.cfg.FullCleanupTime, func(ctx context.Context) error {
		_, err := m.cleaner.FullCleanup(ctx, m.cfg.CleanupDryRun)
		if err == nil && m.watcher != nil {
			m.watcher.Reset()
		}
		return err
	}); err != nil {
		return err
	}

	if m.cfg.WatcherEnabled {
		watcher, err := NewWatcher(cfg.Assets.DataDir)
		if err != nil {
			logger.Warn("Storage watcher unavailable: %v", err)
		} else {
			m.watcher = watcher
		}
	}

	m.initialized = true
	logger.Info("Maintenance module initialized (cache purge %s, full cleanup %s)",
		m.cfg.CachePurgeTime, m.cfg.FullCleanupTime)
	return nil
}

// Start launches the job queue and the storage watcher.
func (m *Module) Start() error {
	m.queue.Start()
	if m.watcher != nil {
		if err := m.watcher.Start(); err != nil {
			logger.Warn("Failed to start storage watcher: %v", err)
			m.watcher = nil
		}
	}
	return nil
}

// Stop terminates the job queue and watcher.
func (m *Module) Stop() error {
	m.queue.Stop()
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			logger.Warn("Failed to stop storage watcher: %v", err)
		}
	}
	return nil
}

// Queue exposes the job queue.
func (m *Module) Queue() *JobQueue { return m.queue }

// Cleaner exposes the cleaner for direct invocation.
func (m *Module) Cleaner() *Cleaner { return m.cleaner }

// RegisterRoutes registers the maintenance API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if !m.initialized {
		logger.Warn("Maintenance module not initialized, skipping route registration")
		return
	}

	api := router.Group("/api/v1/maintenance")
	{
		api.GET("/jobs", m.listJobs)
		api.GET("/runs", m.listRuns)
		api.POST("/jobs/:name/run", m.triggerJob)
		api.POST("/cleanup/preview", m.previewCleanup)
		api.GET("/storage", m.storageStats)
	}
}

func (m *Module) listJobs(c *gin.Context) {
	jobs, err := m.queue.Jobs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	watcherDirty := false
	if m.watcher != nil {
		watcherDirty = m.watcher.Dirty()
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "storage_dirty": watcherDirty})
}

func (m *Module) listRuns(c *gin.Context) {
	runs, err := m.queue.RecentRuns(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (m *Module) triggerJob(c *gin.Context) {
	run, err := m.queue.Enqueue(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

// previewCleanup runs a dry-run cleanup synchronously and returns the
// report without touching any file.
func (m *Module) previewCleanup(c *gin.Context) {
	report, err := m.cleaner.FullCleanup(c.Request.Context(), true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (m *Module) storageStats(c *gin.Context) {
	report, err := m.cleaner.StorageStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"storage": report})
}
