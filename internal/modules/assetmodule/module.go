package assetmodule

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/config"
	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/events"
	"github.com/harmonia-media/harmonia/internal/logger"
	"github.com/harmonia-media/harmonia/internal/modules/modulemanager"
	"github.com/harmonia-media/harmonia/internal/storage"
)

func init() {
	Register()
}

// Register registers this module with the module system.
func Register() {
	modulemanager.Register(&Module{
		id:   "system.assets",
		name: "Asset Manager",
		core: true,
	})
}

// Module owns stored artist and album images.
type Module struct {
	id          string
	name        string
	core        bool
	db          *gorm.DB
	eventBus    events.EventBus
	manager     *Manager
	fetcher     *Fetcher
	prober      *Prober
	policy      QualityPolicy
	initialized bool
}

func (m *Module) ID() string   { return m.id }
func (m *Module) Name() string { return m.name }
func (m *Module) Core() bool   { return m.core }

// Migrate creates the asset schema.
func (m *Module) Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&MediaAsset{}); err != nil {
		return fmt.Errorf("failed to migrate asset schema: %w", err)
	}
	return nil
}

// Init wires the manager, fetcher, and prober from configuration.
func (m *Module) Init() error {
	cfg := config.Get()
	m.db = database.GetDB()
	m.eventBus = events.GetGlobalEventBus()

	store, err := storage.NewDiskStorage(cfg.Assets.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open asset storage: %w", err)
	}

	m.manager = NewManager(m.db, m.eventBus, store, cfg.Assets.WebPQuality)
	m.fetcher = NewFetcher(cfg.Enrichment.UserAgent, cfg.Assets.DownloadTimeout,
		cfg.Assets.MaxDownloadSize, cfg.Assets.DownloadConcurrency)
	m.prober = NewProber(cfg.Enrichment.UserAgent, cfg.Assets.ProbeTimeout)
	m.policy = NewQualityPolicy(cfg.Assets.HighQualityMinWidth,
		cfg.Assets.HighQualityMinHeight, cfg.Assets.ImprovementThreshold)

	m.initialized = true
	logger.Info("Asset module initialized with storage at %s", cfg.Assets.DataDir)
	return nil
}

// Manager exposes the asset manager to other modules.
func (m *Module) Manager() *Manager { return m.manager }

// Fetcher exposes the download pipeline to other modules.
func (m *Module) Fetcher() *Fetcher { return m.fetcher }

// Prober exposes the dimension prober to other modules.
func (m *Module) Prober() *Prober { return m.prober }

// Policy exposes the image quality policy to other modules.
func (m *Module) Policy() QualityPolicy { return m.policy }

// RegisterRoutes registers the asset API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if !m.initialized {
		logger.Warn("Asset module not initialized, skipping route registration")
		return
	}

	api := router.Group("/api/v1/assets")
	{
		api.GET("/:id", m.getAsset)
		api.GET("/:id/data", m.getAssetData)
		api.PUT("/:id/preferred", m.setPreferredAsset)
		api.DELETE("/:id", m.deleteAsset)
		api.GET("/entity/:type/:id", m.getAssetsByEntity)
		api.GET("/stats", m.getAssetStats)
	}
}

func (m *Module) getAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset ID"})
		return
	}
	response, err := m.manager.GetAsset(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": response})
}

func (m *Module) getAssetData(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset ID"})
		return
	}
	data, format, err := m.manager.AssetData(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	c.Data(http.StatusOK, format, data)
}

func (m *Module) setPreferredAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset ID"})
		return
	}
	if err := m.manager.SetPreferredAsset(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (m *Module) deleteAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset ID"})
		return
	}
	if err := m.manager.RemoveAsset(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (m *Module) getAssetsByEntity(c *gin.Context) {
	entityType := EntityType(c.Param("type"))
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity ID"})
		return
	}

	assets, err := m.manager.GetAssetsByEntity(entityType, entityID, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets, "count": len(assets)})
}

func (m *Module) getAssetStats(c *gin.Context) {
	stats, err := m.manager.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
