package enrichmentmodule

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// RegisterRoutes registers the enrichment API.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	if !m.initialized {
		logger.Warn("Enrichment module not initialized, skipping route registration")
		return
	}

	api := router.Group("/api/v1/enrichment")
	{
		api.POST("/artists/:id", m.enrichArtist)
		api.POST("/albums/:id", m.enrichAlbum)
		api.POST("/artists", m.enrichAllArtists)
		api.POST("/albums", m.enrichAllAlbums)

		api.GET("/search", m.searchCanonicalID)

		api.GET("/conflicts", m.listConflicts)
		api.POST("/conflicts/:id/resolve", m.resolveConflict)

		api.GET("/cache/stats", m.cacheStats)
		api.DELETE("/cache/:type/:id", m.invalidateCache)

		api.GET("/history/:type/:id", m.history)
		api.GET("/agents", m.listAgents)
	}
}

func (m *Module) enrichArtist(c *gin.Context) {
	force := c.Query("force") == "true"
	result, err := m.enricher.EnrichArtist(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (m *Module) enrichAlbum(c *gin.Context) {
	force := c.Query("force") == "true"
	result, err := m.enricher.EnrichAlbum(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (m *Module) enrichAllArtists(c *gin.Context) {
	force := c.Query("force") == "true"
	batch, err := m.enricher.EnrichAllArtists(c.Request.Context(), force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch})
}

func (m *Module) enrichAllAlbums(c *gin.Context) {
	force := c.Query("force") == "true"
	batch, err := m.enricher.EnrichAllAlbums(c.Request.Context(), force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch})
}

// searchCanonicalID runs a canonical-ID search without touching the
// catalog, so a reviewer can inspect what the resolver would decide.
func (m *Module) searchCanonicalID(c *gin.Context) {
	var decision Decision
	switch c.Query("type") {
	case EntityArtist:
		name := c.Query("name")
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		decision = m.resolver.ResolveArtist(c.Request.Context(), name)
	case EntityAlbum:
		title := c.Query("title")
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}
		decision = m.resolver.ResolveAlbum(c.Request.Context(), title, c.Query("artist"))
	case EntityTrack:
		title := c.Query("title")
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}
		decision = m.resolver.ResolveTrack(c.Request.Context(), TrackSearchParams{
			Title:  title,
			Artist: c.Query("artist"),
			Album:  c.Query("album"),
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be artist, album, or track"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"action":     decision.Action,
		"best":       decision.Best,
		"candidates": decision.Candidates,
	})
}

func (m *Module) listConflicts(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	conflicts, err := m.conflicts.ListPending(c.Query("entity_type"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts, "count": len(conflicts)})
}

func (m *Module) resolveConflict(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conflict ID"})
		return
	}

	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	conflict, err := m.ApplyConflict(c.Request.Context(), uint(id), body.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflict": conflict})
}

func (m *Module) cacheStats(c *gin.Context) {
	stats, err := m.cache.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (m *Module) invalidateCache(c *gin.Context) {
	m.cache.InvalidateEntity(c.Param("type"), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (m *Module) history(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := m.audit.History(c.Param("type"), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

func (m *Module) listAgents(c *gin.Context) {
	type agentView struct {
		Name         string `json:"name"`
		Priority     int    `json:"priority"`
		Enabled      bool   `json:"enabled"`
		Capabilities string `json:"capabilities"`
	}

	var agents []agentView
	for _, name := range m.registry.Names() {
		agent := m.registry.Agent(name)
		agents = append(agents, agentView{
			Name:         agent.Name,
			Priority:     agent.Priority,
			Enabled:      agent.Enabled,
			Capabilities: agent.Capabilities.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
}
