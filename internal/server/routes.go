package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harmonia-media/harmonia/internal/modules/modulemanager"
)

var startedAt = time.Now()

func newRouter() *gin.Engine {
	router := gin.Default()
	router.Use(corsMiddleware())

	router.GET("/health", healthHandler)
	router.GET("/api/v1/system/modules", modulesHandler)
	router.GET("/api/v1/system/events", eventsHandler)

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(startedAt).Round(time.Second).String(),
		"modules": len(modulemanager.ListModules()),
	})
}

func modulesHandler(c *gin.Context) {
	type moduleInfo struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Core bool   `json:"core"`
	}

	var out []moduleInfo
	for _, m := range modulemanager.ListModules() {
		out = append(out, moduleInfo{ID: m.ID(), Name: m.Name(), Core: m.Core()})
	}
	c.JSON(http.StatusOK, gin.H{"modules": out})
}

// eventsHandler reports bus statistics and the recent event ring.
func eventsHandler(c *gin.Context) {
	if systemEventBus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus is not running"})
		return
	}
	c.JSON(http.StatusOK, systemEventBus.GetStats())
}
