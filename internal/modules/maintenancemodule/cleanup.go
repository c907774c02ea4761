package maintenancemodule

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/harmonia-media/harmonia/internal/events"
	"github.com/harmonia-media/harmonia/internal/logger"
	"github.com/harmonia-media/harmonia/internal/modules/assetmodule"
	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
	"github.com/harmonia-media/harmonia/internal/storage"
)

// CleanupReport summarizes one cleanup pass.
type CleanupReport struct {
	DryRun          bool          `json:"dry_run"`
	OrphanedFiles   []string      `json:"orphaned_files,omitempty"`
	OrphanedCount   int           `json:"orphaned_count"`
	OrphanedBytes   int64         `json:"orphaned_bytes"`
	RemovedCount    int           `json:"removed_count"`
	StaleAssets     []string      `json:"stale_assets,omitempty"`
	StaleCount      int           `json:"stale_count"`
	StaleRemoved    int           `json:"stale_removed"`
	MissingFiles    []string      `json:"missing_files,omitempty"`
	MissingCount    int           `json:"missing_count"`
	PurgedCacheRows int64         `json:"purged_cache_rows"`
	Duration        time.Duration `json:"duration"`
}

// StorageReport describes asset storage usage.
type StorageReport struct {
	Root       string  `json:"root"`
	Files      int64   `json:"files"`
	Bytes      int64   `json:"bytes"`
	DiskTotal  uint64  `json:"disk_total"`
	DiskFree   uint64  `json:"disk_free"`
	DiskUsedPc float64 `json:"disk_used_percent"`
}

// Cleaner reconciles asset storage against the asset catalog and purges
// expired cache rows.
type Cleaner struct {
	store    storage.FileStorage
	assets   *assetmodule.Manager
	cache    *enrichmentmodule.MetadataCache
	eventBus events.EventBus
}

func NewCleaner(store storage.FileStorage, assets *assetmodule.Manager, cache *enrichmentmodule.MetadataCache, eventBus events.EventBus) *Cleaner {
	return &Cleaner{store: store, assets: assets, cache: cache, eventBus: eventBus}
}

// PurgeExpiredCache removes expired metadata cache entries.
func (c *Cleaner) PurgeExpiredCache(ctx context.Context) (int64, error) {
	purged, err := c.cache.PurgeExpired()
	if err != nil {
		return 0, fmt.Errorf("cache purge failed: %w", err)
	}
	if purged > 0 {
		logger.Info("Purged %d expired cache entries", purged)
	}
	return purged, nil
}

// FullCleanup purges expired cache rows, drops assets whose catalog
// entity was deleted, removes orphaned files (unless dryRun), and
// reports catalog entries whose files are gone. Missing files are only
// reported, never auto-deleted from the catalog.
func (c *Cleaner) FullCleanup(ctx context.Context, dryRun bool) (*CleanupReport, error) {
	started := time.Now()
	report := &CleanupReport{DryRun: dryRun}

	c.publishCleanupEvent(events.EventCleanupStarted, map[string]interface{}{"dry_run": dryRun})

	purged, err := c.PurgeExpiredCache(ctx)
	if err != nil {
		return nil, err
	}
	report.PurgedCacheRows = purged

	// Stale assets go first so their files do not resurface as orphans
	// in the disk pass below.
	stale, err := c.assets.OrphanedEntityAssets()
	if err != nil {
		return nil, err
	}
	for _, asset := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.StaleAssets = append(report.StaleAssets, asset.Path)
		if dryRun {
			continue
		}
		if err := c.assets.RemoveAsset(asset.ID); err != nil {
			logger.Warn("Failed to remove stale asset %s: %v", asset.ID, err)
			continue
		}
		report.StaleRemoved++
	}
	report.StaleCount = len(report.StaleAssets)

	known, err := c.assets.KnownPaths()
	if err != nil {
		return nil, err
	}

	var files []string
	if err := c.walk("", &files); err != nil {
		return nil, fmt.Errorf("failed to walk asset storage: %w", err)
	}

	for _, file := range files {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if known[file] {
			continue
		}
		report.OrphanedFiles = append(report.OrphanedFiles, file)
		if size, err := c.store.Size(file); err == nil {
			report.OrphanedBytes += size
		}
		if dryRun {
			continue
		}
		if err := c.store.Remove(file, false); err != nil {
			logger.Warn("Failed to remove orphaned file %s: %v", file, err)
			continue
		}
		report.RemovedCount++
	}
	report.OrphanedCount = len(report.OrphanedFiles)

	for file := range known {
		if !c.store.Exists(file) {
			report.MissingFiles = append(report.MissingFiles, file)
		}
	}
	report.MissingCount = len(report.MissingFiles)

	report.Duration = time.Since(started)
	logger.Info("Cleanup finished: %d orphaned (%d removed), %d stale (%d removed), %d missing, %d cache rows purged",
		report.OrphanedCount, report.RemovedCount, report.StaleCount, report.StaleRemoved,
		report.MissingCount, report.PurgedCacheRows)

	c.publishCleanupEvent(events.EventCleanupCompleted, map[string]interface{}{
		"dry_run":  dryRun,
		"orphaned": report.OrphanedCount,
		"removed":  report.RemovedCount,
		"stale":    report.StaleCount,
		"missing":  report.MissingCount,
	})
	return report, nil
}

// walk collects relative file paths under dir recursively.
func (c *Cleaner) walk(dir string, files *[]string) error {
	entries, err := c.store.ListDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := path.Join(dir, entry.Name)
		if entry.IsDir {
			if err := c.walk(full, files); err != nil {
				return err
			}
			continue
		}
		*files = append(*files, full)
	}
	return nil
}

// StorageStats reports file counts under the asset root and disk usage of
// the volume holding it.
func (c *Cleaner) StorageStats() (*StorageReport, error) {
	stats, err := c.store.Stats("")
	if err != nil {
		return nil, fmt.Errorf("failed to stat asset storage: %w", err)
	}

	report := &StorageReport{
		Root:  c.store.Root(),
		Files: int64(stats.Files),
		Bytes: stats.Bytes,
	}

	if usage, err := disk.Usage(c.store.Root()); err == nil {
		report.DiskTotal = usage.Total
		report.DiskFree = usage.Free
		report.DiskUsedPc = usage.UsedPercent
	} else {
		logger.Warn("Failed to read disk usage for %s: %v", c.store.Root(), err)
	}
	return report, nil
}

func (c *Cleaner) publishCleanupEvent(eventType events.EventType, data map[string]interface{}) {
	if c.eventBus == nil {
		return
	}
	event := events.NewModuleEvent("maintenance", eventType, "Storage cleanup", "")
	event.Data = data
	c.eventBus.PublishAsync(event)
}
