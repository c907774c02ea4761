package enrichmentmodule

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// MetadataCacheEntry is one cached provider response, keyed by entity and
// provider. Payload is a merged JSON document because one provider may
// contribute several metadata kinds for the same entity.
type MetadataCacheEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EntityType string    `gorm:"size:16;uniqueIndex:idx_cache_key" json:"entity_type"`
	EntityID   string    `gorm:"size:36;uniqueIndex:idx_cache_key" json:"entity_id"`
	Provider   string    `gorm:"size:64;uniqueIndex:idx_cache_key" json:"provider"`
	Payload    string    `gorm:"type:text" json:"payload"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (MetadataCacheEntry) TableName() string {
	return "metadata_cache"
}

// CachedTags wraps a tag list so an empty provider response stays
// distinguishable from a never-cached one.
type CachedTags struct {
	Tags []TagCount `json:"tags"`
}

// CachedPayload is the merged per-provider document stored in a cache
// entry. All fields are optional.
type CachedPayload struct {
	Biography   string      `json:"biography,omitempty"`
	Description string      `json:"description,omitempty"`
	Images      *ImageSet   `json:"images,omitempty"`
	Cover       *CoverSet   `json:"cover,omitempty"`
	Tags        *CachedTags `json:"tags,omitempty"`
	NotFound    bool        `json:"not_found,omitempty"`
}

// CacheStats summarizes cache state for diagnostics.
type CacheStats struct {
	TotalEntries   int64            `json:"total_entries"`
	ExpiredEntries int64            `json:"expired_entries"`
	ByEntityType   map[string]int64 `json:"by_entity_type"`
	ByProvider     map[string]int64 `json:"by_provider"`
}

// MetadataCache is a cache-aside store for provider responses. All
// operations are best effort: a cache failure never fails enrichment.
type MetadataCache struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewMetadataCache(db *gorm.DB, ttl time.Duration) *MetadataCache {
	return &MetadataCache{db: db, ttl: ttl}
}

// Get returns the cached payload for the key, or nil on miss. Expired
// entries are deleted on read and reported as misses.
func (c *MetadataCache) Get(entityType, entityID, provider string) *CachedPayload {
	var entry MetadataCacheEntry
	err := c.db.Where("entity_type = ? AND entity_id = ? AND provider = ?",
		entityType, entityID, provider).First(&entry).Error
	if err != nil {
		return nil
	}

	if time.Now().After(entry.ExpiresAt) {
		c.db.Delete(&entry)
		return nil
	}

	var payload CachedPayload
	if err := json.Unmarshal([]byte(entry.Payload), &payload); err != nil {
		logger.Warn("Dropping corrupt cache entry %s/%s/%s: %v", entityType, entityID, provider, err)
		c.db.Delete(&entry)
		return nil
	}
	return &payload
}

// Set merges the given payload into the entry for the key and resets its
// TTL. Filled fields in update overwrite the stored ones; empty fields
// leave the stored values alone.
func (c *MetadataCache) Set(entityType, entityID, provider string, update CachedPayload) {
	merged := update
	if existing := c.Get(entityType, entityID, provider); existing != nil {
		merged = *existing
		if update.Biography != "" {
			merged.Biography = update.Biography
		}
		if update.Description != "" {
			merged.Description = update.Description
		}
		if update.Images != nil {
			merged.Images = update.Images
		}
		if update.Cover != nil {
			merged.Cover = update.Cover
		}
		if update.Tags != nil {
			merged.Tags = update.Tags
		}
		if update.NotFound {
			merged.NotFound = true
		}
	}

	data, err := json.Marshal(merged)
	if err != nil {
		logger.Warn("Failed to encode cache payload for %s/%s/%s: %v", entityType, entityID, provider, err)
		return
	}

	entry := MetadataCacheEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Provider:   provider,
		Payload:    string(data),
		ExpiresAt:  time.Now().Add(c.ttl),
	}

	var existing MetadataCacheEntry
	err = c.db.Where("entity_type = ? AND entity_id = ? AND provider = ?",
		entityType, entityID, provider).First(&existing).Error
	if err == nil {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
		err = c.db.Save(&entry).Error
	} else {
		err = c.db.Create(&entry).Error
	}
	if err != nil {
		logger.Warn("Failed to store cache entry %s/%s/%s: %v", entityType, entityID, provider, err)
	}
}

// InvalidateEntity removes every cached entry for one entity, across all
// providers. Used on force refresh.
func (c *MetadataCache) InvalidateEntity(entityType, entityID string) {
	result := c.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Delete(&MetadataCacheEntry{})
	if result.Error != nil {
		logger.Warn("Failed to invalidate cache for %s/%s: %v", entityType, entityID, result.Error)
	}
}

// PurgeExpired deletes every expired entry and returns the count removed.
func (c *MetadataCache) PurgeExpired() (int64, error) {
	result := c.db.Where("expires_at < ?", time.Now()).Delete(&MetadataCacheEntry{})
	return result.RowsAffected, result.Error
}

// Stats returns total and expired entry counts plus per-entity-type and
// per-provider breakdowns.
func (c *MetadataCache) Stats() (CacheStats, error) {
	stats := CacheStats{
		ByEntityType: make(map[string]int64),
		ByProvider:   make(map[string]int64),
	}
	if err := c.db.Model(&MetadataCacheEntry{}).Count(&stats.TotalEntries).Error; err != nil {
		return stats, err
	}
	if err := c.db.Model(&MetadataCacheEntry{}).
		Where("expires_at < ?", time.Now()).
		Count(&stats.ExpiredEntries).Error; err != nil {
		return stats, err
	}

	type bucket struct {
		Key string
		N   int64
	}
	var buckets []bucket
	if err := c.db.Model(&MetadataCacheEntry{}).
		Select("entity_type AS key, COUNT(*) AS n").
		Group("entity_type").Scan(&buckets).Error; err != nil {
		return stats, err
	}
	for _, b := range buckets {
		stats.ByEntityType[b.Key] = b.N
	}

	buckets = nil
	if err := c.db.Model(&MetadataCacheEntry{}).
		Select("provider AS key, COUNT(*) AS n").
		Group("provider").Scan(&buckets).Error; err != nil {
		return stats, err
	}
	for _, b := range buckets {
		stats.ByProvider[b.Key] = b.N
	}
	return stats, nil
}
