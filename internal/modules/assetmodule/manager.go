package assetmodule

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"time"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/database"
	"github.com/harmonia-media/harmonia/internal/events"
	"github.com/harmonia-media/harmonia/internal/logger"
	"github.com/harmonia-media/harmonia/internal/storage"
)

// Manager owns the stored-image lifecycle. Every saved image is converted
// to WebP and placed under a content-hashed path so identical downloads
// never collide.
type Manager struct {
	db       *gorm.DB
	eventBus events.EventBus
	store    storage.FileStorage
	quality  int
}

func NewManager(db *gorm.DB, eventBus events.EventBus, store storage.FileStorage, webpQuality int) *Manager {
	if webpQuality <= 0 || webpQuality > 100 {
		webpQuality = 95
	}
	return &Manager{db: db, eventBus: eventBus, store: store, quality: webpQuality}
}

// SaveAsset converts, stores, and records an image. An existing asset for
// the same (entity, type, source) key is replaced.
func (m *Manager) SaveAsset(request *AssetRequest) (*AssetResponse, error) {
	if err := m.validateRequest(request); err != nil {
		return nil, err
	}

	webpData, width, height, err := m.convertToWebP(request.Data, request.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image to WebP: %w", err)
	}
	request.Data = webpData
	request.Format = "image/webp"
	request.Width = width
	request.Height = height

	relativePath := m.hashedAssetPath(request)

	var existing MediaAsset
	err = m.db.Where("entity_type = ? AND entity_id = ? AND type = ? AND source = ?",
		request.EntityType, request.EntityID, request.Type, request.Source).First(&existing).Error
	if err == nil {
		return m.replaceExistingAsset(&existing, request, relativePath)
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to check existing asset: %w", err)
	}

	if err := m.store.Save(relativePath, request.Data); err != nil {
		return nil, fmt.Errorf("failed to save asset file: %w", err)
	}

	asset := &MediaAsset{
		ID:         uuid.New(),
		EntityType: request.EntityType,
		EntityID:   request.EntityID,
		Type:       request.Type,
		Source:     request.Source,
		Path:       relativePath,
		Width:      request.Width,
		Height:     request.Height,
		Format:     request.Format,
		SizeBytes:  int64(len(request.Data)),
		Preferred:  request.Preferred,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := m.db.Create(asset).Error; err != nil {
		m.store.Remove(relativePath, false)
		return nil, fmt.Errorf("failed to save asset to database: %w", err)
	}

	m.publishAssetEvent(events.EventAssetCreated, asset)
	return m.buildAssetResponse(asset), nil
}

// convertToWebP decodes the source image and re-encodes it as WebP at the
// configured quality, returning the encoded bytes and dimensions.
func (m *Manager) convertToWebP(data []byte, originalFormat string) ([]byte, int, int, error) {
	var img image.Image
	var err error

	reader := bytes.NewReader(data)
	switch originalFormat {
	case "image/webp":
		img, err = webp.Decode(reader)
	case "image/jpeg", "image/jpg":
		img, err = jpeg.Decode(reader)
	case "image/png":
		img, err = png.Decode(reader)
	case "image/gif":
		img, err = gif.Decode(reader)
	default:
		img, _, err = image.Decode(reader)
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(m.quality)}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode as WebP: %w", err)
	}
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// hashedAssetPath builds {entity_type}/{entity_hash[:2]}/{type}_{source}_{content_hash[:16]}.webp.
// The two-character shard keeps directories small.
func (m *Manager) hashedAssetPath(request *AssetRequest) string {
	entityHash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", request.EntityType, request.EntityID)))
	contentHash := sha256.Sum256(request.Data)

	shard := hex.EncodeToString(entityHash[:])[:2]
	filename := fmt.Sprintf("%s_%s_%s.webp",
		request.Type, request.Source, hex.EncodeToString(contentHash[:])[:16])
	return filepath.Join(string(request.EntityType)+"s", shard, filename)
}

func (m *Manager) replaceExistingAsset(existing *MediaAsset, request *AssetRequest, newPath string) (*AssetResponse, error) {
	if err := m.store.Save(newPath, request.Data); err != nil {
		return nil, fmt.Errorf("failed to save updated asset file: %w", err)
	}

	oldPath := existing.Path
	updates := map[string]interface{}{
		"path":       newPath,
		"width":      request.Width,
		"height":     request.Height,
		"format":     request.Format,
		"size_bytes": int64(len(request.Data)),
		"preferred":  request.Preferred,
		"updated_at": time.Now(),
	}
	if err := m.db.Model(existing).Updates(updates).Error; err != nil {
		m.store.Remove(newPath, false)
		return nil, fmt.Errorf("failed to update asset in database: %w", err)
	}

	if oldPath != newPath {
		m.store.Remove(oldPath, false)
	}

	existing.Path = newPath
	existing.Width = request.Width
	existing.Height = request.Height
	existing.Format = request.Format
	existing.SizeBytes = int64(len(request.Data))
	existing.Preferred = request.Preferred
	existing.UpdatedAt = time.Now()

	m.publishAssetEvent(events.EventAssetUpdated, existing)
	return m.buildAssetResponse(existing), nil
}

// GetAsset retrieves an asset by ID.
func (m *Manager) GetAsset(id uuid.UUID) (*AssetResponse, error) {
	var asset MediaAsset
	if err := m.db.First(&asset, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("asset not found: %w", err)
	}
	return m.buildAssetResponse(&asset), nil
}

// AssetData returns the stored image bytes and MIME type for an asset.
func (m *Manager) AssetData(id uuid.UUID) ([]byte, string, error) {
	var asset MediaAsset
	if err := m.db.First(&asset, "id = ?", id).Error; err != nil {
		return nil, "", fmt.Errorf("asset not found: %w", err)
	}
	data, err := m.store.Load(asset.Path)
	if err != nil {
		return nil, "", err
	}
	return data, asset.Format, nil
}

// GetAssetsByEntity retrieves the assets stored for one entity.
func (m *Manager) GetAssetsByEntity(entityType EntityType, entityID uuid.UUID, filter *AssetFilter) ([]*AssetResponse, error) {
	query := m.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID)
	if filter != nil {
		if filter.Type != "" {
			query = query.Where("type = ?", filter.Type)
		}
		if filter.Source != "" {
			query = query.Where("source = ?", filter.Source)
		}
		if filter.Preferred != nil {
			query = query.Where("preferred = ?", *filter.Preferred)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	var assets []MediaAsset
	if err := query.Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve assets: %w", err)
	}

	responses := make([]*AssetResponse, len(assets))
	for i := range assets {
		responses[i] = m.buildAssetResponse(&assets[i])
	}
	return responses, nil
}

// CurrentAsset returns the stored asset for an entity slot, preferring a
// preferred-flagged one, or nil when the slot is empty.
func (m *Manager) CurrentAsset(entityType EntityType, entityID uuid.UUID, assetType AssetType) (*AssetResponse, error) {
	var asset MediaAsset
	err := m.db.Where("entity_type = ? AND entity_id = ? AND type = ? AND preferred = ?",
		entityType, entityID, assetType, true).First(&asset).Error
	if err == gorm.ErrRecordNotFound {
		err = m.db.Where("entity_type = ? AND entity_id = ? AND type = ?",
			entityType, entityID, assetType).First(&asset).Error
	}
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.buildAssetResponse(&asset), nil
}

// SetPreferredAsset marks one asset preferred for its slot, clearing the
// flag on its siblings.
func (m *Manager) SetPreferredAsset(id uuid.UUID) error {
	var asset MediaAsset
	if err := m.db.First(&asset, "id = ?", id).Error; err != nil {
		return fmt.Errorf("asset not found: %w", err)
	}

	err := m.db.Model(&MediaAsset{}).
		Where("entity_type = ? AND entity_id = ? AND type = ? AND id != ?",
			asset.EntityType, asset.EntityID, asset.Type, id).
		Update("preferred", false).Error
	if err != nil {
		return fmt.Errorf("failed to unset other preferred assets: %w", err)
	}
	if err := m.db.Model(&asset).Update("preferred", true).Error; err != nil {
		return fmt.Errorf("failed to set asset as preferred: %w", err)
	}
	return nil
}

// RemoveAsset deletes an asset record and its file. Already-removed
// assets are a no-op.
func (m *Manager) RemoveAsset(id uuid.UUID) error {
	var asset MediaAsset
	if err := m.db.First(&asset, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return fmt.Errorf("failed to find asset: %w", err)
	}

	if err := m.store.Remove(asset.Path, false); err != nil {
		logger.Warn("Failed to remove asset file %s: %v", asset.Path, err)
	}
	if err := m.db.Delete(&asset).Error; err != nil {
		return fmt.Errorf("failed to remove asset from database: %w", err)
	}

	m.publishAssetEvent(events.EventAssetRemoved, &asset)
	return nil
}

// RemoveAssetsByEntity deletes every asset for one entity.
func (m *Manager) RemoveAssetsByEntity(entityType EntityType, entityID uuid.UUID) error {
	var assets []MediaAsset
	if err := m.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).Find(&assets).Error; err != nil {
		return fmt.Errorf("failed to find assets: %w", err)
	}
	for _, asset := range assets {
		if err := m.RemoveAsset(asset.ID); err != nil {
			logger.Warn("Failed to remove asset %s: %v", asset.ID, err)
		}
	}
	return nil
}

// OrphanedEntityAssets returns assets whose catalog entity no longer
// exists: artist assets with no matching artist row and album assets
// with no matching album row. Cleanup removes them.
func (m *Manager) OrphanedEntityAssets() ([]MediaAsset, error) {
	var orphaned []MediaAsset

	var artistAssets []MediaAsset
	err := m.db.Where("entity_type = ? AND entity_id NOT IN (?)",
		EntityTypeArtist, m.db.Model(&database.Artist{}).Select("id")).
		Find(&artistAssets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale artist assets: %w", err)
	}
	orphaned = append(orphaned, artistAssets...)

	var albumAssets []MediaAsset
	err = m.db.Where("entity_type = ? AND entity_id NOT IN (?)",
		EntityTypeAlbum, m.db.Model(&database.Album{}).Select("id")).
		Find(&albumAssets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale album assets: %w", err)
	}
	return append(orphaned, albumAssets...), nil
}

// KnownPaths returns every stored asset path, used by cleanup to detect
// orphaned files.
func (m *Manager) KnownPaths() (map[string]bool, error) {
	var paths []string
	if err := m.db.Model(&MediaAsset{}).Pluck("path", &paths).Error; err != nil {
		return nil, fmt.Errorf("failed to list asset paths: %w", err)
	}
	known := make(map[string]bool, len(paths))
	for _, p := range paths {
		known[p] = true
	}
	return known, nil
}

// GetStats returns asset statistics.
func (m *Manager) GetStats() (*AssetStats, error) {
	stats := &AssetStats{
		AssetsByEntity: make(map[EntityType]int64),
		AssetsByType:   make(map[AssetType]int64),
	}

	if err := m.db.Model(&MediaAsset{}).Count(&stats.TotalAssets).Error; err != nil {
		return nil, err
	}

	var totalSize struct{ Total int64 }
	m.db.Model(&MediaAsset{}).Select("COALESCE(SUM(size_bytes), 0) as total").Scan(&totalSize)
	stats.TotalSize = totalSize.Total
	if stats.TotalAssets > 0 {
		stats.AverageSize = float64(stats.TotalSize) / float64(stats.TotalAssets)
	}

	var entityResults []struct {
		EntityType EntityType
		Count      int64
	}
	m.db.Model(&MediaAsset{}).Select("entity_type, COUNT(*) as count").Group("entity_type").Scan(&entityResults)
	for _, r := range entityResults {
		stats.AssetsByEntity[r.EntityType] = r.Count
	}

	var typeResults []struct {
		Type  AssetType
		Count int64
	}
	m.db.Model(&MediaAsset{}).Select("type, COUNT(*) as count").Group("type").Scan(&typeResults)
	for _, r := range typeResults {
		stats.AssetsByType[r.Type] = r.Count
	}

	return stats, nil
}

func (m *Manager) validateRequest(request *AssetRequest) error {
	if request.EntityType == "" {
		return &ValidationError{Field: "entity_type", Reason: "required"}
	}
	if request.EntityID == uuid.Nil {
		return &ValidationError{Field: "entity_id", Reason: "required"}
	}
	if request.Type == "" {
		return &ValidationError{Field: "type", Reason: "required"}
	}
	if request.Source == "" {
		return &ValidationError{Field: "source", Reason: "required"}
	}
	if len(request.Data) == 0 {
		return &ValidationError{Field: "data", Reason: "required"}
	}
	if !IsSupportedImageFormat(request.Format) {
		return &ValidationError{Field: "format", Reason: fmt.Sprintf("unsupported format %s", request.Format)}
	}

	for _, valid := range GetValidAssetTypes(request.EntityType) {
		if valid == request.Type {
			return nil
		}
	}
	return &ValidationError{
		Field:  "type",
		Reason: fmt.Sprintf("asset type %s is not valid for entity type %s", request.Type, request.EntityType),
	}
}

func (m *Manager) buildAssetResponse(asset *MediaAsset) *AssetResponse {
	return &AssetResponse{
		ID:         asset.ID,
		EntityType: asset.EntityType,
		EntityID:   asset.EntityID,
		Type:       asset.Type,
		Source:     asset.Source,
		Path:       asset.Path,
		Width:      asset.Width,
		Height:     asset.Height,
		Format:     asset.Format,
		SizeBytes:  asset.SizeBytes,
		Preferred:  asset.Preferred,
		CreatedAt:  asset.CreatedAt,
		UpdatedAt:  asset.UpdatedAt,
	}
}

func (m *Manager) publishAssetEvent(eventType events.EventType, asset *MediaAsset) {
	if m.eventBus == nil {
		return
	}
	event := events.NewSystemEvent(
		eventType,
		fmt.Sprintf("Asset %s", eventType),
		fmt.Sprintf("%s/%s asset for %s %s", asset.EntityType, asset.Type, asset.EntityType, asset.EntityID),
	)
	event.Data = map[string]interface{}{
		"asset_id":    asset.ID.String(),
		"entity_type": string(asset.EntityType),
		"entity_id":   asset.EntityID.String(),
		"type":        string(asset.Type),
		"source":      asset.Source,
		"path":        asset.Path,
	}
	m.eventBus.PublishAsync(event)
}
