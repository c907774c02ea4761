package assetmodule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the catalog entity an asset belongs to.
type EntityType string

const (
	EntityTypeArtist EntityType = "artist"
	EntityTypeAlbum  EntityType = "album"
)

// AssetType identifies the slot an image fills.
type AssetType string

const (
	AssetTypeProfile    AssetType = "profile"
	AssetTypeBackground AssetType = "background"
	AssetTypeBanner     AssetType = "banner"
	AssetTypeLogo       AssetType = "logo"
	AssetTypeCover      AssetType = "cover"
)

// GetValidAssetTypes returns the asset slots an entity type can carry.
func GetValidAssetTypes(entityType EntityType) []AssetType {
	switch entityType {
	case EntityTypeArtist:
		return []AssetType{AssetTypeProfile, AssetTypeBackground, AssetTypeBanner, AssetTypeLogo}
	case EntityTypeAlbum:
		return []AssetType{AssetTypeCover}
	default:
		return nil
	}
}

// Supported source image MIME types.
var supportedImageFormats = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

func IsSupportedImageFormat(format string) bool {
	return supportedImageFormats[format]
}

// MediaAsset is a stored image for one catalog entity.
type MediaAsset struct {
	ID         uuid.UUID  `gorm:"type:text;primaryKey" json:"id"`
	EntityType EntityType `gorm:"size:16;index:idx_asset_entity" json:"entity_type"`
	EntityID   uuid.UUID  `gorm:"type:text;index:idx_asset_entity" json:"entity_id"`
	Type       AssetType  `gorm:"size:16" json:"type"`
	Source     string     `gorm:"size:64" json:"source"`
	Path       string     `gorm:"size:255" json:"path"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Format     string     `gorm:"size:32" json:"format"`
	SizeBytes  int64      `json:"size_bytes"`
	Preferred  bool       `gorm:"default:false" json:"preferred"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (MediaAsset) TableName() string {
	return "media_assets"
}

// AssetRequest is the input to Manager.SaveAsset.
type AssetRequest struct {
	EntityType EntityType
	EntityID   uuid.UUID
	Type       AssetType
	Source     string
	Data       []byte
	Format     string
	Preferred  bool

	// Filled during conversion.
	Width  int
	Height int
}

// AssetResponse is the stored asset view returned by the manager.
type AssetResponse struct {
	ID         uuid.UUID  `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	Type       AssetType  `json:"type"`
	Source     string     `json:"source"`
	Path       string     `json:"path"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Format     string     `json:"format"`
	SizeBytes  int64      `json:"size_bytes"`
	Preferred  bool       `json:"preferred"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AssetFilter narrows GetAssetsByEntity results.
type AssetFilter struct {
	Type      AssetType
	Source    string
	Preferred *bool
	Limit     int
	Offset    int
}

// AssetStats summarizes stored assets.
type AssetStats struct {
	TotalAssets    int64                `json:"total_assets"`
	TotalSize      int64                `json:"total_size"`
	AverageSize    float64              `json:"average_size"`
	AssetsByEntity map[EntityType]int64 `json:"assets_by_entity"`
	AssetsByType   map[AssetType]int64  `json:"assets_by_type"`
}

// ValidationError marks a rejected download or asset request. Callers use
// errors.As to distinguish bad input from transient failures.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}
