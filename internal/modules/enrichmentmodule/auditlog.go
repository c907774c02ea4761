package enrichmentmodule

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// Run statuses stamped on ActionRun summary entries.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// EnrichmentLog is one append-only audit record: either a single applied
// metadata change, or a whole-run summary carrying status, the fields
// touched, and timing. Rows are never updated or deleted by the engine.
type EnrichmentLog struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	EntityType       string    `gorm:"size:16;index:idx_log_entity" json:"entity_type"`
	EntityID         string    `gorm:"size:36;index:idx_log_entity" json:"entity_id"`
	Field            string    `gorm:"size:32" json:"field"`
	OldValue         string    `gorm:"type:text" json:"old_value,omitempty"`
	NewValue         string    `gorm:"type:text" json:"new_value,omitempty"`
	Source           string    `gorm:"size:64" json:"source"`
	Action           string    `gorm:"size:32" json:"action"`
	Status           string    `gorm:"size:16" json:"status,omitempty"`
	FieldsUpdated    string    `gorm:"type:text" json:"fields_updated,omitempty"`
	ErrorMessage     string    `gorm:"type:text" json:"error_message,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (EnrichmentLog) TableName() string {
	return "enrichment_log"
}

// AuditLog records applied enrichment changes. Write failures are logged
// and swallowed so a broken audit trail never blocks enrichment.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

// Record appends one audit entry.
func (l *AuditLog) Record(entityType, entityID, field, oldValue, newValue, source, action string) {
	entry := EnrichmentLog{
		EntityType: entityType,
		EntityID:   entityID,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
		Source:     source,
		Action:     action,
	}
	if err := l.db.Create(&entry).Error; err != nil {
		logger.Warn("Failed to write enrichment audit entry for %s/%s: %v", entityType, entityID, err)
	}
}

// RunStatus classifies a finished run from its applied/error tallies.
func RunStatus(applied, errs []string) string {
	switch {
	case len(errs) == 0:
		return StatusSuccess
	case len(applied) > 0:
		return StatusPartial
	default:
		return StatusError
	}
}

// RecordRun appends a run summary entry for one entity.
func (l *AuditLog) RecordRun(entityType, entityID, status string, fields, errs []string, duration time.Duration) {
	entry := EnrichmentLog{
		EntityType:       entityType,
		EntityID:         entityID,
		Field:            "run",
		Action:           ActionRun,
		Status:           status,
		FieldsUpdated:    strings.Join(fields, ","),
		ErrorMessage:     strings.Join(errs, "; "),
		ProcessingTimeMs: duration.Milliseconds(),
	}
	if err := l.db.Create(&entry).Error; err != nil {
		logger.Warn("Failed to write enrichment run entry for %s/%s: %v", entityType, entityID, err)
	}
}

// History returns the audit trail for one entity, newest first.
func (l *AuditLog) History(entityType, entityID string, limit int) ([]EnrichmentLog, error) {
	query := l.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []EnrichmentLog
	err := query.Find(&entries).Error
	return entries, err
}
