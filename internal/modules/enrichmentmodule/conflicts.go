package enrichmentmodule

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Conflict status values.
const (
	ConflictPending  = "pending"
	ConflictAccepted = "accepted"
	ConflictRejected = "rejected"
	ConflictIgnored  = "ignored"
)

// MetadataConflict is a proposed metadata change awaiting review. At most
// one pending conflict exists per (entity, field); re-proposing replaces
// the pending row instead of stacking duplicates.
type MetadataConflict struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	EntityType    string     `gorm:"size:16;index:idx_conflict_entity" json:"entity_type"`
	EntityID      string     `gorm:"size:36;index:idx_conflict_entity" json:"entity_id"`
	Field         string     `gorm:"size:32" json:"field"`
	CurrentValue  string     `gorm:"type:text" json:"current_value"`
	ProposedValue string     `gorm:"type:text" json:"proposed_value"`
	Candidates    string     `gorm:"type:text" json:"candidates,omitempty"`
	Source        string     `gorm:"size:64" json:"source"`
	Reason        string     `gorm:"size:128" json:"reason,omitempty"`
	Status        string     `gorm:"size:16;default:pending;index" json:"status"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (MetadataConflict) TableName() string {
	return "metadata_conflicts"
}

// ConflictProposal is the input to ConflictStore.Create.
type ConflictProposal struct {
	EntityType    string
	EntityID      string
	Field         string
	CurrentValue  string
	ProposedValue string
	Candidates    []CandidateMatch
	Source        string
	Reason        string
}

// ConflictStore persists metadata conflicts.
type ConflictStore struct {
	db *gorm.DB
}

func NewConflictStore(db *gorm.DB) *ConflictStore {
	return &ConflictStore{db: db}
}

// Create records a proposal. When a pending conflict already exists for
// the same entity and field, it is updated in place so the review queue
// always shows the latest proposal.
func (s *ConflictStore) Create(p ConflictProposal) (*MetadataConflict, error) {
	var candidatesJSON string
	if len(p.Candidates) > 0 {
		data, err := json.Marshal(p.Candidates)
		if err != nil {
			return nil, fmt.Errorf("failed to encode candidates: %w", err)
		}
		candidatesJSON = string(data)
	}

	conflict := MetadataConflict{
		EntityType:    p.EntityType,
		EntityID:      p.EntityID,
		Field:         p.Field,
		CurrentValue:  p.CurrentValue,
		ProposedValue: p.ProposedValue,
		Candidates:    candidatesJSON,
		Source:        p.Source,
		Reason:        p.Reason,
		Status:        ConflictPending,
	}

	var existing MetadataConflict
	err := s.db.Where("entity_type = ? AND entity_id = ? AND field = ? AND status = ?",
		p.EntityType, p.EntityID, p.Field, ConflictPending).First(&existing).Error
	if err == nil {
		conflict.ID = existing.ID
		conflict.CreatedAt = existing.CreatedAt
		if err := s.db.Save(&conflict).Error; err != nil {
			return nil, fmt.Errorf("failed to update conflict: %w", err)
		}
		return &conflict, nil
	}

	if err := s.db.Create(&conflict).Error; err != nil {
		return nil, fmt.Errorf("failed to create conflict: %w", err)
	}
	return &conflict, nil
}

// Get returns one conflict by ID.
func (s *ConflictStore) Get(id uint) (*MetadataConflict, error) {
	var conflict MetadataConflict
	if err := s.db.First(&conflict, id).Error; err != nil {
		return nil, err
	}
	return &conflict, nil
}

// ListPending returns pending conflicts, newest first, optionally filtered
// by entity type.
func (s *ConflictStore) ListPending(entityType string, limit int) ([]MetadataConflict, error) {
	query := s.db.Where("status = ?", ConflictPending).Order("updated_at DESC")
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var conflicts []MetadataConflict
	err := query.Find(&conflicts).Error
	return conflicts, err
}

// PendingForEntity reports whether a pending conflict exists for the
// entity and field.
func (s *ConflictStore) PendingForEntity(entityType, entityID, field string) bool {
	var count int64
	s.db.Model(&MetadataConflict{}).
		Where("entity_type = ? AND entity_id = ? AND field = ? AND status = ?",
			entityType, entityID, field, ConflictPending).
		Count(&count)
	return count > 0
}

// Resolve marks a pending conflict accepted, rejected, or ignored. Only
// pending conflicts can be resolved.
func (s *ConflictStore) Resolve(id uint, status string) (*MetadataConflict, error) {
	switch status {
	case ConflictAccepted, ConflictRejected, ConflictIgnored:
	default:
		return nil, fmt.Errorf("invalid conflict resolution %q", status)
	}

	var conflict MetadataConflict
	if err := s.db.First(&conflict, id).Error; err != nil {
		return nil, err
	}
	if conflict.Status != ConflictPending {
		return nil, fmt.Errorf("conflict %d is already %s", id, conflict.Status)
	}

	now := time.Now()
	conflict.Status = status
	conflict.ResolvedAt = &now
	if err := s.db.Save(&conflict).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve conflict: %w", err)
	}
	return &conflict, nil
}

// DecodedCandidates returns the stored candidate list, or nil when none
// was recorded.
func (c *MetadataConflict) DecodedCandidates() []CandidateMatch {
	if c.Candidates == "" {
		return nil
	}
	var candidates []CandidateMatch
	if err := json.Unmarshal([]byte(c.Candidates), &candidates); err != nil {
		return nil
	}
	return candidates
}
