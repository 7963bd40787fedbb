package models

import (
	"time"

	"gorm.io/gorm"
)

// Segment types
const (
	SegmentTypeStatic  = "static"
	SegmentTypeDynamic = "dynamic"
)

// Segment statuses
const (
	SegmentStatusActive   = "active"
	SegmentStatusPaused   = "paused"
	SegmentStatusArchived = "archived"
)

// Segment represents a named set of contacts, either explicitly listed
// (static) or computed from filter criteria (dynamic). Dynamic segments own
// no persisted member rows; their membership is resolved on read.
type Segment struct {
	gorm.Model
	UserID uint `gorm:"index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Type        string `gorm:"not null;default:'static'" json:"type"`   // static, dynamic
	Status      string `gorm:"not null;default:'active'" json:"status"` // active, paused, archived

	// Dynamic segments only: tree of field/operator/value predicates
	FilterCriteria *FilterGroup `gorm:"type:jsonb;serializer:json" json:"filter_criteria,omitempty"`

	// Statistics. MemberCount is authoritative for static segments; for
	// dynamic segments it is a cache refreshed by recalculation.
	MemberCount int        `gorm:"default:0" json:"member_count"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	TimesUsed   int        `gorm:"default:0" json:"times_used"`

	// Relations
	Members []SegmentMember `gorm:"foreignKey:SegmentID" json:"members,omitempty"`
}

// SegmentMember joins contacts to static segments
type SegmentMember struct {
	gorm.Model
	SegmentID uint `gorm:"not null;index;uniqueIndex:uniq_segment_member" json:"segment_id"`
	ContactID uint `gorm:"not null;index;uniqueIndex:uniq_segment_member" json:"contact_id"`
}

// FilterGroup is a node in the criteria tree: either a leaf condition set is
// empty and Groups carries nested subtrees, or both appear and are combined
// by the group operator.
type FilterGroup struct {
	Operator   string            `json:"operator"` // and, or, not
	Conditions []FilterCondition `json:"conditions,omitempty"`
	Groups     []FilterGroup     `json:"groups,omitempty"`
}

// FilterCondition is a single field/operator/value predicate
type FilterCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}
