package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusPaused    = "paused"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusCancelled = "cancelled"
)

// ProspectEnrollment records one contact progressing through one sequence.
// At most one enrollment per (contact, sequence) may be live (active or
// paused) at a time; the partial unique index created in config.MigrateDB
// enforces this at the store level.
type ProspectEnrollment struct {
	gorm.Model
	ContactID  uint `gorm:"not null;index" json:"contact_id"`
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	SegmentID  *uint `gorm:"index" json:"segment_id,omitempty"` // set when enrolled via a segment

	Status string `gorm:"not null;default:'active';index" json:"status"` // active, paused, completed, cancelled

	// 0 = not yet started; N = step N's draft has been approved and sent
	CurrentStepNumber int `gorm:"not null;default:0" json:"current_step_number"`

	EnrolledAt  time.Time  `gorm:"not null" json:"enrolled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Notes     string `gorm:"type:text" json:"notes"`
	LastError string `json:"last_error,omitempty"`

	// Relations
	Contact  Contact       `json:"-"`
	Sequence EmailSequence `json:"-"`
}
