package models

import "gorm.io/gorm"

// Sequence statuses
const (
	SequenceStatusDraft    = "draft"
	SequenceStatusActive   = "active"
	SequenceStatusPaused   = "paused"
	SequenceStatusArchived = "archived"
)

// EmailSequence represents an ordered list of timed email steps applied to
// enrolled contacts
type EmailSequence struct {
	gorm.Model
	UserID uint `gorm:"index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Status      string `gorm:"not null;default:'draft'" json:"status"` // draft, active, paused, archived

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// SequenceStep represents one step in an email sequence. StepNumber is
// unique per sequence and strictly increasing; delays are cumulative from
// enrollment time.
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index;uniqueIndex:uniq_sequence_step" json:"sequence_id"`
	TemplateID uint `gorm:"not null;index" json:"template_id"`

	StepNumber int `gorm:"not null;uniqueIndex:uniq_sequence_step" json:"step_number"`
	DelayDays  int `gorm:"not null;default:0" json:"delay_days"`
	DelayHours int `gorm:"not null;default:0" json:"delay_hours"`

	// When true, a draft for this step that reaches its review deadline is
	// sent with its original content instead of expiring.
	AutoApprove bool `gorm:"default:false" json:"auto_approve"`

	// Tracking
	SentCount int `gorm:"default:0" json:"sent_count"`

	// Relations
	Template EmailTemplate `json:"-"`
}

// EmailTemplate holds the subject/body source a step's draft is generated
// from. Bodies may use Go template placeholders ({{.FirstName}}, {{.Company}}).
type EmailTemplate struct {
	gorm.Model
	UserID uint `gorm:"index" json:"user_id"`

	Name     string `gorm:"not null" json:"name"`
	Subject  string `gorm:"not null" json:"subject"`
	BodyHTML string `gorm:"type:text;not null" json:"body_html"`
}
