package models

import (
	"time"

	"gorm.io/gorm"
)

// Draft statuses. pending_review is the only non-terminal state; every
// transition out of it is final.
const (
	DraftStatusPendingReview = "pending_review"
	DraftStatusApproved      = "approved"
	DraftStatusRejected      = "rejected"
	DraftStatusEdited        = "edited"
	DraftStatusExpired       = "expired"
)

// AIEmailDraft is a generated, not-yet-sent email awaiting human approval
// for one enrollment step. At most one pending_review draft may exist per
// (enrollment, step) at a time. Once terminal, a draft is immutable except
// for the edited_* fields written exactly once by edit-and-approve and the
// send bookkeeping fields.
type AIEmailDraft struct {
	gorm.Model
	EnrollmentID uint `gorm:"not null;index" json:"enrollment_id"`
	ContactID    uint `gorm:"not null;index" json:"contact_id"`
	StepNumber   int  `gorm:"not null" json:"step_number"`

	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text;not null" json:"body"`

	EditedSubject *string `json:"edited_subject,omitempty"`
	EditedBody    *string `gorm:"type:text" json:"edited_body,omitempty"`

	Status       string    `gorm:"not null;default:'pending_review';index" json:"status"`
	AutoApproved bool      `gorm:"default:false" json:"auto_approved"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`

	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy *uint      `json:"reviewed_by,omitempty"`

	// Send bookkeeping, written after the terminal transition
	SentAt    *time.Time `json:"sent_at,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
	SendError string     `json:"send_error,omitempty"`

	// Relations
	Enrollment ProspectEnrollment `json:"-"`
	Contact    Contact            `json:"-"`
}

// FinalSubject returns the subject that should actually be sent: the edited
// subject when edit-and-approve wrote one, the original otherwise.
func (d *AIEmailDraft) FinalSubject() string {
	if d.EditedSubject != nil {
		return *d.EditedSubject
	}
	return d.Subject
}

// FinalBody returns the body that should actually be sent.
func (d *AIEmailDraft) FinalBody() string {
	if d.EditedBody != nil {
		return *d.EditedBody
	}
	return d.Body
}
