package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"reachly/models"

	"github.com/badoux/checkmail"
	"gorm.io/gorm"
)

// EnrollmentManager owns the contact×sequence enrollment records and their
// status transitions. The uniqueness invariant (at most one live enrollment
// per contact and sequence) is enforced by a check-then-create transaction
// backed by a partial unique index on postgres.
type EnrollmentManager struct {
	DB        *gorm.DB
	Resolver  *Resolver
	Logger    *log.Logger
	ChunkSize int
}

func NewEnrollmentManager(db *gorm.DB, resolver *Resolver, logger *log.Logger, chunkSize int) *EnrollmentManager {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &EnrollmentManager{DB: db, Resolver: resolver, Logger: logger, ChunkSize: chunkSize}
}

// EnrollSegmentResult reconciles to EnrolledCount+SkippedCount == TotalMembers.
type EnrollSegmentResult struct {
	EnrolledCount int `json:"enrolled_count"`
	SkippedCount  int `json:"skipped_count"`
	TotalMembers  int `json:"total_members"`
}

// EnrollSegment enrolls every current member of a segment into a sequence.
// Members already live in the sequence, opted-out contacts and contacts with
// malformed email addresses are skipped, never errored. The member set is a
// point-in-time snapshot; a concurrent recalculation does not affect an
// in-flight enroll. Members are processed in chunks and the loop stops early
// if the request context is cancelled, returning the counts achieved so far.
func (m *EnrollmentManager) EnrollSegment(ctx context.Context, segmentID, sequenceID uint, notes string) (*EnrollSegmentResult, error) {
	var segment models.Segment
	if err := m.DB.WithContext(ctx).First(&segment, segmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch segment: %w", err)
	}
	if segment.Status == models.SegmentStatusArchived {
		return nil, fmt.Errorf("%w: segment %d is archived", ErrInvalidState, segmentID)
	}

	var sequence models.EmailSequence
	if err := m.DB.WithContext(ctx).First(&sequence, sequenceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch sequence: %w", err)
	}
	if sequence.Status != models.SequenceStatusActive {
		return nil, fmt.Errorf("%w: sequence %d is not active", ErrInvalidState, sequenceID)
	}

	memberIDs, err := m.Resolver.ResolveSegment(ctx, &segment)
	if err != nil {
		return nil, err
	}

	// Usage bookkeeping on the segment; member_count doubles as the cache
	// refresh for dynamic segments since we just resolved.
	if err := m.DB.WithContext(ctx).Model(&segment).Updates(map[string]interface{}{
		"member_count": len(memberIDs),
		"last_used_at": time.Now(),
		"times_used":   gorm.Expr("times_used + ?", 1),
	}).Error; err != nil {
		m.Logger.Printf("Failed to update segment %d usage stats: %v", segmentID, err)
	}

	result := &EnrollSegmentResult{TotalMembers: len(memberIDs)}
	for start := 0; start < len(memberIDs); start += m.ChunkSize {
		end := start + m.ChunkSize
		if end > len(memberIDs) {
			end = len(memberIDs)
		}

		for _, contactID := range memberIDs[start:end] {
			_, skipped, err := m.EnrollContact(ctx, contactID, sequenceID, &segmentID, notes)
			if err != nil {
				m.Logger.Printf("Failed to enroll contact %d into sequence %d: %v", contactID, sequenceID, err)
				result.SkippedCount++
				continue
			}
			if skipped {
				result.SkippedCount++
			} else {
				result.EnrolledCount++
			}
		}

		if err := ctx.Err(); err != nil {
			m.Logger.Printf("Enroll of segment %d interrupted after %d/%d members: %v",
				segmentID, result.EnrolledCount+result.SkippedCount, result.TotalMembers, err)
			return result, err
		}
	}

	return result, nil
}

// EnrollContact creates a single enrollment. The skipped return is true when
// the contact already has a live enrollment in the sequence or is not
// contactable; that outcome is a count, not an error.
func (m *EnrollmentManager) EnrollContact(ctx context.Context, contactID, sequenceID uint, segmentID *uint, notes string) (*models.ProspectEnrollment, bool, error) {
	var contact models.Contact
	if err := m.DB.WithContext(ctx).First(&contact, contactID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("failed to fetch contact: %w", err)
	}

	if contact.IsUnsubscribed || contact.IsBounced || contact.IsDoNotContact {
		return nil, true, nil
	}
	if err := checkmail.ValidateFormat(contact.Email); err != nil {
		return nil, true, nil
	}

	enrollment := &models.ProspectEnrollment{
		ContactID:  contactID,
		SequenceID: sequenceID,
		SegmentID:  segmentID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now(),
		Notes:      notes,
	}

	skipped := false
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ProspectEnrollment{}).
			Where("contact_id = ? AND sequence_id = ? AND status IN ?",
				contactID, sequenceID,
				[]string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			skipped = true
			return nil
		}
		return tx.Create(enrollment).Error
	})
	if err != nil {
		// The partial unique index catches the race two concurrent enrolls
		// can win past the existence check. That loser is a skip, not a bug.
		if isUniqueViolation(err) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("failed to create enrollment: %w", err)
	}
	if skipped {
		return nil, true, nil
	}

	return enrollment, false, nil
}

// Pause stops future scheduling for an enrollment. Idempotent; an already
// pending draft is not retracted and resolves independently.
func (m *EnrollmentManager) Pause(ctx context.Context, enrollmentID uint) error {
	return m.transition(ctx, enrollmentID,
		[]string{models.EnrollmentStatusActive},
		models.EnrollmentStatusPaused, nil)
}

// Resume reactivates a paused enrollment. The scheduler will regenerate a
// fresh draft for the step the enrollment was paused on.
func (m *EnrollmentManager) Resume(ctx context.Context, enrollmentID uint) error {
	return m.transition(ctx, enrollmentID,
		[]string{models.EnrollmentStatusPaused},
		models.EnrollmentStatusActive, nil)
}

// Cancel terminates an enrollment. Idempotent; never undoes an in-flight send.
func (m *EnrollmentManager) Cancel(ctx context.Context, enrollmentID uint) error {
	now := time.Now()
	return m.transition(ctx, enrollmentID,
		[]string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused},
		models.EnrollmentStatusCancelled,
		map[string]interface{}{"cancelled_at": now})
}

// transition performs a compare-and-set status change. Re-applying the target
// status is a no-op; any other mismatch is ErrInvalidState.
func (m *EnrollmentManager) transition(ctx context.Context, enrollmentID uint, from []string, to string, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := m.DB.WithContext(ctx).
		Model(&models.ProspectEnrollment{}).
		Where("id = ? AND status IN ?", enrollmentID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update enrollment %d: %w", enrollmentID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var current models.ProspectEnrollment
	if err := m.DB.WithContext(ctx).First(&current, enrollmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to fetch enrollment %d: %w", enrollmentID, err)
	}
	if current.Status == to {
		return nil
	}
	return fmt.Errorf("%w: enrollment %d is %s", ErrInvalidState, enrollmentID, current.Status)
}

// AdvanceAfterSend moves the enrollment forward once a step's draft has been
// positively resolved and handed to the transport. If that step was the
// sequence's last, the enrollment completes.
func (m *EnrollmentManager) AdvanceAfterSend(ctx context.Context, enrollmentID uint, stepNumber int) error {
	res := m.DB.WithContext(ctx).
		Model(&models.ProspectEnrollment{}).
		Where("id = ? AND current_step_number < ?", enrollmentID, stepNumber).
		Update("current_step_number", stepNumber)
	if res.Error != nil {
		return fmt.Errorf("failed to advance enrollment %d: %w", enrollmentID, res.Error)
	}

	var enrollment models.ProspectEnrollment
	if err := m.DB.WithContext(ctx).First(&enrollment, enrollmentID).Error; err != nil {
		return fmt.Errorf("failed to fetch enrollment %d: %w", enrollmentID, err)
	}

	var lastStep int
	if err := m.DB.WithContext(ctx).
		Model(&models.SequenceStep{}).
		Where("sequence_id = ?", enrollment.SequenceID).
		Select("COALESCE(MAX(step_number), 0)").
		Scan(&lastStep).Error; err != nil {
		return fmt.Errorf("failed to find last step: %w", err)
	}

	if stepNumber >= lastStep {
		now := time.Now()
		res := m.DB.WithContext(ctx).
			Model(&models.ProspectEnrollment{}).
			Where("id = ? AND status = ?", enrollmentID, models.EnrollmentStatusActive).
			Updates(map[string]interface{}{
				"status":       models.EnrollmentStatusCompleted,
				"completed_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete enrollment %d: %w", enrollmentID, res.Error)
		}
		if res.RowsAffected > 0 {
			m.Logger.Printf("Enrollment %d completed sequence %d", enrollmentID, enrollment.SequenceID)
		}
	}

	return nil
}

// isUniqueViolation matches duplicate-key failures across postgres and the
// sqlite test driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
