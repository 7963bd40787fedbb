package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"reachly/models"

	"gorm.io/gorm"
)

// Scheduler is the recurring tick that finds enrollments with a due step and
// creates their review drafts. It never sends anything itself; a draft only
// leaves through the review state machine.
type Scheduler struct {
	DB           *gorm.DB
	Drafter      Drafter
	Logger       *log.Logger
	ReviewWindow time.Duration
}

func NewScheduler(db *gorm.DB, drafter Drafter, logger *log.Logger, reviewWindow time.Duration) *Scheduler {
	if reviewWindow <= 0 {
		reviewWindow = 24 * time.Hour
	}
	return &Scheduler{DB: db, Drafter: drafter, Logger: logger, ReviewWindow: reviewWindow}
}

// TickResult summarizes one scheduler pass.
type TickResult struct {
	DraftsCreated int
	Skipped       int
	Failed        int
}

// AdvanceDueEnrollments scans active enrollments whose next step is due at
// now and creates a pending_review draft for each, unless one already
// exists. A failure on one enrollment is logged and counted; the batch
// always continues.
func (s *Scheduler) AdvanceDueEnrollments(ctx context.Context, now time.Time) (*TickResult, error) {
	var enrollments []models.ProspectEnrollment
	if err := s.DB.WithContext(ctx).
		Where("status = ?", models.EnrollmentStatusActive).
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to scan enrollments: %w", err)
	}

	// Step definitions rarely change mid-tick; cache per sequence.
	stepCache := map[uint][]models.SequenceStep{}
	seqCache := map[uint]*models.EmailSequence{}

	result := &TickResult{}
	for i := range enrollments {
		created, err := s.processEnrollment(ctx, &enrollments[i], now, stepCache, seqCache)
		if err != nil {
			s.Logger.Printf("Scheduler: enrollment %d failed: %v", enrollments[i].ID, err)
			s.recordEnrollmentError(ctx, enrollments[i].ID, err)
			result.Failed++
			continue
		}
		if created {
			result.DraftsCreated++
		} else {
			result.Skipped++
		}
	}

	return result, nil
}

func (s *Scheduler) processEnrollment(ctx context.Context, enrollment *models.ProspectEnrollment, now time.Time, stepCache map[uint][]models.SequenceStep, seqCache map[uint]*models.EmailSequence) (bool, error) {
	sequence, ok := seqCache[enrollment.SequenceID]
	if !ok {
		sequence = &models.EmailSequence{}
		if err := s.DB.WithContext(ctx).First(sequence, enrollment.SequenceID).Error; err != nil {
			return false, fmt.Errorf("failed to fetch sequence: %w", err)
		}
		seqCache[enrollment.SequenceID] = sequence
	}
	if sequence.Status != models.SequenceStatusActive {
		return false, nil
	}

	steps, ok := stepCache[enrollment.SequenceID]
	if !ok {
		if err := s.DB.WithContext(ctx).
			Where("sequence_id = ?", enrollment.SequenceID).
			Order("step_number ASC").
			Find(&steps).Error; err != nil {
			return false, fmt.Errorf("failed to fetch steps: %w", err)
		}
		stepCache[enrollment.SequenceID] = steps
	}

	nextNumber := enrollment.CurrentStepNumber + 1
	nextStep := findStep(steps, nextNumber)
	if nextStep == nil {
		// Past the last step; completion is handled on the send path.
		return false, nil
	}

	if enrollment.EnrolledAt.Add(cumulativeDelay(steps, nextNumber)).After(now) {
		return false, nil
	}

	// Re-tick dedup: one pending draft per (enrollment, step). Keyed on the
	// step number and status so a rejected-then-resumed enrollment gets a
	// fresh draft for the same step.
	var pending int64
	if err := s.DB.WithContext(ctx).
		Model(&models.AIEmailDraft{}).
		Where("enrollment_id = ? AND step_number = ? AND status = ?",
			enrollment.ID, nextNumber, models.DraftStatusPendingReview).
		Count(&pending).Error; err != nil {
		return false, fmt.Errorf("failed to check pending drafts: %w", err)
	}
	if pending > 0 {
		return false, nil
	}

	var contact models.Contact
	if err := s.DB.WithContext(ctx).First(&contact, enrollment.ContactID).Error; err != nil {
		return false, fmt.Errorf("failed to fetch contact: %w", err)
	}

	var tmpl models.EmailTemplate
	if err := s.DB.WithContext(ctx).First(&tmpl, nextStep.TemplateID).Error; err != nil {
		return false, fmt.Errorf("failed to fetch template %d: %w", nextStep.TemplateID, err)
	}

	content, err := s.Drafter.Draft(ctx, DraftRequest{
		Contact:      contact,
		Template:     tmpl,
		StepNumber:   nextNumber,
		SequenceName: sequence.Name,
	})
	if err != nil {
		return false, fmt.Errorf("drafting failed: %w", err)
	}

	draft := &models.AIEmailDraft{
		EnrollmentID: enrollment.ID,
		ContactID:    contact.ID,
		StepNumber:   nextNumber,
		Subject:      content.Subject,
		Body:         content.Body,
		Status:       models.DraftStatusPendingReview,
		AutoApproved: nextStep.AutoApprove,
		ExpiresAt:    now.Add(s.ReviewWindow),
	}
	if err := s.DB.WithContext(ctx).Create(draft).Error; err != nil {
		if isUniqueViolation(err) {
			// A concurrent tick won the insert.
			return false, nil
		}
		return false, fmt.Errorf("failed to create draft: %w", err)
	}

	s.Logger.Printf("Scheduler: created draft %d for enrollment %d step %d (expires %s)",
		draft.ID, enrollment.ID, nextNumber, draft.ExpiresAt.Format(time.RFC3339))
	return true, nil
}

func (s *Scheduler) recordEnrollmentError(ctx context.Context, enrollmentID uint, cause error) {
	if err := s.DB.WithContext(ctx).
		Model(&models.ProspectEnrollment{}).
		Where("id = ?", enrollmentID).
		Update("last_error", cause.Error()).Error; err != nil {
		s.Logger.Printf("Scheduler: failed to record error on enrollment %d: %v", enrollmentID, err)
	}
}

func findStep(steps []models.SequenceStep, number int) *models.SequenceStep {
	for i := range steps {
		if steps[i].StepNumber == number {
			return &steps[i]
		}
	}
	return nil
}

// cumulativeDelay sums the delays of steps 1..upTo; step delays are measured
// from enrollment, each relative to the previous step.
func cumulativeDelay(steps []models.SequenceStep, upTo int) time.Duration {
	var total time.Duration
	for i := range steps {
		if steps[i].StepNumber > upTo {
			break
		}
		total += time.Duration(steps[i].DelayDays)*24*time.Hour +
			time.Duration(steps[i].DelayHours)*time.Hour
	}
	return total
}
