package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"reachly/models"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReviewService owns the draft lifecycle: pending_review is resolved by a
// human decision (approve / edit-and-approve / reject) or by the expiry
// sweep. Every terminal transition is a compare-and-set on the pending
// status, so racing resolvers serialize per draft and exactly one wins; the
// loser gets ErrInvalidState. The actual send happens only after the
// transition is durably committed and is never rolled back.
type ReviewService struct {
	DB          *gorm.DB
	Enrollments *EnrollmentManager
	Sender      Sender
	Logger      *log.Logger
}

func NewReviewService(db *gorm.DB, enrollments *EnrollmentManager, sender Sender, logger *log.Logger) *ReviewService {
	return &ReviewService{DB: db, Enrollments: enrollments, Sender: sender, Logger: logger}
}

// SweepResult summarizes one expiry pass.
type SweepResult struct {
	Expired      int
	AutoApproved int
	Failed       int
}

// Approve resolves a pending draft positively and hands its content to the
// send transport.
func (r *ReviewService) Approve(ctx context.Context, draftID uint, reviewerID *uint) (*models.AIEmailDraft, error) {
	draft, err := r.fetchForReview(ctx, draftID, true)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := r.casResolve(ctx, draftID, map[string]interface{}{
		"status":      models.DraftStatusApproved,
		"reviewed_at": now,
		"reviewed_by": reviewerID,
	}); err != nil {
		return nil, err
	}

	draft.Status = models.DraftStatusApproved
	draft.ReviewedAt = &now
	draft.ReviewedBy = reviewerID

	r.sendAndAdvance(ctx, draft)
	return draft, nil
}

// Reject resolves a pending draft negatively. Nothing is sent and the
// enrollment's current step is not advanced, so a later resume regenerates a
// fresh draft for the same step. With pauseSequence the owning enrollment is
// paused until an explicit resume.
func (r *ReviewService) Reject(ctx context.Context, draftID uint, pauseSequence bool, reviewerID *uint) (*models.AIEmailDraft, error) {
	draft, err := r.fetchForReview(ctx, draftID, false)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := r.casResolve(ctx, draftID, map[string]interface{}{
		"status":      models.DraftStatusRejected,
		"reviewed_at": now,
		"reviewed_by": reviewerID,
	}); err != nil {
		return nil, err
	}

	draft.Status = models.DraftStatusRejected
	draft.ReviewedAt = &now
	draft.ReviewedBy = reviewerID

	if pauseSequence {
		if err := r.Enrollments.Pause(ctx, draft.EnrollmentID); err != nil {
			// The enrollment may already be terminal; the rejection stands.
			r.Logger.Printf("Reject: could not pause enrollment %d: %v", draft.EnrollmentID, err)
		}
	}

	return draft, nil
}

// EditAndApprove writes the reviewer's replacement content exactly once,
// marks the draft edited and proceeds like an approval using the edited
// content.
func (r *ReviewService) EditAndApprove(ctx context.Context, draftID uint, subject, body string, reviewerID *uint) (*models.AIEmailDraft, error) {
	draft, err := r.fetchForReview(ctx, draftID, true)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := r.casResolve(ctx, draftID, map[string]interface{}{
		"status":         models.DraftStatusEdited,
		"edited_subject": subject,
		"edited_body":    body,
		"reviewed_at":    now,
		"reviewed_by":    reviewerID,
	}); err != nil {
		return nil, err
	}

	draft.Status = models.DraftStatusEdited
	draft.EditedSubject = &subject
	draft.EditedBody = &body
	draft.ReviewedAt = &now
	draft.ReviewedBy = reviewerID

	r.sendAndAdvance(ctx, draft)
	return draft, nil
}

// ExpireSweep resolves every pending draft whose review window has closed.
// Drafts flagged auto_approved are sent with their original content instead
// of expiring; everything else expires and its enrollment stalls on the
// current step until an operator intervenes. Per-draft failures never abort
// the sweep.
func (r *ReviewService) ExpireSweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	var due []models.AIEmailDraft
	if err := r.DB.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", models.DraftStatusPendingReview, now).
		Find(&due).Error; err != nil {
		return nil, fmt.Errorf("failed to scan expired drafts: %w", err)
	}

	result := &SweepResult{}
	for i := range due {
		draft := &due[i]

		if draft.AutoApproved {
			if err := r.casResolve(ctx, draft.ID, map[string]interface{}{
				"status":      models.DraftStatusApproved,
				"reviewed_at": now,
			}); err != nil {
				// A human decision landed between the scan and the CAS.
				result.Failed++
				continue
			}
			draft.Status = models.DraftStatusApproved
			r.sendAndAdvance(ctx, draft)
			result.AutoApproved++
			continue
		}

		if err := r.casResolve(ctx, draft.ID, map[string]interface{}{
			"status": models.DraftStatusExpired,
		}); err != nil {
			result.Failed++
			continue
		}
		result.Expired++
	}

	if result.Expired > 0 || result.AutoApproved > 0 {
		r.Logger.Printf("Expiry sweep: %d expired, %d auto-approved, %d lost races",
			result.Expired, result.AutoApproved, result.Failed)
	}
	return result, nil
}

// PendingCount is the pure read behind the dashboard poller.
func (r *ReviewService) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&models.AIEmailDraft{}).
		Where("status = ?", models.DraftStatusPendingReview).
		Count(&count).Error
	return count, err
}

// List returns drafts page by page, optionally filtered by status.
func (r *ReviewService) List(ctx context.Context, status string, page, pageSize int) ([]models.AIEmailDraft, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := r.DB.WithContext(ctx).Model(&models.AIEmailDraft{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var drafts []models.AIEmailDraft
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&drafts).Error; err != nil {
		return nil, 0, err
	}
	return drafts, total, nil
}

// fetchForReview loads a draft and pre-checks the transition, so callers get
// the precise error before the CAS race is even attempted.
func (r *ReviewService) fetchForReview(ctx context.Context, draftID uint, enforceWindow bool) (*models.AIEmailDraft, error) {
	var draft models.AIEmailDraft
	if err := r.DB.WithContext(ctx).First(&draft, draftID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch draft: %w", err)
	}

	if draft.Status != models.DraftStatusPendingReview {
		return nil, fmt.Errorf("%w: draft %d is %s", ErrInvalidState, draftID, draft.Status)
	}
	if enforceWindow && time.Now().After(draft.ExpiresAt) {
		return nil, fmt.Errorf("%w: draft %d expired at %s", ErrDraftExpired, draftID, draft.ExpiresAt.Format(time.RFC3339))
	}

	return &draft, nil
}

// casResolve is the per-draft serialization point: the update only lands if
// the draft is still pending_review.
func (r *ReviewService) casResolve(ctx context.Context, draftID uint, updates map[string]interface{}) error {
	res := r.DB.WithContext(ctx).
		Model(&models.AIEmailDraft{}).
		Where("id = ? AND status = ?", draftID, models.DraftStatusPendingReview).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to resolve draft %d: %w", draftID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: draft %d was already resolved", ErrInvalidState, draftID)
	}
	return nil
}

// sendAndAdvance runs after a positive terminal transition has committed.
// No lock is held around the transport call; a failure is recorded on the
// draft for operator visibility and retried by the delivery concern, never
// by reverting the resolved status.
func (r *ReviewService) sendAndAdvance(ctx context.Context, draft *models.AIEmailDraft) {
	var contact models.Contact
	if err := r.DB.WithContext(ctx).First(&contact, draft.ContactID).Error; err != nil {
		r.recordSendFailure(ctx, draft, fmt.Errorf("failed to fetch contact: %w", err))
		return
	}

	messageID := uuid.NewString()
	err := r.Sender.Send(ctx, OutboundEmail{
		To:        contact.Email,
		ToName:    contact.FirstName + " " + contact.LastName,
		Subject:   draft.FinalSubject(),
		BodyHTML:  draft.FinalBody(),
		MessageID: messageID,
	})
	if err != nil {
		r.recordSendFailure(ctx, draft, err)
		return
	}

	now := time.Now()
	if err := r.DB.WithContext(ctx).Model(draft).Updates(map[string]interface{}{
		"sent_at":    now,
		"message_id": messageID,
		"send_error": "",
	}).Error; err != nil {
		r.Logger.Printf("Failed to record send of draft %d: %v", draft.ID, err)
	}

	var enrollment models.ProspectEnrollment
	if err := r.DB.WithContext(ctx).First(&enrollment, draft.EnrollmentID).Error; err == nil {
		if err := r.DB.WithContext(ctx).
			Model(&models.SequenceStep{}).
			Where("sequence_id = ? AND step_number = ?", enrollment.SequenceID, draft.StepNumber).
			Update("sent_count", gorm.Expr("sent_count + ?", 1)).Error; err != nil {
			r.Logger.Printf("Failed to bump sent_count for step %d: %v", draft.StepNumber, err)
		}
	}
	if err := r.DB.WithContext(ctx).
		Model(&models.Contact{}).
		Where("id = ?", contact.ID).
		Update("last_contacted_at", now).Error; err != nil {
		r.Logger.Printf("Failed to stamp contact %d: %v", contact.ID, err)
	}

	if err := r.Enrollments.AdvanceAfterSend(ctx, draft.EnrollmentID, draft.StepNumber); err != nil {
		r.Logger.Printf("Failed to advance enrollment %d after draft %d: %v", draft.EnrollmentID, draft.ID, err)
		sentry.CaptureException(err)
	}
}

func (r *ReviewService) recordSendFailure(ctx context.Context, draft *models.AIEmailDraft, cause error) {
	logrus.WithFields(logrus.Fields{
		"draft_id":      draft.ID,
		"enrollment_id": draft.EnrollmentID,
		"step_number":   draft.StepNumber,
	}).Errorf("send failed: %v", cause)
	sentry.CaptureException(cause)

	draft.SendError = cause.Error()
	if err := r.DB.WithContext(ctx).
		Model(&models.AIEmailDraft{}).
		Where("id = ?", draft.ID).
		Update("send_error", cause.Error()).Error; err != nil {
		r.Logger.Printf("Failed to record send error on draft %d: %v", draft.ID, err)
	}
	if err := r.DB.WithContext(ctx).
		Model(&models.ProspectEnrollment{}).
		Where("id = ?", draft.EnrollmentID).
		Update("last_error", cause.Error()).Error; err != nil {
		r.Logger.Printf("Failed to record send error on enrollment %d: %v", draft.EnrollmentID, err)
	}
}
