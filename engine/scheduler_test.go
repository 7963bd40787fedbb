package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"reachly/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerCreatesDueDrafts(t *testing.T) {
	db := newTestDB(t)
	drafter := &stubDrafter{}
	s := NewScheduler(db, drafter, testLogger(), 24*time.Hour)
	ctx := context.Background()

	contact := seedContact(t, db, models.Contact{FirstName: "Anna", LastName: "Berg", Company: "Grand Hotel"})
	sequence := seedSequence(t, db, "Renewal-3", models.SequenceStatusActive,
		models.SequenceStep{StepNumber: 1, DelayDays: 0},
		models.SequenceStep{StepNumber: 2, DelayDays: 3, AutoApprove: true},
	)

	enrolledAt := time.Now().Add(-time.Hour)
	enr := seedEnrollment(t, db, contact.ID, sequence.ID, models.EnrollmentStatusActive, 0, enrolledAt)

	now := time.Now()
	result, err := s.AdvanceDueEnrollments(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DraftsCreated)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, drafter.calls)

	var draft models.AIEmailDraft
	require.NoError(t, db.Where("enrollment_id = ?", enr.ID).First(&draft).Error)
	assert.Equal(t, models.DraftStatusPendingReview, draft.Status)
	assert.Equal(t, 1, draft.StepNumber)
	assert.Equal(t, contact.ID, draft.ContactID)
	assert.False(t, draft.AutoApproved)
	assert.Equal(t, "Step 1 for Anna", draft.Subject)
	assert.WithinDuration(t, now.Add(24*time.Hour), draft.ExpiresAt, time.Second)

	t.Run("re-tick does not duplicate", func(t *testing.T) {
		result, err := s.AdvanceDueEnrollments(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, result.DraftsCreated)
		assert.Equal(t, 1, result.Skipped)

		var count int64
		require.NoError(t, db.Model(&models.AIEmailDraft{}).
			Where("enrollment_id = ?", enr.ID).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("auto approve flag copied from step", func(t *testing.T) {
		// Pretend step 1 was sent; step 2 becomes due after its 3-day delay.
		require.NoError(t, db.Model(enr).Update("current_step_number", 1).Error)

		result, err := s.AdvanceDueEnrollments(ctx, time.Now().Add(73*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, result.DraftsCreated)

		var draft models.AIEmailDraft
		require.NoError(t, db.Where("enrollment_id = ? AND step_number = ?", enr.ID, 2).First(&draft).Error)
		assert.True(t, draft.AutoApproved)
	})
}

func TestSchedulerDelayTiming(t *testing.T) {
	db := newTestDB(t)
	drafter := &stubDrafter{}
	s := NewScheduler(db, drafter, testLogger(), 24*time.Hour)
	ctx := context.Background()

	contact := seedContact(t, db, models.Contact{FirstName: "Anna", LastName: "Berg"})
	sequence := seedSequence(t, db, "Renewal", models.SequenceStatusActive,
		models.SequenceStep{StepNumber: 1, DelayDays: 0},
		models.SequenceStep{StepNumber: 2, DelayDays: 3},
	)

	enrolledAt := time.Now()
	enr := seedEnrollment(t, db, contact.ID, sequence.ID, models.EnrollmentStatusActive, 1, enrolledAt)

	t.Run("before the delay elapses nothing happens", func(t *testing.T) {
		result, err := s.AdvanceDueEnrollments(ctx, enrolledAt.Add(71*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, result.DraftsCreated)
		assert.Equal(t, 1, result.Skipped)
	})

	t.Run("after the delay the draft appears", func(t *testing.T) {
		result, err := s.AdvanceDueEnrollments(ctx, enrolledAt.Add(73*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, result.DraftsCreated)

		var draft models.AIEmailDraft
		require.NoError(t, db.Where("enrollment_id = ?", enr.ID).First(&draft).Error)
		assert.Equal(t, 2, draft.StepNumber)
	})
}

func TestSchedulerSkips(t *testing.T) {
	db := newTestDB(t)
	drafter := &stubDrafter{}
	s := NewScheduler(db, drafter, testLogger(), 24*time.Hour)
	ctx := context.Background()

	contact := seedContact(t, db, models.Contact{FirstName: "Anna", LastName: "Berg"})

	t.Run("paused enrollment is not scanned", func(t *testing.T) {
		sequence := seedSequence(t, db, "Renewal", models.SequenceStatusActive,
			models.SequenceStep{StepNumber: 1})
		enr := seedEnrollment(t, db, contact.ID, sequence.ID, models.EnrollmentStatusPaused, 0, time.Now().Add(-time.Hour))

		result, err := s.AdvanceDueEnrollments(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, result.DraftsCreated)
		assert.Zero(t, drafter.calls)
		require.NoError(t, db.Delete(enr).Error)
	})

	t.Run("paused sequence freezes its enrollments", func(t *testing.T) {
		sequence := seedSequence(t, db, "Paused seq", models.SequenceStatusPaused,
			models.SequenceStep{StepNumber: 1})
		enr := seedEnrollment(t, db, contact.ID, sequence.ID, models.EnrollmentStatusActive, 0, time.Now().Add(-time.Hour))

		result, err := s.AdvanceDueEnrollments(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, result.DraftsCreated)
		assert.Equal(t, 1, result.Skipped)
		require.NoError(t, db.Delete(enr).Error)
	})

	t.Run("enrollment past the last step is left alone", func(t *testing.T) {
		sequence := seedSequence(t, db, "Short", models.SequenceStatusActive,
			models.SequenceStep{StepNumber: 1})
		enr := seedEnrollment(t, db, contact.ID, sequence.ID, models.EnrollmentStatusActive, 1, time.Now().Add(-time.Hour))

		result, err := s.AdvanceDueEnrollments(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, result.DraftsCreated)
		require.NoError(t, db.Delete(enr).Error)
	})
}

func TestSchedulerDrafterFailure(t *testing.T) {
	db := newTestDB(t)
	drafter := &stubDrafter{err: errors.New("model unavailable")}
	s := NewScheduler(db, drafter, testLogger(), 24*time.Hour)
	ctx := context.Background()

	broken := seedContact(t, db, models.Contact{FirstName: "Anna", LastName: "Berg"})
	fine := seedContact(t, db, models.Contact{FirstName: "Ben", LastName: "Cole"})
	sequence := seedSequence(t, db, "Renewal", models.SequenceStatusActive,
		models.SequenceStep{StepNumber: 1})

	enrBroken := seedEnrollment(t, db, broken.ID, sequence.ID, models.EnrollmentStatusActive, 0, time.Now().Add(-time.Hour))
	enrFine := seedEnrollment(t, db, fine.ID, sequence.ID, models.EnrollmentStatusActive, 0, time.Now().Add(-time.Hour))

	result, err := s.AdvanceDueEnrollments(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.DraftsCreated)

	// The failure is surfaced on the enrollment for operators.
	assert.Contains(t, reloadEnrollment(t, db, enrBroken.ID).LastError, "model unavailable")

	// Once the drafter recovers the batch proceeds normally.
	drafter.err = nil
	result, err = s.AdvanceDueEnrollments(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, result.DraftsCreated)

	var count int64
	require.NoError(t, db.Model(&models.AIEmailDraft{}).
		Where("enrollment_id IN ?", []uint{enrBroken.ID, enrFine.ID}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSchedulerRegeneratesAfterReject(t *testing.T) {
	db := newTestDB(t)
	drafter := &stubDrafter{}
	s := NewScheduler(db, drafter, testLogger(), 24*time.Hour)
	review := NewReviewService(db, newTestEnrollments(db), &recorderSender{}, testLogger())
	ctx := context.Background()

	contact := seedContact(t, db, models.Contact{FirstName: "Anna", LastName: "Berg"})
	sequence := seedSequence(t, db, "Renewal", models.SequenceStatusActive,
		models.SequenceStep{StepNumber: 1})
	enr := seedEnrollment(t, db, contact.ID, sequence.ID, models.EnrollmentStatusActive, 0, time.Now().Add(-time.Hour))

	_, err := s.AdvanceDueEnrollments(ctx, time.Now())
	require.NoError(t, err)

	var first models.AIEmailDraft
	require.NoError(t, db.Where("enrollment_id = ?", enr.ID).First(&first).Error)

	_, err = review.Reject(ctx, first.ID, false, nil)
	require.NoError(t, err)

	// The step was never sent, so the next tick drafts it again from scratch.
	result, err := s.AdvanceDueEnrollments(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.DraftsCreated)

	var drafts []models.AIEmailDraft
	require.NoError(t, db.Where("enrollment_id = ?", enr.ID).Order("id ASC").Find(&drafts).Error)
	require.Len(t, drafts, 2)
	assert.Equal(t, models.DraftStatusRejected, drafts[0].Status)
	assert.Equal(t, models.DraftStatusPendingReview, drafts[1].Status)
	assert.Equal(t, drafts[0].StepNumber, drafts[1].StepNumber)
}
