package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"reachly/models"

	"gorm.io/gorm"
)

// Resolver evaluates segment membership. Resolution is a pure point-in-time
// read of the contact population; it never mutates anything and is safe to
// run concurrently with enrollment or recalculation.
type Resolver struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewResolver(db *gorm.DB, logger *log.Logger) *Resolver {
	return &Resolver{DB: db, Logger: logger}
}

// ValidationResult is the preview returned before saving dynamic criteria.
type ValidationResult struct {
	Valid          bool     `json:"valid"`
	Errors         []string `json:"errors"`
	EstimatedCount int64    `json:"estimated_count"`
}

// Resolve evaluates a criteria tree against the current contact population
// and returns the matching contact IDs.
func (r *Resolver) Resolve(ctx context.Context, criteria *models.FilterGroup) ([]uint, error) {
	sql, args, err := compileCriteria(criteria)
	if err != nil {
		return nil, err
	}

	var ids []uint
	if err := r.DB.WithContext(ctx).
		Model(&models.Contact{}).
		Where(sql, args...).
		Distinct().
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve criteria: %w", err)
	}
	return ids, nil
}

// ResolveSegment returns the segment's current member set: the stored member
// rows for static segments, a fresh criteria evaluation for dynamic ones.
func (r *Resolver) ResolveSegment(ctx context.Context, segment *models.Segment) ([]uint, error) {
	if segment.Type == models.SegmentTypeDynamic {
		return r.Resolve(ctx, segment.FilterCriteria)
	}

	var ids []uint
	if err := r.DB.WithContext(ctx).
		Model(&models.SegmentMember{}).
		Where("segment_id = ?", segment.ID).
		Pluck("contact_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load segment members: %w", err)
	}
	return ids, nil
}

// Validate checks a criteria tree without committing anything and estimates
// how many contacts it would match today.
func (r *Resolver) Validate(ctx context.Context, criteria *models.FilterGroup) (*ValidationResult, error) {
	if errs := ValidateCriteria(criteria); len(errs) > 0 {
		return &ValidationResult{Valid: false, Errors: errs}, nil
	}

	sql, args, err := compileCriteria(criteria)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := r.DB.WithContext(ctx).
		Model(&models.Contact{}).
		Where(sql, args...).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to estimate match count: %w", err)
	}

	return &ValidationResult{Valid: true, Errors: []string{}, EstimatedCount: count}, nil
}

// Recalculate re-resolves a dynamic segment and replaces its cached member
// count. Static segments keep their counts in sync on add/remove and are
// rejected here.
func (r *Resolver) Recalculate(ctx context.Context, segmentID uint) (*models.Segment, error) {
	var segment models.Segment
	if err := r.DB.WithContext(ctx).First(&segment, segmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch segment: %w", err)
	}

	if segment.Type != models.SegmentTypeDynamic {
		return nil, fmt.Errorf("%w: segment %d is not dynamic", ErrInvalidState, segmentID)
	}

	ids, err := r.Resolve(ctx, segment.FilterCriteria)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := r.DB.WithContext(ctx).
		Model(&segment).
		Updates(map[string]interface{}{
			"member_count": len(ids),
			"updated_at":   now,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to update member count: %w", err)
	}

	r.Logger.Printf("Recalculated segment %d: %d members", segmentID, len(ids))
	segment.MemberCount = len(ids)
	return &segment, nil
}
