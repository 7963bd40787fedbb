// Package engine implements the prospect outreach orchestration core:
// segment membership resolution, sequence enrollment, step scheduling and
// the draft review state machine.
package engine

import "errors"

var (
	// ErrInvalidCriteria means a filter tree referenced an unknown field or
	// operator. Rejected before any query or mutation runs.
	ErrInvalidCriteria = errors.New("invalid filter criteria")

	// ErrInvalidState means a status transition was attempted on an entity
	// that is no longer in the expected prior state. Callers should treat it
	// as "someone else already resolved this" and refetch, not retry.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrDraftExpired means approve/edit was attempted after the draft's
	// review window closed.
	ErrDraftExpired = errors.New("draft review window has expired")

	// ErrNotFound is returned for lookups of missing entities.
	ErrNotFound = errors.New("not found")
)
