package engine

import "context"

// OutboundEmail is one approved draft handed to the send transport.
type OutboundEmail struct {
	To        string
	ToName    string
	Subject   string
	BodyHTML  string
	MessageID string
}

// Sender is the external send transport. The engine only calls it after a
// draft's terminal status is durably committed; a failure here is recorded
// against the draft, never rolled back (at-least-once semantics).
type Sender interface {
	Send(ctx context.Context, email OutboundEmail) error
}
