package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the configuration core. Callers branch with
// errors.Is; each layer wraps with fmt.Errorf("...: %w", err).
var (
	// ErrNotConfigured means no tier resolved a board/list pair.
	// Callers must abort any board-mutating action rather than guess.
	ErrNotConfigured = errors.New("no board configuration resolved")

	// ErrStoreUnavailable means the durable store is unreachable
	ErrStoreUnavailable = errors.New("config store unavailable")

	// ErrWebhookConflict is the unique-constraint conflict on a webhook
	// registration insert. Resolved by re-reading the winning row, never
	// surfaced to the caller.
	ErrWebhookConflict = errors.New("webhook registration already exists for board")

	// ErrExternalNotFound is the external provider's not-found answer
	ErrExternalNotFound = errors.New("external resource not found")
)

// ValidationError rejects a malformed identifier before any store write
// or external call
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// ExternalAPIError wraps a webhook or message collaborator failure with
// enough context to act on. Batch operations log these per item and
// keep going.
type ExternalAPIError struct {
	Op      string
	BoardID string
	Err     error
}

func (e *ExternalAPIError) Error() string {
	if e.BoardID != "" {
		return fmt.Sprintf("%s failed for board %s: %v", e.Op, e.BoardID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ExternalAPIError) Unwrap() error {
	return e.Err
}

// DeliveryError is a single destination's send failure during routing.
// It never aborts delivery to the remaining destinations.
type DeliveryError struct {
	ChannelID string
	GuildID   string
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.ChannelID != "" {
		return fmt.Sprintf("delivery to channel %s failed: %v", e.ChannelID, e.Err)
	}
	return fmt.Sprintf("delivery to guild %s fallback channel failed: %v", e.GuildID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
