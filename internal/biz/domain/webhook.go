package domain

import "time"

// WebhookRegistration is the local record of intent that a webhook exists
// for a board. Exactly one row per BoardID; the external provider remains
// the source of truth for whether the webhook actually exists.
type WebhookRegistration struct {
	BoardID     string
	WebhookID   string
	CallbackURL string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RegistrationResult reports the outcome of a single board registration
type RegistrationResult struct {
	BoardID   string
	WebhookID string
	// Existed is true when a registration was already present and no
	// external create call was made
	Existed bool
}

// BoardRegistrationOutcome is one entry of a bulk registration run
type BoardRegistrationOutcome struct {
	BoardID   string
	WebhookID string
	Existed   bool
	Err       error
}

// AutoRegisterResult collects per-board outcomes of a bulk registration.
// One board's failure never aborts the rest of the run.
type AutoRegisterResult struct {
	Total      int
	Successful int
	Outcomes   []BoardRegistrationOutcome
}
