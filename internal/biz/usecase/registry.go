package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
)

// WebhookRegistry ensures at most one external webhook exists per board.
// The local store records intent; the external provider is the source of
// truth for existence.
type WebhookRegistry struct {
	store repo.ConfigStore
	api   repo.BoardWebhookAPI
	audit *AuditBuffer
}

// NewWebhookRegistry creates a new webhook registry
func NewWebhookRegistry(store repo.ConfigStore, api repo.BoardWebhookAPI, audit *AuditBuffer) *WebhookRegistry {
	return &WebhookRegistry{
		store: store,
		api:   api,
		audit: audit,
	}
}

// RegisterBoardWebhook registers a webhook for boardID, idempotently: an
// existing local row is returned without calling the external create
// API. Two concurrent calls for the same unregistered board can both
// pass the existence check; the store's unique constraint turns the
// second insert into a conflict, which is resolved by re-reading the
// winning row and returning its webhook id.
func (r *WebhookRegistry) RegisterBoardWebhook(ctx context.Context, boardID, callbackURL, description string) (*domain.RegistrationResult, error) {
	if err := domain.ValidateBoardID(boardID); err != nil {
		return nil, err
	}

	existing, err := r.store.GetWebhookRegistration(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to check webhook registration: %w", err)
	}
	if existing != nil {
		return &domain.RegistrationResult{
			BoardID:   boardID,
			WebhookID: existing.WebhookID,
			Existed:   true,
		}, nil
	}

	webhookID, err := r.api.CreateWebhook(ctx, callbackURL, boardID, description)
	if err != nil {
		return nil, &domain.ExternalAPIError{Op: "create webhook", BoardID: boardID, Err: err}
	}

	err = r.store.InsertWebhookRegistration(ctx, &domain.WebhookRegistration{
		BoardID:     boardID,
		WebhookID:   webhookID,
		CallbackURL: callbackURL,
		Description: description,
	})
	if errors.Is(err, domain.ErrWebhookConflict) {
		// Lost the race: a concurrent call registered first. Return the
		// winner's row and drop the webhook this call just created so
		// the board keeps exactly one external webhook.
		winner, readErr := r.store.GetWebhookRegistration(ctx, boardID)
		if readErr != nil || winner == nil {
			return nil, fmt.Errorf("failed to re-read webhook registration after conflict: %w", readErr)
		}
		if delErr := r.api.DeleteWebhook(ctx, webhookID); delErr != nil && !errors.Is(delErr, domain.ErrExternalNotFound) {
			fmt.Printf("[Registry] Failed to delete duplicate webhook %s for board %s: %v\n", webhookID, boardID, delErr)
		}
		return &domain.RegistrationResult{
			BoardID:   boardID,
			WebhookID: winner.WebhookID,
			Existed:   true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist webhook registration: %w", err)
	}

	r.recordAudit(ctx, "webhook.register", domain.SeverityInfo, boardID, "webhook "+webhookID)
	return &domain.RegistrationResult{
		BoardID:   boardID,
		WebhookID: webhookID,
		Existed:   false,
	}, nil
}

// UnregisterBoardWebhook removes the webhook for boardID. A not-found
// answer from the external side counts as success (the end state is
// already achieved), and the local row is removed once the external
// delete has been attempted.
func (r *WebhookRegistry) UnregisterBoardWebhook(ctx context.Context, boardID string) (bool, error) {
	reg, err := r.store.GetWebhookRegistration(ctx, boardID)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook registration: %w", err)
	}
	if reg == nil {
		return false, nil
	}

	if err := r.api.DeleteWebhook(ctx, reg.WebhookID); err != nil && !errors.Is(err, domain.ErrExternalNotFound) {
		fmt.Printf("[Registry] External delete of webhook %s for board %s failed, removing local row anyway: %v\n",
			reg.WebhookID, boardID, err)
	}

	if _, err := r.store.DeleteWebhookRegistration(ctx, boardID); err != nil {
		return false, fmt.Errorf("failed to delete webhook registration: %w", err)
	}

	r.recordAudit(ctx, "webhook.unregister", domain.SeverityInfo, boardID, "webhook "+reg.WebhookID)
	return true, nil
}

// AutoRegisterForConfiguredBoards registers a webhook for every distinct
// board referenced by a channel mapping or a guild default. One board's
// failure never aborts the others; outcomes are collected per board.
func (r *WebhookRegistry) AutoRegisterForConfiguredBoards(ctx context.Context, callbackURL string) (*domain.AutoRegisterResult, error) {
	boardIDs, err := r.store.ListConfiguredBoardIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list configured boards: %w", err)
	}

	result := &domain.AutoRegisterResult{Total: len(boardIDs)}
	for _, boardID := range boardIDs {
		reg, err := r.RegisterBoardWebhook(ctx, boardID, callbackURL, "auto-registered board webhook")
		if err != nil {
			fmt.Printf("[Registry] Auto-register failed for board %s: %v\n", boardID, err)
			result.Outcomes = append(result.Outcomes, domain.BoardRegistrationOutcome{BoardID: boardID, Err: err})
			continue
		}
		result.Successful++
		result.Outcomes = append(result.Outcomes, domain.BoardRegistrationOutcome{
			BoardID:   boardID,
			WebhookID: reg.WebhookID,
			Existed:   reg.Existed,
		})
	}

	fmt.Printf("[Registry] Auto-registered webhooks for %d/%d configured boards\n", result.Successful, result.Total)
	return result, nil
}

// CleanupOrphanedWebhooks reconciles the local ledger against the
// external provider: local rows whose webhook id the provider no longer
// knows are removed. Nothing is created or deleted externally.
func (r *WebhookRegistry) CleanupOrphanedWebhooks(ctx context.Context) (int, error) {
	external, err := r.api.ListWebhooks(ctx)
	if err != nil {
		return 0, &domain.ExternalAPIError{Op: "list webhooks", Err: err}
	}

	alive := make(map[string]bool, len(external))
	for _, w := range external {
		alive[w.ID] = true
	}

	local, err := r.store.ListWebhookRegistrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list webhook registrations: %w", err)
	}

	cleaned := 0
	for _, reg := range local {
		if alive[reg.WebhookID] {
			continue
		}
		removed, err := r.store.DeleteWebhookRegistration(ctx, reg.BoardID)
		if err != nil {
			fmt.Printf("[Registry] Failed to remove orphaned registration for board %s: %v\n", reg.BoardID, err)
			continue
		}
		if removed {
			cleaned++
			r.recordAudit(ctx, "webhook.orphan_cleanup", domain.SeverityWarning, reg.BoardID, "webhook "+reg.WebhookID+" gone externally")
		}
	}

	if cleaned > 0 {
		fmt.Printf("[Registry] Cleaned up %d orphaned webhook registrations\n", cleaned)
	}
	return cleaned, nil
}

func (r *WebhookRegistry) recordAudit(ctx context.Context, action string, severity domain.Severity, boardID, detail string) {
	if r.audit == nil {
		return
	}
	r.audit.Append(ctx, &domain.AuditEvent{
		Action:   action,
		Severity: severity,
		BoardID:  boardID,
		Detail:   detail,
	})
}
