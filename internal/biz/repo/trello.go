package repo

import "context"

// WebhookInfo is one webhook as reported by the external provider
type WebhookInfo struct {
	ID          string
	BoardID     string
	CallbackURL string
	Description string
}

// BoardWebhookAPI is the external webhook collaborator (Trello). The
// core treats it as an opaque RPC surface; retries and timeouts are the
// client's responsibility.
type BoardWebhookAPI interface {
	// CreateWebhook registers a webhook on the provider and returns its id
	CreateWebhook(ctx context.Context, callbackURL, boardID, description string) (string, error)

	// DeleteWebhook removes a webhook; returns domain.ErrExternalNotFound
	// (wrapped) when the provider does not know the id
	DeleteWebhook(ctx context.Context, webhookID string) error

	// ListWebhooks lists every webhook the provider knows about
	ListWebhooks(ctx context.Context) ([]WebhookInfo, error)
}
