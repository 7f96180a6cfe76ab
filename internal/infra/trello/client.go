package trello

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
)

const defaultBaseURL = "https://api.trello.com/1"

// Client wraps the Trello REST API for webhook management. Implements
// repo.BoardWebhookAPI.
type Client struct {
	apiKey     string
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Trello API client
func NewClient(apiKey, token string) *Client {
	return &Client{
		apiKey:  apiKey,
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetBaseURL overrides the API endpoint (used in tests)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

type webhookPayload struct {
	ID          string `json:"id,omitempty"`
	CallbackURL string `json:"callbackURL"`
	IDModel     string `json:"idModel"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// CreateWebhook creates a webhook watching boardID and returns its id.
// Trello probes callbackURL with a HEAD request before accepting; an
// unreachable callback fails the creation.
func (c *Client) CreateWebhook(ctx context.Context, callbackURL, boardID, description string) (string, error) {
	body, err := json.Marshal(webhookPayload{
		CallbackURL: callbackURL,
		IDModel:     boardID,
		Description: description,
		Active:      true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/webhooks"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook creation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.apiError("create webhook", resp)
	}

	var created webhookPayload
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode webhook response: %w", err)
	}
	return created.ID, nil
}

// DeleteWebhook deletes a webhook by id. A 404 maps to
// domain.ErrExternalNotFound so callers can treat it as already done.
func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/webhooks/"+webhookID), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook deletion request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return domain.ErrExternalNotFound
	default:
		return c.apiError("delete webhook", resp)
	}
}

// ListWebhooks lists every webhook owned by the client's token
func (c *Client) ListWebhooks(ctx context.Context) ([]repo.WebhookInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/tokens/"+c.token+"/webhooks"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError("list webhooks", resp)
	}

	var payload []webhookPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode webhook list: %w", err)
	}

	webhooks := make([]repo.WebhookInfo, 0, len(payload))
	for _, w := range payload {
		webhooks = append(webhooks, repo.WebhookInfo{
			ID:          w.ID,
			BoardID:     w.IDModel,
			CallbackURL: w.CallbackURL,
			Description: w.Description,
		})
	}
	return webhooks, nil
}

// endpoint builds a full URL with the key/token credentials attached
func (c *Client) endpoint(path string) string {
	query := url.Values{}
	query.Set("key", c.apiKey)
	query.Set("token", c.token)
	return c.baseURL + path + "?" + query.Encode()
}

func (c *Client) apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}
