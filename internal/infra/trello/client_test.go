package trello

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
)

func TestCreateWebhook(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/webhooks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" || r.URL.Query().Get("token") != "tok" {
			t.Error("expected credentials in query string")
		}
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]string{"id": "wh-123"})
	}))
	defer srv.Close()

	c := NewClient("k", "tok")
	c.SetBaseURL(srv.URL)

	id, err := c.CreateWebhook(context.Background(), "https://bridge.example.com/webhooks/trello", "board-1", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "wh-123" {
		t.Errorf("expected wh-123, got %q", id)
	}
	if gotPayload["idModel"] != "board-1" {
		t.Errorf("expected idModel board-1, got %v", gotPayload["idModel"])
	}
}

func TestDeleteWebhookNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("k", "tok")
	c.SetBaseURL(srv.URL)

	err := c.DeleteWebhook(context.Background(), "wh-gone")
	if !errors.Is(err, domain.ErrExternalNotFound) {
		t.Errorf("expected ErrExternalNotFound, got %v", err)
	}
}

func TestListWebhooks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tokens/tok/webhooks" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]string{
			{"id": "wh-1", "idModel": "board-1", "callbackURL": "https://a.example.com"},
			{"id": "wh-2", "idModel": "board-2", "callbackURL": "https://b.example.com"},
		})
	}))
	defer srv.Close()

	c := NewClient("k", "tok")
	c.SetBaseURL(srv.URL)

	webhooks, err := c.ListWebhooks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(webhooks) != 2 {
		t.Fatalf("expected 2 webhooks, got %d", len(webhooks))
	}
	if webhooks[0].ID != "wh-1" || webhooks[0].BoardID != "board-1" {
		t.Errorf("unexpected first webhook: %+v", webhooks[0])
	}
}

func TestCreateWebhookServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid idModel", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("k", "tok")
	c.SetBaseURL(srv.URL)

	if _, err := c.CreateWebhook(context.Background(), "https://bridge.example.com", "bogus", ""); err == nil {
		t.Fatal("expected an error")
	}
}
