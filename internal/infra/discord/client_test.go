package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
)

func testNotification() *domain.Notification {
	return &domain.Notification{
		BoardID:   "board-1",
		BoardName: "Roadmap",
		Action:    "card created",
		CardName:  "Ship it",
		ListName:  "Doing",
		Actor:     "Alice",
	}
}

func TestSendMessage(t *testing.T) {
	var gotAuth string
	var gotPayload messagePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/c1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient("bot-token")
	c.SetBaseURL(srv.URL)

	if err := c.SendMessage(context.Background(), "c1", testNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bot bot-token" {
		t.Errorf("expected bot authorization, got %q", gotAuth)
	}
	if len(gotPayload.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(gotPayload.Embeds))
	}
	e := gotPayload.Embeds[0]
	if e.Title != "Roadmap: card created" {
		t.Errorf("unexpected title: %q", e.Title)
	}
	if len(e.Fields) != 2 {
		t.Errorf("expected card and list fields, got %d", len(e.Fields))
	}
	if e.Footer == nil || e.Footer.Text != "by Alice" {
		t.Errorf("unexpected footer: %+v", e.Footer)
	}
}

func TestSendToFallbackChannelUsesSystemChannel(t *testing.T) {
	var sentChannel string
	guildLookups := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/guilds/g1":
			guildLookups++
			json.NewEncoder(w).Encode(map[string]string{"system_channel_id": "sys-1"})
		case "/channels/sys-1/messages":
			sentChannel = "sys-1"
			w.Write([]byte("{}"))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient("bot-token")
	c.SetBaseURL(srv.URL)

	if err := c.SendToFallbackChannel(context.Background(), "g1", testNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sentChannel != "sys-1" {
		t.Error("expected delivery to the system channel")
	}

	// Second send reuses the cached channel
	if err := c.SendToFallbackChannel(context.Background(), "g1", testNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if guildLookups != 1 {
		t.Errorf("expected a single guild lookup, got %d", guildLookups)
	}
}

func TestSendToFallbackChannelFallsBackToTextChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/guilds/g2":
			json.NewEncoder(w).Encode(map[string]string{"system_channel_id": ""})
		case "/guilds/g2/channels":
			json.NewEncoder(w).Encode([]map[string]any{
				{"id": "voice-1", "type": 2},
				{"id": "text-1", "type": 0},
			})
		case "/channels/text-1/messages":
			w.Write([]byte("{}"))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient("bot-token")
	c.SetBaseURL(srv.URL)

	if err := c.SendToFallbackChannel(context.Background(), "g2", testNotification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendMessageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Missing Access"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("bot-token")
	c.SetBaseURL(srv.URL)

	if err := c.SendMessage(context.Background(), "c1", testNotification()); err == nil {
		t.Fatal("expected an error")
	}
}
