package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
	"github.com/anthropics/trello-discord-bridge/internal/biz/usecase"
)

// signatureHeader carries the base64 HMAC-SHA1 of the raw request body
const signatureHeader = "X-Trello-Webhook"

// Server provides the inbound webhook endpoint and the admin HTTP API
type Server struct {
	resolver *usecase.ConfigResolver
	registry *usecase.WebhookRegistry
	router   *usecase.EventRouter
	cache    repo.ConfigCache
	eventLog repo.EventLog
	audit    *usecase.AuditBuffer

	secret      string
	callbackURL string

	server *http.Server
	port   int
}

// NewServer creates a new API server
func NewServer(
	resolver *usecase.ConfigResolver,
	registry *usecase.WebhookRegistry,
	router *usecase.EventRouter,
	cache repo.ConfigCache,
	eventLog repo.EventLog,
	audit *usecase.AuditBuffer,
	secret, callbackURL string,
	port int,
) *Server {
	return &Server{
		resolver:    resolver,
		registry:    registry,
		router:      router,
		cache:       cache,
		eventLog:    eventLog,
		audit:       audit,
		secret:      secret,
		callbackURL: callbackURL,
		port:        port,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	fmt.Printf("[API] Starting HTTP server on port %d\n", s.port)
	return s.server.ListenAndServe()
}

// Handler builds the route mux (exposed for tests)
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Inbound board events
	mux.HandleFunc("/webhooks/trello", s.handleTrelloWebhook)

	// Guild configuration
	mux.HandleFunc("/api/guilds/", s.handleGuilds)

	// Webhook registry maintenance
	mux.HandleFunc("/api/webhooks/auto-register", s.handleAutoRegister)
	mux.HandleFunc("/api/webhooks/cleanup", s.handleCleanup)

	// Diagnostics
	mux.HandleFunc("/api/cache/health", s.handleCacheHealth)
	mux.HandleFunc("/api/audit/recent", s.handleRecentAudit)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// trelloEvent is the inbound webhook payload shape
type trelloEvent struct {
	Model struct {
		ID string `json:"id"`
	} `json:"model"`
	Action struct {
		Type          string `json:"type"`
		MemberCreator struct {
			FullName string `json:"fullName"`
			Username string `json:"username"`
		} `json:"memberCreator"`
		Data struct {
			Board struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"board"`
			Card struct {
				Name string `json:"name"`
			} `json:"card"`
			List struct {
				Name string `json:"name"`
			} `json:"list"`
		} `json:"data"`
	} `json:"action"`
}

// handleTrelloWebhook verifies and routes one inbound board event.
// Trello probes the callback URL with a HEAD request on webhook
// creation; that probe must get a 200 with no verification.
func (s *Server) handleTrelloWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !s.verifySignature(body, r.Header.Get(signatureHeader)) {
		s.recordAudit(r.Context(), "webhook.signature_rejected", domain.SeverityCritical,
			fmt.Sprintf("remote=%s", r.RemoteAddr))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event trelloEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// Authenticated but malformed: a client error, not ours
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	boardID := event.Model.ID
	if boardID == "" {
		boardID = event.Action.Data.Board.ID
	}
	if boardID == "" {
		http.Error(w, "payload carries no board id", http.StatusBadRequest)
		return
	}

	notification := &domain.Notification{
		BoardID:   boardID,
		BoardName: event.Action.Data.Board.Name,
		Action:    describeAction(event.Action.Type),
		CardName:  event.Action.Data.Card.Name,
		ListName:  event.Action.Data.List.Name,
		Actor:     event.Action.MemberCreator.FullName,
	}
	if notification.Actor == "" {
		notification.Actor = event.Action.MemberCreator.Username
	}

	delivered, err := s.router.RouteNotification(r.Context(), boardID, notification)
	if err != nil {
		fmt.Printf("[API] Failed to route event for board %s: %v\n", boardID, err)
		http.Error(w, "routing failed", http.StatusInternalServerError)
		return
	}

	fmt.Printf("[API] Routed %s event for board %s to %d destinations\n", event.Action.Type, boardID, delivered)

	// Partial delivery failures are logged per destination, not surfaced
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// verifySignature recomputes the base64 HMAC-SHA1 of the raw body and
// compares in constant time
func (s *Server) verifySignature(body []byte, header string) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha1.New, []byte(s.secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// actionDescriptions maps the common event types to readable text
var actionDescriptions = map[string]string{
	"createCard":      "card created",
	"updateCard":      "card updated",
	"deleteCard":      "card deleted",
	"commentCard":     "card commented",
	"addMemberToCard": "member added to card",
	"createList":      "list created",
	"updateList":      "list updated",
	"updateBoard":     "board updated",
}

func describeAction(actionType string) string {
	if desc, ok := actionDescriptions[actionType]; ok {
		return desc
	}
	return actionType
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	health := s.cache.HealthCheck()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"cache": map[string]any{
			"healthy": health.Healthy,
			"entries": health.Stats.Entries,
		},
	})
}

// mappingRequest is the body of mapping/default PUT requests
type mappingRequest struct {
	BoardID string `json:"board_id"`
	ListID  string `json:"list_id"`
}

// handleGuilds dispatches the guild configuration routes:
//
//	PUT/DELETE /api/guilds/{guild}/default
//	GET/PUT/DELETE /api/guilds/{guild}/channels/{channel}/mapping
//	GET /api/guilds/{guild}/channels/{channel}/config
//	POST /api/guilds/{guild}/reset
func (s *Server) handleGuilds(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/guilds/"), "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	guildID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "default":
		s.handleGuildDefault(w, r, guildID)
	case len(parts) == 2 && parts[1] == "reset":
		s.handleGuildReset(w, r, guildID)
	case len(parts) == 4 && parts[1] == "channels" && parts[3] == "mapping":
		s.handleChannelMapping(w, r, guildID, parts[2])
	case len(parts) == 4 && parts[1] == "channels" && parts[3] == "config":
		s.handleChannelConfig(w, r, guildID, parts[2])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleGuildDefault(w http.ResponseWriter, r *http.Request, guildID string) {
	actor := requestActor(r)

	switch r.Method {
	case http.MethodPut:
		var req mappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		d, err := s.resolver.SetDefaultConfig(r.Context(), guildID, req.BoardID, req.ListID, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"guild_id": d.GuildID,
			"board_id": d.BoardID,
			"list_id":  d.ListID,
		})
	case http.MethodDelete:
		removed, err := s.resolver.RemoveDefaultConfig(r.Context(), guildID, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleChannelMapping(w http.ResponseWriter, r *http.Request, guildID, channelID string) {
	actor := requestActor(r)

	switch r.Method {
	case http.MethodPut:
		var req mappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		m, err := s.resolver.SetChannelMapping(r.Context(), guildID, channelID, req.BoardID, req.ListID, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"guild_id":   m.GuildID,
			"channel_id": m.ChannelID,
			"board_id":   m.BoardID,
			"list_id":    m.ListID,
		})
	case http.MethodDelete:
		removed, err := s.resolver.RemoveChannelMapping(r.Context(), guildID, channelID, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleChannelConfig(w http.ResponseWriter, r *http.Request, guildID, channelID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, err := s.resolver.Resolve(r.Context(), guildID, channelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"board_id": cfg.BoardID,
		"list_id":  cfg.ListID,
		"source":   string(cfg.Source),
	})
}

func (s *Server) handleGuildReset(w http.ResponseWriter, r *http.Request, guildID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	removed, err := s.resolver.ResetGuild(r.Context(), guildID, requestActor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings_removed": removed})
}

type autoRegisterRequest struct {
	CallbackURL string `json:"callback_url"`
}

func (s *Server) handleAutoRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Body is optional; absent means use the configured callback URL
	var req autoRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = s.callbackURL
	}

	result, err := s.registry.AutoRegisterForConfiguredBoards(r.Context(), callbackURL)
	if err != nil {
		writeError(w, err)
		return
	}

	boards := make([]map[string]any, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		entry := map[string]any{
			"board_id":   o.BoardID,
			"webhook_id": o.WebhookID,
			"existed":    o.Existed,
		}
		if o.Err != nil {
			entry["error"] = o.Err.Error()
		}
		boards = append(boards, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":      result.Total,
		"successful": result.Successful,
		"boards":     boards,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cleaned, err := s.registry.CleanupOrphanedWebhooks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleaned_up": cleaned})
}

func (s *Server) handleCacheHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.cache.HealthCheck()
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy": health.Healthy,
		"stats": map[string]any{
			"hits":     health.Stats.Hits,
			"misses":   health.Stats.Misses,
			"sets":     health.Stats.Sets,
			"deletes":  health.Stats.Deletes,
			"entries":  health.Stats.Entries,
			"hit_rate": health.Stats.HitRate,
		},
	})
}

func (s *Server) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.eventLog.RecentAuditEvents(r.Context(), 50)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"id":         e.ID,
			"action":     e.Action,
			"severity":   string(e.Severity),
			"guild_id":   e.GuildID,
			"channel_id": e.ChannelID,
			"board_id":   e.BoardID,
			"actor":      e.Actor,
			"detail":     e.Detail,
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) recordAudit(ctx context.Context, action string, severity domain.Severity, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Append(ctx, &domain.AuditEvent{
		Action:   action,
		Severity: severity,
		Detail:   detail,
	})
}

// requestActor identifies the admin performing a mutation for audit
// attribution
func requestActor(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "api"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps core errors onto HTTP statuses with enough context to
// act on
func writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var apiErr *domain.ExternalAPIError

	switch {
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrStoreUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &apiErr):
		http.Error(w, apiErr.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
