package service

import (
	"context"
	"testing"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
	"github.com/anthropics/trello-discord-bridge/internal/biz/usecase"
)

const (
	boardOne = "5f1234567890abcdef111111"
	boardTwo = "5f1234567890abcdef222222"
)

// MockStore implements the slice of repo.ConfigStore the registry uses
type MockStore struct {
	boardIDs []string
	webhooks map[string]*domain.WebhookRegistration
}

func newMockStore() *MockStore {
	return &MockStore{webhooks: make(map[string]*domain.WebhookRegistration)}
}

func (s *MockStore) GetChannelMapping(ctx context.Context, guildID, channelID string) (*domain.ChannelMapping, error) {
	return nil, nil
}

func (s *MockStore) UpsertChannelMapping(ctx context.Context, m *domain.ChannelMapping) (*domain.ChannelMapping, error) {
	return m, nil
}

func (s *MockStore) DeleteChannelMapping(ctx context.Context, guildID, channelID string) (bool, error) {
	return false, nil
}

func (s *MockStore) DeleteGuildMappings(ctx context.Context, guildID string) (int64, error) {
	return 0, nil
}

func (s *MockStore) GetDefaultConfig(ctx context.Context, guildID string) (*domain.DefaultConfig, error) {
	return nil, nil
}

func (s *MockStore) UpsertDefaultConfig(ctx context.Context, d *domain.DefaultConfig) (*domain.DefaultConfig, error) {
	return d, nil
}

func (s *MockStore) DeleteDefaultConfig(ctx context.Context, guildID string) (bool, error) {
	return false, nil
}

func (s *MockStore) GetWebhookRegistration(ctx context.Context, boardID string) (*domain.WebhookRegistration, error) {
	return s.webhooks[boardID], nil
}

func (s *MockStore) InsertWebhookRegistration(ctx context.Context, w *domain.WebhookRegistration) error {
	s.webhooks[w.BoardID] = w
	return nil
}

func (s *MockStore) DeleteWebhookRegistration(ctx context.Context, boardID string) (bool, error) {
	_, ok := s.webhooks[boardID]
	delete(s.webhooks, boardID)
	return ok, nil
}

func (s *MockStore) ListWebhookRegistrations(ctx context.Context) ([]*domain.WebhookRegistration, error) {
	var out []*domain.WebhookRegistration
	for _, w := range s.webhooks {
		out = append(out, w)
	}
	return out, nil
}

func (s *MockStore) ListConfiguredBoardIDs(ctx context.Context) ([]string, error) {
	return s.boardIDs, nil
}

func (s *MockStore) ListMappingsForBoard(ctx context.Context, boardID string) ([]*domain.ChannelMapping, error) {
	return nil, nil
}

func (s *MockStore) ListDefaultGuildsForBoard(ctx context.Context, boardID string) ([]string, error) {
	return nil, nil
}

func (s *MockStore) Close() error { return nil }

// MockWebhookAPI implements repo.BoardWebhookAPI for testing
type MockWebhookAPI struct {
	external    []repo.WebhookInfo
	createCalls int
}

func (a *MockWebhookAPI) CreateWebhook(ctx context.Context, callbackURL, boardID, description string) (string, error) {
	a.createCalls++
	id := "wh-" + boardID
	a.external = append(a.external, repo.WebhookInfo{ID: id, BoardID: boardID, CallbackURL: callbackURL})
	return id, nil
}

func (a *MockWebhookAPI) DeleteWebhook(ctx context.Context, webhookID string) error {
	return nil
}

func (a *MockWebhookAPI) ListWebhooks(ctx context.Context) ([]repo.WebhookInfo, error) {
	return a.external, nil
}

func TestReconcileRegistersConfiguredBoards(t *testing.T) {
	store := newMockStore()
	store.boardIDs = []string{boardOne, boardTwo}
	api := &MockWebhookAPI{}
	registry := usecase.NewWebhookRegistry(store, api, nil)

	r := NewWebhookReconciler(registry, "https://bridge.example.com/webhooks/trello", time.Hour)
	r.Reconcile(context.Background())

	if api.createCalls != 2 {
		t.Errorf("expected 2 webhook creations, got %d", api.createCalls)
	}
	if len(store.webhooks) != 2 {
		t.Errorf("expected 2 stored registrations, got %d", len(store.webhooks))
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMockStore()
	store.boardIDs = []string{boardOne}
	api := &MockWebhookAPI{}
	registry := usecase.NewWebhookRegistry(store, api, nil)

	r := NewWebhookReconciler(registry, "https://bridge.example.com/webhooks/trello", time.Hour)
	r.Reconcile(context.Background())
	r.Reconcile(context.Background())

	if api.createCalls != 1 {
		t.Errorf("expected a single creation across passes, got %d", api.createCalls)
	}
}

func TestReconcileRemovesOrphanedRows(t *testing.T) {
	store := newMockStore()
	// A local row whose board lost its configuration and whose webhook
	// was deleted externally
	store.webhooks[boardTwo] = &domain.WebhookRegistration{
		BoardID:   boardTwo,
		WebhookID: "wh-gone",
	}
	api := &MockWebhookAPI{}
	registry := usecase.NewWebhookRegistry(store, api, nil)

	r := NewWebhookReconciler(registry, "https://bridge.example.com/webhooks/trello", time.Hour)
	r.Reconcile(context.Background())

	if _, ok := store.webhooks[boardTwo]; ok {
		t.Error("expected orphaned registration to be removed")
	}
}

func TestStartStop(t *testing.T) {
	store := newMockStore()
	registry := usecase.NewWebhookRegistry(store, &MockWebhookAPI{}, nil)

	r := NewWebhookReconciler(registry, "https://bridge.example.com/webhooks/trello", time.Hour)
	r.Start(context.Background())
	r.Stop()
}
