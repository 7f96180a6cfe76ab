package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
)

// Mock implementations shared by the usecase tests

func mappingKey(guildID, channelID string) string {
	return guildID + ":" + channelID
}

type mockConfigStore struct {
	mappings map[string]*domain.ChannelMapping
	defaults map[string]*domain.DefaultConfig
	webhooks map[string]*domain.WebhookRegistration

	getMappingCalls int
	getDefaultCalls int
	insertCalls     int

	// readErr makes every read fail (store-unavailable simulation)
	readErr error

	// insertRace, when set, seeds the winning row right before this
	// store reports a conflict on insert (register race simulation)
	insertRace *domain.WebhookRegistration
}

func newMockConfigStore() *mockConfigStore {
	return &mockConfigStore{
		mappings: make(map[string]*domain.ChannelMapping),
		defaults: make(map[string]*domain.DefaultConfig),
		webhooks: make(map[string]*domain.WebhookRegistration),
	}
}

func (s *mockConfigStore) GetChannelMapping(ctx context.Context, guildID, channelID string) (*domain.ChannelMapping, error) {
	s.getMappingCalls++
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.mappings[mappingKey(guildID, channelID)], nil
}

func (s *mockConfigStore) UpsertChannelMapping(ctx context.Context, m *domain.ChannelMapping) (*domain.ChannelMapping, error) {
	now := time.Now()
	stored := &domain.ChannelMapping{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		BoardID:   m.BoardID,
		ListID:    m.ListID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mappings[mappingKey(m.GuildID, m.ChannelID)] = stored
	return stored, nil
}

func (s *mockConfigStore) DeleteChannelMapping(ctx context.Context, guildID, channelID string) (bool, error) {
	key := mappingKey(guildID, channelID)
	if _, ok := s.mappings[key]; !ok {
		return false, nil
	}
	delete(s.mappings, key)
	return true, nil
}

func (s *mockConfigStore) DeleteGuildMappings(ctx context.Context, guildID string) (int64, error) {
	var n int64
	for key := range s.mappings {
		if strings.HasPrefix(key, guildID+":") {
			delete(s.mappings, key)
			n++
		}
	}
	return n, nil
}

func (s *mockConfigStore) GetDefaultConfig(ctx context.Context, guildID string) (*domain.DefaultConfig, error) {
	s.getDefaultCalls++
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.defaults[guildID], nil
}

func (s *mockConfigStore) UpsertDefaultConfig(ctx context.Context, d *domain.DefaultConfig) (*domain.DefaultConfig, error) {
	now := time.Now()
	stored := &domain.DefaultConfig{
		GuildID:   d.GuildID,
		BoardID:   d.BoardID,
		ListID:    d.ListID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.defaults[d.GuildID] = stored
	return stored, nil
}

func (s *mockConfigStore) DeleteDefaultConfig(ctx context.Context, guildID string) (bool, error) {
	if _, ok := s.defaults[guildID]; !ok {
		return false, nil
	}
	delete(s.defaults, guildID)
	return true, nil
}

func (s *mockConfigStore) GetWebhookRegistration(ctx context.Context, boardID string) (*domain.WebhookRegistration, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.webhooks[boardID], nil
}

func (s *mockConfigStore) InsertWebhookRegistration(ctx context.Context, w *domain.WebhookRegistration) error {
	s.insertCalls++
	if s.insertRace != nil {
		s.webhooks[s.insertRace.BoardID] = s.insertRace
		s.insertRace = nil
	}
	if _, ok := s.webhooks[w.BoardID]; ok {
		return fmt.Errorf("board %s: %w", w.BoardID, domain.ErrWebhookConflict)
	}
	s.webhooks[w.BoardID] = w
	return nil
}

func (s *mockConfigStore) DeleteWebhookRegistration(ctx context.Context, boardID string) (bool, error) {
	if _, ok := s.webhooks[boardID]; !ok {
		return false, nil
	}
	delete(s.webhooks, boardID)
	return true, nil
}

func (s *mockConfigStore) ListWebhookRegistrations(ctx context.Context) ([]*domain.WebhookRegistration, error) {
	var result []*domain.WebhookRegistration
	for _, w := range s.webhooks {
		result = append(result, w)
	}
	return result, nil
}

func (s *mockConfigStore) ListConfiguredBoardIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var result []string
	for _, m := range s.mappings {
		if !seen[m.BoardID] {
			seen[m.BoardID] = true
			result = append(result, m.BoardID)
		}
	}
	for _, d := range s.defaults {
		if !seen[d.BoardID] {
			seen[d.BoardID] = true
			result = append(result, d.BoardID)
		}
	}
	return result, nil
}

func (s *mockConfigStore) ListMappingsForBoard(ctx context.Context, boardID string) ([]*domain.ChannelMapping, error) {
	var result []*domain.ChannelMapping
	for _, m := range s.mappings {
		if m.BoardID == boardID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *mockConfigStore) ListDefaultGuildsForBoard(ctx context.Context, boardID string) ([]string, error) {
	var result []string
	for guildID, d := range s.defaults {
		if d.BoardID == boardID {
			result = append(result, guildID)
		}
	}
	return result, nil
}

func (s *mockConfigStore) Close() error {
	return nil
}

// mockCache is a plain map cache without expiry
type mockCache struct {
	entries map[string]any
	sets    int
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]any)}
}

func (c *mockCache) Get(key string) (any, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *mockCache) Set(key string, value any, ttl time.Duration) {
	c.entries[key] = value
	c.sets++
}

func (c *mockCache) Delete(key string) {
	delete(c.entries, key)
	c.deletes++
}

func (c *mockCache) InvalidateGuild(guildID string) int {
	removed := 0
	for key := range c.entries {
		if key == repo.DefaultKey(guildID) || strings.HasPrefix(key, repo.GuildKeyPrefix(guildID)) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *mockCache) HealthCheck() repo.CacheHealth {
	return repo.CacheHealth{Healthy: true}
}

func (c *mockCache) Close() {}

// mockWebhookAPI simulates the external webhook provider
type mockWebhookAPI struct {
	createCalls int
	deleteCalls int
	nextID      int
	existing    []repo.WebhookInfo
	deleted     []string
	createErr   error
	listErr     error
}

func (a *mockWebhookAPI) CreateWebhook(ctx context.Context, callbackURL, boardID, description string) (string, error) {
	a.createCalls++
	if a.createErr != nil {
		return "", a.createErr
	}
	a.nextID++
	return fmt.Sprintf("wh-%d", a.nextID), nil
}

func (a *mockWebhookAPI) DeleteWebhook(ctx context.Context, webhookID string) error {
	a.deleteCalls++
	a.deleted = append(a.deleted, webhookID)
	return nil
}

func (a *mockWebhookAPI) ListWebhooks(ctx context.Context) ([]repo.WebhookInfo, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.existing, nil
}

// mockMessenger records sends and can fail specific destinations
type mockMessenger struct {
	sentChannels  []string
	sentFallbacks []string
	failChannels  map[string]bool
	failGuilds    map[string]bool
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{
		failChannels: make(map[string]bool),
		failGuilds:   make(map[string]bool),
	}
}

func (m *mockMessenger) SendMessage(ctx context.Context, channelID string, n *domain.Notification) error {
	if m.failChannels[channelID] {
		return errors.New("missing permissions")
	}
	m.sentChannels = append(m.sentChannels, channelID)
	return nil
}

func (m *mockMessenger) SendToFallbackChannel(ctx context.Context, guildID string, n *domain.Notification) error {
	if m.failGuilds[guildID] {
		return errors.New("no system channel")
	}
	m.sentFallbacks = append(m.sentFallbacks, guildID)
	return nil
}

// mockEventLog records batch and synchronous writes. The buffer loop
// writes from its own goroutine, so access is guarded.
type mockEventLog struct {
	mu           sync.Mutex
	syncEvents   []*domain.AuditEvent
	batches      [][]*domain.AuditEvent
	metricsBatch [][]*domain.MetricRecord
	writeErr     error
}

func (l *mockEventLog) AppendAuditEvent(ctx context.Context, e *domain.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	l.syncEvents = append(l.syncEvents, e)
	return nil
}

func (l *mockEventLog) AppendAuditEvents(ctx context.Context, events []*domain.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	batch := make([]*domain.AuditEvent, len(events))
	copy(batch, events)
	l.batches = append(l.batches, batch)
	return nil
}

func (l *mockEventLog) AppendMetricRecords(ctx context.Context, records []*domain.MetricRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	batch := make([]*domain.MetricRecord, len(records))
	copy(batch, records)
	l.metricsBatch = append(l.metricsBatch, batch)
	return nil
}

func (l *mockEventLog) RecentAuditEvents(ctx context.Context, limit int) ([]*domain.AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var all []*domain.AuditEvent
	for _, b := range l.batches {
		all = append(all, b...)
	}
	return all, nil
}

func (l *mockEventLog) Close() error {
	return nil
}

// batchedEventCount counts distinct event ids across sync and batch
// writes, mirroring the INSERT OR IGNORE dedup of the real event log
func (l *mockEventLog) batchedEventCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]bool)
	for _, e := range l.syncEvents {
		seen[e.ID] = true
	}
	for _, b := range l.batches {
		for _, e := range b {
			seen[e.ID] = true
		}
	}
	return len(seen)
}

func (l *mockEventLog) batchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.batches)
}
