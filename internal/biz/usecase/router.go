package usecase

import (
	"context"
	"fmt"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
)

// BoardAudience is the set of destinations listening to one board:
// channels with an explicit mapping, plus guilds whose default points at
// the board (delivered to the guild's fallback channel)
type BoardAudience struct {
	Mappings      []*domain.ChannelMapping
	DefaultGuilds []string
}

// EventRouter maps one inbound board event to its destination channels
// across guilds, with per-destination failure isolation
type EventRouter struct {
	store     repo.ConfigStore
	messenger repo.Messenger
	metrics   *MetricsBuffer
}

// NewEventRouter creates a new event router
func NewEventRouter(store repo.ConfigStore, messenger repo.Messenger, metrics *MetricsBuffer) *EventRouter {
	return &EventRouter{
		store:     store,
		messenger: messenger,
		metrics:   metrics,
	}
}

// GetChannelsForBoard returns both delivery classes for a board
func (r *EventRouter) GetChannelsForBoard(ctx context.Context, boardID string) (*BoardAudience, error) {
	mappings, err := r.store.ListMappingsForBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings for board %s: %w", boardID, err)
	}

	defaultGuilds, err := r.store.ListDefaultGuildsForBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list default guilds for board %s: %w", boardID, err)
	}

	return &BoardAudience{Mappings: mappings, DefaultGuilds: defaultGuilds}, nil
}

// RouteNotification delivers a notification to every destination
// listening to boardID and returns the count of successful sends. A
// guild with both a direct mapping and a default pointing at the board
// receives one notification via the direct mapping; the default path is
// suppressed for that guild. Each send is attempted independently: one
// destination's failure is logged and never blocks the rest.
func (r *EventRouter) RouteNotification(ctx context.Context, boardID string, n *domain.Notification) (int, error) {
	audience, err := r.GetChannelsForBoard(ctx, boardID)
	if err != nil {
		return 0, err
	}

	delivered := 0
	directGuilds := make(map[string]bool, len(audience.Mappings))

	for _, m := range audience.Mappings {
		directGuilds[m.GuildID] = true
		if err := r.messenger.SendMessage(ctx, m.ChannelID, n); err != nil {
			dErr := &domain.DeliveryError{ChannelID: m.ChannelID, GuildID: m.GuildID, Err: err}
			fmt.Printf("[Router] %v\n", dErr)
			continue
		}
		delivered++
	}

	for _, guildID := range audience.DefaultGuilds {
		if directGuilds[guildID] {
			// Direct mapping already reached this guild
			continue
		}
		if err := r.messenger.SendToFallbackChannel(ctx, guildID, n); err != nil {
			dErr := &domain.DeliveryError{GuildID: guildID, Err: err}
			fmt.Printf("[Router] %v\n", dErr)
			continue
		}
		delivered++
	}

	r.recordMetric(boardID, delivered)
	return delivered, nil
}

func (r *EventRouter) recordMetric(boardID string, delivered int) {
	if r.metrics == nil {
		return
	}
	r.metrics.Append(&domain.MetricRecord{
		Name:    "notifications_delivered",
		Value:   float64(delivered),
		BoardID: boardID,
	})
}
