package repo

import (
	"context"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
)

// Messenger is the external message-send collaborator (Discord)
type Messenger interface {
	// SendMessage delivers a notification to one channel
	SendMessage(ctx context.Context, channelID string, n *domain.Notification) error

	// SendToFallbackChannel delivers to a guild's designated fallback
	// channel (e.g. its system channel) for default-path routing
	SendToFallbackChannel(ctx context.Context, guildID string, n *domain.Notification) error
}
