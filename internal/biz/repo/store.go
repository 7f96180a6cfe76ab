package repo

import (
	"context"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
)

// ConfigStore is the durable storage for channel mappings, guild
// defaults, and webhook registrations (SQLite). Lookups return
// (nil, nil) when no row exists.
type ConfigStore interface {
	// GetChannelMapping gets the mapping for a (guild, channel) pair
	GetChannelMapping(ctx context.Context, guildID, channelID string) (*domain.ChannelMapping, error)

	// UpsertChannelMapping creates or updates the mapping; the unique
	// constraint on (guild_id, channel_id) makes this idempotent
	UpsertChannelMapping(ctx context.Context, m *domain.ChannelMapping) (*domain.ChannelMapping, error)

	// DeleteChannelMapping removes the mapping, reporting whether a row existed
	DeleteChannelMapping(ctx context.Context, guildID, channelID string) (bool, error)

	// DeleteGuildMappings removes every mapping for a guild (bulk reset)
	DeleteGuildMappings(ctx context.Context, guildID string) (int64, error)

	// GetDefaultConfig gets the guild-wide default
	GetDefaultConfig(ctx context.Context, guildID string) (*domain.DefaultConfig, error)

	// UpsertDefaultConfig creates or updates the guild-wide default
	UpsertDefaultConfig(ctx context.Context, d *domain.DefaultConfig) (*domain.DefaultConfig, error)

	// DeleteDefaultConfig removes the guild-wide default, reporting whether a row existed
	DeleteDefaultConfig(ctx context.Context, guildID string) (bool, error)

	// GetWebhookRegistration gets the local registration row for a board
	GetWebhookRegistration(ctx context.Context, boardID string) (*domain.WebhookRegistration, error)

	// InsertWebhookRegistration inserts the registration row; returns
	// domain.ErrWebhookConflict (wrapped) when a row for the board
	// already exists
	InsertWebhookRegistration(ctx context.Context, w *domain.WebhookRegistration) error

	// DeleteWebhookRegistration removes the registration row for a board
	DeleteWebhookRegistration(ctx context.Context, boardID string) (bool, error)

	// ListWebhookRegistrations lists all local registration rows
	ListWebhookRegistrations(ctx context.Context) ([]*domain.WebhookRegistration, error)

	// ListConfiguredBoardIDs returns the distinct union of all mapping
	// board ids and all default-config board ids
	ListConfiguredBoardIDs(ctx context.Context) ([]string, error)

	// ListMappingsForBoard lists every channel mapping bound to a board
	ListMappingsForBoard(ctx context.Context, boardID string) ([]*domain.ChannelMapping, error)

	// ListDefaultGuildsForBoard lists guilds whose default points at a board
	ListDefaultGuildsForBoard(ctx context.Context, boardID string) ([]string, error)

	// Close closes the underlying database
	Close() error
}

// EventLog is the durable sink for buffered audit events and metric
// records. Batch writes happen on buffer flush; single writes serve the
// critical-severity fast path.
type EventLog interface {
	// AppendAuditEvent writes one event synchronously (critical path)
	AppendAuditEvent(ctx context.Context, e *domain.AuditEvent) error

	// AppendAuditEvents writes a drained buffer as one batch
	AppendAuditEvents(ctx context.Context, events []*domain.AuditEvent) error

	// AppendMetricRecords writes a drained metrics buffer as one batch
	AppendMetricRecords(ctx context.Context, records []*domain.MetricRecord) error

	// RecentAuditEvents lists the newest events (for debugging)
	RecentAuditEvents(ctx context.Context, limit int) ([]*domain.AuditEvent, error)

	// Close closes the underlying database
	Close() error
}
