package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
)

// ResolverConfig contains resolver configuration
type ResolverConfig struct {
	// Fallback is the optional environment-level (board, list) pair of
	// last resort. nil means no environment fallback is configured.
	Fallback *domain.BoardConfig

	// MappingTTL is the cache TTL for channel/default entries
	MappingTTL time.Duration
}

// ConfigResolver computes the effective board/list configuration for a
// (guild, channel) pair: explicit channel mapping, then guild default,
// then the environment-level fallback. Each tier consults the cache
// before the store; store hits repopulate the cache.
type ConfigResolver struct {
	store repo.ConfigStore
	cache repo.ConfigCache
	audit *AuditBuffer
	cfg   ResolverConfig
}

// NewConfigResolver creates a new config resolver
func NewConfigResolver(store repo.ConfigStore, cache repo.ConfigCache, audit *AuditBuffer, cfg ResolverConfig) *ConfigResolver {
	return &ConfigResolver{
		store: store,
		cache: cache,
		audit: audit,
		cfg:   cfg,
	}
}

// Resolve returns the effective configuration for (guildID, channelID),
// tagged with the precedence tier that produced it. Returns
// domain.ErrNotConfigured when no tier applies; callers must treat that
// as a hard stop before any card-mutating operation.
func (r *ConfigResolver) Resolve(ctx context.Context, guildID, channelID string) (*domain.ResolvedConfig, error) {
	// Tier 1: explicit channel mapping
	mapping, err := r.lookupMapping(ctx, guildID, channelID)
	if err != nil {
		return r.degrade(guildID, channelID, err)
	}
	if mapping != nil {
		return &domain.ResolvedConfig{
			BoardConfig: mapping.Config(),
			Source:      domain.SourceExplicit,
			GuildID:     guildID,
			ChannelID:   channelID,
		}, nil
	}

	// Tier 2: guild default
	def, err := r.lookupDefault(ctx, guildID)
	if err != nil {
		return r.degrade(guildID, channelID, err)
	}
	if def != nil {
		return &domain.ResolvedConfig{
			BoardConfig: def.Config(),
			Source:      domain.SourceGuildDefault,
			GuildID:     guildID,
			ChannelID:   channelID,
		}, nil
	}

	// Tier 3: environment-level fallback
	if r.cfg.Fallback != nil {
		return &domain.ResolvedConfig{
			BoardConfig: *r.cfg.Fallback,
			Source:      domain.SourceEnvironmentDefault,
			GuildID:     guildID,
			ChannelID:   channelID,
		}, nil
	}

	return nil, domain.ErrNotConfigured
}

// lookupMapping consults cache then store for the explicit mapping tier
func (r *ConfigResolver) lookupMapping(ctx context.Context, guildID, channelID string) (*domain.ChannelMapping, error) {
	key := repo.ChannelKey(guildID, channelID)
	if v, ok := r.cache.Get(key); ok {
		if m, ok := v.(*domain.ChannelMapping); ok {
			return m, nil
		}
	}

	m, err := r.store.GetChannelMapping(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		r.cache.Set(key, m, r.cfg.MappingTTL)
	}
	return m, nil
}

// lookupDefault consults cache then store for the guild-default tier
func (r *ConfigResolver) lookupDefault(ctx context.Context, guildID string) (*domain.DefaultConfig, error) {
	key := repo.DefaultKey(guildID)
	if v, ok := r.cache.Get(key); ok {
		if d, ok := v.(*domain.DefaultConfig); ok {
			return d, nil
		}
	}

	d, err := r.store.GetDefaultConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if d != nil {
		r.cache.Set(key, d, r.cfg.MappingTTL)
	}
	return d, nil
}

// degrade handles a store read failure: fall back to the environment
// default when one is configured, otherwise surface StoreUnavailable.
// The resolver never fabricates a pair that was not actually configured.
func (r *ConfigResolver) degrade(guildID, channelID string, err error) (*domain.ResolvedConfig, error) {
	if r.cfg.Fallback != nil {
		fmt.Printf("[Resolver] Store unavailable, degrading to environment fallback for guild=%s channel=%s: %v\n", guildID, channelID, err)
		return &domain.ResolvedConfig{
			BoardConfig: *r.cfg.Fallback,
			Source:      domain.SourceEnvironmentDefault,
			GuildID:     guildID,
			ChannelID:   channelID,
		}, nil
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// validateConfig checks a (board, list) pair, consulting the validation
// sub-cache first: ids that already passed are cached under their
// board:/list: keys at the validation TTL, so repeated mutations
// referencing the same board skip the check
func (r *ConfigResolver) validateConfig(boardID, listID string) error {
	if err := r.validateID(repo.BoardKey(boardID), boardID, domain.ValidateBoardID); err != nil {
		return err
	}
	return r.validateID(repo.ListKey(listID), listID, domain.ValidateListID)
}

func (r *ConfigResolver) validateID(key, id string, validate func(string) error) error {
	if _, ok := r.cache.Get(key); ok {
		return nil
	}
	if err := validate(id); err != nil {
		return err
	}
	// ttl 0 lets the cache apply its validation-namespace TTL
	r.cache.Set(key, true, 0)
	return nil
}

// SetChannelMapping upserts the explicit mapping for (guildID, channelID)
// and overwrites the cache entry so the next read is fast and correct
// without a store round trip
func (r *ConfigResolver) SetChannelMapping(ctx context.Context, guildID, channelID, boardID, listID, actor string) (*domain.ChannelMapping, error) {
	if err := r.validateConfig(boardID, listID); err != nil {
		return nil, err
	}

	m, err := r.store.UpsertChannelMapping(ctx, &domain.ChannelMapping{
		GuildID:   guildID,
		ChannelID: channelID,
		BoardID:   boardID,
		ListID:    listID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set channel mapping: %w", err)
	}

	r.cache.Set(repo.ChannelKey(guildID, channelID), m, r.cfg.MappingTTL)
	r.recordAudit(ctx, "channel_mapping.set", domain.SeverityInfo, guildID, channelID, boardID, actor, "list "+listID)
	return m, nil
}

// RemoveChannelMapping removes the explicit mapping; removed is false
// (not an error) when no mapping existed
func (r *ConfigResolver) RemoveChannelMapping(ctx context.Context, guildID, channelID, actor string) (bool, error) {
	removed, err := r.store.DeleteChannelMapping(ctx, guildID, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to remove channel mapping: %w", err)
	}

	r.cache.Delete(repo.ChannelKey(guildID, channelID))
	if removed {
		r.recordAudit(ctx, "channel_mapping.remove", domain.SeverityInfo, guildID, channelID, "", actor, "")
	}
	return removed, nil
}

// SetDefaultConfig upserts the guild-wide default and overwrites its
// cache entry
func (r *ConfigResolver) SetDefaultConfig(ctx context.Context, guildID, boardID, listID, actor string) (*domain.DefaultConfig, error) {
	if err := r.validateConfig(boardID, listID); err != nil {
		return nil, err
	}

	d, err := r.store.UpsertDefaultConfig(ctx, &domain.DefaultConfig{
		GuildID: guildID,
		BoardID: boardID,
		ListID:  listID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set default config: %w", err)
	}

	r.cache.Set(repo.DefaultKey(guildID), d, r.cfg.MappingTTL)
	r.recordAudit(ctx, "default_config.set", domain.SeverityInfo, guildID, "", boardID, actor, "list "+listID)
	return d, nil
}

// RemoveDefaultConfig removes the guild-wide default; removed is false
// when none existed
func (r *ConfigResolver) RemoveDefaultConfig(ctx context.Context, guildID, actor string) (bool, error) {
	removed, err := r.store.DeleteDefaultConfig(ctx, guildID)
	if err != nil {
		return false, fmt.Errorf("failed to remove default config: %w", err)
	}

	r.cache.Delete(repo.DefaultKey(guildID))
	if removed {
		r.recordAudit(ctx, "default_config.remove", domain.SeverityInfo, guildID, "", "", actor, "")
	}
	return removed, nil
}

// ResetGuild removes every mapping and the default for a guild, then
// invalidates all of the guild's cache entries in one sweep
func (r *ConfigResolver) ResetGuild(ctx context.Context, guildID, actor string) (int64, error) {
	mappings, err := r.store.DeleteGuildMappings(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset guild mappings: %w", err)
	}

	defaultRemoved, err := r.store.DeleteDefaultConfig(ctx, guildID)
	if err != nil {
		return mappings, fmt.Errorf("failed to reset guild default: %w", err)
	}

	invalidated := r.cache.InvalidateGuild(guildID)
	fmt.Printf("[Resolver] Guild %s reset: %d mappings removed, default removed=%v, %d cache entries invalidated\n",
		guildID, mappings, defaultRemoved, invalidated)

	r.recordAudit(ctx, "guild.reset", domain.SeverityWarning, guildID, "", "", actor,
		fmt.Sprintf("%d mappings removed", mappings))
	return mappings, nil
}

func (r *ConfigResolver) recordAudit(ctx context.Context, action string, severity domain.Severity, guildID, channelID, boardID, actor, detail string) {
	if r.audit == nil {
		return
	}
	r.audit.Append(ctx, &domain.AuditEvent{
		Action:    action,
		Severity:  severity,
		GuildID:   guildID,
		ChannelID: channelID,
		BoardID:   boardID,
		Actor:     actor,
		Detail:    detail,
	})
}
