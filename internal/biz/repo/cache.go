package repo

import (
	"strings"
	"time"
)

// Cache key namespaces. InvalidateGuild depends on every guild-scoped
// key being built through these helpers.
const (
	channelKeyPrefix = "channel:"
	defaultKeyPrefix = "default:"
	boardKeyPrefix   = "board:"
	listKeyPrefix    = "list:"
)

// ChannelKey builds the cache key for a channel mapping
func ChannelKey(guildID, channelID string) string {
	return channelKeyPrefix + guildID + ":" + channelID
}

// DefaultKey builds the cache key for a guild default
func DefaultKey(guildID string) string {
	return defaultKeyPrefix + guildID
}

// BoardKey builds the cache key for a board validation entry
func BoardKey(boardID string) string {
	return boardKeyPrefix + boardID
}

// ListKey builds the cache key for a list validation entry
func ListKey(listID string) string {
	return listKeyPrefix + listID
}

// IsValidationKey reports whether key belongs to the board/list
// validation namespaces, which carry the longer validation TTL
func IsValidationKey(key string) bool {
	return strings.HasPrefix(key, boardKeyPrefix) || strings.HasPrefix(key, listKeyPrefix)
}

// GuildKeyPrefix returns the prefix shared by a guild's channel keys
func GuildKeyPrefix(guildID string) string {
	return channelKeyPrefix + guildID + ":"
}

// CacheStats are the cache's operation counters
type CacheStats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Deletes int64
	Entries int
	HitRate float64
}

// CacheHealth is the result of the cache's self-test round trip
type CacheHealth struct {
	Healthy bool
	Stats   CacheStats
}

// ConfigCache is the TTL cache in front of ConfigStore. It holds
// time-bounded projections of store rows, never canonical state:
// correctness must not depend on any entry surviving.
type ConfigCache interface {
	// Get returns the value for key, reporting a miss for absent or
	// expired entries
	Get(key string) (any, bool)

	// Set stores value under key with the given TTL; ttl <= 0 uses the
	// namespace default (validation TTL for board/list keys, mapping
	// TTL otherwise)
	Set(key string, value any, ttl time.Duration)

	// Delete removes one entry
	Delete(key string)

	// InvalidateGuild removes all and only the entries namespaced to a
	// guild, returning how many were removed
	InvalidateGuild(guildID string) int

	// HealthCheck performs a set/get/delete round trip on a reserved key
	// and reports counters; it never touches real namespaces
	HealthCheck() CacheHealth

	// Close stops the background sweeper
	Close()
}
