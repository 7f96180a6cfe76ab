package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/usecase"
	"github.com/anthropics/trello-discord-bridge/internal/data"
)

// Config represents application configuration
type Config struct {
	// Trello configuration
	Trello TrelloConfig

	// Discord configuration
	Discord DiscordConfig

	// Server configuration
	Server ServerConfig

	// Store configuration
	Store StoreConfig

	// Fallback is the optional environment-level (board, list) pair.
	// nil means no environment fallback is configured.
	Fallback *FallbackConfig

	// Tunables loaded from YAML (cache TTLs, buffer sizes, reconciler)
	Tunables *Tunables

	// Debug mode
	Debug bool
}

// TrelloConfig contains Trello API credentials and the webhook secret
type TrelloConfig struct {
	APIKey string
	Token  string
	// WebhookSecret signs inbound webhook payloads (HMAC-SHA1)
	WebhookSecret string
}

// DiscordConfig contains Discord bot configuration
type DiscordConfig struct {
	BotToken string
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int
	// CallbackURL is the public URL Trello calls back, e.g.
	// https://bridge.example.com/webhooks/trello
	CallbackURL string
}

// StoreConfig contains storage configuration
type StoreConfig struct {
	DBPath string
}

// FallbackConfig is the environment-level board/list pair of last resort
type FallbackConfig struct {
	BoardID string
	ListID  string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	dbPath := os.Getenv("BRIDGE_DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".trello-discord-bridge", "bridge.db")
	}

	port := 8080
	if val := os.Getenv("PORT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			port = parsed
		}
	}

	var fallback *FallbackConfig
	if boardID := os.Getenv("FALLBACK_BOARD_ID"); boardID != "" {
		fallback = &FallbackConfig{
			BoardID: boardID,
			ListID:  os.Getenv("FALLBACK_LIST_ID"),
		}
	}

	tunables, _ := LoadTunables(os.Getenv("BRIDGE_CONFIG_PATH"))

	return &Config{
		Trello: TrelloConfig{
			APIKey:        os.Getenv("TRELLO_API_KEY"),
			Token:         os.Getenv("TRELLO_TOKEN"),
			WebhookSecret: os.Getenv("TRELLO_WEBHOOK_SECRET"),
		},
		Discord: DiscordConfig{
			BotToken: os.Getenv("DISCORD_BOT_TOKEN"),
		},
		Server: ServerConfig{
			Port:        port,
			CallbackURL: os.Getenv("CALLBACK_URL"),
		},
		Store: StoreConfig{
			DBPath: dbPath,
		},
		Fallback: fallback,
		Tunables: tunables,
		Debug:    os.Getenv("DEBUG") == "true",
	}
}

// ToCacheConfig converts tunables to the cache configuration
func (c *Config) ToCacheConfig() data.CacheConfig {
	cfg := data.DefaultCacheConfig()
	if c.Tunables == nil {
		return cfg
	}
	t := c.Tunables.Cache
	if t.MappingTTLMinutes > 0 {
		cfg.MappingTTL = time.Duration(t.MappingTTLMinutes) * time.Minute
	}
	if t.ValidationTTLMinutes > 0 {
		cfg.ValidationTTL = time.Duration(t.ValidationTTLMinutes) * time.Minute
	}
	if t.MaxEntries > 0 {
		cfg.MaxEntries = t.MaxEntries
	}
	if t.SweepIntervalSeconds > 0 {
		cfg.SweepInterval = time.Duration(t.SweepIntervalSeconds) * time.Second
	}
	return cfg
}

// ToBufferConfig converts tunables to the audit/metrics buffer configuration
func (c *Config) ToBufferConfig() usecase.BufferConfig {
	cfg := usecase.DefaultBufferConfig()
	if c.Tunables == nil {
		return cfg
	}
	t := c.Tunables.Buffer
	if t.FlushIntervalSeconds > 0 {
		cfg.FlushInterval = time.Duration(t.FlushIntervalSeconds) * time.Second
	}
	if t.Capacity > 0 {
		cfg.Capacity = t.Capacity
	}
	return cfg
}

// ToResolverConfig converts to the resolver configuration
func (c *Config) ToResolverConfig() usecase.ResolverConfig {
	cfg := usecase.ResolverConfig{
		MappingTTL: c.ToCacheConfig().MappingTTL,
	}
	if c.Fallback != nil {
		cfg.Fallback = &domain.BoardConfig{
			BoardID: c.Fallback.BoardID,
			ListID:  c.Fallback.ListID,
		}
	}
	return cfg
}

// ReconcilerInterval returns the webhook reconciler sweep interval
func (c *Config) ReconcilerInterval() time.Duration {
	if c.Tunables != nil && c.Tunables.Reconciler.IntervalMinutes > 0 {
		return time.Duration(c.Tunables.Reconciler.IntervalMinutes) * time.Minute
	}
	return 30 * time.Minute
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Trello.WebhookSecret == "" {
		return &ConfigError{Field: "TRELLO_WEBHOOK_SECRET", Message: "required"}
	}
	if c.Server.CallbackURL == "" {
		return &ConfigError{Field: "CALLBACK_URL", Message: "required"}
	}
	if c.Fallback != nil {
		if err := domain.ValidateBoardID(c.Fallback.BoardID); err != nil {
			return &ConfigError{Field: "FALLBACK_BOARD_ID", Message: err.Error()}
		}
		if err := domain.ValidateListID(c.Fallback.ListID); err != nil {
			return &ConfigError{Field: "FALLBACK_LIST_ID", Message: err.Error()}
		}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
