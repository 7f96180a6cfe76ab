package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// configStore implements the ConfigStore repository on SQLite
type configStore struct {
	db *sql.DB
}

// NewConfigStore creates a new SQLite-backed config store
func NewConfigStore(dbPath string) (repo.ConfigStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS channel_mappings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			board_id TEXT NOT NULL,
			list_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(guild_id, channel_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create channel_mappings table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_mappings_board ON channel_mappings(board_id)`)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS default_configs (
			guild_id TEXT PRIMARY KEY,
			default_board_id TEXT NOT NULL,
			default_list_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create default_configs table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_defaults_board ON default_configs(default_board_id)`)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS webhook_registrations (
			board_id TEXT PRIMARY KEY,
			webhook_id TEXT NOT NULL,
			callback_url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create webhook_registrations table: %w", err)
	}

	return &configStore{db: db}, nil
}

// GetChannelMapping gets the mapping for a (guild, channel) pair
func (s *configStore) GetChannelMapping(ctx context.Context, guildID, channelID string) (*domain.ChannelMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, channel_id, board_id, list_id, created_at, updated_at
		FROM channel_mappings
		WHERE guild_id = ? AND channel_id = ?
	`, guildID, channelID)

	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query channel mapping: %w", err)
	}
	return m, nil
}

// UpsertChannelMapping creates or updates the mapping for a (guild, channel) pair
func (s *configStore) UpsertChannelMapping(ctx context.Context, m *domain.ChannelMapping) (*domain.ChannelMapping, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_mappings (guild_id, channel_id, board_id, list_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, channel_id) DO UPDATE SET
			board_id = excluded.board_id,
			list_id = excluded.list_id,
			updated_at = excluded.updated_at
	`, m.GuildID, m.ChannelID, m.BoardID, m.ListID, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert channel mapping: %w", err)
	}

	return s.GetChannelMapping(ctx, m.GuildID, m.ChannelID)
}

// DeleteChannelMapping removes the mapping, reporting whether a row existed
func (s *configStore) DeleteChannelMapping(ctx context.Context, guildID, channelID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM channel_mappings WHERE guild_id = ? AND channel_id = ?
	`, guildID, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to delete channel mapping: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteGuildMappings removes every mapping for a guild
func (s *configStore) DeleteGuildMappings(ctx context.Context, guildID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channel_mappings WHERE guild_id = ?`, guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete guild mappings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetDefaultConfig gets the guild-wide default
func (s *configStore) GetDefaultConfig(ctx context.Context, guildID string) (*domain.DefaultConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, default_board_id, default_list_id, created_at, updated_at
		FROM default_configs
		WHERE guild_id = ?
	`, guildID)

	var d domain.DefaultConfig
	var createdAt, updatedAt int64
	err := row.Scan(&d.GuildID, &d.BoardID, &d.ListID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query default config: %w", err)
	}

	d.CreatedAt = time.Unix(createdAt, 0)
	d.UpdatedAt = time.Unix(updatedAt, 0)
	return &d, nil
}

// UpsertDefaultConfig creates or updates the guild-wide default
func (s *configStore) UpsertDefaultConfig(ctx context.Context, d *domain.DefaultConfig) (*domain.DefaultConfig, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO default_configs (guild_id, default_board_id, default_list_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			default_board_id = excluded.default_board_id,
			default_list_id = excluded.default_list_id,
			updated_at = excluded.updated_at
	`, d.GuildID, d.BoardID, d.ListID, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert default config: %w", err)
	}

	return s.GetDefaultConfig(ctx, d.GuildID)
}

// DeleteDefaultConfig removes the guild-wide default, reporting whether a row existed
func (s *configStore) DeleteDefaultConfig(ctx context.Context, guildID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM default_configs WHERE guild_id = ?`, guildID)
	if err != nil {
		return false, fmt.Errorf("failed to delete default config: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetWebhookRegistration gets the local registration row for a board
func (s *configStore) GetWebhookRegistration(ctx context.Context, boardID string) (*domain.WebhookRegistration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT board_id, webhook_id, callback_url, description, created_at, updated_at
		FROM webhook_registrations
		WHERE board_id = ?
	`, boardID)

	var w domain.WebhookRegistration
	var createdAt, updatedAt int64
	err := row.Scan(&w.BoardID, &w.WebhookID, &w.CallbackURL, &w.Description, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook registration: %w", err)
	}

	w.CreatedAt = time.Unix(createdAt, 0)
	w.UpdatedAt = time.Unix(updatedAt, 0)
	return &w, nil
}

// InsertWebhookRegistration inserts the registration row. The primary
// key on board_id turns a concurrent duplicate insert into a detectable
// conflict, surfaced as domain.ErrWebhookConflict.
func (s *configStore) InsertWebhookRegistration(ctx context.Context, w *domain.WebhookRegistration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_registrations (board_id, webhook_id, callback_url, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.BoardID, w.WebhookID, w.CallbackURL, w.Description, now.Unix(), now.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("board %s: %w", w.BoardID, domain.ErrWebhookConflict)
		}
		return fmt.Errorf("failed to insert webhook registration: %w", err)
	}
	return nil
}

// DeleteWebhookRegistration removes the registration row for a board
func (s *configStore) DeleteWebhookRegistration(ctx context.Context, boardID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_registrations WHERE board_id = ?`, boardID)
	if err != nil {
		return false, fmt.Errorf("failed to delete webhook registration: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListWebhookRegistrations lists all local registration rows
func (s *configStore) ListWebhookRegistrations(ctx context.Context) ([]*domain.WebhookRegistration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT board_id, webhook_id, callback_url, description, created_at, updated_at
		FROM webhook_registrations
		ORDER BY board_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook registrations: %w", err)
	}
	defer rows.Close()

	var result []*domain.WebhookRegistration
	for rows.Next() {
		var w domain.WebhookRegistration
		var createdAt, updatedAt int64
		if err := rows.Scan(&w.BoardID, &w.WebhookID, &w.CallbackURL, &w.Description, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook registration: %w", err)
		}
		w.CreatedAt = time.Unix(createdAt, 0)
		w.UpdatedAt = time.Unix(updatedAt, 0)
		result = append(result, &w)
	}
	return result, rows.Err()
}

// ListConfiguredBoardIDs returns the distinct union of mapping board ids
// and default-config board ids
func (s *configStore) ListConfiguredBoardIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT board_id FROM channel_mappings
		UNION
		SELECT default_board_id FROM default_configs
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list configured boards: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan board id: %w", err)
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// ListMappingsForBoard lists every channel mapping bound to a board
func (s *configStore) ListMappingsForBoard(ctx context.Context, boardID string) ([]*domain.ChannelMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, channel_id, board_id, list_id, created_at, updated_at
		FROM channel_mappings
		WHERE board_id = ?
		ORDER BY guild_id, channel_id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings for board: %w", err)
	}
	defer rows.Close()

	var result []*domain.ChannelMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel mapping: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ListDefaultGuildsForBoard lists guilds whose default points at a board
func (s *configStore) ListDefaultGuildsForBoard(ctx context.Context, boardID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id FROM default_configs WHERE default_board_id = ? ORDER BY guild_id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list default guilds for board: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan guild id: %w", err)
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// Close closes the database
func (s *configStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(row scanner) (*domain.ChannelMapping, error) {
	var m domain.ChannelMapping
	var createdAt, updatedAt int64
	if err := row.Scan(&m.GuildID, &m.ChannelID, &m.BoardID, &m.ListID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	return &m, nil
}

// isUniqueViolation detects a SQLite unique/primary-key constraint error.
// modernc.org/sqlite reports these in the error text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") && strings.Contains(msg, "unique")
}
