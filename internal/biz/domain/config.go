package domain

import (
	"fmt"
	"time"
)

// ConfigSource identifies which precedence tier produced a resolved config
type ConfigSource string

const (
	// SourceExplicit means an explicit channel mapping matched
	SourceExplicit ConfigSource = "explicit"
	// SourceGuildDefault means the guild-wide default applied
	SourceGuildDefault ConfigSource = "guildDefault"
	// SourceEnvironmentDefault means the process-level fallback applied
	SourceEnvironmentDefault ConfigSource = "environmentDefault"
)

// BoardConfig is a (board, list) pair (value object)
type BoardConfig struct {
	BoardID string
	ListID  string
}

// ResolvedConfig is the effective configuration for a (guild, channel) pair,
// tagged with the precedence tier that produced it
type ResolvedConfig struct {
	BoardConfig
	Source    ConfigSource
	GuildID   string
	ChannelID string
}

// Explicit reports whether the config came from a direct channel mapping
func (c *ResolvedConfig) Explicit() bool {
	return c.Source == SourceExplicit
}

// ChannelMapping binds one (guild, channel) pair to a (board, list) pair.
// Unique per (GuildID, ChannelID); the store enforces the constraint.
type ChannelMapping struct {
	GuildID   string
	ChannelID string
	BoardID   string
	ListID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Config returns the mapping's board/list pair
func (m *ChannelMapping) Config() BoardConfig {
	return BoardConfig{BoardID: m.BoardID, ListID: m.ListID}
}

// DefaultConfig is the guild-wide fallback binding applied to all of a
// guild's unmapped channels. At most one per guild.
type DefaultConfig struct {
	GuildID   string
	BoardID   string
	ListID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Config returns the default's board/list pair
func (d *DefaultConfig) Config() BoardConfig {
	return BoardConfig{BoardID: d.BoardID, ListID: d.ListID}
}

// idLength bounds accepted board/list identifiers. Trello ids are either
// 24-char hex object ids or 8-char shortlinks.
const (
	minIDLength = 8
	maxIDLength = 24
)

// ValidateBoardID checks a board identifier before it is used in any
// store write or external call
func ValidateBoardID(boardID string) error {
	return validateID("board_id", boardID)
}

// ValidateListID checks a list identifier before it is used in any
// store write or external call
func ValidateListID(listID string) error {
	return validateID("list_id", listID)
}

func validateID(field, id string) error {
	if id == "" {
		return &ValidationError{Field: field, Value: id, Message: "required"}
	}
	if len(id) < minIDLength || len(id) > maxIDLength {
		return &ValidationError{Field: field, Value: id, Message: fmt.Sprintf("length must be %d-%d characters", minIDLength, maxIDLength)}
	}
	for _, r := range id {
		if !isIDRune(r) {
			return &ValidationError{Field: field, Value: id, Message: "contains invalid characters"}
		}
	}
	return nil
}

func isIDRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	}
	return false
}
