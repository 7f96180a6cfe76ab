package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// eventLog implements the audit/metrics event log on SQLite
type eventLog struct {
	db *sql.DB
}

// NewEventLog creates a new SQLite-backed event log
func NewEventLog(dbPath string) (repo.EventLog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			event_id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			severity TEXT NOT NULL,
			guild_id TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL DEFAULT '',
			board_id TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit_events table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_events(created_at)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_severity ON audit_events(severity)`)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metric_records (
			record_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			guild_id TEXT NOT NULL DEFAULT '',
			board_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metric_records table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_metrics_name_created ON metric_records(name, created_at)`)

	return &eventLog{db: db}, nil
}

// AppendAuditEvent writes one event synchronously (critical fast path).
// INSERT OR IGNORE keeps a later batch replay of the same event id from
// double-counting it.
func (l *eventLog) AppendAuditEvent(ctx context.Context, e *domain.AuditEvent) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO audit_events (event_id, action, severity, guild_id, channel_id, board_id, actor, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Action, string(e.Severity), e.GuildID, e.ChannelID, e.BoardID, e.Actor, e.Detail, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// AppendAuditEvents writes one drained buffer as a single transaction
func (l *eventLog) AppendAuditEvents(ctx context.Context, events []*domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO audit_events (event_id, action, severity, guild_id, channel_id, board_id, actor, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Action, string(e.Severity), e.GuildID, e.ChannelID, e.BoardID, e.Actor, e.Detail, e.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert audit event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit batch: %w", err)
	}
	return nil
}

// AppendMetricRecords writes one drained metrics buffer as a single transaction
func (l *eventLog) AppendMetricRecords(ctx context.Context, records []*domain.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin metrics batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO metric_records (record_id, name, value, guild_id, board_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare metrics batch: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, r.Value, r.GuildID, r.BoardID, r.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert metric record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metrics batch: %w", err)
	}
	return nil
}

// RecentAuditEvents lists the newest events (for debugging)
func (l *eventLog) RecentAuditEvents(ctx context.Context, limit int) ([]*domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, action, severity, guild_id, channel_id, board_id, actor, detail, created_at
		FROM audit_events
		ORDER BY created_at DESC, event_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var result []*domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var severity string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Action, &severity, &e.GuildID, &e.ChannelID, &e.BoardID, &e.Actor, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Severity = domain.Severity(severity)
		e.CreatedAt = time.Unix(createdAt, 0)
		result = append(result, &e)
	}
	return result, rows.Err()
}

// Close closes the database
func (l *eventLog) Close() error {
	return l.db.Close()
}
