package data

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
)

func newTestEventLog(t *testing.T) repo.EventLog {
	t.Helper()
	log, err := NewEventLog(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Failed to create event log: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func auditEvent(id string, severity domain.Severity) *domain.AuditEvent {
	return &domain.AuditEvent{
		ID:        id,
		Action:    "channel_mapping.set",
		Severity:  severity,
		GuildID:   "g1",
		ChannelID: "c1",
		BoardID:   boardA,
		Actor:     "admin",
		CreatedAt: time.Now(),
	}
}

func TestAppendAuditEventsBatch(t *testing.T) {
	log := newTestEventLog(t)
	ctx := context.Background()

	var batch []*domain.AuditEvent
	for i := 0; i < 5; i++ {
		batch = append(batch, auditEvent(fmt.Sprintf("ev-%d", i), domain.SeverityInfo))
	}
	if err := log.AppendAuditEvents(ctx, batch); err != nil {
		t.Fatalf("Batch append failed: %v", err)
	}

	events, err := log.RecentAuditEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAuditEvents failed: %v", err)
	}
	if len(events) != 5 {
		t.Errorf("Expected 5 events, got %d", len(events))
	}
}

func TestSyncWriteThenBatchDoesNotDoubleCount(t *testing.T) {
	log := newTestEventLog(t)
	ctx := context.Background()

	critical := auditEvent("ev-critical", domain.SeverityCritical)
	if err := log.AppendAuditEvent(ctx, critical); err != nil {
		t.Fatalf("Sync append failed: %v", err)
	}

	// The buffer later flushes a batch containing the same event id
	batch := []*domain.AuditEvent{critical, auditEvent("ev-other", domain.SeverityInfo)}
	if err := log.AppendAuditEvents(ctx, batch); err != nil {
		t.Fatalf("Batch append failed: %v", err)
	}

	events, err := log.RecentAuditEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAuditEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 distinct events, got %d", len(events))
	}
}

func TestAppendMetricRecords(t *testing.T) {
	log := newTestEventLog(t)
	ctx := context.Background()

	records := []*domain.MetricRecord{
		{ID: "m-1", Name: "notifications_delivered", Value: 3, BoardID: boardA, CreatedAt: time.Now()},
		{ID: "m-2", Name: "notifications_delivered", Value: 1, BoardID: boardB, CreatedAt: time.Now()},
	}
	if err := log.AppendMetricRecords(ctx, records); err != nil {
		t.Fatalf("Metrics batch failed: %v", err)
	}

	// Empty batches are a no-op, not an error
	if err := log.AppendMetricRecords(ctx, nil); err != nil {
		t.Errorf("Empty batch should be a no-op, got %v", err)
	}
}

func TestRecentAuditEventsOrderAndLimit(t *testing.T) {
	log := newTestEventLog(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		e := auditEvent(fmt.Sprintf("ev-%d", i), domain.SeverityInfo)
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := log.AppendAuditEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	events, err := log.RecentAuditEvents(ctx, 3)
	if err != nil {
		t.Fatalf("RecentAuditEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].ID != "ev-9" {
		t.Errorf("Expected newest event first, got %s", events[0].ID)
	}
}
