package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
)

// AuditBuffer buffers audit events and promotes them to the event log in
// batches, flushed on a timer or the moment capacity is reached.
// Critical-severity events are additionally written synchronously at
// append time, so a crash right after logging one cannot lose it; the
// event id makes the later batch write idempotent. Lower severities
// accept a bounded loss window (one flush interval x one buffer
// capacity) in exchange for write throughput.
type AuditBuffer struct {
	log repo.EventLog
	buf *batchBuffer[*domain.AuditEvent]
}

// NewAuditBuffer creates a new audit buffer and starts its flush loop
func NewAuditBuffer(log repo.EventLog, cfg BufferConfig) *AuditBuffer {
	return &AuditBuffer{
		log: log,
		buf: newBatchBuffer("AuditBuffer", cfg, log.AppendAuditEvents),
	}
}

// Append stamps the event with an id and timestamp and hands it to the
// flush loop. Critical events hit the durable store before Append returns.
func (b *AuditBuffer) Append(ctx context.Context, e *domain.AuditEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	if e.Critical() {
		if err := b.log.AppendAuditEvent(ctx, e); err != nil {
			fmt.Printf("[AuditBuffer] Synchronous write of critical event %s failed: %v\n", e.ID, err)
		}
	}

	b.buf.enqueue(e)
}

// Flush forces a flush and returns how many entries were written
func (b *AuditBuffer) Flush() int {
	return b.buf.Flush()
}

// Stats reports the buffer's counters and state
func (b *AuditBuffer) Stats() BufferStats {
	return b.buf.Stats()
}

// Close flushes remaining events and stops the loop
func (b *AuditBuffer) Close() {
	b.buf.Close()
}

// MetricsBuffer buffers analytics records with the same flush machinery
// as the audit buffer; metrics have no synchronous fast path.
type MetricsBuffer struct {
	buf *batchBuffer[*domain.MetricRecord]
}

// NewMetricsBuffer creates a new metrics buffer and starts its flush loop
func NewMetricsBuffer(log repo.EventLog, cfg BufferConfig) *MetricsBuffer {
	return &MetricsBuffer{
		buf: newBatchBuffer("MetricsBuffer", cfg, log.AppendMetricRecords),
	}
}

// Append stamps the record with an id and timestamp and hands it to the
// flush loop
func (b *MetricsBuffer) Append(r *domain.MetricRecord) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	b.buf.enqueue(r)
}

// Flush forces a flush and returns how many entries were written
func (b *MetricsBuffer) Flush() int {
	return b.buf.Flush()
}

// Stats reports the buffer's counters and state
func (b *MetricsBuffer) Stats() BufferStats {
	return b.buf.Stats()
}

// Close flushes remaining records and stops the loop
func (b *MetricsBuffer) Close() {
	b.buf.Close()
}
