package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BufferConfig contains buffer configuration
type BufferConfig struct {
	// FlushInterval is the timer-driven flush period
	FlushInterval time.Duration
	// Capacity triggers an immediate flush the moment it is reached
	Capacity int
}

// DefaultBufferConfig returns default buffer configuration
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		FlushInterval: 30 * time.Second,
		Capacity:      100,
	}
}

// BufferState is the buffer's lifecycle state
type BufferState string

const (
	BufferEmpty        BufferState = "empty"
	BufferAccumulating BufferState = "accumulating"
	BufferFlushing     BufferState = "flushing"
)

// BufferStats are the buffer's bookkeeping counters
type BufferStats struct {
	Appended int64
	Flushed  int64
	Flushes  int64
	Dropped  int64
	Pending  int
	State    BufferState
}

// batchBuffer is the shared buffered-batch machinery: appends and flush
// triggers are messages consumed by one goroutine, so snapshot-and-clear
// is a single step with no interleaving against appends. Entries
// appended while a batch write is in flight start the next accumulation.
type batchBuffer[T any] struct {
	name  string
	cfg   BufferConfig
	write func(ctx context.Context, batch []T) error

	appendCh chan T
	flushCh  chan chan int
	statsCh  chan chan BufferStats
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newBatchBuffer[T any](name string, cfg BufferConfig, write func(ctx context.Context, batch []T) error) *batchBuffer[T] {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultBufferConfig().FlushInterval
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultBufferConfig().Capacity
	}

	b := &batchBuffer[T]{
		name:     name,
		cfg:      cfg,
		write:    write,
		appendCh: make(chan T),
		flushCh:  make(chan chan int),
		statsCh:  make(chan chan BufferStats),
		stopCh:   make(chan struct{}),
	}

	b.wg.Add(1)
	go b.loop()
	return b
}

// enqueue hands one entry to the buffer loop. Returns false after Close.
func (b *batchBuffer[T]) enqueue(entry T) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.mu.Unlock()

	select {
	case b.appendCh <- entry:
		return true
	case <-b.stopCh:
		return false
	}
}

// Flush forces a flush of the current buffer contents and returns how
// many entries were written
func (b *batchBuffer[T]) Flush() int {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	b.mu.Unlock()

	resp := make(chan int, 1)
	select {
	case b.flushCh <- resp:
		return <-resp
	case <-b.stopCh:
		return 0
	}
}

// Stats reports the buffer's counters and current state
func (b *batchBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return BufferStats{State: BufferEmpty}
	}
	b.mu.Unlock()

	resp := make(chan BufferStats, 1)
	select {
	case b.statsCh <- resp:
		return <-resp
	case <-b.stopCh:
		return BufferStats{State: BufferEmpty}
	}
}

// Close flushes remaining entries and stops the loop
func (b *batchBuffer[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stopCh)
	b.wg.Wait()
}

func (b *batchBuffer[T]) loop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	var (
		buf   []T
		stats BufferStats
	)

	flush := func() int {
		if len(buf) == 0 {
			return 0
		}
		// Snapshot-and-clear in one step: nothing can interleave here
		// because the loop is the only goroutine touching buf.
		snapshot := buf
		buf = make([]T, 0, b.cfg.Capacity)

		stats.Flushes++
		if err := b.write(context.Background(), snapshot); err != nil {
			stats.Dropped += int64(len(snapshot))
			fmt.Printf("[%s] Flush of %d entries failed: %v\n", b.name, len(snapshot), err)
			return 0
		}
		stats.Flushed += int64(len(snapshot))
		return len(snapshot)
	}

	for {
		select {
		case entry := <-b.appendCh:
			buf = append(buf, entry)
			stats.Appended++
			if len(buf) >= b.cfg.Capacity {
				flush()
			}
		case <-ticker.C:
			flush()
		case resp := <-b.flushCh:
			resp <- flush()
		case resp := <-b.statsCh:
			s := stats
			s.Pending = len(buf)
			s.State = stateOf(len(buf))
			resp <- s
		case <-b.stopCh:
			flush()
			return
		}
	}
}

func stateOf(pending int) BufferState {
	if pending == 0 {
		return BufferEmpty
	}
	return BufferAccumulating
}
