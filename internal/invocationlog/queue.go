// ABOUTME: Bounded in-memory append queue with a background drain worker
// ABOUTME: Overflow drops the oldest buffered event and bumps a dropped-events counter

package invocationlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultQueueCapacity = 1024

var (
	droppedEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skill_log_dropped_events_total",
		Help: "Invocation log events dropped because the append queue was full.",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skill_log_queue_depth",
		Help: "Current depth of the invocation log append queue.",
	})
)

// Queue buffers Events in memory and drains them to a durable Store in
// batches on a background goroutine. Append never blocks: when the buffer
// is full, the oldest event is dropped.
type Queue struct {
	store    Store
	capacity int
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	buf     []Event
	notify  chan struct{}
	dropped int64

	done chan struct{}
}

// NewQueue creates a Queue of the given capacity (0 uses the default) that
// drains to store every interval (0 uses 1s).
func NewQueue(store Store, capacity int, interval time.Duration) *Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Queue{
		store:    store,
		capacity: capacity,
		interval: interval,
		logger:   slog.Default().With("component", "invocationlog"),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Append buffers event for the next drain. If the buffer is at capacity,
// the oldest buffered event is dropped and dropped_events_total increments.
func (q *Queue) Append(event Event) {
	q.mu.Lock()
	if len(q.buf) >= q.capacity {
		q.buf = q.buf[1:]
		q.dropped++
		droppedEventsTotal.Inc()
		q.logger.Warn("invocation log queue full, dropping oldest event", "skill_id", event.SkillID)
	}
	q.buf = append(q.buf, event)
	queueDepth.Set(float64(len(q.buf)))
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// DroppedCount returns the number of events dropped due to overflow so far.
func (q *Queue) DroppedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Run drains the buffer to the store on a timer or on Append notification,
// until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.drain(context.Background())
			close(q.done)
			return
		case <-ticker.C:
			q.drain(ctx)
		case <-q.notify:
			q.drain(ctx)
		}
	}
}

func (q *Queue) drain(ctx context.Context) {
	q.mu.Lock()
	if len(q.buf) == 0 {
		q.mu.Unlock()
		return
	}
	batch := q.buf
	q.buf = nil
	queueDepth.Set(0)
	q.mu.Unlock()

	if err := q.store.AppendBatch(ctx, batch); err != nil {
		q.logger.Warn("failed to drain invocation log batch", "count", len(batch), "error", err)
	}
}
