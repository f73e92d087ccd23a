// Package persist serializes transcript writes: a single-consumer FIFO
// queue in front of a gorm-backed utterance store, so results from many
// provider connections land in arrival order.
package persist

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/meeting-scribe/internal/shared"
)

const defaultQueueCapacity = 1024

// QueueConfig tunes the persistence queue.
type QueueConfig struct {
	// Capacity bounds pending callbacks. Ingestion never blocks on
	// persistence: over capacity, the callback is dropped and counted.
	Capacity int

	Log *slog.Logger
}

type job struct {
	name string
	fn   func() error
}

// Queue runs callbacks one at a time, in the order they were enqueued.
// A failing or panicking callback is logged and never takes down the
// consumer or the callbacks behind it.
type Queue struct {
	log  *slog.Logger
	jobs chan job

	mu      sync.RWMutex
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultQueueCapacity
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Queue{
		log:  cfg.Log.With("component", "persist_queue"),
		jobs: make(chan job, cfg.Capacity),
		done: make(chan struct{}),
	}
}

// Start launches the consumer. Safe to call once; later calls are no-ops.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		go q.consume()
	})
}

// Stop refuses further work, drains what is already queued, and returns
// once the consumer has exited.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		close(q.jobs)
		<-q.done
		q.log.Info("persistence queue stopped",
			"processed", q.processed.Load(),
			"failed", q.failed.Load(),
			"dropped", q.dropped.Load())
	})
}

// Enqueue appends a callback. Returns shared.ErrQueueStopped after Stop;
// over capacity the callback is dropped so audio-path callers never stall.
func (q *Queue) Enqueue(name string, fn func() error) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		return shared.ErrQueueStopped
	}

	select {
	case q.jobs <- job{name: name, fn: fn}:
		return nil
	default:
		q.dropped.Add(1)
		q.log.Warn("persistence queue full, dropping callback", "name", name)
		return nil
	}
}

// Depth is the number of callbacks waiting for the consumer.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Stats returns processed, failed, and dropped counts.
func (q *Queue) Stats() (processed, failed, dropped int64) {
	return q.processed.Load(), q.failed.Load(), q.dropped.Load()
}

func (q *Queue) consume() {
	defer close(q.done)
	for j := range q.jobs {
		q.runOne(j)
	}
}

func (q *Queue) runOne(j job) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.log.Error("persistence callback panicked", "name", j.name, "panic", r)
		}
	}()

	if err := j.fn(); err != nil {
		q.failed.Add(1)
		q.log.Error("persistence callback failed", "name", j.name, "error", err)
		return
	}
	q.processed.Add(1)
}
