package annotate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// DefaultQueueSize is the queue capacity when none is configured.
const DefaultQueueSize = 64

// Queue feeds capture ids to a single background annotation worker.
// One worker keeps the "already annotated" check sequential.
type Queue struct {
	annotator *Annotator
	ch        chan string

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	processed atomic.Int64
	dropped   atomic.Int64
}

// NewQueue starts the worker.
func NewQueue(a *Annotator, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		annotator: a,
		ch:        make(chan string, size),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go q.work()
	return q
}

// Enqueue schedules id without blocking. It returns false when the queue is
// full or closed; the id stays unannotated until the next batch pass.
func (q *Queue) Enqueue(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- id:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pending is the number of ids waiting for the worker.
func (q *Queue) Pending() int { return len(q.ch) }

// Processed is the number of ids the worker has handled.
func (q *Queue) Processed() int64 { return q.processed.Load() }

// Dropped is the number of ids rejected because the queue was full.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Close stops accepting work and waits for queued ids to drain. If ctx ends
// first the in-flight call is cancelled and ctx's error is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer close(q.done)
	for id := range q.ch {
		if q.ctx.Err() != nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("capture_id", id).Msg("annotation worker panicked")
				}
			}()
			q.annotator.Annotate(q.ctx, id)
		}()
		q.processed.Add(1)
	}
}
