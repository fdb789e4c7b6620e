package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

var (
	ErrQueueClosed = errors.New("gojob: queue is closed")
	ErrQueueFull   = errors.New("gojob: queue is full")
)

const (
	DefaultQueueCapacity   = 1024
	DefaultDeadLetterLimit = 256
)

// DeadLetter records why a delivery was given up. The payload is not kept.
type DeadLetter struct {
	JobID          string
	IdempotencyKey string
	Reason         string
	At             time.Time
}

// MemoryQueue is a process-local go-job queue. Messages whose idempotency key
// is already pending or in flight are dropped on enqueue. Pending plus delayed
// messages never exceed the capacity; only the newest dead letters are kept.
type MemoryQueue struct {
	mu              sync.Mutex
	pending         []*job.ExecutionMessage
	keys            map[string]int
	deadLetters     []DeadLetter
	timers          map[*time.Timer]struct{}
	capacity        int
	deadLetterLimit int
	closed          bool
	notify          chan struct{}
	Now             func() time.Time
}

type QueueOption func(*MemoryQueue)

// WithCapacity bounds waiting messages. Zero or less keeps the default.
func WithCapacity(capacity int) QueueOption {
	return func(q *MemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

func WithDeadLetterLimit(limit int) QueueOption {
	return func(q *MemoryQueue) {
		if limit > 0 {
			q.deadLetterLimit = limit
		}
	}
}

func NewMemoryQueue(opts ...QueueOption) *MemoryQueue {
	q := &MemoryQueue{
		keys:            map[string]int{},
		timers:          map[*time.Timer]struct{}{},
		capacity:        DefaultQueueCapacity,
		deadLetterLimit: DefaultDeadLetterLimit,
		notify:          make(chan struct{}, 1),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" && q.keys[key] > 0 {
		return nil
	}
	if len(q.pending)+len(q.timers) >= q.capacity {
		return ErrQueueFull
	}
	if key != "" {
		q.keys[key]++
	}
	q.pushLocked(msg)
	return nil
}

// Dequeue blocks until a message is available, the queue is closed and
// drained, or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: queue is not configured")
	}
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			msg := q.pending[0]
			q.pending = q.pending[1:]
			if len(q.pending) > 0 {
				q.signalLocked()
			}
			q.mu.Unlock()
			return &memoryDelivery{queue: q, msg: msg}, nil
		}
		if q.closed && len(q.timers) == 0 {
			q.signalLocked()
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Close stops accepting new messages. Pending and delayed messages still
// drain through Dequeue.
func (q *MemoryQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.closed = true
	q.signalLocked()
	q.mu.Unlock()
}

func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.deadLetters...)
}

func (q *MemoryQueue) pushLocked(msg *job.ExecutionMessage) {
	q.pending = append(q.pending, msg)
	q.signalLocked()
}

func (q *MemoryQueue) signalLocked() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) release(msg *job.ExecutionMessage) {
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key == "" {
		return
	}
	if q.keys[key] <= 1 {
		delete(q.keys, key)
		return
	}
	q.keys[key]--
}

func (q *MemoryQueue) requeue(msg *job.ExecutionMessage, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if delay <= 0 {
		q.pushLocked(msg)
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, timer)
		q.pushLocked(msg)
	})
	q.timers[timer] = struct{}{}
}

func (q *MemoryQueue) deadLetterLocked(msg *job.ExecutionMessage, reason string) {
	if overflow := len(q.deadLetters) + 1 - q.deadLetterLimit; overflow > 0 {
		q.deadLetters = append([]DeadLetter(nil), q.deadLetters[overflow:]...)
	}
	q.deadLetters = append(q.deadLetters, DeadLetter{
		JobID:          msg.JobID,
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		Reason:         strings.TrimSpace(reason),
		At:             q.now(),
	})
}

func (q *MemoryQueue) now() time.Time {
	if q.Now == nil {
		return time.Now().UTC()
	}
	return q.Now().UTC()
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *job.ExecutionMessage
	once  sync.Once
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	settled := false
	d.once.Do(func() {
		settled = true
		d.queue.mu.Lock()
		d.queue.release(d.msg)
		d.queue.mu.Unlock()
	})
	if !settled {
		return fmt.Errorf("gojob: delivery already settled")
	}
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	settled := false
	d.once.Do(func() {
		settled = true
		switch {
		case opts.Requeue:
			d.queue.requeue(d.msg, opts.Delay)
		case opts.DeadLetter:
			d.queue.mu.Lock()
			d.queue.release(d.msg)
			d.queue.deadLetterLocked(d.msg, opts.Reason)
			d.queue.mu.Unlock()
		default:
			d.queue.mu.Lock()
			d.queue.release(d.msg)
			d.queue.mu.Unlock()
		}
	})
	if !settled {
		return fmt.Errorf("gojob: delivery already settled")
	}
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
