// Package dispatch runs background work in per-key mailboxes.
//
// Tasks that share a key run one at a time in arrival order. Tasks with
// different keys run concurrently. A task's error or panic is logged and
// never reaches the caller that enqueued it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("dispatch: mailbox closed")

// Task is one unit of queued work.
type Task func(ctx context.Context) error

type job struct {
	name string
	run  Task
}

type queue struct {
	jobs []job
}

// Mailbox serializes tasks per key.
type Mailbox struct {
	base context.Context

	mu     sync.Mutex
	queues map[int64]*queue
	closed bool

	wg sync.WaitGroup
}

// New creates a Mailbox whose tasks receive ctx. Use a context that outlives
// individual requests.
func New(ctx context.Context) *Mailbox {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Mailbox{base: ctx, queues: make(map[int64]*queue)}
}

// Enqueue schedules task behind any work already queued for key and returns
// immediately.
func (m *Mailbox) Enqueue(key int64, name string, task Task) error {
	if task == nil {
		return errors.New("dispatch: task must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.wg.Add(1)
	q, running := m.queues[key]
	if !running {
		q = &queue{}
		m.queues[key] = q
	}
	q.jobs = append(q.jobs, job{name: name, run: task})
	if !running {
		go m.worker(key, q)
	}
	return nil
}

// worker drains one key's queue and exits when it is empty.
func (m *Mailbox) worker(key int64, q *queue) {
	for {
		m.mu.Lock()
		if len(q.jobs) == 0 {
			delete(m.queues, key)
			m.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs[0] = job{}
		q.jobs = q.jobs[1:]
		m.mu.Unlock()

		m.execute(key, j)
	}
}

func (m *Mailbox) execute(key int64, j job) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch task panicked", "key", key, "task", j.name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	if err := j.run(m.base); err != nil {
		slog.Error("dispatch task failed", "key", key, "task", j.name, "err", err)
	}
}

// Pending reports the number of tasks queued but not yet started.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, q := range m.queues {
		n += len(q.jobs)
	}
	return n
}

// Drain blocks until every enqueued task has finished or ctx is done.
func (m *Mailbox) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch: drain: %w", ctx.Err())
	}
}

// Close stops accepting work and drains what is already queued.
func (m *Mailbox) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Drain(ctx)
}
