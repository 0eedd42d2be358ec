// Package dispatch runs jobs keyed by sender. Jobs with the same key run one
// at a time in submission order. Each key gets its own lane, so a slow job
// only delays later jobs for that key. A weighted semaphore caps how many
// jobs run at once across all keys.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

type Job func(ctx context.Context)

var (
	ErrQueueFull = errors.New("dispatch: key queue full")
	ErrStopped   = errors.New("dispatch: stopped")
)

type Dispatcher struct {
	sem     *semaphore.Weighted
	backlog int
	log     *slog.Logger

	mu      sync.Mutex
	ctx     context.Context // set by Run
	stopped bool
	lanes   map[int64][]Job // a present key has a lane goroutine (once running)
	wg      sync.WaitGroup
}

// New creates a dispatcher that runs at most workers jobs at once and holds
// up to backlog waiting jobs per key. A backlog of zero means unbounded.
func New(workers, backlog int, log *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		sem:     semaphore.NewWeighted(int64(workers)),
		backlog: backlog,
		log:     log.With("component", "dispatch"),
		lanes:   make(map[int64][]Job),
	}
}

// Submit queues job on key's lane. It never waits for other keys' work.
func (d *Dispatcher) Submit(ctx context.Context, key int64, job Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("dispatch: submit: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	q, active := d.lanes[key]
	if d.backlog > 0 && len(q) >= d.backlog {
		return fmt.Errorf("key %d: %w", key, ErrQueueFull)
	}
	d.lanes[key] = append(q, job)
	if !active && d.ctx != nil {
		d.startLocked(key)
	}
	return nil
}

// Run starts lanes for jobs queued so far and serves new ones until ctx is
// done. It returns once every running job has finished.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.ctx != nil || d.stopped {
		d.mu.Unlock()
		return errors.New("dispatch: already running")
	}
	d.ctx = ctx
	for key := range d.lanes {
		d.startLocked(key)
	}
	d.mu.Unlock()

	<-ctx.Done()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) startLocked(key int64) {
	d.wg.Add(1)
	go d.lane(key)
}

func (d *Dispatcher) lane(key int64) {
	defer d.wg.Done()
	for {
		job, ok := d.next(key)
		if !ok {
			return
		}
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.drop(key)
			return
		}
		d.run(key, job)
		d.sem.Release(1)
	}
}

// next pops key's oldest job, retiring the lane when its queue is empty.
func (d *Dispatcher) next(key int64) (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.lanes[key]
	if len(q) == 0 {
		delete(d.lanes, key)
		return nil, false
	}
	job := q[0]
	q[0] = nil
	d.lanes[key] = q[1:]
	return job, true
}

func (d *Dispatcher) drop(key int64) {
	d.mu.Lock()
	n := len(d.lanes[key])
	delete(d.lanes, key)
	d.mu.Unlock()
	if n > 0 {
		d.log.Warn("jobs dropped on shutdown", "key", key, "count", n)
	}
}

func (d *Dispatcher) run(key int64, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("job panicked", "key", key, "panic", r)
		}
	}()
	job(d.ctx)
}
