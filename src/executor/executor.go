// Package executor provides the bounded, clock-driven task pool that runs all
// polling and process launch work of the driver.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the number of tasks allowed to run at the same time.
const DefaultWorkers = 4

// ErrShutdown is returned when work is submitted to an Executor that was shut
// down.
var ErrShutdown = errors.New("executor shut down")

// Executor runs submitted tasks on goroutines, at most `workers` at a time, and
// runs scheduled tasks after a delay measured on its clock.
type Executor struct {
	sem    *semaphore.Weighted
	clock  clock.Clock
	logger *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	shutdown bool
	timers   map[*clock.Timer]struct{}
}

// New creates an Executor. A nil clock means wall-clock time.
func New(workers int, clk clock.Clock, logger *logrus.Entry) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Executor{
		sem:    semaphore.NewWeighted(int64(workers)),
		clock:  clk,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[*clock.Timer]struct{}),
	}
}

// Clock returns the clock the Executor schedules against.
func (e *Executor) Clock() clock.Clock {
	return e.clock
}

// IsShutdown reports whether Shutdown was called.
func (e *Executor) IsShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.shutdown
}

// Done is closed once the Executor is shut down.
func (e *Executor) Done() <-chan struct{} {
	return e.ctx.Done()
}

// Submit queues fn for execution. It never blocks the caller. A task still
// waiting for a worker at Shutdown is dropped.
func (e *Executor) Submit(fn func()) error {
	return e.submit(fn, nil)
}

func (e *Executor) submit(fn func(), dropped func()) error {
	if e.IsShutdown() {
		return ErrShutdown
	}

	go func() {
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			if dropped != nil {
				dropped()
			}
			return
		}
		defer e.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				e.logger.WithField("panic", r).Error("Task panicked")
			}
		}()

		fn()
	}()

	return nil
}

// Schedule submits fn once delay has elapsed. The returned function cancels the
// task if it has not fired yet and reports whether it did so.
func (e *Executor) Schedule(delay time.Duration, fn func()) (func() bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return nil, ErrShutdown
	}

	var timer *clock.Timer
	timer = e.clock.AfterFunc(delay, func() {
		e.mu.Lock()
		delete(e.timers, timer)
		e.mu.Unlock()

		if err := e.Submit(fn); err != nil {
			e.logger.WithError(err).Debug("Dropping scheduled task")
		}
	})
	e.timers[timer] = struct{}{}

	return func() bool {
		e.mu.Lock()
		delete(e.timers, timer)
		e.mu.Unlock()

		return timer.Stop()
	}, nil
}

// Shutdown stops accepting work, cancels pending scheduled tasks and releases
// tasks still waiting for a worker. Running tasks are not waited for.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return
	}
	e.shutdown = true
	timers := e.timers
	e.timers = make(map[*clock.Timer]struct{})
	e.mu.Unlock()

	for t := range timers {
		t.Stop()
	}
	e.cancel()
}

// SubmitFuture runs fn on e and exposes its outcome as a Future. If the
// Executor is shut down before fn gets to run the Future fails with
// ErrShutdown.
func SubmitFuture[T any](e *Executor, fn func() (T, error)) *future.Future[T] {
	f := future.New[T]()
	err := e.submit(func() {
		defer func() {
			if r := recover(); r != nil {
				f.SetError(fmt.Errorf("task panicked: %v", r))
			}
		}()
		v, err := fn()
		if err != nil {
			f.SetError(err)
			return
		}
		f.Set(v)
	}, func() {
		f.SetError(ErrShutdown)
	})
	if err != nil {
		f.SetError(err)
	}
	return f
}
