// Package schedule bounds concurrent completion calls and makes failure
// handling uniform for every caller. Dispatch is priority-first among
// pending tasks; completion order is unconstrained.
package schedule

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBudgetExhausted is delivered to tasks that never started because the
// global call or wall-clock budget ran out.
var ErrBudgetExhausted = errors.New("call budget exhausted")

// Counts is a snapshot of terminal task outcomes.
type Counts struct {
	Succeeded     int
	FailedFatal   int
	BudgetStopped int
	Calls         int
}

// Controller caps in-flight calls and applies the retry policy. One
// controller serves a single run; extraction and verification share it.
type Controller struct {
	policy      RetryPolicy
	maxInFlight int
	log         *slog.Logger

	mu        sync.Mutex
	ready     taskHeap
	delayed   []*Task // RetryPending, waiting out backoff
	notBefore map[*Task]time.Time
	inFlight  int
	seq       uint64
	budget    Budget
	counts    Counts
	exhausted bool
	closed    bool

	wake chan struct{}
	done chan struct{}
}

func New(maxInFlight int, policy RetryPolicy, log *slog.Logger) *Controller {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Retryable == nil {
		policy.Retryable = func(error) bool { return false }
	}
	return &Controller{
		policy:      policy,
		maxInFlight: maxInFlight,
		log:         log,
		notBefore:   make(map[*Task]time.Time),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Start launches the dispatch loop. It must be called exactly once.
func (c *Controller) Start(ctx context.Context, budget Budget) {
	c.mu.Lock()
	c.budget = budget
	c.mu.Unlock()
	go c.loop(ctx)
}

// Submit queues fn at the given priority (higher dispatches first) and
// returns the task handle to wait on.
func (c *Controller) Submit(priority int, fn TaskFunc) *Task {
	t := &Task{
		priority: priority,
		fn:       fn,
		state:    Pending,
		done:     make(chan error, 1),
	}

	c.mu.Lock()
	if c.closed || c.exhausted {
		closed := c.closed
		c.counts.BudgetStopped++
		c.mu.Unlock()
		t.state = FailedFatal
		if closed {
			t.done <- fmt.Errorf("controller stopped before task ran")
		} else {
			t.done <- ErrBudgetExhausted
		}
		return t
	}
	c.seq++
	t.seq = c.seq
	heap.Push(&c.ready, t)
	c.mu.Unlock()

	c.wakeup()
	return t
}

// Exhausted reports whether the budget stopped the run early.
func (c *Controller) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// CountsSnapshot returns terminal outcome counters so failed tasks are
// reported, never silently dropped.
func (c *Controller) CountsSnapshot() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// Stop refuses new submissions and waits for queued and in-flight work to
// drain.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wakeup()
	<-c.done
}

func (c *Controller) wakeup() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		now := time.Now()
		c.mu.Lock()

		// Promote retry tasks whose backoff has elapsed, and find the
		// next wakeup among those still waiting.
		var nextWake time.Time
		kept := c.delayed[:0]
		for _, t := range c.delayed {
			nb := c.notBefore[t]
			if !nb.After(now) {
				delete(c.notBefore, t)
				t.state = Pending
				heap.Push(&c.ready, t)
				continue
			}
			if nextWake.IsZero() || nb.Before(nextWake) {
				nextWake = nb
			}
			kept = append(kept, t)
		}
		c.delayed = kept

		if c.budget.exceeded(c.counts.Calls, now) && !c.exhausted {
			c.exhausted = true
			c.log.Warn("budget exhausted, stopping dispatch",
				"calls", c.counts.Calls, "queued", c.ready.Len()+len(c.delayed))
		}
		if c.exhausted {
			c.failQueuedLocked(ErrBudgetExhausted)
		}

		for c.inFlight < c.maxInFlight && c.ready.Len() > 0 {
			if c.budget.exceeded(c.counts.Calls, now) {
				c.exhausted = true
				c.failQueuedLocked(ErrBudgetExhausted)
				break
			}
			t := heap.Pop(&c.ready).(*Task)
			t.state = Running
			t.attempts++
			c.counts.Calls++
			c.inFlight++
			go c.run(ctx, t)
		}

		idle := c.closed && c.ready.Len() == 0 && len(c.delayed) == 0 && c.inFlight == 0
		c.mu.Unlock()
		if idle {
			return
		}

		wait := time.Hour
		if !nextWake.IsZero() {
			wait = time.Until(nextWake)
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			c.failAll(ctx.Err())
			return
		case <-c.wake:
		case <-timer.C:
		}
	}
}

func (c *Controller) run(ctx context.Context, t *Task) {
	err := t.fn(ctx)

	c.mu.Lock()
	c.inFlight--
	switch {
	case err == nil:
		t.state = Succeeded
		c.counts.Succeeded++
		t.done <- nil
	case c.policy.Retryable(err) && t.attempts < c.policy.MaxAttempts && !c.exhausted && ctx.Err() == nil:
		t.state = RetryPending
		delay := c.policy.Delay(t.attempts)
		c.notBefore[t] = time.Now().Add(delay)
		c.delayed = append(c.delayed, t)
		c.log.Warn("transient task failure, will retry",
			"attempt", t.attempts, "max_attempts", c.policy.MaxAttempts,
			"delay", delay, "error", err)
	default:
		t.state = FailedFatal
		c.counts.FailedFatal++
		if c.policy.Retryable(err) {
			err = fmt.Errorf("attempts exhausted after %d: %w", t.attempts, err)
		}
		t.done <- err
	}
	c.mu.Unlock()
	c.wakeup()
}

// failQueuedLocked resolves every queued task with err so barrier joins
// always complete. In-flight tasks are left to finish.
func (c *Controller) failQueuedLocked(err error) {
	for c.ready.Len() > 0 {
		t := heap.Pop(&c.ready).(*Task)
		t.state = FailedFatal
		c.counts.BudgetStopped++
		t.done <- err
	}
	for _, t := range c.delayed {
		delete(c.notBefore, t)
		t.state = FailedFatal
		c.counts.BudgetStopped++
		t.done <- err
	}
	c.delayed = c.delayed[:0]
}

func (c *Controller) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.failQueuedLocked(err)
}
