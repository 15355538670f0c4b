package schedule

import "context"

// State tracks a task through its lifecycle.
type State int

const (
	Pending State = iota
	Running
	Succeeded
	RetryPending
	FailedFatal
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case RetryPending:
		return "retry_pending"
	case FailedFatal:
		return "failed_fatal"
	}
	return "unknown"
}

// TaskFunc performs one unit of work, typically a single completion call.
// Results are delivered through closure captures; the controller only sees
// the error.
type TaskFunc func(ctx context.Context) error

// Task is owned by the controller from Submit until a terminal state.
type Task struct {
	seq      uint64
	priority int
	fn       TaskFunc
	attempts int
	state    State // guarded by the controller mutex
	done     chan error
	index    int // heap bookkeeping
}

// Wait blocks until the task reaches a terminal state or ctx is cancelled.
// A nil result means Succeeded; any error means FailedFatal (or the budget
// stopped the task before it ever ran).
func (t *Task) Wait(ctx context.Context) error {
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// taskHeap dispatches the highest priority pending task first; submission
// order breaks ties so equal-priority work stays FIFO.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
