package app

import (
	"sync"
	"time"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
)

// taskQueue is the scheduler-owned priority queue. Order: lowest progress
// first, required courses before elective, ascending course id as a
// deterministic tie break. Backoff delays are honored through each task's
// ReadyAt; tasks still cooling down are invisible to ClaimNext.
type taskQueue struct {
	mu     sync.Mutex
	items  []*CourseTask
	max    int
	closed bool
}

func newTaskQueue(max int) *taskQueue {
	if max <= 0 {
		max = 256
	}
	return &taskQueue{max: max}
}

// Push admits a new task.
func (q *taskQueue) Push(t *CourseTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return &SchedulingError{Kind: SchedulingShutdownInProgress}
	}
	if len(q.items) >= q.max {
		return &SchedulingError{Kind: SchedulingQueueFull}
	}
	q.items = append(q.items, t)
	return nil
}

// Requeue returns a claimed task to the queue. It reports false once the
// queue is closed; the task then simply stops cycling.
func (q *taskQueue) Requeue(t *CourseTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, t)
	return true
}

// ClaimNext removes and returns the highest-priority task whose backoff has
// elapsed. The scan is linear; the queue holds at most one task per enrolled
// course.
func (q *taskQueue) ClaimNext(now time.Time) (*CourseTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i, t := range q.items {
		if t.Retry.ReadyAt.After(now) {
			continue
		}
		if best == -1 || taskLess(t, q.items[best]) {
			best = i
		}
	}
	if best == -1 {
		return nil, false
	}
	t := q.items[best]
	q.items = append(q.items[:best], q.items[best+1:]...)
	return t, true
}

func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops admissions; pending items are dropped.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
}

func taskLess(a, b *CourseTask) bool {
	if a.Course.Progress != b.Course.Progress {
		return a.Course.Progress < b.Course.Progress
	}
	ra, rb := categoryRank(a.Course.Category), categoryRank(b.Course.Category)
	if ra != rb {
		return ra < rb
	}
	return courseIDLess(a.Course.CourseID, b.Course.CourseID)
}

func categoryRank(c domain.CourseCategory) int {
	if c == domain.CategoryRequired {
		return 0
	}
	return 1
}

// courseIDLess compares ids numerically when both are plain digit strings,
// lexically otherwise.
func courseIDLess(a, b string) bool {
	if isDigits(a) && isDigits(b) {
		if len(a) != len(b) {
			return len(a) < len(b)
		}
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
