package domain

import (
	"errors"
	"time"
)

type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskPlaying    TaskState = "playing"
	TaskSeeking    TaskState = "seeking"
	TaskPaused     TaskState = "paused"
	TaskCompleting TaskState = "completing"
	TaskDone       TaskState = "done"
	TaskFailed     TaskState = "failed"
)

func (s TaskState) IsTerminal() bool {
	return s == TaskDone || s == TaskFailed
}

// Task wraps a Course while it is scheduled. It is owned by the queue when
// queued and by exactly one worker while active.
type Task struct {
	ID     string
	Course Course
	State  TaskState
	Retry  RetryState

	CreatedAt time.Time
	UpdatedAt time.Time

	FailureCode string
	FailureMsg  string
}

// RetryState instruments consecutive submission failures for one task.
type RetryState struct {
	Attempts  int
	ReadyAt   time.Time
	LastError string
}

func (r *RetryState) Reset() {
	r.Attempts = 0
	r.ReadyAt = time.Time{}
	r.LastError = ""
}

var ErrInvalidTransition = errors.New("invalid task state transition")

// CanTransition encodes the playback state machine. Active states cycle
// through queued between worker claims; failed is reachable from any
// non-terminal state.
func CanTransition(from, to TaskState) bool {
	if from == to {
		return true
	}
	if to == TaskFailed {
		return from != TaskDone
	}
	switch from {
	case TaskQueued:
		return to == TaskPlaying
	case TaskPlaying:
		return to == TaskSeeking || to == TaskPaused || to == TaskCompleting || to == TaskQueued
	case TaskSeeking:
		return to == TaskPlaying || to == TaskQueued
	case TaskPaused:
		return to == TaskPlaying || to == TaskQueued
	case TaskCompleting:
		// Back to queued when the crossing submission failed transiently and
		// must be retried.
		return to == TaskDone || to == TaskQueued
	case TaskDone, TaskFailed:
		return false
	default:
		return false
	}
}
