package ports

import (
	"context"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
)

// CourseRegistry persists discovered courses and their learning state. It is
// read once at scheduler startup to seed the queue and written by the owning
// task after each accepted submission.
type CourseRegistry interface {
	Upsert(ctx context.Context, course domain.Course) (domain.Course, error)
	Get(ctx context.Context, userCourseID string) (domain.Course, error)
	List(ctx context.Context) ([]domain.Course, error)
	// ListIncomplete returns courses not yet completed, in stable id order.
	ListIncomplete(ctx context.Context) ([]domain.Course, error)
	// UpdateProgress records the state reached by an accepted submission.
	UpdateProgress(ctx context.Context, course domain.Course) (domain.Course, error)
}

type EventBus interface {
	Publish(topic string, payload []byte)
	Subscribe() (ch <-chan Event, cancel func())
}

type Event struct {
	Topic   string
	Payload []byte
}
