package app

import (
	"encoding/json"
	"time"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
	"github.com/huahua9185/auto-study-advanced/internal/ports"
)

// Task lifecycle topics published on the event bus. The SSE endpoint relays
// them; they are also the scheduler's terminal-outcome reports.
const (
	TopicTaskQueued    = "task.queued"
	TopicTaskPlaying   = "task.playing"
	TopicTaskProgress  = "task.progress"
	TopicTaskCompleted = "task.completed"
	TopicTaskFailed    = "task.failed"
)

type TaskDTO struct {
	ID             string                  `json:"id"`
	UserCourseID   string                  `json:"userCourseId"`
	CourseID       string                  `json:"courseId"`
	Name           string                  `json:"name"`
	Category       domain.CourseCategory   `json:"category"`
	State          domain.TaskState        `json:"state"`
	Completion     domain.CompletionStatus `json:"completion"`
	Progress       float64                 `json:"progress"`
	LessonLocation int                     `json:"lessonLocation"`
	SessionTime    int                     `json:"sessionTime"`
	Duration       int                     `json:"duration"`
	Attempts       int                     `json:"attempts,omitempty"`
	ErrorCode      string                  `json:"errorCode,omitempty"`
	Error          string                  `json:"error,omitempty"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

func ToTaskDTO(t *CourseTask) TaskDTO {
	return TaskDTO{
		ID:             t.ID,
		UserCourseID:   t.Course.UserCourseID,
		CourseID:       t.Course.CourseID,
		Name:           t.Course.Name,
		Category:       t.Course.Category,
		State:          t.State,
		Completion:     t.Course.Completion,
		Progress:       t.Course.Progress,
		LessonLocation: t.Course.LessonLocation,
		SessionTime:    t.Course.SessionTime,
		Duration:       t.Course.Duration,
		Attempts:       t.Retry.Attempts,
		ErrorCode:      t.FailureCode,
		Error:          t.FailureMsg,
		UpdatedAt:      t.UpdatedAt,
	}
}

func PublishTaskEvent(bus ports.EventBus, topic string, t *CourseTask) {
	if bus == nil {
		return
	}
	b, err := json.Marshal(ToTaskDTO(t))
	if err != nil {
		return
	}
	bus.Publish(topic, b)
}
