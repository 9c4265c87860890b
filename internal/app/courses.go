package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
	"github.com/huahua9185/auto-study-advanced/internal/ports"
)

// CourseService discovers enrolled courses from the platform and keeps the
// local registry in sync.
type CourseService struct {
	logger   zerolog.Logger
	client   *EduClient
	registry ports.CourseRegistry
}

func NewCourseService(logger zerolog.Logger, client *EduClient, registry ports.CourseRegistry) *CourseService {
	return &CourseService{logger: logger, client: client, registry: registry}
}

// Discover fetches the selected course list, tags categories against the
// elective catalogue and upserts everything into the registry. Locally
// accumulated learning state survives re-discovery.
func (s *CourseService) Discover(ctx context.Context) ([]domain.Course, error) {
	rows, err := s.client.UserCourses(ctx)
	if err != nil {
		return nil, err
	}

	electives, err := s.client.ElectiveCourseIDs(ctx)
	if err != nil {
		// Category only affects queue ordering; default everything to
		// required rather than failing discovery.
		s.logger.Warn().Err(err).Msg("elective catalogue unavailable, assuming required")
		electives = map[string]bool{}
	}

	out := make([]domain.Course, 0, len(rows))
	for _, row := range rows {
		course := domain.Course{
			UserCourseID: row.UserCourseID.String(),
			CourseID:     row.CourseID.String(),
			Name:         row.Name,
			Category:     domain.CategoryRequired,
			Sco:          domain.DefaultSco,
			Duration:     int(row.DurationMin * 60),
			Progress:     row.Progress,
			Completion:   completionFromProgress(row.Progress),
			UpdatedAt:    time.Now().UTC(),
		}
		if electives[course.CourseID] {
			course.Category = domain.CategoryElective
		}

		stored, err := s.registry.Upsert(ctx, course)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}

	s.logger.Info().Int("courses", len(out)).Msg("course discovery complete")
	return out, nil
}

// List returns the registry's view of all known courses.
func (s *CourseService) List(ctx context.Context) ([]CourseDTO, error) {
	courses, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CourseDTO, 0, len(courses))
	for _, c := range courses {
		out = append(out, ToCourseDTO(c))
	}
	return out, nil
}

func completionFromProgress(progress float64) domain.CompletionStatus {
	switch {
	case progress >= 100:
		return domain.CompletionCompleted
	case progress > 0:
		return domain.CompletionIncomplete
	default:
		return domain.CompletionNotStarted
	}
}

type CourseDTO struct {
	UserCourseID   string                  `json:"userCourseId"`
	CourseID       string                  `json:"courseId"`
	Name           string                  `json:"name"`
	Category       domain.CourseCategory   `json:"category"`
	Duration       int                     `json:"duration"`
	Progress       float64                 `json:"progress"`
	Completion     domain.CompletionStatus `json:"completion"`
	LessonLocation int                     `json:"lessonLocation"`
	SessionTime    int                     `json:"sessionTime"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

func ToCourseDTO(c domain.Course) CourseDTO {
	return CourseDTO{
		UserCourseID:   c.UserCourseID,
		CourseID:       c.CourseID,
		Name:           c.Name,
		Category:       c.Category,
		Duration:       c.Duration,
		Progress:       c.Progress,
		Completion:     c.Completion,
		LessonLocation: c.LessonLocation,
		SessionTime:    c.SessionTime,
		UpdatedAt:      c.UpdatedAt,
	}
}
