package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
	"github.com/huahua9185/auto-study-advanced/internal/ports"
)

// CoursesRepository is the sqlite-backed course registry.
type CoursesRepository struct {
	db *sql.DB
}

func NewCoursesRepository(db *sql.DB) *CoursesRepository {
	return &CoursesRepository{db: db}
}

const courseColumns = `user_course_id, course_id, name, category, sco, duration_seconds, progress, completion, lesson_location, session_time, updated_at`

// Upsert inserts a discovered course or refreshes its platform-side fields.
// Locally accumulated learning state (lesson location, session time, a
// completion already reached) survives re-discovery; the platform's progress
// only wins when it is ahead.
func (r *CoursesRepository) Upsert(ctx context.Context, course domain.Course) (domain.Course, error) {
	if course.Sco == "" {
		course.Sco = domain.DefaultSco
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO courses(`+courseColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_course_id) DO UPDATE SET
			course_id        = excluded.course_id,
			name             = excluded.name,
			category         = excluded.category,
			duration_seconds = excluded.duration_seconds,
			progress         = MAX(progress, excluded.progress),
			completion       = CASE
				WHEN completion = 'completed' OR excluded.completion = 'completed' THEN 'completed'
				WHEN completion = 'not_started' THEN excluded.completion
				ELSE completion
			END,
			updated_at       = excluded.updated_at
	`, course.UserCourseID, course.CourseID, course.Name, string(course.Category), course.Sco,
		course.Duration, course.Progress, string(course.Completion),
		course.LessonLocation, course.SessionTime, timestamp(course.UpdatedAt))
	if err != nil {
		return domain.Course{}, err
	}
	return r.Get(ctx, course.UserCourseID)
}

func (r *CoursesRepository) Get(ctx context.Context, userCourseID string) (domain.Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+courseColumns+` FROM courses WHERE user_course_id = ?
	`, userCourseID)
	c, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Course{}, ports.ErrNotFound
		}
		return domain.Course{}, err
	}
	return c, nil
}

func (r *CoursesRepository) List(ctx context.Context) ([]domain.Course, error) {
	return r.list(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY user_course_id ASC`)
}

// ListIncomplete returns courses still worth scheduling, in stable id order.
func (r *CoursesRepository) ListIncomplete(ctx context.Context) ([]domain.Course, error) {
	return r.list(ctx, `SELECT `+courseColumns+` FROM courses WHERE completion != 'completed' ORDER BY user_course_id ASC`)
}

// UpdateProgress records the state reached by an accepted submission.
func (r *CoursesRepository) UpdateProgress(ctx context.Context, course domain.Course) (domain.Course, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE courses
		SET progress = ?, completion = ?, lesson_location = ?, session_time = ?, updated_at = ?
		WHERE user_course_id = ?
	`, course.Progress, string(course.Completion), course.LessonLocation, course.SessionTime,
		timestamp(time.Now().UTC()), course.UserCourseID)
	if err != nil {
		return domain.Course{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.Course{}, ports.ErrNotFound
	}
	return r.Get(ctx, course.UserCourseID)
}

func (r *CoursesRepository) list(ctx context.Context, query string) ([]domain.Course, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (domain.Course, error) {
	var c domain.Course
	var category, completion, updatedAt string
	err := row.Scan(&c.UserCourseID, &c.CourseID, &c.Name, &category, &c.Sco,
		&c.Duration, &c.Progress, &completion, &c.LessonLocation, &c.SessionTime, &updatedAt)
	if err != nil {
		return domain.Course{}, err
	}
	c.Category = domain.CourseCategory(category)
	c.Completion = domain.CompletionStatus(completion)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return c, nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}
