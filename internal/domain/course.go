package domain

import "time"

type CompletionStatus string

const (
	CompletionNotStarted CompletionStatus = "not_started"
	CompletionIncomplete CompletionStatus = "incomplete"
	CompletionCompleted  CompletionStatus = "completed"
)

type CourseCategory string

const (
	CategoryRequired CourseCategory = "required"
	CategoryElective CourseCategory = "elective"
)

// DefaultSco is the only sco identifier observed on the platform so far.
// It is carried per course so a differing value can be stored without
// touching the submission path.
const DefaultSco = "res01"

// Course is the unit of work tracked by the registry. LessonLocation and
// SessionTime are in seconds; Progress is the percentage reported by the
// platform at discovery time.
type Course struct {
	UserCourseID string
	CourseID     string
	Name         string
	Category     CourseCategory
	Sco          string
	Duration     int
	Progress     float64
	Completion   CompletionStatus

	LessonLocation int
	SessionTime    int

	UpdatedAt time.Time
}

// completionRatio is the share of Duration that must be actively watched
// before the platform counts the course as completed.
const completionRatio = 0.9

// ReachedCompletion reports whether the given cumulative session time is
// enough to flip the course to completed.
func (c Course) ReachedCompletion(sessionTime int) bool {
	return float64(sessionTime) >= completionRatio*float64(c.Duration)
}

// ProgressEvent is one submission's worth of playback. SessionTime is the
// actively-watched delta for this interval only, Elapsed the wall-clock
// seconds since the previous submission.
type ProgressEvent struct {
	LessonLocation int
	SessionTime    int
	Elapsed        int
	Timestamp      time.Time
}
