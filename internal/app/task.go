package app

import (
	"math/rand"
	"time"

	"github.com/rs/xid"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
)

// TaskOptions tunes the simulated playback behavior of every course task.
type TaskOptions struct {
	// Cadence is the simulated watch interval between submissions.
	Cadence time.Duration
	// CadenceJitter randomizes each interval by up to this fraction.
	CadenceJitter float64
	// SeekChance / PauseChance are per-cycle probabilities of the non-linear
	// behaviors.
	SeekChance  float64
	PauseChance float64
	// PauseDuration bounds a simulated pause.
	PauseDuration time.Duration
}

func DefaultTaskOptions() TaskOptions {
	return TaskOptions{
		Cadence:       30 * time.Second,
		CadenceJitter: 0.15,
		SeekChance:    0.05,
		PauseChance:   0.03,
		PauseDuration: 10 * time.Second,
	}
}

type behavior int

const (
	behaviorPlay behavior = iota
	behaviorSeek
	behaviorPause
)

// CourseTask drives one course through simulated playback. It is owned by
// the scheduler queue while queued and by exactly one worker while active,
// so it carries no locking.
type CourseTask struct {
	domain.Task

	opts TaskOptions
	rng  *rand.Rand
}

func NewCourseTask(course domain.Course, opts TaskOptions) *CourseTask {
	if opts.Cadence <= 0 {
		opts.Cadence = DefaultTaskOptions().Cadence
	}
	if course.Sco == "" {
		course.Sco = domain.DefaultSco
	}
	now := time.Now().UTC()
	return &CourseTask{
		Task: domain.Task{
			ID:        xid.New().String(),
			Course:    course,
			State:     domain.TaskQueued,
			CreatedAt: now,
			UpdatedAt: now,
		},
		opts: opts,
		rng:  rand.New(rand.NewSource(now.UnixNano() ^ int64(len(course.UserCourseID)))),
	}
}

func (t *CourseTask) setState(to domain.TaskState) error {
	if !domain.CanTransition(t.State, to) {
		return domain.ErrInvalidTransition
	}
	t.State = to
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Begin claims the task for one playback cycle.
func (t *CourseTask) Begin() error { return t.setState(domain.TaskPlaying) }

// Suspend returns an active task to the queue between cycles.
func (t *CourseTask) Suspend() error { return t.setState(domain.TaskQueued) }

// Finish ends a completing task.
func (t *CourseTask) Finish() error { return t.setState(domain.TaskDone) }

// Fail records the terminal failure; valid from any non-done state.
func (t *CourseTask) Fail(err error) {
	_ = t.setState(domain.TaskFailed)
	t.FailureCode = errorCode(err)
	t.FailureMsg = err.Error()
}

// nextBehavior picks the simulated behavior for this cycle. The final
// stretch before completion always plays through, to keep the crossing
// submission a plain play event.
func (t *CourseTask) nextBehavior() behavior {
	remaining := completionTargetSeconds(t.Course) - t.Course.SessionTime
	if remaining <= int(t.opts.Cadence.Seconds()) {
		return behaviorPlay
	}
	roll := t.rng.Float64()
	if roll < t.opts.SeekChance {
		return behaviorSeek
	}
	if roll < t.opts.SeekChance+t.opts.PauseChance {
		return behaviorPause
	}
	return behaviorPlay
}

// watchInterval is the jittered cadence for one cycle, in whole seconds.
func (t *CourseTask) watchInterval() time.Duration {
	d := t.opts.Cadence
	if t.opts.CadenceJitter > 0 {
		spread := t.opts.CadenceJitter * float64(d)
		d += time.Duration((t.rng.Float64()*2 - 1) * spread)
	}
	return d.Truncate(time.Second)
}

// pauseInterval is how long a simulated pause lasts.
func (t *CourseTask) pauseInterval() time.Duration {
	d := t.opts.PauseDuration
	if d <= 0 {
		d = DefaultTaskOptions().PauseDuration
	}
	return time.Duration(t.rng.Int63n(int64(d)) + int64(time.Second)).Truncate(time.Second)
}

// Play advances the playback position by the watched interval and accrues
// session time. Lesson location is capped at the course duration and never
// decreases across play events. Crossing the completion threshold moves the
// task to completing and flips the course's status, so the submission built
// from the returned event is the one that reports completed.
func (t *CourseTask) Play(now time.Time, watched int) domain.ProgressEvent {
	if watched < 0 {
		watched = 0
	}
	loc := t.Course.LessonLocation + watched
	if loc > t.Course.Duration {
		loc = t.Course.Duration
	}
	t.Course.LessonLocation = loc
	t.Course.SessionTime += watched
	if t.Course.Completion == domain.CompletionNotStarted {
		t.Course.Completion = domain.CompletionIncomplete
	}
	t.refreshProgress()

	if t.Course.ReachedCompletion(t.Course.SessionTime) {
		t.Course.Completion = domain.CompletionCompleted
		t.Course.Progress = 100
		_ = t.setState(domain.TaskCompleting)
	}

	return domain.ProgressEvent{
		LessonLocation: loc,
		SessionTime:    watched,
		Elapsed:        watched,
		Timestamp:      now,
	}
}

// Seek jumps the playback position without accruing session time.
func (t *CourseTask) Seek(now time.Time, to, elapsed int) domain.ProgressEvent {
	if to < 0 {
		to = 0
	}
	if to > t.Course.Duration {
		to = t.Course.Duration
	}
	t.Course.LessonLocation = to
	if t.Course.Completion == domain.CompletionNotStarted {
		t.Course.Completion = domain.CompletionIncomplete
	}
	return domain.ProgressEvent{
		LessonLocation: to,
		SessionTime:    0,
		Elapsed:        elapsed,
		Timestamp:      now,
	}
}

// seekTarget picks a plausible jump destination around the current position.
func (t *CourseTask) seekTarget() int {
	window := t.Course.Duration / 10
	if window < 1 {
		window = 1
	}
	offset := t.rng.Intn(2*window+1) - window
	return t.Course.LessonLocation + offset
}

func (t *CourseTask) refreshProgress() {
	if t.Course.Duration <= 0 {
		return
	}
	p := float64(t.Course.LessonLocation) / float64(t.Course.Duration) * 100
	if p > t.Course.Progress {
		t.Course.Progress = p
	}
	if t.Course.Progress > 100 {
		t.Course.Progress = 100
	}
}

func completionTargetSeconds(c domain.Course) int {
	target := int(0.9 * float64(c.Duration))
	if float64(target) < 0.9*float64(c.Duration) {
		target++
	}
	return target
}
