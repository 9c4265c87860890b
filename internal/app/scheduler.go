package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
	"github.com/huahua9185/auto-study-advanced/internal/ports"
)

type SchedulerOptions struct {
	// Workers is the size of the worker pool.
	Workers int
	// PollInterval is how often an idle worker looks for a claimable task.
	PollInterval time.Duration
	// MaxQueue bounds admissions.
	MaxQueue int
	// MaxInFlight caps concurrent submissions across all workers.
	MaxInFlight int
	// SubmitInterval is the global minimum spacing between submissions.
	SubmitInterval time.Duration
	// SubmitTimeout bounds one submission exchange. The exchange is detached
	// from cancellation so shutdown never aborts it mid-flight.
	SubmitTimeout time.Duration
	// DrainTimeout bounds the shutdown wait for in-flight cycles.
	DrainTimeout time.Duration

	Retry RetryPolicy
	Task  TaskOptions
}

func DefaultSchedulerOptions() SchedulerOptions {
	return SchedulerOptions{
		Workers:        3,
		PollInterval:   500 * time.Millisecond,
		MaxQueue:       256,
		MaxInFlight:    2,
		SubmitInterval: 2 * time.Second,
		SubmitTimeout:  30 * time.Second,
		DrainTimeout:   30 * time.Second,
		Retry:          DefaultRetryPolicy(),
		Task:           DefaultTaskOptions(),
	}
}

// Scheduler drains the course queue with a bounded worker pool. Each task is
// held by exactly one worker at a time, which keeps course mutation race-free
// and guarantees submissions for one course are never concurrently in flight.
type Scheduler struct {
	logger   zerolog.Logger
	auth     *AuthSessionManager
	client   *EduClient
	registry ports.CourseRegistry
	bus      ports.EventBus
	codec    ProgressCodec
	opts     SchedulerOptions

	queue   *taskQueue
	limiter *DynamicLimiter
	pacer   *SubmitPacer

	mu       sync.Mutex
	done     int
	failed   int
	outcomes []TaskDTO
}

func NewScheduler(logger zerolog.Logger, auth *AuthSessionManager, client *EduClient, registry ports.CourseRegistry, bus ports.EventBus, opts SchedulerOptions) *Scheduler {
	def := DefaultSchedulerOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = def.SubmitTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = def.DrainTimeout
	}
	if opts.Retry.MaxAttempts <= 0 && opts.Retry.Base <= 0 {
		opts.Retry = def.Retry
	}
	return &Scheduler{
		logger:   logger,
		auth:     auth,
		client:   client,
		registry: registry,
		bus:      bus,
		opts:     opts,
		queue:    newTaskQueue(opts.MaxQueue),
		limiter:  NewDynamicLimiter(opts.MaxInFlight),
		pacer:    NewSubmitPacer(opts.SubmitInterval),
	}
}

// Seed loads incomplete courses from the registry into the queue. Returns
// the number of admitted tasks.
func (s *Scheduler) Seed(ctx context.Context) (int, error) {
	courses, err := s.registry.ListIncomplete(ctx)
	if err != nil {
		return 0, err
	}
	admitted := 0
	for _, c := range courses {
		if err := s.Enqueue(c); err != nil {
			return admitted, err
		}
		admitted++
	}
	return admitted, nil
}

// Enqueue admits one course for playback.
func (s *Scheduler) Enqueue(course domain.Course) error {
	t := NewCourseTask(course, s.opts.Task)
	if err := s.queue.Push(t); err != nil {
		return err
	}
	PublishTaskEvent(s.bus, TopicTaskQueued, t)
	return nil
}

// Run executes the pool until ctx is canceled, then drains. New admissions
// stop immediately; in-flight cycles are given DrainTimeout to finish before
// stragglers are abandoned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		w := &worker{
			logger: s.logger.With().Int("worker", i+1).Logger(),
			s:      s,
		}
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}
	s.logger.Info().Int("workers", s.opts.Workers).Msg("workers started")

	<-ctx.Done()
	s.queue.Close()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		s.logger.Info().Msg("scheduler drained")
	case <-time.After(s.opts.DrainTimeout):
		s.logger.Warn().Dur("timeout", s.opts.DrainTimeout).Msg("drain timeout, abandoning stragglers")
	}
}

// QueueLen is the number of tasks waiting (including ones in backoff).
func (s *Scheduler) QueueLen() int { return s.queue.Len() }

func (s *Scheduler) reportDone(t *CourseTask) {
	PublishTaskEvent(s.bus, TopicTaskCompleted, t)
	s.mu.Lock()
	s.done++
	s.outcomes = append(s.outcomes, ToTaskDTO(t))
	s.mu.Unlock()
	s.logger.Info().
		Str("user_course_id", t.Course.UserCourseID).
		Str("name", t.Course.Name).
		Int("session_time", t.Course.SessionTime).
		Msg("course completed")
}

func (s *Scheduler) reportFailed(t *CourseTask, err error) {
	PublishTaskEvent(s.bus, TopicTaskFailed, t)
	s.mu.Lock()
	s.failed++
	s.outcomes = append(s.outcomes, ToTaskDTO(t))
	s.mu.Unlock()
	s.logger.Error().Err(err).
		Str("user_course_id", t.Course.UserCourseID).
		Str("name", t.Course.Name).
		Int("attempts", t.Retry.Attempts).
		Msg("course failed")
}

// SchedulerStatus is the control API's view of the run.
type SchedulerStatus struct {
	Workers  int       `json:"workers"`
	Queued   int       `json:"queued"`
	InFlight int       `json:"inFlight"`
	Done     int       `json:"done"`
	Failed   int       `json:"failed"`
	Outcomes []TaskDTO `json:"outcomes,omitempty"`
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	outcomes := make([]TaskDTO, len(s.outcomes))
	copy(outcomes, s.outcomes)
	done, failed := s.done, s.failed
	s.mu.Unlock()

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].UserCourseID < outcomes[j].UserCourseID
	})
	return SchedulerStatus{
		Workers:  s.opts.Workers,
		Queued:   s.queue.Len(),
		InFlight: s.limiter.InFlight(),
		Done:     done,
		Failed:   failed,
		Outcomes: outcomes,
	}
}
