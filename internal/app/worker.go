package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
)

// worker claims one task at a time and runs a single playback/submission
// cycle per claim. Cancellation is only observed at the suspension points
// (session wait, rate-limit wait, playback sleeps); a submission already on
// the wire always runs to completion.
type worker struct {
	logger zerolog.Logger
	s      *Scheduler
}

func (w *worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task, ok := w.s.queue.ClaimNext(time.Now())
			if !ok {
				continue
			}
			w.execute(ctx, task)
		}
	}
}

func (w *worker) execute(ctx context.Context, t *CourseTask) {
	// Borrow a valid session; blocks while a renewal is in flight.
	sess, err := w.s.auth.Session(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.handleFailure(t, domain.Session{}, err)
		return
	}

	if t.State == domain.TaskQueued {
		if err := t.Begin(); err != nil {
			w.logger.Error().Err(err).Str("task_id", t.ID).Msg("cannot begin task")
			return
		}
	}
	PublishTaskEvent(w.s.bus, TopicTaskPlaying, t)

	var ev domain.ProgressEvent
	switch t.nextBehavior() {
	case behaviorPause:
		// Pause suspends event generation but keeps accumulated state.
		_ = t.setState(domain.TaskPaused)
		if !w.sleep(ctx, t.pauseInterval()) {
			return
		}
		_ = t.setState(domain.TaskPlaying)
		w.requeue(t)
		return
	case behaviorSeek:
		_ = t.setState(domain.TaskSeeking)
		ev = t.Seek(time.Now(), t.seekTarget(), 1+t.rng.Intn(3))
	default:
		watch := t.watchInterval()
		if !w.sleep(ctx, watch) {
			return
		}
		ev = t.Play(time.Now(), int(watch.Seconds()))
	}

	if err := w.submit(ctx, t, ev); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		w.handleFailure(t, sess, w.refineFailure(ctx, err))
		return
	}

	t.Retry.Reset()
	w.persist(ctx, t)
	PublishTaskEvent(w.s.bus, TopicTaskProgress, t)

	if t.State == domain.TaskCompleting {
		_ = t.Finish()
		w.s.reportDone(t)
		return
	}
	if t.State == domain.TaskSeeking {
		_ = t.setState(domain.TaskPlaying)
	}
	w.requeue(t)
}

// submit runs the encode/send/decode leg of a cycle under the in-flight cap
// and the global pacer.
func (w *worker) submit(ctx context.Context, t *CourseTask, ev domain.ProgressEvent) error {
	if err := w.s.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer w.s.limiter.Release()
	if err := w.s.pacer.Wait(ctx); err != nil {
		return err
	}

	payload, err := w.s.codec.Encode(t.Course, ev)
	if err != nil {
		return err
	}

	// Detached from cancellation: a half-acknowledged progress update is
	// worse than a slightly delayed shutdown.
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.s.opts.SubmitTimeout)
	defer cancel()

	body, err := w.s.client.SubmitProgress(subCtx, t.Course.UserCourseID, payload)
	if err != nil {
		return err
	}
	_, err = w.s.codec.Decode(body)
	return err
}

// refineFailure distinguishes an expired session from a real protocol break.
// The platform answers authenticated endpoints with its login HTML page once
// the session dies, which decodes as a malformed response; probe before
// condemning the task as permanently failed.
func (w *worker) refineFailure(ctx context.Context, err error) error {
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) || protoErr.Kind != ProtocolMalformedResponse {
		return err
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	ok, probeErr := w.s.client.CheckSession(pctx)
	if probeErr == nil && !ok {
		return &AuthError{Kind: AuthSessionExpired, Message: "submission answered with a non-json body and the session probe failed"}
	}
	return err
}

// persist writes the accepted state to the registry. Runs detached so an
// accepted submission is durably recorded even during shutdown.
func (w *worker) persist(ctx context.Context, t *CourseTask) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := w.s.registry.UpdateProgress(pctx, t.Course); err != nil {
		w.logger.Warn().Err(err).Str("user_course_id", t.Course.UserCourseID).Msg("registry update failed")
	}
}

func (w *worker) handleFailure(t *CourseTask, sess domain.Session, err error) {
	t.Retry.Attempts++
	t.Retry.LastError = err.Error()

	class := w.s.opts.Retry.Classify(err)
	w.logger.Warn().Err(err).
		Str("user_course_id", t.Course.UserCourseID).
		Str("class", class.String()).
		Int("attempts", t.Retry.Attempts).
		Msg("submission cycle failed")

	switch class {
	case ClassPermanent:
		t.Fail(err)
		w.s.reportFailed(t, err)
		return
	case ClassAuthExpired:
		// One worker invalidating is enough; the session manager serializes
		// the re-login and everyone else waits on it.
		w.s.auth.Invalidate(sess.Token)
		t.Retry.ReadyAt = time.Time{}
	default:
		if w.s.opts.Retry.Exhausted(t.Retry.Attempts) {
			t.Fail(err)
			w.s.reportFailed(t, err)
			return
		}
		t.Retry.ReadyAt = time.Now().Add(w.s.opts.Retry.Backoff(t.Retry.Attempts - 1))
	}
	w.requeue(t)
}

func (w *worker) requeue(t *CourseTask) {
	if t.State != domain.TaskQueued {
		if err := t.Suspend(); err != nil {
			w.logger.Error().Err(err).Str("task_id", t.ID).Str("state", string(t.State)).Msg("cannot requeue task")
			return
		}
	}
	if !w.s.queue.Requeue(t) {
		w.logger.Debug().Str("task_id", t.ID).Msg("queue closed, task dropped")
	}
}

// sleep waits for d or until cancellation; returns false when canceled.
func (w *worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
