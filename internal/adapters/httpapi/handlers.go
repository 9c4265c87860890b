package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/huahua9185/auto-study-advanced/internal/app"
	"github.com/huahua9185/auto-study-advanced/internal/buildinfo"
	"github.com/huahua9185/auto-study-advanced/internal/httpjson"
)

const defaultRequestTimeout = 30 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		httpjson.WriteError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	httpjson.Write(w, http.StatusOK, s.sched.Status())
}

// handleTasks lists the terminal task outcomes of the current run. Live task
// movement is on /events.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		httpjson.WriteError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	outcomes := s.sched.Status().Outcomes
	if outcomes == nil {
		outcomes = []app.TaskDTO{}
	}
	httpjson.Write(w, http.StatusOK, outcomes)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		httpjson.WriteError(w, http.StatusServiceUnavailable, "auth not configured")
		return
	}
	sess, ok := s.auth.Current()
	if !ok {
		httpjson.Write(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        sess.UserID,
		"realname":      sess.Realname,
		"createdAt":     sess.CreatedAt,
	})
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.courses.List(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, courses)
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}
