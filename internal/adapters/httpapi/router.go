package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/huahua9185/auto-study-advanced/internal/app"
	"github.com/huahua9185/auto-study-advanced/internal/ports"
)

// Server exposes the local control API: health, run status, the course
// registry and a live event stream. It observes the run; it never drives it.
type Server struct {
	logger  zerolog.Logger
	courses *app.CourseService
	sched   *app.Scheduler
	auth    *app.AuthSessionManager
	bus     ports.EventBus
}

func NewServer(logger zerolog.Logger, courses *app.CourseService, sched *app.Scheduler, auth *app.AuthSessionManager, bus ports.EventBus) *Server {
	return &Server{logger: logger, courses: courses, sched: sched, auth: auth, bus: bus}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// The SSE stream is long-lived; it lives outside the request timeout.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))

			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/status", s.handleStatus)
			r.Get("/tasks", s.handleTasks)
			r.Get("/session", s.handleSession)

			if s.courses != nil {
				r.Get("/courses", s.handleCourses)
			}
		})
	})

	return r
}
