package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/huahua9185/auto-study-advanced/internal/adapters/captcha"
	"github.com/huahua9185/auto-study-advanced/internal/adapters/httpapi"
	"github.com/huahua9185/auto-study-advanced/internal/adapters/memorybus"
	"github.com/huahua9185/auto-study-advanced/internal/adapters/sqlite"
	"github.com/huahua9185/auto-study-advanced/internal/app"
	"github.com/huahua9185/auto-study-advanced/internal/buildinfo"
	"github.com/huahua9185/auto-study-advanced/internal/config"
	"github.com/huahua9185/auto-study-advanced/internal/domain"
)

func main() {
	cfgPath := flag.String("config", envOr("AUTOSTUDY_CONFIG", "autostudy.yaml"), "Config file path")
	addr := flag.String("addr", "", "Listen address override (ex: 127.0.0.1:8089)")
	dbPath := flag.String("db", "", "SQLite path override (ex: autostudy.db)")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "autostudy-server").Logger()
	log.Logger = logger

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Registry.DBPath = *dbPath
	}

	logger.Info().Interface("build", buildinfo.Current()).Str("db", cfg.Registry.DBPath).Msg("starting")

	ctx := context.Background()
	db, err := sqlite.Open(ctx, cfg.Registry.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}
	defer func() { _ = db.Close() }()

	bus := memorybus.New()
	defer bus.Close()

	registry := sqlite.NewCoursesRepository(db.SQL)

	client := app.NewEduClient(logger.With().Str("component", "educlient").Logger(),
		cfg.Platform.BaseURL, cfg.Platform.Token, cfg.Platform.Timeout)

	cred := domain.Credential{
		Username:  cfg.Credentials.Username,
		Password:  cfg.Credentials.Password,
		CipherKey: cfg.Credentials.CipherKey,
	}
	classifier := captcha.NewExecClassifier(cfg.Platform.CaptchaCommand)
	auth := app.NewAuthSessionManager(logger.With().Str("component", "auth").Logger(), client, classifier, cred)

	courses := app.NewCourseService(logger.With().Str("component", "courses").Logger(), client, registry)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := auth.Session(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("initial login failed")
	}

	discovered, err := courses.Discover(shutdownCtx)
	if err != nil {
		logger.Fatal().Err(err).Msg("course discovery failed")
	}
	logger.Info().Int("courses", len(discovered)).Msg("courses discovered")

	opts := app.DefaultSchedulerOptions()
	opts.Workers = cfg.Scheduler.Workers
	opts.MaxQueue = cfg.Scheduler.MaxQueue
	opts.MaxInFlight = cfg.Scheduler.MaxInFlight
	opts.SubmitInterval = cfg.Scheduler.SubmitInterval
	opts.SubmitTimeout = cfg.Scheduler.SubmitTimeout
	opts.DrainTimeout = cfg.Scheduler.DrainTimeout
	opts.Retry = app.RetryPolicy{
		Base:        cfg.Scheduler.RetryBase,
		MaxDelay:    cfg.Scheduler.RetryMaxDelay,
		MaxAttempts: cfg.Scheduler.RetryAttempts,
	}
	opts.Task = app.TaskOptions{
		Cadence:       cfg.Playback.Cadence,
		CadenceJitter: cfg.Playback.CadenceJitter,
		SeekChance:    cfg.Playback.SeekChance,
		PauseChance:   cfg.Playback.PauseChance,
		PauseDuration: cfg.Playback.PauseDuration,
	}

	sched := app.NewScheduler(logger.With().Str("component", "scheduler").Logger(), auth, client, registry, bus, opts)
	seeded, err := sched.Seed(shutdownCtx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed scheduler")
	}
	logger.Info().Int("tasks", seeded).Int("workers", opts.Workers).Msg("scheduler seeded")

	schedDone := make(chan struct{})
	go func() {
		sched.Run(shutdownCtx)
		close(schedDone)
	}()

	srv := httpapi.NewServer(logger, courses, sched, auth, bus)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)

	// The scheduler bounds its own drain with DrainTimeout; the margin only
	// covers the detached registry writes behind it.
	select {
	case <-schedDone:
	case <-time.After(cfg.Scheduler.DrainTimeout + 5*time.Second):
		logger.Warn().Msg("scheduler did not drain in time")
	}
	logger.Info().Msg("bye")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
