package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/database"
	"github.com/assessly/assessly-backend/internal/evaluator"
	"github.com/assessly/assessly-backend/internal/handler"
	"github.com/assessly/assessly-backend/internal/logger"
	"github.com/assessly/assessly-backend/internal/repository"
	"github.com/assessly/assessly-backend/internal/router"
	"github.com/assessly/assessly-backend/internal/sandbox"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/assessly/assessly-backend/internal/validator"
	"github.com/assessly/assessly-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Assessly Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	adminRepo := repository.NewAdminRepository(pool)
	candidateRepo := repository.NewCandidateRepository(pool)
	sessionRepo := repository.NewTestSessionRepository(pool)
	programRepo := repository.NewProgramRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	draftService := service.NewDraftService(rdb, log)
	coordinator := service.NewSubmissionCoordinator(attemptRepo, submissionRepo, sessionRepo, questionRepo, draftService, rdb, log)
	attemptService := service.NewAttemptService(attemptRepo, sessionRepo, programRepo, questionRepo, draftService, coordinator, rdb, log)
	integrityService := service.NewIntegrityService(attemptRepo, coordinator, rdb, cfg, log)
	sessionService := service.NewTestSessionService(sessionRepo, attemptRepo, programRepo, questionRepo, log)
	programService := service.NewProgramService(programRepo, log)
	candidateService := service.NewCandidateService(candidateRepo, authService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, attemptService, candidateRepo, adminRepo),
		Portal:     handler.NewCandidatePortalHandler(attemptService, integrityService, draftService),
		Session:    handler.NewAdminSessionHandler(sessionService, attemptService),
		Program:    handler.NewAdminProgramHandler(programService),
		Candidate:  handler.NewAdminCandidateHandler(candidateService),
		Submission: handler.NewAdminSubmissionHandler(attemptRepo, submissionRepo),
		WS:         handler.NewWSHandler(attemptService, integrityService, draftService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	executor := sandbox.NewClient(cfg.SandboxURL, cfg.SandboxToken, cfg.SandboxTimeout, log)

	var eval evaluator.Evaluator
	if cfg.OpenAIKey != "" {
		openaiEval, err := evaluator.NewOpenAIEvaluator(cfg.OpenAIKey, cfg.OpenAIModel, log)
		if err != nil {
			log.Warn().Err(err).Msg("Evaluator unavailable, grading falls back to test scores")
		} else {
			eval = openaiEval
		}
	} else {
		log.Warn().Msg("No OpenAI key configured, grading falls back to test scores")
	}

	autosaveWorker := worker.NewAutosaveWorker(pool, rdb, log)
	integrityWorker := worker.NewIntegrityWorker(pool, rdb, log)
	gradingWorker := worker.NewGradingWorker(submissionRepo, attemptRepo, programRepo, executor, eval, rdb, cfg, log)

	go autosaveWorker.Start(workerCtx)
	go integrityWorker.Start(workerCtx)
	go gradingWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
