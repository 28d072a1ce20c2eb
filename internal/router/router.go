package router

import (
	"net/http"
	"time"

	"github.com/assessly/assessly-backend/internal/config"
	"github.com/assessly/assessly-backend/internal/handler"
	"github.com/assessly/assessly-backend/internal/middleware"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/assessly/assessly-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Portal     *handler.CandidatePortalHandler
	Session    *handler.AdminSessionHandler
	Program    *handler.AdminProgramHandler
	Candidate  *handler.AdminCandidateHandler
	Submission *handler.AdminSubmissionHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/candidate/login", handlers.Auth.CandidateLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/candidate/logout", middleware.RequireCandidateJWT(authService), handlers.Auth.CandidateLogout)
		auth.GET("/candidate/me", middleware.RequireCandidateJWT(authService), handlers.Auth.GetCandidateProfile)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Candidate Portal Group (JWT + Single Device) ───────────────
	portalAPI := router.Group("/api/v1/portal")
	portalAPI.Use(
		middleware.RequireCandidateJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		portalAPI.GET("/attempt", handlers.Portal.GetAttempt)
		portalAPI.POST("/attempt/start", handlers.Portal.StartAttempt)
		portalAPI.PUT("/attempt/draft", handlers.Portal.SaveDraft)
		portalAPI.POST("/attempt/submit", handlers.Portal.SubmitAttempt)
		portalAPI.POST("/attempt/integrity", handlers.Portal.ReportIntegrity)
		portalAPI.GET("/attempt/grading", handlers.Portal.GetGradingStatus)
	}

	// ─── 3. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/portal/attempt/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Session authoring
		adminAPI.POST("/sessions", handlers.Session.CreateSession)
		adminAPI.GET("/sessions", handlers.Session.ListSessions)
		adminAPI.GET("/sessions/:id", handlers.Session.GetSession)
		adminAPI.PUT("/sessions/:id", handlers.Session.UpdateSession)
		adminAPI.POST("/sessions/:id/publish", handlers.Session.PublishSession)
		adminAPI.POST("/sessions/:id/archive", handlers.Session.ArchiveSession)
		adminAPI.POST("/sessions/:id/programs/:programId", handlers.Session.AttachProgram)
		adminAPI.POST("/sessions/:id/questions", handlers.Session.AddQuestion)
		adminAPI.GET("/sessions/:id/questions", handlers.Session.ListQuestions)
		adminAPI.POST("/sessions/:id/assign", handlers.Session.AssignCandidate)
		adminAPI.GET("/sessions/:id/results", handlers.Session.GetResults)

		// Program authoring
		adminAPI.POST("/programs", handlers.Program.CreateProgram)
		adminAPI.GET("/programs", handlers.Program.ListPrograms)
		adminAPI.GET("/programs/:id", handlers.Program.GetProgram)
		adminAPI.POST("/programs/:id/test-cases", handlers.Program.AddTestCase)
		adminAPI.GET("/programs/:id/test-cases", handlers.Program.ListTestCases)

		// Candidate management
		adminAPI.POST("/candidates", handlers.Candidate.CreateCandidate)
		adminAPI.GET("/candidates", handlers.Candidate.ListCandidates)
		adminAPI.GET("/candidates/:id", handlers.Candidate.GetCandidate)
		adminAPI.POST("/candidates/:id/reset-session", handlers.Auth.ResetCandidateSession)

		// Submission review
		adminAPI.GET("/attempts/:id/submission", handlers.Submission.GetAttemptSubmission)
	}

	return router
}
