package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/auth"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures the shell API served on the exam workstation.
func SetupRouter(
	authCtx *auth.Context,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	// Shell assets, when the agent serves them itself.
	if cfg.ShellDir != "" {
		shell := router.Group("/shell")
		shell.Use(middleware.CacheControl(86400))
		{
			shell.Static("/", cfg.ShellDir)
		}
	}

	router.GET("/health", handlers.System.Health)

	api := router.Group("/api/v1")
	api.Use(middleware.NoStore())

	// Submit stays reachable after the local token expires mid-exam; the
	// backend decides whether the submission is still accepted.
	api.POST("/session/submit", handlers.Session.Submit)

	gated := api.Group("")
	gated.Use(middleware.RequireValidToken(authCtx))
	{
		gated.GET("/exams/today", handlers.Exam.GetToday)
		gated.POST("/exams/:exam_id/open", handlers.Exam.Open)

		// Signals and autosaves arrive in bursts; anything far above
		// typing speed is a stuck shell.
		limiter := middleware.NewRateLimiter(30, 100*time.Millisecond)

		sessionGroup := gated.Group("/session")
		{
			sessionGroup.GET("", handlers.Session.Get)
			sessionGroup.POST("/start", handlers.Session.Start)
			sessionGroup.PUT("/answers/:question_id", limiter.Middleware(), handlers.Session.SetAnswer)
			sessionGroup.POST("/signals", limiter.Middleware(), handlers.Session.Signal)
		}
	}

	router.GET("/ws/v1/session/stream", handlers.WS.SessionStream)

	return router
}
