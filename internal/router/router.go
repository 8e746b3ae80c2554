package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/handler"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/monitoring"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth   *handler.AuthHandler
	Exam   *handler.ExamHandler
	Report *handler.ReportHandler
	WS     *handler.WSHandler
	System *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	portal *service.PortalService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", middleware.HeaderRefreshToken}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(log))
	router.Use(monitoring.MetricsMiddleware())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", monitoring.PrometheusHandler())

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(limiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", middleware.RequireBearer(), handlers.Auth.Logout)
	}

	session := []gin.HandlerFunc{middleware.RequireBearer(), middleware.RequireExamSession(portal)}

	// ─── 2. Exam Group (Bearer → exam controller) ──────────────────────
	exam := router.Group("/api/v1/exam")
	exam.Use(session...)
	{
		exam.GET("/state", handlers.Exam.GetState)

		mutating := exam.Group("")
		mutating.Use(limiter.Middleware())
		{
			mutating.POST("/start", handlers.Exam.StartExam)
			mutating.PUT("/answer", handlers.Exam.SelectAnswer)
			mutating.POST("/next", handlers.Exam.Next)
			mutating.POST("/prev", handlers.Exam.Prev)
			mutating.POST("/goto", handlers.Exam.GoTo)
			mutating.POST("/submit", handlers.Exam.Submit)
			mutating.DELETE("", handlers.Exam.CloseExam)
		}
	}

	// ─── 3. Report Group ───────────────────────────────────────────────
	report := router.Group("/api/v1/report")
	report.Use(session...)
	{
		report.GET("", handlers.Report.GetReport)
		report.DELETE("", handlers.Report.ClearReport)
	}

	// ─── 4. WebSocket Group (token via query) ──────────────────────────
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(session...)
	{
		wsGroup.GET("/exam/stream", handlers.WS.ExamStream)
	}

	return router
}
