package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hummingbirdtestai/mocktest-engine/internal/config"
	"github.com/hummingbirdtestai/mocktest-engine/internal/handler"
	"github.com/hummingbirdtestai/mocktest-engine/internal/middleware"
	"github.com/hummingbirdtestai/mocktest-engine/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
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

	// Rate limiter for intent routes. Intents are serialized per session
	// anyway, so this only guards against pathological clients.
	intentLimiter := middleware.NewRateLimiter(120, time.Minute)

	// ─── 1. Session Group (Student JWT) ────────────────────────────────
	sessionAPI := router.Group("/api/v1/session")
	sessionAPI.Use(middleware.RequireStudentJWT(cfg.JWTSecret))
	{
		// Reads. Snapshots go stale every second, never cache them.
		sessionAPI.GET("", middleware.NoStore(), handlers.Session.GetSession)

		// Local navigation and palette state.
		sessionAPI.PUT("/current-question", handlers.Session.SelectQuestion)
		sessionAPI.PUT("/filter", handlers.Session.SetFilter)
		sessionAPI.POST("/palette/open", handlers.Session.OpenPalette)
		sessionAPI.POST("/palette/close", handlers.Session.ClosePalette)

		// Intent routes, each one exchange with the orchestrator.
		intents := sessionAPI.Group("")
		intents.Use(intentLimiter.Middleware())
		{
			intents.POST("/sections/:section_id/start", handlers.Session.StartSection)
			intents.POST("/sections/:section_id/finish", handlers.Session.FinishSection)
			intents.POST("/answers", handlers.Session.SubmitAnswer)
			intents.POST("/marks", handlers.Session.ToggleMark)
			intents.POST("/next", handlers.Session.NextQuestion)
			intents.POST("/review", handlers.Session.EnterReview)
		}

		sessionAPI.DELETE("", handlers.Session.CloseSession)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(cfg.JWTSecret))
	{
		ws.GET("/session/stream", handlers.WS.SessionStream)
	}

	return router
}
