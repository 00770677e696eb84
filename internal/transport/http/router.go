package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "assistant/backend/internal/auth/jwt"
	"assistant/backend/internal/config"
	"assistant/backend/internal/health"
	"assistant/backend/internal/middleware"
	"assistant/backend/internal/monitoring"
	"assistant/backend/internal/service"
)

// Handler groups every REST handler.
type Handler struct {
	accounts *service.AccountService
	messages *service.MessageService
	mail     *service.MailService
	tasks    *service.TaskService
	notes    *service.NoteService
	log      *zap.Logger
}

// RouterDependencies are the collaborators NewRouter wires together.
type RouterDependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	MessageService *service.MessageService
	MailService    *service.MailService
	TaskService    *service.TaskService
	NoteService    *service.NoteService
	UserService    *service.UserService
	JWTManager     *jwtpkg.Manager
	HealthChecker  *health.HealthChecker
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
}

// NewRouter builds the gin engine.
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log.Named("http"))
	router.Use(monitor.HTTPMetrics())
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(log.Named("http")))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// Credentials cannot be combined with a wildcard origin.
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			break
		}
	}
	if len(corsConfig.AllowOrigins) > 0 || corsConfig.AllowAllOrigins {
		router.Use(gincors.New(corsConfig))
	}

	handler := &Handler{
		accounts: deps.AccountService,
		messages: deps.MessageService,
		mail:     deps.MailService,
		tasks:    deps.TaskService,
		notes:    deps.NoteService,
		log:      log.Named("handler"),
	}

	var users middleware.UserLookup
	if deps.UserService != nil {
		users = deps.UserService
	}
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, users, log.Named("auth"))
	pipelineLimit := middleware.NewRateLimiter(
		"pipeline",
		deps.Config.RateLimit.PipelineRPS,
		deps.Config.RateLimit.PipelineBurst,
		deps.Metrics,
	)

	// ========== Ops ==========
	if deps.HealthChecker != nil {
		router.GET("/health", healthSummary(deps.HealthChecker))
		router.GET("/health/live", gin.WrapF(deps.HealthChecker.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.HealthChecker.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	v1 := router.Group("/v1")
	{
		// ========== Auth ==========
		if deps.UserService != nil {
			authHandler := NewAuthHandler(deps.JWTManager, deps.UserService, log.Named("auth"))
			v1.POST("/auth/refresh", authHandler.Refresh)
			v1.GET("/auth/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		authed := v1.Group("")
		authed.Use(jwtAuth.RequireAuth())

		// ========== Email Accounts ==========
		accounts := authed.Group("/email-accounts")
		{
			accounts.GET("", handler.listAccounts)
			accounts.POST("", handler.createAccount)
			accounts.GET("/:id", handler.getAccount)
			accounts.PUT("/:id", handler.updateAccount)
			accounts.DELETE("/:id", handler.deleteAccount)
			accounts.POST("/:id/sync", pipelineLimit.Middleware(), handler.syncAccount)
		}

		// ========== Email Messages ==========
		messages := authed.Group("/email-messages")
		{
			messages.GET("", handler.listMessages)
			messages.GET("/:id", handler.getMessage)
			messages.PATCH("/:id", handler.updateMessageFlags)
			messages.POST("/:id/analyze", pipelineLimit.Middleware(), handler.analyzeMessage)
		}

		// ========== Tasks & Notes ==========
		authed.GET("/tasks", handler.listTasks)
		authed.GET("/notes", handler.listNotes)
	}

	router.NoRoute(func(c *gin.Context) {
		NotFound(c, "route not found")
	})

	return router
}

// healthSummary reports every component in one envelope.
func healthSummary(checker *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		results := checker.CheckHealth()
		if !health.Healthy(results) {
			c.JSON(http.StatusServiceUnavailable, Response{
				Code: http.StatusServiceUnavailable,
				Msg:  "unhealthy",
				Data: results,
			})
			return
		}
		Success(c, results)
	}
}
