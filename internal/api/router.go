package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/middleware"
	"github.com/persistorai/anonforum/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log          *logrus.Logger
	DB           HealthDB
	Hub          *ws.Hub
	Backups      BackupService
	Queue        BackupQueue // nil disables async backups
	Posts        PostService
	ClientLookup middleware.ClientLookup
	CORSOrigins  []string
	Version      string
}

// Router-level limits.
const (
	maxBodySize = 64 << 10 // backup requests carry only options
	rateLimit   = 100      // requests per second per IP
	rateBurst   = 200      // token bucket burst size
	backupRate  = 2        // backups started per second per API client
	backupBurst = 10
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition", "Location", "X-Request-ID"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())
	r.Use(middleware.PrometheusMiddleware())

	// Metrics endpoint (unauthenticated, like health).
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.DB, deps.Hub, deps.Queue, log, deps.Version)
	backups := NewBackupHandler(deps.Backups, deps.Queue, log)
	posts := NewPostHandler(deps.Posts, log)

	// Health and readiness are unauthenticated.
	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// All other API routes require authentication.
	lookup := middleware.NewCachedClientLookup(ctx, deps.ClientLookup)
	bfGuard := middleware.NewBruteForceGuard(ctx, log)
	api.Use(middleware.BruteForceMiddleware(bfGuard))
	api.Use(middleware.AuthMiddleware(lookup, log, bfGuard))

	// Per API client, on top of the per-IP limit.
	limitBackups := middleware.NewRateLimiter(ctx, backupRate, backupBurst, middleware.ByAPIClient).Handler()

	// Activities.
	api.GET("/activities/:id/structure", backups.Structure)
	api.POST("/activities/:id/backup", limitBackups, backups.Backup)
	api.GET("/activities/:id/backup/download", limitBackups, backups.Download)

	// Courses.
	api.POST("/courses/:id/backup", limitBackups, backups.CourseBackup)

	// Backup runs.
	api.GET("/backups", backups.ListRuns)
	api.GET("/backups/:id", backups.GetRun)
	api.GET("/backups/:id/archive", backups.Archive)

	// Posts.
	api.GET("/users/:id/posts", posts.List)

	// WebSocket endpoint.
	api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins, lookup))
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
