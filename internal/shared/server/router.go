package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contrib-backend/internal/runs"
	"contrib-backend/internal/shared/config"
	"contrib-backend/internal/shared/metrics"
	"contrib-backend/internal/shared/server/middleware"
	"contrib-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router wires into routes.
type RouterDeps struct {
	Config     config.Config
	RunHandler *runs.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(apiRateLimit())
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.RunHandler != nil {
		deps.RunHandler.RegisterRoutes(api)
	}

	return r
}

// apiRateLimit keys buckets by client IP and gives read polling more
// headroom than mutating calls.
func apiRateLimit() gin.HandlerFunc {
	return middleware.RateLimit(middleware.RateLimitConfig{
		DefaultGroup: "DEFAULT",
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				return "POLLING"
			}
			return "DEFAULT"
		},
		Rules: map[string]middleware.RateLimitRule{
			"DEFAULT": {Rate: 2, Burst: 10},
			"POLLING": {Rate: 10, Burst: 30},
		},
	})
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
