package api

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/allocation-engine/internal/db"
)

// APIHandler carries the shared dependencies of all route handlers. The
// store is nil when persistence is not configured; run-history endpoints
// degrade to 503 in that case.
type APIHandler struct {
	store *db.Store
	wsHub *Hub
}

// SetupRouter wires the HTTP surface: CORS, bearer auth, per-IP rate
// limiting, the solve/load endpoints, run history, CSV export, and the
// websocket progress stream.
func SetupRouter(store *db.Store, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://dashboard.example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{store: store, wsHub: wsHub}

	api := r.Group("/api/v1")
	{
		// Public endpoints: health probe and the progress stream.
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)

		limiter := NewRateLimiter(30, 10)
		protected := api.Group("", AuthMiddleware(), limiter.Middleware())
		{
			protected.POST("/load", handler.handleLoad)
			protected.POST("/solve", handler.handleSolve)
			protected.GET("/runs", handler.handleListRuns)
			protected.GET("/runs/:id", handler.handleGetRun)
			protected.GET("/runs/:id/export", handler.handleExportRun)
		}
	}

	return r
}
