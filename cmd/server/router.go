package main

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/remote-agent-terminal/claude-terminal/api/handlers"
	"github.com/remote-agent-terminal/claude-terminal/internal/bridge"
	"github.com/remote-agent-terminal/claude-terminal/internal/config"
	"github.com/remote-agent-terminal/claude-terminal/internal/logging"
	"github.com/remote-agent-terminal/claude-terminal/internal/metrics"
	"github.com/remote-agent-terminal/claude-terminal/internal/model"
	"github.com/remote-agent-terminal/claude-terminal/internal/ws"
)

// sessionService is what the HTTP and WebSocket surfaces drive.
type sessionService interface {
	handlers.SessionService
	ws.Controller
	Len() int
}

// recordCounter reports how many persisted records are in a state.
type recordCounter interface {
	CountByStatus(ctx context.Context, state model.SessionState) (int, error)
}

type routerDeps struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	sessions sessionService
	bridge   *bridge.Bridge
	store    handlers.SessionStore
	records  recordCounter
	picker   handlers.DirectoryPicker
}

func newRouter(d routerDeps) *gin.Engine {
	if !d.cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(d.logger.Named("http")))
	r.Use(metrics.Middleware(d.metrics))
	r.Use(cors.New(cors.Config{
		AllowOrigins: d.cfg.Server.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
	}))

	r.GET("/health", func(c *gin.Context) {
		exited, err := d.records.CountByStatus(c.Request.Context(), model.SessionStateExited)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": d.sessions.Len(),
			"exited":   exited,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})))

	settings := func() config.Settings { return d.cfg.Settings }
	stream := ws.NewHandler(d.bridge, d.sessions, d.logger.Named("ws"), allowOrigins(d.cfg.Server.AllowedOrigins))

	api := r.Group("/api")
	{
		handlers.NewSessionHandler(d.sessions, settings).RegisterRoutes(api)
		handlers.NewRecordsHandler(d.store, d.picker).RegisterRoutes(api)
		handlers.NewEventsHandler(stream).RegisterRoutes(api)
	}

	return r
}

// allowOrigins accepts requests without an Origin header, which come from
// the desktop shell rather than a browser, and the configured UI origins.
func allowOrigins(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
