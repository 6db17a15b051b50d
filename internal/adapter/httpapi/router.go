// Package httpapi serves the lattice REST API over gin.
package httpapi

import (
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lattice/internal/infra/config"
	"lattice/internal/infra/middleware"
	"lattice/internal/usecase"
)

// Options configures the router.
type Options struct {
	Service *usecase.Service
	Storage config.StorageConfig
	// SessionID is the session /ui/chat uses when the request names none.
	SessionID string
	// SessionIDFunc, when set, replaces SessionID and is called on every
	// /ui/chat request that names no session.
	SessionIDFunc func() (string, error)
	Version       string
	CORSOrigins   []string

	Limiter  *middleware.RateLimiter    // optional
	Recorder middleware.RequestRecorder // optional
	Gatherer prometheus.Gatherer        // optional, nil = no /metrics route
	Logger   *slog.Logger               // optional, nil = slog.Default()
}

type api struct {
	svc       *usecase.Service
	storage   config.StorageConfig
	sessionID func() (string, error)
	version   string
	pid       int
	log       *slog.Logger
}

// NewRouter builds the gin engine with middleware and every route registered.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	a := &api{
		svc:       opts.Service,
		storage:   opts.Storage,
		sessionID: opts.SessionIDFunc,
		version:   opts.Version,
		pid:       os.Getpid(),
		log:       log,
	}

	if a.sessionID == nil {
		id := opts.SessionID
		a.sessionID = func() (string, error) { return id, nil }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if len(opts.CORSOrigins) > 0 {
		cc := cors.DefaultConfig()
		cc.AllowOrigins = opts.CORSOrigins
		cc.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		cc.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		r.Use(cors.New(cc))
	}
	r.Use(middleware.SecurityHeaders())
	if opts.Limiter != nil && opts.Limiter.Enabled() {
		r.Use(opts.Limiter.Handler())
	}
	r.Use(middleware.Observe(log, opts.Recorder))

	r.GET("/health", a.health)
	r.GET("/info", a.info)
	r.GET("/agents", a.listAgents)

	s := r.Group("/sessions/:session")
	{
		s.GET("/threads", a.listThreads)
		s.POST("/threads", a.createThread)
		s.DELETE("/threads/:thread", a.deleteThread)
		s.POST("/threads/:thread/clear", a.clearThread)
		s.GET("/threads/:thread/messages", a.threadMessages)
		s.GET("/threads/:thread/agent", a.getThreadAgent)
		s.PUT("/threads/:thread/agent", a.setThreadAgent)
		s.GET("/threads/:thread/models", a.threadModels)
		s.GET("/model", a.getSessionModel)
		s.PUT("/model", a.setSessionModel)
	}

	r.POST("/ui/chat", a.chat)

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
