package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Option configures the router.
type Option interface {
	apply(*handler)
}

type optionFunc func(*handler)

func (f optionFunc) apply(h *handler) { f(h) }

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(h *handler) {
		if l != nil {
			h.logger = l
		}
	})
}

// WithEventHeartbeat sets how often an idle event stream sends a keepalive.
func WithEventHeartbeat(d time.Duration) Option {
	return optionFunc(func(h *handler) {
		if d > 0 {
			h.heartbeat = d
		}
	})
}

type handler struct {
	svc       Service
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewRouter builds the gin engine serving svc.
func NewRouter(svc Service, opts ...Option) *gin.Engine {
	h := &handler{svc: svc, logger: slog.Default(), heartbeat: 15 * time.Second}
	for _, opt := range opts {
		opt.apply(h)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(requestID(), recovery(h.logger), accessLog(h.logger), errorHandler(h.logger))

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, codeNotFound, "route not found", nil)
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, codeNoMethod, "method not allowed", nil)
	})

	r.GET("/health", h.health)
	r.GET("/events", h.events)

	users := r.Group("/users/:userId")
	users.POST("/sync", h.enqueueFullSync)
	users.POST("/sync/:source", h.enqueueSync)
	users.GET("/sync", h.syncStatuses)
	users.GET("/credibility", h.credibility)
	users.POST("/credibility/refresh", h.refreshCredibility)
	users.GET("/skills", h.skills)
	users.GET("/readiness", h.readiness)
	users.POST("/education", h.submitEducation)
	users.POST("/certifications", h.submitCertification)
	users.POST("/goals", h.saveGoal)

	jobs := r.Group("/jobs")
	jobs.GET("/:id", h.getJob)
	jobs.POST("/:id/retry", h.retryJob)
	jobs.DELETE("/:id", h.removeJob)

	queues := r.Group("/queues")
	queues.GET("", h.listQueues)
	queues.GET("/:queue/metrics", h.queueMetrics)
	queues.GET("/:queue/jobs", h.listJobs)
	queues.POST("/:queue/pause", h.pauseQueue)
	queues.POST("/:queue/resume", h.resumeQueue)

	return r
}
