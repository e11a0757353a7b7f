package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (h *handler) getJob(c *gin.Context) {
	job, err := h.svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusOK, newJobView(job))
}

func (h *handler) retryJob(c *gin.Context) {
	if err := h.svc.RetryJob(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusAccepted, gin.H{"jobId": c.Param("id")})
}

func (h *handler) removeJob(c *gin.Context) {
	if err := h.svc.RemoveJob(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"jobId": c.Param("id")})
}

func (h *handler) listJobs(c *gin.Context) {
	status := core.JobStatus(c.DefaultQuery("status", string(core.StatusFailed)))
	if !slices.Contains(core.AllStatuses, status) {
		_ = c.Error(badRequest(fmt.Sprintf("unknown status %q", status), nil))
		return
	}
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			_ = c.Error(badRequest("limit must be a positive integer", err))
			return
		}
		limit = min(n, maxListLimit)
	}

	jobs, err := h.svc.ListJobs(c.Request.Context(), c.Param("queue"), status, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newJobView(j))
	}
	ok(c, http.StatusOK, out)
}

func (h *handler) listQueues(c *gin.Context) {
	names := h.svc.Queues()
	out := make([]queue.Metrics, 0, len(names))
	for _, q := range names {
		m, err := h.svc.QueueMetrics(c.Request.Context(), q)
		if err != nil {
			_ = c.Error(err)
			return
		}
		out = append(out, m)
	}
	ok(c, http.StatusOK, out)
}

func (h *handler) queueMetrics(c *gin.Context) {
	m, err := h.svc.QueueMetrics(c.Request.Context(), c.Param("queue"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusOK, m)
}

func (h *handler) pauseQueue(c *gin.Context) {
	by := c.DefaultQuery("by", "api")
	if err := h.svc.PauseQueue(c.Request.Context(), c.Param("queue"), by); err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"queue": c.Param("queue"), "paused": true})
}

func (h *handler) resumeQueue(c *gin.Context) {
	if err := h.svc.ResumeQueue(c.Request.Context(), c.Param("queue")); err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusOK, gin.H{"queue": c.Param("queue"), "paused": false})
}

// health answers 503 while any advisory issue is open.
func (h *handler) health(c *gin.Context) {
	hs, err := h.svc.Health(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !hs.Healthy {
		fail(c, http.StatusServiceUnavailable, codeUnavailable, "unhealthy", hs)
		return
	}
	ok(c, http.StatusOK, hs)
}

// events streams queue events as server-sent events, optionally limited
// to the queues named by repeated queue parameters.
func (h *handler) events(c *gin.Context) {
	queues := c.QueryArray("queue")
	ch := h.svc.Events()
	defer h.svc.Unsubscribe(ch)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now().UTC()})
			return true
		case e := <-ch:
			v := newEventView(e)
			if v == nil {
				return true
			}
			if len(queues) > 0 && !slices.Contains(queues, v.Queue) {
				return true
			}
			c.SSEvent(v.Type, v)
			return true
		}
	})
}
