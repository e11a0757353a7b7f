package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jdziat/credibility-sync/pkg/core"
)

type syncRequest struct {
	Login        string `json:"login"`
	Platform     string `json:"platform"`
	Handle       string `json:"handle"`
	ForceRefresh bool   `json:"forceRefresh"`
}

type enqueueResponse struct {
	JobID     string `json:"jobId"`
	Coalesced bool   `json:"coalesced"`
}

// bindJSON decodes the request body into v. An empty body leaves v as is.
func bindJSON(c *gin.Context, v any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil {
		return badRequest("invalid request body", err)
	}
	return nil
}

func enqueued(c *gin.Context, id string, coalesced bool) {
	status := http.StatusAccepted
	if coalesced {
		status = http.StatusOK
	}
	ok(c, status, enqueueResponse{JobID: id, Coalesced: coalesced})
}

func (h *handler) enqueueSync(c *gin.Context) {
	userID := c.Param("userId")
	src, err := core.ParseSource(c.Param("source"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req syncRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	ve := &core.ValidationError{Record: "sync request"}
	var p core.SourceSync
	switch src {
	case core.SourceRepository:
		if req.Login == "" {
			ve.Add("login", "is required")
		}
		p = core.RepositorySync{UserID: userID, Login: req.Login, ForceRefresh: req.ForceRefresh}
	case core.SourceSocial:
		if req.Platform == "" {
			ve.Add("platform", "is required")
		}
		if req.Handle == "" {
			ve.Add("handle", "is required")
		}
		p = core.SocialSync{UserID: userID, Platform: req.Platform, Handle: req.Handle, ForceRefresh: req.ForceRefresh}
	case core.SourceEducation:
		p = core.EducationSync{UserID: userID, ForceRefresh: req.ForceRefresh}
	case core.SourceCertification:
		p = core.CertificationSync{UserID: userID, ForceRefresh: req.ForceRefresh}
	}
	if err := ve.OrNil(); err != nil {
		_ = c.Error(err)
		return
	}

	id, coalesced, err := h.svc.EnqueueSync(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	enqueued(c, id, coalesced)
}

func (h *handler) enqueueFullSync(c *gin.Context) {
	var req core.FullSync
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	req.UserID = c.Param("userId")
	id, coalesced, err := h.svc.EnqueueFullSync(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	enqueued(c, id, coalesced)
}

func (h *handler) syncStatuses(c *gin.Context) {
	rows, err := h.svc.SyncStatuses(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]syncStatusView, 0, len(rows))
	for _, r := range rows {
		out = append(out, syncStatusView{
			Source:    r.Source,
			Ref:       r.SourceRef,
			State:     r.State,
			JobID:     r.JobID,
			LastError: r.LastError,
			UpdatedAt: r.UpdatedAt,
		})
	}
	ok(c, http.StatusOK, out)
}

func (h *handler) credibility(c *gin.Context) {
	score, err := h.svc.Credibility(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusOK, score)
}

func (h *handler) refreshCredibility(c *gin.Context) {
	score, err := h.svc.RefreshCredibility(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusOK, score)
}

func (h *handler) skills(c *gin.Context) {
	skills, err := h.svc.Skills(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusOK, skills)
}

func (h *handler) readiness(c *gin.Context) {
	report, err := h.svc.Readiness(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusOK, report)
}

type submitResponse struct {
	RecordID string `json:"recordId"`
	JobID    string `json:"jobId"`
}

func (h *handler) submitEducation(c *gin.Context) {
	var rec core.EducationRecord
	if err := bindJSON(c, &rec); err != nil {
		_ = c.Error(err)
		return
	}
	rec.ID = ""
	rec.UserID = c.Param("userId")
	id, err := h.svc.SubmitEducation(c.Request.Context(), &rec)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusAccepted, submitResponse{RecordID: rec.ID, JobID: id})
}

func (h *handler) submitCertification(c *gin.Context) {
	var rec core.CertificationRecord
	if err := bindJSON(c, &rec); err != nil {
		_ = c.Error(err)
		return
	}
	rec.ID = ""
	rec.UserID = c.Param("userId")
	id, err := h.svc.SubmitCertification(c.Request.Context(), &rec)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, http.StatusAccepted, submitResponse{RecordID: rec.ID, JobID: id})
}

func (h *handler) saveGoal(c *gin.Context) {
	var goal core.CareerGoal
	if err := bindJSON(c, &goal); err != nil {
		_ = c.Error(err)
		return
	}
	goal.UserID = c.Param("userId")
	status := http.StatusCreated
	if goal.ID != "" {
		status = http.StatusOK
	}
	if err := h.svc.SaveCareerGoal(c.Request.Context(), &goal); err != nil {
		_ = c.Error(err)
		return
	}
	ok(c, status, goal)
}
