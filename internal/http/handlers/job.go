package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/topicgen-backend/internal/data/repos"
	"github.com/yungbote/topicgen-backend/internal/http/response"
	"github.com/yungbote/topicgen-backend/internal/platform/ctxutil"
	"github.com/yungbote/topicgen-backend/internal/platform/dbctx"
	"github.com/yungbote/topicgen-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

type createJobRequest struct {
	Topic string `json:"topic" binding:"required"`
}

// POST /api/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_topic", err)
		return
	}
	ctx := c.Request.Context()
	job, err := h.jobs.Create(dbctx.From(ctx), ctxutil.UserID(ctx), req.Topic)
	if err != nil {
		if job != nil {
			response.RespondAPIErrorWith(c, err, gin.H{"jobId": job.ID, "state": job.State})
			return
		}
		response.RespondAPIError(c, err)
		return
	}
	response.RespondStatus(c, http.StatusAccepted, gin.H{"jobId": job.ID, "state": job.State})
}

// GET /api/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	opts := repos.JobListOptions{}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		opts.Limit = n
	}
	for _, inc := range strings.Split(c.Query("include"), ",") {
		if strings.EqualFold(strings.TrimSpace(inc), "content") {
			opts.IncludeContent = true
		}
	}
	ctx := c.Request.Context()
	list, err := h.jobs.List(dbctx.From(ctx), ctxutil.UserID(ctx), opts)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	views := make([]JobView, 0, len(list))
	for _, j := range list {
		views = append(views, NewJobView(j))
	}
	response.RespondOK(c, gin.H{"jobs": views})
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	ctx := c.Request.Context()
	job, err := h.jobs.Get(dbctx.From(ctx), jobID, ctxutil.UserID(ctx))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": NewJobView(job)})
}

// DELETE /api/jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	ctx := c.Request.Context()
	if err := h.jobs.Delete(dbctx.From(ctx), jobID, ctxutil.UserID(ctx)); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}
