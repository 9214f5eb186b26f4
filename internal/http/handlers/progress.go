package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/topicgen-backend/internal/domain/progress"
	"github.com/yungbote/topicgen-backend/internal/http/response"
	"github.com/yungbote/topicgen-backend/internal/platform/ctxutil"
	"github.com/yungbote/topicgen-backend/internal/platform/dbctx"
	"github.com/yungbote/topicgen-backend/internal/services"
)

type ProgressHandler struct {
	progress services.ProgressService
}

func NewProgressHandler(progress services.ProgressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

type setProgressRequest struct {
	JobID      string              `json:"jobId" binding:"required"`
	ItemsState progress.ItemsState `json:"itemsState"`
}

// GET /api/progress/:jobId
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	ctx := c.Request.Context()
	items, err := h.progress.Get(dbctx.From(ctx), ctxutil.UserID(ctx), jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobId": jobID, "itemsState": items})
}

// PUT /api/progress
func (h *ProgressHandler) SetProgress(c *gin.Context) {
	var req setProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	if req.ItemsState == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_items_state", errMissingItemsState)
		return
	}
	ctx := c.Request.Context()
	stored, err := h.progress.Set(dbctx.From(ctx), ctxutil.UserID(ctx), jobID, req.ItemsState)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	items, err := stored.Items()
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobId": jobID, "itemsState": items, "updatedAt": stored.UpdatedAt})
}

// DELETE /api/progress/:jobId
func (h *ProgressHandler) DeleteProgress(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	ctx := c.Request.Context()
	if err := h.progress.Delete(dbctx.From(ctx), ctxutil.UserID(ctx), jobID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}
