package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/topicgen-backend/internal/http/response"
	"github.com/yungbote/topicgen-backend/internal/platform/dbctx"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
	"github.com/yungbote/topicgen-backend/internal/services"
)

// MaxCallbackBytes bounds callback bodies.
const MaxCallbackBytes = 8 << 20

var (
	errMissingItemsState = errors.New("itemsState is required")
	errMissingJobID      = errors.New("jobId is required")
)

type CallbackHandler struct {
	log  *logger.Logger
	jobs services.JobService
}

func NewCallbackHandler(log *logger.Logger, jobs services.JobService) *CallbackHandler {
	return &CallbackHandler{log: log.With("handler", "CallbackHandler"), jobs: jobs}
}

// searchId is the field name older workflows still send.
type callbackRequest struct {
	JobID    string          `json:"jobId"`
	SearchID string          `json:"searchId"`
	Results  json.RawMessage `json:"results"`
}

// POST /api/callbacks/workflow
func (h *CallbackHandler) WorkflowCallback(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxCallbackBytes))
	if err != nil {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "body_too_large", err)
		return
	}
	var req callbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.log.Warn("callback body is not JSON", "error", err, "bytes", len(body))
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	rawID := strings.TrimSpace(req.JobID)
	if rawID == "" {
		rawID = strings.TrimSpace(req.SearchID)
	}
	if rawID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", errMissingJobID)
		return
	}
	jobID, err := uuid.Parse(rawID)
	if err != nil {
		h.log.Warn("callback with malformed job id", "job_id", rawID)
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	// Missing or null results still reach the normalizer so the job fails
	// instead of staying in processing.
	var results any
	if trimmed := bytes.TrimSpace(req.Results); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &results); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}

	res, err := h.jobs.HandleCallback(dbctx.From(c.Request.Context()), jobID, results)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	payload := gin.H{
		"success": res.Outcome != services.OutcomeFailedParse,
		"jobId":   jobID,
		"outcome": res.Outcome,
	}
	if res.Job != nil {
		payload["state"] = res.Job.State
	}
	if res.Outcome == services.OutcomeFailedParse {
		// Definitive: the job is failed and redelivering the same body
		// cannot help.
		msg := "results could not be processed"
		if res.Failure != nil && res.Failure.Reason != "" {
			msg = res.Failure.Reason
		}
		payload["error"] = response.APIError{Message: msg, Code: "unprocessable_results"}
		response.RespondStatus(c, http.StatusUnprocessableEntity, payload)
		return
	}
	response.RespondOK(c, payload)
}
