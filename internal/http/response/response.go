package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/topicgen-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError writes err using the status and code it carries. Server
// side failures never expose the underlying error text.
func RespondAPIError(c *gin.Context, err error) {
	RespondAPIErrorWith(c, err, nil)
}

// RespondAPIErrorWith adds extra top-level fields next to the error envelope.
func RespondAPIErrorWith(c *gin.Context, err error, extra gin.H) {
	status, body := apiErrorBody(err)
	if len(extra) == 0 {
		c.JSON(status, ErrorEnvelope{Error: body})
		return
	}
	out := gin.H{"error": body}
	for k, v := range extra {
		if k == "error" {
			continue
		}
		out[k] = v
	}
	c.JSON(status, out)
}

func apiErrorBody(err error) (int, APIError) {
	ae, ok := apierr.As(err)
	if !ok {
		return http.StatusInternalServerError, APIError{Message: "internal server error", Code: "internal_error"}
	}
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	code := ae.Code
	if code == "" {
		code = "internal_error"
	}
	if status < http.StatusInternalServerError {
		return status, APIError{Message: ae.Error(), Code: code}
	}
	return status, APIError{Message: publicMessage(code), Code: code}
}

func publicMessage(code string) string {
	switch code {
	case "workflow_timeout":
		return "the generation workflow did not respond in time"
	case "workflow_unavailable":
		return "the generation workflow is unavailable"
	}
	return "internal server error"
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondStatus(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}
