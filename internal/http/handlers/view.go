package handlers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
)

// JobView is the user-facing job shape. Raw previews stay server side.
type JobView struct {
	JobID      uuid.UUID       `json:"jobId"`
	Topic      string          `json:"topic"`
	State      jobs.State      `json:"state"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	Error      *JobErrorView   `json:"error,omitempty"`
}

type JobErrorView struct {
	Kind    jobs.ErrorKind `json:"kind"`
	Reason  string         `json:"reason"`
	Message string         `json:"message,omitempty"`
}

func NewJobView(j *jobs.Job) JobView {
	v := JobView{
		JobID:      j.ID,
		Topic:      j.Topic,
		State:      j.State,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
		FinishedAt: j.FinishedAt,
	}
	if j.State == jobs.StateCompleted && len(j.Content) > 0 {
		v.Content = json.RawMessage(j.Content)
	}
	if j.State == jobs.StateFailed {
		if info, err := j.DecodeErrorInfo(); err == nil && info != nil {
			v.Error = &JobErrorView{Kind: info.Kind, Reason: info.Reason, Message: info.Message}
		}
	}
	return v
}
