package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// State is the lifecycle state of a generation job.
type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition may leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) Valid() bool {
	return s == StateProcessing || s.Terminal()
}

const MaxTopicLength = 500

var ErrNotFound = errors.New("job not found")

// Job is one topic-generation request. Content is set only when completed and
// ErrorInfo only when failed.
type Job struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID    string         `gorm:"column:owner_id;type:varchar(128);not null;index:idx_generation_job_owner_created,priority:1" json:"owner_id"`
	Topic      string         `gorm:"column:topic;type:varchar(500);not null" json:"topic"`
	State      State          `gorm:"column:state;type:varchar(16);not null;index" json:"state"`
	Content    datatypes.JSON `gorm:"column:content" json:"content,omitempty"`
	ErrorInfo  datatypes.JSON `gorm:"column:error_info" json:"error_info,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_generation_job_owner_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (Job) TableName() string { return "generation_job" }

// DecodeContent returns the stored content, or nil when absent.
func (j *Job) DecodeContent() (*Content, error) {
	if j == nil || len(j.Content) == 0 || string(j.Content) == "null" {
		return nil, nil
	}
	var c Content
	if err := json.Unmarshal(j.Content, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeErrorInfo returns the stored failure details, or nil when absent.
func (j *Job) DecodeErrorInfo() (*ErrorInfo, error) {
	if j == nil || len(j.ErrorInfo) == 0 || string(j.ErrorInfo) == "null" {
		return nil, nil
	}
	var e ErrorInfo
	if err := json.Unmarshal(j.ErrorInfo, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ErrorKind classifies why a job failed.
type ErrorKind string

const (
	ErrorKindDispatch   ErrorKind = "dispatch"
	ErrorKindParse      ErrorKind = "parse"
	ErrorKindUpstream   ErrorKind = "upstream"
	ErrorKindValidation ErrorKind = "validation"
)

// ErrorInfo is persisted on failed jobs. RawPreview is for operators and is
// never rendered to end users.
type ErrorInfo struct {
	Kind       ErrorKind `json:"kind"`
	Reason     string    `json:"reason"`
	Message    string    `json:"message,omitempty"`
	RawPreview string    `json:"raw_preview,omitempty"`
}
