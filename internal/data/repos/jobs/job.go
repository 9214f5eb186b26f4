package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/topicgen-backend/internal/domain/jobs"
	"github.com/yungbote/topicgen-backend/internal/platform/dbctx"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type ListOptions struct {
	Limit          int
	IncludeContent bool
}

// Transition describes a terminal write. Exactly one of Content or ErrorInfo
// is expected to be set, matching State.
type Transition struct {
	State     types.State
	Content   datatypes.JSON
	ErrorInfo datatypes.JSON
	At        time.Time
}

type JobRepo interface {
	Create(dbc dbctx.Context, job *types.Job) (*types.Job, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error)
	GetForOwner(dbc dbctx.Context, id uuid.UUID, ownerID string) (*types.Job, error)
	ListForOwner(dbc dbctx.Context, ownerID string, opts ListOptions) ([]*types.Job, error)
	Transition(dbc dbctx.Context, id uuid.UUID, t Transition) (bool, error)
	DeleteForOwner(dbc dbctx.Context, id uuid.UUID, ownerID string) (bool, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) Create(dbc dbctx.Context, job *types.Job) (*types.Job, error) {
	if job == nil {
		return nil, fmt.Errorf("nil job")
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.State == "" {
		job.State = types.StateProcessing
	}
	if err := dbc.DB(r.db).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error) {
	if id == uuid.Nil {
		return nil, types.ErrNotFound
	}
	var job types.Job
	err := dbc.DB(r.db).
		Where("id = ?", id).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetForOwner returns ErrNotFound both for missing jobs and for jobs owned by
// someone else.
func (r *jobRepo) GetForOwner(dbc dbctx.Context, id uuid.UUID, ownerID string) (*types.Job, error) {
	if id == uuid.Nil || strings.TrimSpace(ownerID) == "" {
		return nil, types.ErrNotFound
	}
	var job types.Job
	err := dbc.DB(r.db).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) ListForOwner(dbc dbctx.Context, ownerID string, opts ListOptions) ([]*types.Job, error) {
	out := []*types.Job{}
	if strings.TrimSpace(ownerID) == "" {
		return out, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	q := dbc.DB(r.db).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if !opts.IncludeContent {
		q = q.Omit("content")
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Transition moves a processing job to a terminal state in one conditional
// UPDATE. It reports false when the job is missing or already terminal.
func (r *jobRepo) Transition(dbc dbctx.Context, id uuid.UUID, t Transition) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if !t.State.Terminal() {
		return false, fmt.Errorf("transition target %q is not terminal", t.State)
	}
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	updates := map[string]interface{}{
		"state":       string(t.State),
		"content":     nil,
		"error_info":  nil,
		"finished_at": at,
		"updated_at":  at,
	}
	switch t.State {
	case types.StateCompleted:
		if len(t.Content) == 0 {
			return false, fmt.Errorf("completed transition without content")
		}
		updates["content"] = t.Content
	case types.StateFailed:
		if len(t.ErrorInfo) == 0 {
			return false, fmt.Errorf("failed transition without error info")
		}
		updates["error_info"] = t.ErrorInfo
	}

	res := dbc.DB(r.db).
		Model(&types.Job{}).
		Where("id = ? AND state = ?", id, string(types.StateProcessing)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Debug("transition skipped", "job_id", id, "to", t.State)
		return false, nil
	}
	return true, nil
}

func (r *jobRepo) DeleteForOwner(dbc dbctx.Context, id uuid.UUID, ownerID string) (bool, error) {
	if id == uuid.Nil || strings.TrimSpace(ownerID) == "" {
		return false, nil
	}
	res := dbc.DB(r.db).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&types.Job{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
