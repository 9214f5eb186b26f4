package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/topicgen-backend/internal/data/repos"
	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
	"github.com/yungbote/topicgen-backend/internal/domain/progress"
	"github.com/yungbote/topicgen-backend/internal/observability"
	"github.com/yungbote/topicgen-backend/internal/platform/apierr"
	"github.com/yungbote/topicgen-backend/internal/platform/dbctx"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

// ProgressService tracks which generated items a user has consumed. Every
// call is scoped to a job the caller owns.
type ProgressService interface {
	Get(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (progress.ItemsState, error)
	Set(dbc dbctx.Context, ownerID string, jobID uuid.UUID, items progress.ItemsState) (*progress.Progress, error)
	Delete(dbc dbctx.Context, ownerID string, jobID uuid.UUID) error
}

type progressService struct {
	log      *logger.Logger
	jobs     repos.JobRepo
	progress repos.ProgressRepo
	metrics  *observability.Metrics
}

func NewProgressService(baseLog *logger.Logger, jobRepo repos.JobRepo, progressRepo repos.ProgressRepo, metrics *observability.Metrics) ProgressService {
	return &progressService{
		log:      baseLog.With("service", "ProgressService"),
		jobs:     jobRepo,
		progress: progressRepo,
		metrics:  metrics,
	}
}

func (s *progressService) Get(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (progress.ItemsState, error) {
	ownerID, err := s.ensureOwned(dbc, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	rec, err := s.progress.Get(dbc, ownerID, jobID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load progress: %w", err))
	}
	if rec == nil {
		return progress.ItemsState{}, nil
	}
	items, err := rec.Items()
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("decode progress: %w", err))
	}
	return items, nil
}

// Set replaces the whole mapping for (owner, job).
func (s *progressService) Set(dbc dbctx.Context, ownerID string, jobID uuid.UUID, items progress.ItemsState) (*progress.Progress, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apierr.Unauthorized("unauthenticated", errors.New("missing user"))
	}
	cleaned, err := items.Clean()
	if err != nil {
		return nil, apierr.Validation("invalid_items_state", "%v", err)
	}
	ownerID, err = s.ensureOwned(dbc, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	raw, err := cleaned.Encode()
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("encode progress: %w", err))
	}
	stored, err := s.progress.Upsert(dbc, &progress.Progress{
		OwnerID:    ownerID,
		JobID:      jobID,
		ItemsState: raw,
	})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("save progress: %w", err))
	}
	s.metrics.IncProgressWrite("upsert")
	s.log.Debug("progress saved", "job_id", jobID, "owner_id", ownerID, "categories", len(cleaned))
	return stored, nil
}

// Delete succeeds whether or not a record existed.
func (s *progressService) Delete(dbc dbctx.Context, ownerID string, jobID uuid.UUID) error {
	ownerID, err := s.ensureOwned(dbc, ownerID, jobID)
	if err != nil {
		return err
	}
	removed, err := s.progress.DeleteForOwner(dbc, ownerID, jobID)
	if err != nil {
		return apierr.Internal(fmt.Errorf("delete progress: %w", err))
	}
	if removed {
		s.metrics.IncProgressWrite("delete")
	}
	return nil
}

func (s *progressService) ensureOwned(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", apierr.Unauthorized("unauthenticated", errors.New("missing user"))
	}
	if jobID == uuid.Nil {
		return "", apierr.Validation("invalid_job_id", "jobId is required")
	}
	if _, err := s.jobs.GetForOwner(dbc, jobID, ownerID); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return "", apierr.NotFound("job_not_found", err)
		}
		return "", apierr.Internal(fmt.Errorf("load job: %w", err))
	}
	return ownerID, nil
}
