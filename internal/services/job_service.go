package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/yungbote/topicgen-backend/internal/clients/redis"
	"github.com/yungbote/topicgen-backend/internal/clients/workflow"
	"github.com/yungbote/topicgen-backend/internal/data/repos"
	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
	"github.com/yungbote/topicgen-backend/internal/normalization"
	"github.com/yungbote/topicgen-backend/internal/observability"
	"github.com/yungbote/topicgen-backend/internal/platform/apierr"
	"github.com/yungbote/topicgen-backend/internal/platform/dbctx"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

const (
	DefaultDispatchTimeout = 15 * time.Second
	MinDispatchTimeout     = time.Second
	MaxDispatchTimeout     = 20 * time.Second
)

type CallbackOutcome string

const (
	OutcomeCompleted      CallbackOutcome = "completed"
	OutcomeFailedParse    CallbackOutcome = "failed_parse"
	OutcomeFailedUpstream CallbackOutcome = "failed_upstream"
	OutcomeIgnored        CallbackOutcome = "ignored"
)

// Redelivery decides what a callback for an already-terminal job does.
type Redelivery string

const (
	RedeliveryIgnore Redelivery = "ignore"
)

// RedeliveryPolicy is fixed: the first terminal write wins and later
// callbacks are acknowledged without touching the job.
const RedeliveryPolicy = RedeliveryIgnore

// CallbackResult reports what a callback did. Failure is set for the
// failed_* outcomes.
type CallbackResult struct {
	Outcome CallbackOutcome
	Job     *jobs.Job
	Failure *normalization.Failure
}

type JobServiceConfig struct {
	DispatchTimeout time.Duration
	CallbackURL     string
}

type JobService interface {
	Create(dbc dbctx.Context, ownerID, topic string) (*jobs.Job, error)
	Dispatch(dbc dbctx.Context, job *jobs.Job) error
	HandleCallback(dbc dbctx.Context, jobID uuid.UUID, results any) (*CallbackResult, error)
	Get(dbc dbctx.Context, jobID uuid.UUID, ownerID string) (*jobs.Job, error)
	List(dbc dbctx.Context, ownerID string, opts repos.JobListOptions) ([]*jobs.Job, error)
	Delete(dbc dbctx.Context, jobID uuid.UUID, ownerID string) error
}

type jobService struct {
	db         *gorm.DB
	log        *logger.Logger
	jobs       repos.JobRepo
	progress   repos.ProgressRepo
	dispatcher workflow.Dispatcher
	normalizer *normalization.Normalizer
	cache      redis.JobCache
	metrics    *observability.Metrics
	cfg        JobServiceConfig
	tracer     trace.Tracer
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobRepo repos.JobRepo,
	progressRepo repos.ProgressRepo,
	dispatcher workflow.Dispatcher,
	normalizer *normalization.Normalizer,
	cache redis.JobCache,
	metrics *observability.Metrics,
	cfg JobServiceConfig,
) JobService {
	if normalizer == nil {
		normalizer = normalization.New(normalization.DefaultOptions())
	}
	if cache == nil {
		cache = redis.NopJobCache{}
	}
	cfg.DispatchTimeout = ClampDispatchTimeout(cfg.DispatchTimeout)
	cfg.CallbackURL = strings.TrimSpace(cfg.CallbackURL)
	return &jobService{
		db:         db,
		log:        baseLog.With("service", "JobService"),
		jobs:       jobRepo,
		progress:   progressRepo,
		dispatcher: dispatcher,
		normalizer: normalizer,
		cache:      cache,
		metrics:    metrics,
		cfg:        cfg,
		tracer:     otel.Tracer(observability.TracerName),
	}
}

// ClampDispatchTimeout applies the default and keeps d within 1s..20s.
func ClampDispatchTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultDispatchTimeout
	case d < MinDispatchTimeout:
		return MinDispatchTimeout
	case d > MaxDispatchTimeout:
		return MaxDispatchTimeout
	}
	return d
}

func (s *jobService) Create(dbc dbctx.Context, ownerID, topic string) (*jobs.Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apierr.Unauthorized("unauthenticated", errors.New("missing user"))
	}
	topic = normalization.NormalizeTopic(topic)
	if topic == "" {
		return nil, apierr.Validation("invalid_topic", "topic is required")
	}
	if n := utf8.RuneCountInString(topic); n > jobs.MaxTopicLength {
		return nil, apierr.Validation("invalid_topic", "topic must be at most %d characters (got %d)", jobs.MaxTopicLength, n)
	}

	job := &jobs.Job{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Topic:   topic,
		State:   jobs.StateProcessing,
	}
	created, err := s.jobs.Create(dbc, job)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("create job: %w", err))
	}
	s.metrics.IncJobCreated()
	s.log.Info("job created", "job_id", created.ID, "owner_id", ownerID)

	// The row exists before the workflow can call back with its id.
	if err := s.Dispatch(dbc, created); err != nil {
		return created, err
	}
	return created, nil
}

// Dispatch makes a single bounded attempt to hand job to the workflow. Any
// failure marks the job failed with kind=dispatch and is returned as an
// apierr carrying 502 or 504, unless a callback already completed the job.
func (s *jobService) Dispatch(dbc dbctx.Context, job *jobs.Job) error {
	if job == nil || job.ID == uuid.Nil {
		return apierr.Internal(errors.New("dispatch: missing job"))
	}
	parent := dbc.Ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, span := s.tracer.Start(parent, "job.dispatch", trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
	))
	defer span.End()

	name := "none"
	err := workflow.ErrNotConfigured
	start := time.Now()
	if s.dispatcher != nil {
		name = s.dispatcher.Name()
		span.SetAttributes(attribute.String("workflow.dispatcher", name))
		dctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
		var ack workflow.Ack
		ack, err = s.dispatcher.Dispatch(dctx, workflow.Request{
			JobID:       job.ID,
			Topic:       job.Topic,
			CallbackURL: s.cfg.CallbackURL,
		})
		cancel()
		if err == nil {
			s.metrics.ObserveDispatch(name, "ok", time.Since(start))
			s.log.Info("job dispatched",
				"job_id", job.ID,
				"dispatcher", name,
				"reference", ack.Reference,
				"status", ack.StatusCode,
			)
			return nil
		}
	}

	timeout := workflow.IsTimeout(err)
	outcome := "error"
	if timeout {
		outcome = "timeout"
	}
	s.metrics.ObserveDispatch(name, outcome, time.Since(start))
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	s.log.Warn("job dispatch failed", "job_id", job.ID, "dispatcher", name, "timeout", timeout, "error", err)

	s.failDispatch(dbc, job, err, timeout)
	if job.State == jobs.StateCompleted {
		// The workflow delivered results despite the failed ack.
		return nil
	}
	return apierr.Dispatch(fmt.Errorf("dispatch job %s: %w", job.ID, err), timeout)
}

// failDispatch writes the failed transition on a context that survives the
// request being cancelled.
func (s *jobService) failDispatch(dbc dbctx.Context, job *jobs.Job, cause error, timeout bool) {
	parent := dbc.Ctx
	if parent == nil {
		parent = context.Background()
	}
	wdbc := dbctx.Context{Ctx: context.WithoutCancel(parent), Tx: dbc.Tx}

	raw, err := json.Marshal(jobs.ErrorInfo{
		Kind:   jobs.ErrorKindDispatch,
		Reason: s.dispatchReason(cause, timeout),
	})
	if err != nil {
		s.log.Error("encode dispatch failure", "job_id", job.ID, "error", err)
		return
	}
	now := time.Now().UTC()
	applied, err := s.jobs.Transition(wdbc, job.ID, repos.JobTransition{
		State:     jobs.StateFailed,
		ErrorInfo: raw,
		At:        now,
	})
	if err != nil {
		s.log.Error("mark job failed after dispatch error", "job_id", job.ID, "error", err)
		return
	}
	if !applied {
		// A callback beat the failure write; report what is stored.
		if cur, gerr := s.jobs.GetByID(wdbc, job.ID); gerr == nil {
			*job = *cur
		}
		return
	}
	job.State = jobs.StateFailed
	job.ErrorInfo = raw
	job.Content = nil
	job.FinishedAt = &now
	job.UpdatedAt = now
	s.cachePut(wdbc, job)
}

func (s *jobService) dispatchReason(err error, timeout bool) string {
	var se *workflow.StatusError
	switch {
	case timeout:
		return fmt.Sprintf("workflow did not acknowledge within %s", s.cfg.DispatchTimeout)
	case errors.As(err, &se):
		return fmt.Sprintf("workflow rejected the job (status %d)", se.StatusCode)
	case errors.Is(err, workflow.ErrNotConfigured):
		return "workflow dispatcher is not configured"
	}
	return "workflow could not be reached"
}

func (s *jobService) HandleCallback(dbc dbctx.Context, jobID uuid.UUID, results any) (*CallbackResult, error) {
	if jobID == uuid.Nil {
		return nil, apierr.Validation("invalid_job_id", "jobId is required")
	}
	parent := dbc.Ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, span := s.tracer.Start(parent, "job.callback", trace.WithAttributes(
		attribute.String("job.id", jobID.String()),
	))
	defer span.End()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	job, err := s.jobs.GetByID(dbc, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		s.log.Warn("callback for unknown job", "job_id", jobID)
		return nil, apierr.NotFound("job_not_found", err)
	}
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load job: %w", err))
	}
	if job.State.Terminal() {
		return s.ignoreCallback(job), nil
	}

	res := s.normalizer.Normalize(results, job.Topic)
	out := &CallbackResult{Failure: res.Failure}
	t := repos.JobTransition{At: time.Now().UTC()}
	if res.OK {
		raw, err := json.Marshal(res.Content)
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("encode content: %w", err))
		}
		t.State = jobs.StateCompleted
		t.Content = raw
		out.Outcome = OutcomeCompleted
	} else {
		raw, err := json.Marshal(res.Failure.ErrorInfo())
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("encode error info: %w", err))
		}
		t.State = jobs.StateFailed
		t.ErrorInfo = raw
		out.Outcome = OutcomeFailedParse
		if res.Failure.Kind == normalization.FailureUpstream {
			out.Outcome = OutcomeFailedUpstream
		}
		s.metrics.IncNormalizeFailure(string(res.Failure.Kind))
		s.log.Warn("callback results rejected",
			"job_id", job.ID,
			"kind", res.Failure.Kind,
			"reason", res.Failure.Reason,
			"preview_len", len(res.Failure.RawPreview),
		)
	}

	applied, err := s.jobs.Transition(dbc, job.ID, t)
	if err != nil {
		span.RecordError(err)
		return nil, apierr.Internal(fmt.Errorf("transition job: %w", err))
	}
	if !applied {
		cur, err := s.jobs.GetByID(dbc, job.ID)
		if errors.Is(err, jobs.ErrNotFound) {
			return nil, apierr.NotFound("job_not_found", err)
		}
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("reload job: %w", err))
		}
		return s.ignoreCallback(cur), nil
	}

	job.State = t.State
	job.Content = t.Content
	job.ErrorInfo = t.ErrorInfo
	job.FinishedAt = &t.At
	job.UpdatedAt = t.At
	out.Job = job
	s.cachePut(dbc, job)
	s.metrics.IncCallback(string(out.Outcome))
	span.SetAttributes(attribute.String("job.outcome", string(out.Outcome)))
	s.log.Info("callback applied", "job_id", job.ID, "outcome", out.Outcome)
	return out, nil
}

func (s *jobService) ignoreCallback(job *jobs.Job) *CallbackResult {
	s.metrics.IncCallback(string(OutcomeIgnored))
	s.log.Info("callback ignored, job already terminal",
		"job_id", job.ID,
		"state", job.State,
		"policy", RedeliveryPolicy,
	)
	return &CallbackResult{Outcome: OutcomeIgnored, Job: job}
}

func (s *jobService) Get(dbc dbctx.Context, jobID uuid.UUID, ownerID string) (*jobs.Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apierr.Unauthorized("unauthenticated", errors.New("missing user"))
	}
	if jobID == uuid.Nil {
		return nil, apierr.NotFound("job_not_found", jobs.ErrNotFound)
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if cached, ok, err := s.cache.Get(ctx, jobID); err != nil {
		s.log.Warn("job cache read failed", "job_id", jobID, "error", err)
	} else if ok {
		if cached.OwnerID != ownerID {
			return nil, apierr.NotFound("job_not_found", jobs.ErrNotFound)
		}
		return cached, nil
	}

	job, err := s.jobs.GetForOwner(dbc, jobID, ownerID)
	if errors.Is(err, jobs.ErrNotFound) {
		return nil, apierr.NotFound("job_not_found", err)
	}
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("load job: %w", err))
	}
	s.cachePut(dbctx.Context{Ctx: ctx, Tx: dbc.Tx}, job)
	return job, nil
}

func (s *jobService) List(dbc dbctx.Context, ownerID string, opts repos.JobListOptions) ([]*jobs.Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apierr.Unauthorized("unauthenticated", errors.New("missing user"))
	}
	out, err := s.jobs.ListForOwner(dbc, ownerID, opts)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list jobs: %w", err))
	}
	return out, nil
}

// Delete removes the job and its progress record in one transaction.
func (s *jobService) Delete(dbc dbctx.Context, jobID uuid.UUID, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return apierr.Unauthorized("unauthenticated", errors.New("missing user"))
	}
	if jobID == uuid.Nil {
		return apierr.NotFound("job_not_found", jobs.ErrNotFound)
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	run := func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.progress.DeleteForOwner(inner, ownerID, jobID); err != nil {
			return fmt.Errorf("delete progress: %w", err)
		}
		ok, err := s.jobs.DeleteForOwner(inner, jobID, ownerID)
		if err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		if !ok {
			return jobs.ErrNotFound
		}
		return nil
	}

	var err error
	if dbc.Tx != nil {
		err = run(dbc.Tx)
	} else {
		err = s.db.WithContext(ctx).Transaction(run)
	}
	if errors.Is(err, jobs.ErrNotFound) {
		return apierr.NotFound("job_not_found", err)
	}
	if err != nil {
		return apierr.Internal(err)
	}

	if err := s.cache.Evict(ctx, jobID); err != nil {
		s.log.Warn("job cache evict failed", "job_id", jobID, "error", err)
	}
	s.log.Info("job deleted", "job_id", jobID, "owner_id", ownerID)
	return nil
}

// cachePut stores terminal jobs only. The row is re-read after the write so a
// Delete that committed in between cannot leave its job cached: Delete evicts
// after its commit, and this check evicts when it sees the commit.
func (s *jobService) cachePut(dbc dbctx.Context, job *jobs.Job) {
	if job == nil || !job.State.Terminal() {
		return
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.cache.Put(ctx, job); err != nil {
		s.log.Warn("job cache write failed", "job_id", job.ID, "error", err)
		return
	}
	if _, err := s.jobs.GetByID(dbc, job.ID); err == nil {
		return
	} else if !errors.Is(err, jobs.ErrNotFound) {
		s.log.Warn("job cache recheck failed", "job_id", job.ID, "error", err)
	}
	if err := s.cache.Evict(ctx, job.ID); err != nil {
		s.log.Warn("job cache evict failed", "job_id", job.ID, "error", err)
	}
}
