package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

const workflowIDPrefix = "topicgen-"

type TemporalConfig struct {
	TaskQueue    string
	WorkflowType string
}

// TemporalInput is the single argument passed to the generation workflow.
type TemporalInput struct {
	JobID       string `json:"jobId"`
	Topic       string `json:"topic"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

type temporalDispatcher struct {
	log    *logger.Logger
	client temporalsdkclient.Client
	cfg    TemporalConfig
}

func NewTemporalDispatcher(log *logger.Logger, client temporalsdkclient.Client, cfg TemporalConfig) Dispatcher {
	if strings.TrimSpace(cfg.TaskQueue) == "" {
		cfg.TaskQueue = "topicgen"
	}
	if strings.TrimSpace(cfg.WorkflowType) == "" {
		cfg.WorkflowType = "topic_generation"
	}
	return &temporalDispatcher{
		log:    log.With("client", "WorkflowTemporal"),
		client: client,
		cfg:    cfg,
	}
}

func (d *temporalDispatcher) Name() string { return ModeTemporal }

// WorkflowID is stable per job so a repeated start is rejected by Temporal.
func WorkflowID(req Request) string { return workflowIDPrefix + req.JobID.String() }

func (d *temporalDispatcher) Dispatch(ctx context.Context, req Request) (Ack, error) {
	if d.client == nil {
		return Ack{}, fmt.Errorf("%w: temporal client missing (TEMPORAL_ADDRESS)", ErrNotConfigured)
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    WorkflowID(req),
		TaskQueue:             d.cfg.TaskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	run, err := d.client.ExecuteWorkflow(ctx, opts, d.cfg.WorkflowType, TemporalInput{
		JobID:       req.JobID.String(),
		Topic:       req.Topic,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			d.log.Info("workflow already started", "job_id", req.JobID)
			return Ack{Reference: opts.ID}, nil
		}
		if IsTimeout(err) {
			return Ack{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Ack{}, fmt.Errorf("start temporal workflow: %w", err)
	}
	return Ack{Reference: run.GetID() + "/" + run.GetRunID()}, nil
}
