package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yungbote/topicgen-backend/internal/platform/ctxutil"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

const maxErrorBody = 512

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	// Secret is echoed as X-Callback-Secret so the workflow can authenticate
	// its callback.
	Secret string
}

type webhookPayload struct {
	Topic       string `json:"topic"`
	JobID       string `json:"jobId"`
	SearchID    string `json:"searchId"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

type webhookDispatcher struct {
	log    *logger.Logger
	url    string
	secret string
	client *http.Client
}

// NewWebhookDispatcher posts jobs to cfg.URL. client may be nil.
func NewWebhookDispatcher(log *logger.Logger, cfg WebhookConfig, client *http.Client) Dispatcher {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	return &webhookDispatcher{
		log:    log.With("client", "WorkflowWebhook"),
		url:    strings.TrimSpace(cfg.URL),
		secret: cfg.Secret,
		client: client,
	}
}

func (d *webhookDispatcher) Name() string { return ModeWebhook }

func (d *webhookDispatcher) Dispatch(ctx context.Context, req Request) (Ack, error) {
	if d.url == "" {
		return Ack{}, ErrNotConfigured
	}
	body, err := json.Marshal(webhookPayload{
		Topic:       req.Topic,
		JobID:       req.JobID.String(),
		SearchID:    req.JobID.String(),
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return Ack{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("build workflow request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		httpReq.Header.Set("X-Callback-Secret", d.secret)
	}
	if rid := ctxutil.RequestID(ctx); rid != "" {
		httpReq.Header.Set("X-Request-ID", rid)
	}

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	if err != nil {
		if isTimeoutErr(err) {
			return Ack{}, fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
		return Ack{}, fmt.Errorf("workflow request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Ack{StatusCode: resp.StatusCode}, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	d.log.Debug("workflow acknowledged", "job_id", req.JobID, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return Ack{StatusCode: resp.StatusCode}, nil
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
