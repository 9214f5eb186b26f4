// Package workflow hands generation jobs to the external AI workflow. A
// dispatcher only needs an acknowledgement; results arrive later through the
// HTTP callback.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	ModeWebhook  = "webhook"
	ModeTemporal = "temporal"
)

// ErrTimeout is returned when the workflow does not acknowledge in time.
var ErrTimeout = errors.New("workflow dispatch timed out")

// ErrNotConfigured is returned by dispatchers missing an endpoint.
var ErrNotConfigured = errors.New("workflow dispatcher not configured")

type Request struct {
	JobID       uuid.UUID
	Topic       string
	CallbackURL string
}

type Ack struct {
	// Reference is the remote execution id when the workflow reports one.
	Reference  string
	StatusCode int
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (Ack, error)
	Name() string
}

// StatusError is a non-2xx answer from the webhook.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("workflow responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("workflow responded with status %d: %s", e.StatusCode, e.Body)
}

// IsTimeout reports whether err is a dispatch timeout, including a context
// deadline hit while waiting for the acknowledgement.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
