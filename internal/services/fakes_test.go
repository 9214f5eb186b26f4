package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/topicgen-backend/internal/clients/workflow"
	"github.com/yungbote/topicgen-backend/internal/data/repos"
	"github.com/yungbote/topicgen-backend/internal/data/repos/testutil"
	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
	"github.com/yungbote/topicgen-backend/internal/normalization"
	"github.com/yungbote/topicgen-backend/internal/observability"
	"github.com/yungbote/topicgen-backend/internal/platform/dbctx"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	err   error
	calls []workflow.Request
	// during runs inside Dispatch, as if the workflow answered before the ack.
	during func(req workflow.Request)
}

func (f *fakeDispatcher) Name() string { return "fake" }

func (f *fakeDispatcher) Dispatch(ctx context.Context, req workflow.Request) (workflow.Ack, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	during, err := f.during, f.err
	f.mu.Unlock()
	if during != nil {
		during(req)
	}
	if err != nil {
		return workflow.Ack{}, err
	}
	return workflow.Ack{StatusCode: 200, Reference: "ref-" + req.JobID.String()}, nil
}

func (f *fakeDispatcher) Calls() []workflow.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]workflow.Request(nil), f.calls...)
}

type memCache struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]jobs.Job
	// beforePut runs ahead of every store, outside the lock.
	beforePut func(id uuid.UUID)
}

func newMemCache() *memCache { return &memCache{jobs: map[uuid.UUID]jobs.Job{}} }

func (c *memCache) Get(_ context.Context, id uuid.UUID) (*jobs.Job, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return nil, false, nil
	}
	return &j, true, nil
}

func (c *memCache) Put(_ context.Context, j *jobs.Job) error {
	if j == nil || !j.State.Terminal() {
		return nil
	}
	c.mu.Lock()
	hook := c.beforePut
	c.mu.Unlock()
	if hook != nil {
		hook(j.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[j.ID] = *j
	return nil
}

func (c *memCache) Evict(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, id)
	return nil
}

func (c *memCache) Close() error { return nil }

func (c *memCache) Has(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.jobs[id]
	return ok
}

type harness struct {
	jobsSvc    JobService
	progSvc    ProgressService
	jobRepo    repos.JobRepo
	progRepo   repos.ProgressRepo
	dispatcher *fakeDispatcher
	cache      *memCache
	metrics    *observability.Metrics
}

func newHarness(t *testing.T, opts normalization.Options) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &harness{
		jobRepo:    repos.NewJobRepo(db, log),
		progRepo:   repos.NewProgressRepo(db, log),
		dispatcher: &fakeDispatcher{},
		cache:      newMemCache(),
		metrics:    observability.NewMetrics(0),
	}
	h.jobsSvc = NewJobService(db, log, h.jobRepo, h.progRepo, h.dispatcher,
		normalization.New(opts), h.cache, h.metrics,
		JobServiceConfig{CallbackURL: "https://api.example.test/api/callbacks/workflow"},
	)
	h.progSvc = NewProgressService(log, h.jobRepo, h.progRepo, h.metrics)
	return h
}

func bg() dbctx.Context { return dbctx.From(context.Background()) }
