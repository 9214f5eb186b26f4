package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/topicgen-backend/internal/clients/workflow"
	"github.com/yungbote/topicgen-backend/internal/data/repos"
	"github.com/yungbote/topicgen-backend/internal/data/repos/testutil"
	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
	"github.com/yungbote/topicgen-backend/internal/normalization"
	"github.com/yungbote/topicgen-backend/internal/platform/apierr"
)

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok, "want *apierr.Error, got %T: %v", err, err)
	require.Equal(t, status, ae.Status)
	require.Equal(t, code, ae.Code)
}

func TestCreateDispatchTimeoutMarksJobFailed(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	h.dispatcher.err = fmt.Errorf("%w: no ack", workflow.ErrTimeout)
	owner := testutil.OwnerID()

	job, err := h.jobsSvc.Create(bg(), owner, "Rust ownership")
	requireAPIError(t, err, http.StatusGatewayTimeout, "workflow_timeout")
	require.NotNil(t, job)
	require.Equal(t, jobs.StateFailed, job.State)

	stored, err := h.jobRepo.GetByID(bg(), job.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StateFailed, stored.State)
	require.Empty(t, stored.Content)
	require.NotNil(t, stored.FinishedAt)
	info, err := stored.DecodeErrorInfo()
	require.NoError(t, err)
	require.Equal(t, jobs.ErrorKindDispatch, info.Kind)
	require.Contains(t, info.Reason, "did not acknowledge")
	require.Equal(t, float64(1), h.metrics.DispatchCount("fake", "timeout"))
	require.True(t, h.cache.Has(job.ID))
}

func TestCreateDispatchRejectedIsBadGateway(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	h.dispatcher.err = &workflow.StatusError{StatusCode: http.StatusNotFound}

	job, err := h.jobsSvc.Create(bg(), testutil.OwnerID(), "Graph theory")
	requireAPIError(t, err, http.StatusBadGateway, "workflow_unavailable")
	info, derr := job.DecodeErrorInfo()
	require.NoError(t, derr)
	require.Contains(t, info.Reason, "404")
}

func TestCreateWithoutDispatcherFails(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	jobRepo := repos.NewJobRepo(db, log)
	svc := NewJobService(db, log, jobRepo, repos.NewProgressRepo(db, log), nil, nil, nil, nil, JobServiceConfig{})

	job, err := svc.Create(bg(), testutil.OwnerID(), "Kubernetes")
	requireAPIError(t, err, http.StatusBadGateway, "workflow_unavailable")
	require.Equal(t, jobs.StateFailed, job.State)
}

func TestCreateRejectsInvalidTopic(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner := testutil.OwnerID()

	for _, topic := range []string{"", "   \t\n", strings.Repeat("é", jobs.MaxTopicLength+1)} {
		_, err := h.jobsSvc.Create(bg(), owner, topic)
		requireAPIError(t, err, http.StatusBadRequest, "invalid_topic")
	}
	list, err := h.jobsSvc.List(bg(), owner, repos.JobListOptions{})
	require.NoError(t, err)
	require.Empty(t, list)
	require.Empty(t, h.dispatcher.Calls())

	job, err := h.jobsSvc.Create(bg(), owner, strings.Repeat("é", jobs.MaxTopicLength))
	require.NoError(t, err)
	require.Equal(t, jobs.MaxTopicLength, utf8.RuneCountInString(job.Topic))
}

func TestCreateTrimsTopicOnly(t *testing.T) {
	h := newHarness(t, normalization.Options{})

	job, err := h.jobsSvc.Create(bg(), testutil.OwnerID(), "  Rust   ownership\tand borrowing \n")
	require.NoError(t, err)
	require.Equal(t, "Rust   ownership\tand borrowing", job.Topic)
	calls := h.dispatcher.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, job.Topic, calls[0].Topic)
}

func TestCreateRequiresOwner(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	_, err := h.jobsSvc.Create(bg(), "  ", "Rust ownership")
	requireAPIError(t, err, http.StatusUnauthorized, "unauthenticated")
}

func TestCreateDispatchesAfterPersisting(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner := testutil.OwnerID()

	job, err := h.jobsSvc.Create(bg(), owner, "  Rust ownership ")
	require.NoError(t, err)
	require.Equal(t, jobs.StateProcessing, job.State)
	require.Equal(t, "Rust ownership", job.Topic)
	require.Empty(t, job.Content)

	calls := h.dispatcher.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, job.ID, calls[0].JobID)
	require.Equal(t, "Rust ownership", calls[0].Topic)
	require.Equal(t, "https://api.example.test/api/callbacks/workflow", calls[0].CallbackURL)

	stored, err := h.jobRepo.GetForOwner(bg(), job.ID, owner)
	require.NoError(t, err)
	require.Equal(t, jobs.StateProcessing, stored.State)
}

func TestCallbackCompletesJob(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner := testutil.OwnerID()
	job, err := h.jobsSvc.Create(bg(), owner, "Rust ownership")
	require.NoError(t, err)

	res, err := h.jobsSvc.HandleCallback(bg(), job.ID, map[string]any{
		"output": `{"levels":{"beginner":{"modules":[{"title":"Intro","content":"..."}]}}}`,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)
	require.Nil(t, res.Failure)

	stored, err := h.jobsSvc.Get(bg(), job.ID, owner)
	require.NoError(t, err)
	require.Equal(t, jobs.StateCompleted, stored.State)
	require.Empty(t, stored.ErrorInfo)
	content, err := stored.DecodeContent()
	require.NoError(t, err)
	require.Equal(t, "Rust ownership", content.Topic)
	beginner := content.Levels["beginner"]
	require.Len(t, beginner.Modules, 1)
	require.Equal(t, "Intro", beginner.Modules[0].Title)
	require.NotNil(t, beginner.Quiz)
	require.Empty(t, beginner.Quiz)
	medium, ok := content.Levels["medium"]
	require.True(t, ok)
	require.NotNil(t, medium.Modules)
	require.Empty(t, medium.Modules)
	require.NotNil(t, medium.YoutubeVideos)
	require.Equal(t, float64(1), h.metrics.CallbackCount("completed"))
}

func TestCallbackUpstreamErrorFailsJob(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	job, err := h.jobsSvc.Create(bg(), testutil.OwnerID(), "Rust ownership")
	require.NoError(t, err)

	res, err := h.jobsSvc.HandleCallback(bg(), job.ID, map[string]any{
		"error":   "LLM timeout",
		"message": "retry later",
		"output":  "{never parsed",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailedUpstream, res.Outcome)

	stored, err := h.jobRepo.GetByID(bg(), job.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StateFailed, stored.State)
	info, err := stored.DecodeErrorInfo()
	require.NoError(t, err)
	require.Equal(t, jobs.ErrorKindUpstream, info.Kind)
	require.Equal(t, "LLM timeout", info.Reason)
	require.Equal(t, "retry later", info.Message)
}

func TestCallbackInvalidJSONFailsWithPreview(t *testing.T) {
	h := newHarness(t, normalization.Options{PreviewLimit: 5})
	job, err := h.jobsSvc.Create(bg(), testutil.OwnerID(), "Rust ownership")
	require.NoError(t, err)

	res, err := h.jobsSvc.HandleCallback(bg(), job.ID, "{not valid json")
	require.NoError(t, err)
	require.Equal(t, OutcomeFailedParse, res.Outcome)
	require.Equal(t, normalization.FailureParse, res.Failure.Kind)

	stored, err := h.jobRepo.GetByID(bg(), job.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StateFailed, stored.State)
	info, err := stored.DecodeErrorInfo()
	require.NoError(t, err)
	require.Equal(t, jobs.ErrorKindParse, info.Kind)
	require.NotEmpty(t, info.Reason)
	require.LessOrEqual(t, utf8.RuneCountInString(info.RawPreview), 5)
	require.Equal(t, float64(1), h.metrics.NormalizeFailureCount("parse"))
}

func TestCallbackMissingLevelsFailsValidation(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	job, err := h.jobsSvc.Create(bg(), testutil.OwnerID(), "Rust ownership")
	require.NoError(t, err)

	res, err := h.jobsSvc.HandleCallback(bg(), job.ID, map[string]any{"hello": "world"})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailedParse, res.Outcome)
	require.Equal(t, normalization.FailureValidation, res.Failure.Kind)
}

func TestCallbackRedeliveryIsIgnored(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	job, err := h.jobsSvc.Create(bg(), testutil.OwnerID(), "Rust ownership")
	require.NoError(t, err)

	first, err := h.jobsSvc.HandleCallback(bg(), job.ID, map[string]any{"levels": map[string]any{}})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, first.Outcome)
	before, err := h.jobRepo.GetByID(bg(), job.ID)
	require.NoError(t, err)

	for _, payload := range []any{
		map[string]any{"error": "late failure"},
		"{broken",
		map[string]any{"levels": map[string]any{"beginner": map[string]any{"modules": []any{"x"}}}},
	} {
		res, err := h.jobsSvc.HandleCallback(bg(), job.ID, payload)
		require.NoError(t, err)
		require.Equal(t, OutcomeIgnored, res.Outcome)
		require.Equal(t, jobs.StateCompleted, res.Job.State)
	}

	after, err := h.jobRepo.GetByID(bg(), job.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StateCompleted, after.State)
	require.JSONEq(t, string(before.Content), string(after.Content))
	require.Empty(t, after.ErrorInfo)
	require.Equal(t, RedeliveryIgnore, RedeliveryPolicy)
}

func TestConcurrentCallbacksApplyOnce(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	job, err := h.jobsSvc.Create(bg(), testutil.OwnerID(), "Rust ownership")
	require.NoError(t, err)

	const n = 8
	outcomes := make([]CallbackOutcome, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var payload any = map[string]any{"levels": map[string]any{}}
			if i%2 == 1 {
				payload = map[string]any{"error": fmt.Sprintf("failure %d", i)}
			}
			res, err := h.jobsSvc.HandleCallback(bg(), job.ID, payload)
			errs[i] = err
			if res != nil {
				outcomes[i] = res.Outcome
			}
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if outcomes[i] != OutcomeIgnored {
			applied++
		}
	}
	require.Equal(t, 1, applied)

	stored, err := h.jobRepo.GetByID(bg(), job.ID)
	require.NoError(t, err)
	require.True(t, stored.State.Terminal())
	require.False(t, len(stored.Content) > 0 && len(stored.ErrorInfo) > 0)
}

func TestCallbackUnknownJob(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	id := uuid.New()

	_, err := h.jobsSvc.HandleCallback(bg(), id, map[string]any{"levels": map[string]any{}})
	requireAPIError(t, err, http.StatusNotFound, "job_not_found")
	_, err = h.jobRepo.GetByID(bg(), id)
	require.True(t, errors.Is(err, jobs.ErrNotFound))

	_, err = h.jobsSvc.HandleCallback(bg(), uuid.Nil, nil)
	requireAPIError(t, err, http.StatusBadRequest, "invalid_job_id")
}

func TestCallbackAfterDeleteIsNotFound(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner := testutil.OwnerID()
	job, err := h.jobsSvc.Create(bg(), owner, "Rust ownership")
	require.NoError(t, err)
	require.NoError(t, h.jobsSvc.Delete(bg(), job.ID, owner))

	_, err = h.jobsSvc.HandleCallback(bg(), job.ID, map[string]any{"levels": map[string]any{}})
	requireAPIError(t, err, http.StatusNotFound, "job_not_found")
}

func TestGetIsOwnerScoped(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner, other := testutil.OwnerID(), testutil.OwnerID()
	job, err := h.jobsSvc.Create(bg(), owner, "Rust ownership")
	require.NoError(t, err)

	_, err = h.jobsSvc.Get(bg(), job.ID, other)
	requireAPIError(t, err, http.StatusNotFound, "job_not_found")

	_, err = h.jobsSvc.HandleCallback(bg(), job.ID, map[string]any{"levels": map[string]any{}})
	require.NoError(t, err)
	require.True(t, h.cache.Has(job.ID))

	// Cache hits are owner checked too.
	_, err = h.jobsSvc.Get(bg(), job.ID, other)
	requireAPIError(t, err, http.StatusNotFound, "job_not_found")
	got, err := h.jobsSvc.Get(bg(), job.ID, owner)
	require.NoError(t, err)
	require.Equal(t, jobs.StateCompleted, got.State)

	_, err = h.jobsSvc.Get(bg(), job.ID, "")
	requireAPIError(t, err, http.StatusUnauthorized, "unauthenticated")
}

func TestGetDoesNotRecacheJobDeletedMeanwhile(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner := testutil.OwnerID()
	job, err := h.jobsSvc.Create(bg(), owner, "Rust ownership")
	require.NoError(t, err)
	_, err = h.jobsSvc.HandleCallback(bg(), job.ID, map[string]any{"levels": map[string]any{}})
	require.NoError(t, err)
	require.NoError(t, h.cache.Evict(bg().Ctx, job.ID))

	// The delete commits and evicts after Get read the row but before Get
	// stores it.
	var once sync.Once
	h.cache.beforePut = func(id uuid.UUID) {
		once.Do(func() {
			require.NoError(t, h.jobsSvc.Delete(bg(), id, owner))
		})
	}
	got, err := h.jobsSvc.Get(bg(), job.ID, owner)
	require.NoError(t, err)
	require.Equal(t, jobs.StateCompleted, got.State)

	require.False(t, h.cache.Has(job.ID))
	_, err = h.jobsSvc.Get(bg(), job.ID, owner)
	requireAPIError(t, err, http.StatusNotFound, "job_not_found")
}

func TestCallbackCacheSkipsJobDeletedMeanwhile(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner := testutil.OwnerID()
	job, err := h.jobsSvc.Create(bg(), owner, "Rust ownership")
	require.NoError(t, err)

	var once sync.Once
	h.cache.beforePut = func(id uuid.UUID) {
		once.Do(func() {
			require.NoError(t, h.jobsSvc.Delete(bg(), id, owner))
		})
	}
	res, err := h.jobsSvc.HandleCallback(bg(), job.ID, map[string]any{"levels": map[string]any{}})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)

	require.False(t, h.cache.Has(job.ID))
	_, err = h.jobsSvc.Get(bg(), job.ID, owner)
	requireAPIError(t, err, http.StatusNotFound, "job_not_found")
}

func TestDispatchFailureAfterCompletingCallbackIsNotAnError(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	h.dispatcher.err = fmt.Errorf("%w: ack lost", workflow.ErrTimeout)
	h.dispatcher.during = func(req workflow.Request) {
		_, err := h.jobsSvc.HandleCallback(bg(), req.JobID, map[string]any{
			"output": `{"levels":{"beginner":{"modules":[{"title":"Intro","content":"..."}]}}}`,
		})
		require.NoError(t, err)
	}
	owner := testutil.OwnerID()

	job, err := h.jobsSvc.Create(bg(), owner, "Rust ownership")
	require.NoError(t, err)
	require.Equal(t, jobs.StateCompleted, job.State)

	stored, err := h.jobRepo.GetByID(bg(), job.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StateCompleted, stored.State)
	require.Empty(t, stored.ErrorInfo)
}

func TestDispatchFailureAfterFailingCallbackStillReported(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	h.dispatcher.err = &workflow.StatusError{StatusCode: http.StatusInternalServerError}
	h.dispatcher.during = func(req workflow.Request) {
		_, err := h.jobsSvc.HandleCallback(bg(), req.JobID, map[string]any{"error": "LLM timeout"})
		require.NoError(t, err)
	}

	job, err := h.jobsSvc.Create(bg(), testutil.OwnerID(), "Rust ownership")
	requireAPIError(t, err, http.StatusBadGateway, "workflow_unavailable")
	require.Equal(t, jobs.StateFailed, job.State)
	info, err := job.DecodeErrorInfo()
	require.NoError(t, err)
	require.Equal(t, jobs.ErrorKindUpstream, info.Kind)
}

func TestListNewestFirst(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner := testutil.OwnerID()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		job, err := h.jobsSvc.Create(bg(), owner, fmt.Sprintf("topic %d", i))
		require.NoError(t, err)
		ids = append(ids, job.ID)
		time.Sleep(5 * time.Millisecond)
	}
	_, err := h.jobsSvc.Create(bg(), testutil.OwnerID(), "someone else")
	require.NoError(t, err)

	list, err := h.jobsSvc.List(bg(), owner, repos.JobListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, ids[2], list[0].ID)
	require.Equal(t, ids[1], list[1].ID)
}

func TestDeleteRemovesJobAndProgress(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner := testutil.OwnerID()
	job, err := h.jobsSvc.Create(bg(), owner, "Rust ownership")
	require.NoError(t, err)
	_, err = h.jobsSvc.HandleCallback(bg(), job.ID, map[string]any{"levels": map[string]any{}})
	require.NoError(t, err)
	_, err = h.progSvc.Set(bg(), owner, job.ID, map[string][]int{"beginner_module": {0}})
	require.NoError(t, err)

	require.NoError(t, h.jobsSvc.Delete(bg(), job.ID, owner))
	require.False(t, h.cache.Has(job.ID))

	n, err := h.progRepo.CountForOwnerJob(bg(), owner, job.ID)
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = h.jobsSvc.Get(bg(), job.ID, owner)
	requireAPIError(t, err, http.StatusNotFound, "job_not_found")

	err = h.jobsSvc.Delete(bg(), job.ID, owner)
	requireAPIError(t, err, http.StatusNotFound, "job_not_found")
}

func TestDeleteForeignJobKeepsEverything(t *testing.T) {
	h := newHarness(t, normalization.Options{})
	owner, other := testutil.OwnerID(), testutil.OwnerID()
	job, err := h.jobsSvc.Create(bg(), owner, "Rust ownership")
	require.NoError(t, err)
	_, err = h.progSvc.Set(bg(), owner, job.ID, map[string][]int{"beginner_module": {0}})
	require.NoError(t, err)

	err = h.jobsSvc.Delete(bg(), job.ID, other)
	requireAPIError(t, err, http.StatusNotFound, "job_not_found")

	_, err = h.jobsSvc.Get(bg(), job.ID, owner)
	require.NoError(t, err)
	n, err := h.progRepo.CountForOwnerJob(bg(), owner, job.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestClampDispatchTimeout(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                      DefaultDispatchTimeout,
		-time.Second:           DefaultDispatchTimeout,
		100 * time.Millisecond: MinDispatchTimeout,
		5 * time.Second:        5 * time.Second,
		time.Minute:            MaxDispatchTimeout,
	}
	for in, want := range cases {
		if got := ClampDispatchTimeout(in); got != want {
			t.Fatalf("ClampDispatchTimeout(%s): want=%s got=%s", in, want, got)
		}
	}
}
