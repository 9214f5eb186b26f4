package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/topicgen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/topicgen-backend/internal/domain/progress"
	"github.com/yungbote/topicgen-backend/internal/platform/dbctx"
)

func encode(t *testing.T, s types.ItemsState) []byte {
	t.Helper()
	raw, err := s.Encode()
	require.NoError(t, err)
	return raw
}

func TestProgressRepoUpsertReplacesWholeMapping(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.From(ctx)
	repo := NewProgressRepo(db, testutil.Logger(t))

	owner := testutil.OwnerID()
	job := testutil.SeedJob(t, ctx, db, owner, "Rust ownership", time.Time{})

	missing, err := repo.Get(dbc, owner, job.ID)
	require.NoError(t, err)
	require.Nil(t, missing)

	first, err := repo.Upsert(dbc, &types.Progress{
		OwnerID:    owner,
		JobID:      job.ID,
		ItemsState: encode(t, types.ItemsState{"beginner_module": {0, 1}}),
	})
	require.NoError(t, err)

	second, err := repo.Upsert(dbc, &types.Progress{
		OwnerID:    owner,
		JobID:      job.ID,
		ItemsState: encode(t, types.ItemsState{"beginner_module": {0, 1, 2}, "beginner_quiz": {0}}),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "upsert must update the existing row")
	require.False(t, second.UpdatedAt.Before(first.UpdatedAt))

	items, err := second.Items()
	require.NoError(t, err)
	require.Equal(t, types.ItemsState{"beginner_module": {0, 1, 2}, "beginner_quiz": {0}}, items)

	n, err := repo.CountForOwnerJob(dbc, owner, job.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestProgressRepoConcurrentFirstWrites(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewProgressRepo(db, testutil.Logger(t))

	owner := testutil.OwnerID()
	job := testutil.SeedJob(t, ctx, db, owner, "Race", time.Time{})

	payloads := make([][]byte, 6)
	for i := range payloads {
		payloads[i] = encode(t, types.ItemsState{"medium_quiz": {i}})
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := range payloads {
		wg.Add(1)
		go func(raw []byte) {
			defer wg.Done()
			_, err := repo.Upsert(dbctx.From(ctx), &types.Progress{OwnerID: owner, JobID: job.ID, ItemsState: raw})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(payloads[i])
	}
	wg.Wait()
	require.Empty(t, errs)

	n, err := repo.CountForOwnerJob(dbctx.From(ctx), owner, job.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	stored, err := repo.Get(dbctx.From(ctx), owner, job.ID)
	require.NoError(t, err)
	items, err := stored.Items()
	require.NoError(t, err)
	require.Len(t, items["medium_quiz"], 1)
}

func TestProgressRepoOwnerIsolation(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.From(ctx)
	repo := NewProgressRepo(db, testutil.Logger(t))

	owner := testutil.OwnerID()
	other := testutil.OwnerID()
	job := testutil.SeedJob(t, ctx, db, owner, "Isolation", time.Time{})

	_, err := repo.Upsert(dbc, &types.Progress{OwnerID: owner, JobID: job.ID, ItemsState: encode(t, types.ItemsState{"a": {1}})})
	require.NoError(t, err)

	foreign, err := repo.Get(dbc, other, job.ID)
	require.NoError(t, err)
	require.Nil(t, foreign)

	deleted, err := repo.DeleteForOwner(dbc, other, job.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = repo.DeleteForOwner(dbc, owner, job.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.DeleteForOwner(dbc, owner, job.ID)
	require.NoError(t, err)
	require.False(t, deleted, "second delete is a no-op")
}

func TestProgressRepoRejectsMissingKeys(t *testing.T) {
	db := testutil.DB(t)
	repo := NewProgressRepo(db, testutil.Logger(t))

	_, err := repo.Upsert(dbctx.From(context.Background()), &types.Progress{JobID: uuid.New()})
	require.Error(t, err)
	_, err = repo.Upsert(dbctx.From(context.Background()), &types.Progress{OwnerID: "u"})
	require.Error(t, err)
}
