package app

import (
	"context"
	"sync"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoforge/internal/types"
)

func TestPollReposQueuesDirtyRepo(t *testing.T) {
	f := newServiceFixture(t)
	repo := seedRepo(t, f.Store, testKey("ceph", "firefly", "centos", "7"), func(repo *types.Repo) {
		repo.Type = types.RepoTypeRPM
		repo.NeedsUpdate = true
	})

	result, err := f.Service.PollRepos(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{repo.ID}, result.Queued)

	jobs := f.Queue.enqueued()
	require.Len(t, jobs, 1)
	assert.Equal(t, repo.ID, jobs[0].RepoID)
	assert.Equal(t, types.QueueBuildRPM, jobs[0].Queue)
	assert.Equal(t, f.Service.Config.QuietTime, jobs[0].Delay)
	assert.NotEmpty(t, jobs[0].ID)
	assert.Equal(t, []types.RepoStatus{types.RepoStatusQueued}, f.Notifier.statuses())

	stored, err := f.Store.GetRepo(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "QUEUED", stored.State())

	// a second cycle leaves the queued repo alone
	result, err = f.Service.PollRepos(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Queued)
	assert.Len(t, f.Queue.enqueued(), 1)
}

func TestPollReposSkipsIdleAndBuildingRepos(t *testing.T) {
	f := newServiceFixture(t)
	seedRepo(t, f.Store, testKey("ceph", "firefly", "centos", "7"), func(repo *types.Repo) {
		repo.Type = types.RepoTypeRPM
	})
	seedRepo(t, f.Store, testKey("ceph", "hammer", "centos", "7"), func(repo *types.Repo) {
		repo.Type = types.RepoTypeRPM
		repo.NeedsUpdate = true
		repo.IsUpdating = true
	})

	result, err := f.Service.PollRepos(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Queued)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, f.Queue.enqueued())
}

func TestPollReposInfersUnknownType(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	repo := seedRepo(t, f.Store, testKey("ceph", "jewel", "ubuntu", "xenial"), func(repo *types.Repo) {
		repo.NeedsUpdate = true
	})
	_, err := f.Store.AttachBinary(ctx, repo, types.Binary{Name: "ceph_10.2.0-1xenial_amd64.deb", Path: "/srv/ceph.deb"})
	require.NoError(t, err)

	result, err := f.Service.PollRepos(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{repo.ID}, result.Inferred)
	assert.Empty(t, f.Queue.enqueued())

	stored, err := f.Store.GetRepo(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RepoTypeDeb, stored.Type)

	result, err = f.Service.PollRepos(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{repo.ID}, result.Queued)
	jobs := f.Queue.enqueued()
	require.Len(t, jobs, 1)
	assert.Equal(t, types.QueueBuildDeb, jobs[0].Queue)
}

func TestPollReposLeavesUninferableRepoDirty(t *testing.T) {
	f := newServiceFixture(t)
	repo := seedRepo(t, f.Store, testKey("ceph", "jewel", "centos", "7"), func(repo *types.Repo) {
		repo.NeedsUpdate = true
	})

	result, err := f.Service.PollRepos(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	stored, err := f.Store.GetRepo(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "DIRTY", stored.State())
}

func TestPollReposBuildsRawInline(t *testing.T) {
	f := newServiceFixture(t)
	repo := seedRepo(t, f.Store, testKey("ceph-iso", "master", "centos", "7"), func(repo *types.Repo) {
		repo.Type = types.RepoTypeRaw
		repo.NeedsUpdate = true
	})

	result, err := f.Service.PollRepos(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{repo.ID}, result.Built)
	assert.Empty(t, f.Queue.enqueued())
	assert.Equal(t, []types.RepoStatus{types.RepoStatusBuilding, types.RepoStatusReady}, f.Notifier.statuses())

	stored, err := f.Store.GetRepo(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "IDLE", stored.State())
	assert.DirExists(t, stored.Path)
}

func TestPollReposRevertsQueuedFlagOnEnqueueFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.Queue.err = errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition).WithMsg("queue is closed")
	repo := seedRepo(t, f.Store, testKey("ceph", "firefly", "centos", "7"), func(repo *types.Repo) {
		repo.Type = types.RepoTypeRPM
		repo.NeedsUpdate = true
	})

	result, err := f.Service.PollRepos(context.Background())
	require.Error(t, err)
	assert.Empty(t, result.Queued)

	stored, err := f.Store.GetRepo(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "DIRTY", stored.State())
}

func TestConcurrentPollsDispatchOnce(t *testing.T) {
	f := newServiceFixture(t)
	seedRepo(t, f.Store, testKey("ceph", "firefly", "centos", "7"), func(repo *types.Repo) {
		repo.Type = types.RepoTypeRPM
		repo.NeedsUpdate = true
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Service.PollRepos(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, f.Queue.enqueued(), 1)
	assert.Equal(t, []types.RepoStatus{types.RepoStatusQueued}, f.Notifier.statuses())
}

func TestRegisterWorkersBuildsQueuedRepo(t *testing.T) {
	f := newServiceFixture(t)
	f.Service.RegisterWorkers()
	require.Contains(t, f.Queue.handlers, types.QueueBuildRPM)
	require.Contains(t, f.Queue.handlers, types.QueueBuildDeb)

	repo := seedRepo(t, f.Store, testKey("ceph", "firefly", "centos", "7"), func(repo *types.Repo) {
		repo.Type = types.RepoTypeRPM
		repo.NeedsUpdate = true
		repo.IsQueued = true
	})
	require.NoError(t, f.Queue.handlers[types.QueueBuildRPM](context.Background(), types.BuildJob{RepoID: repo.ID}))

	stored, err := f.Store.GetRepo(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "IDLE", stored.State())
}

func TestRecoverInterrupted(t *testing.T) {
	f := newServiceFixture(t)
	queued := seedRepo(t, f.Store, testKey("ceph", "firefly", "centos", "7"), func(repo *types.Repo) {
		repo.Type = types.RepoTypeRPM
		repo.IsQueued = true
	})
	building := seedRepo(t, f.Store, testKey("ceph", "hammer", "centos", "7"), func(repo *types.Repo) {
		repo.Type = types.RepoTypeRPM
		repo.IsUpdating = true
	})
	idle := seedRepo(t, f.Store, testKey("ceph", "jewel", "centos", "7"), nil)

	recovered, err := f.Service.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)

	for _, id := range []int64{queued.ID, building.ID} {
		stored, err := f.Store.GetRepo(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "DIRTY", stored.State())
	}
	stored, err := f.Store.GetRepo(context.Background(), idle.ID)
	require.NoError(t, err)
	assert.Equal(t, "IDLE", stored.State())
}
