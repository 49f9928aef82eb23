//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoforge/internal/adapters"
	"repoforge/internal/app"
	"repoforge/internal/types"
	"repoforge/tests/testutil"
)

// metadataRunner stands in for createrepo by writing a repodata marker.
type metadataRunner struct {
	mu   sync.Mutex
	dirs []string
}

func (r *metadataRunner) Run(_ context.Context, command types.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir := command.Args[len(command.Args)-1]
	r.dirs = append(r.dirs, dir)
	return os.WriteFile(filepath.Join(dir, "repomd.xml"), []byte("<repomd/>"), 0o644)
}

func TestRepoLifecycleWithSQLiteAndCallbacks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping lifecycle test in short mode")
	}
	ctx := t.Context()
	root := t.TempDir()
	receiver := testutil.NewCallbackReceiver(t)

	cfg := types.DefaultConfig()
	cfg.Hostname = "repos.example.com"
	cfg.BinaryRoot = filepath.Join(root, "binaries")
	cfg.ReposRoot = filepath.Join(root, "repos")
	cfg.DistributionsRoot = filepath.Join(root, "distributions")
	cfg.QuietTime = 50 * time.Millisecond
	cfg.Purge.Enabled = true
	cfg.Callback = types.CallbackConfig{
		URL:        receiver.URL + "/callbacks",
		User:       "admin",
		Key:        "secret",
		Retries:    2,
		RetryDelay: 10 * time.Millisecond,
		Timeout:    5 * time.Second,
	}

	store, err := adapters.OpenSQLStore(ctx, "sqlite", filepath.Join(root, "repoforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	queue := adapters.NewMemoryQueue(cfg.BuildWorkers)
	notifier := adapters.NewHTTPNotifier(cfg.Callback, cfg.Hostname)
	runner := &metadataRunner{}

	service := app.NewService(ctx, cfg, store, queue, notifier)
	service.Runner = runner
	service.RegisterWorkers()
	require.NoError(t, queue.Start(ctx))
	t.Cleanup(func() { _ = queue.Close() })

	key := types.RepoKey{Project: "ceph", Ref: "firefly", Distro: "centos", DistroVersion: "7"}.Normalize()
	upload := testutil.WriteFile(t, t.TempDir(), "ceph-0.80.11-0.el7.x86_64.rpm", "rpm payload")
	binary, err := service.AddBinary(ctx, app.AddBinaryRequest{Key: key, Arch: "x86_64", Source: upload})
	require.NoError(t, err)

	polled, err := service.PollRepos(ctx)
	require.NoError(t, err)
	require.Len(t, polled.Queued, 1)

	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, queue.Drain(drainCtx))

	repo, err := store.FindRepo(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "IDLE", repo.State())
	assert.FileExists(t, filepath.Join(repo.Path, "x86_64", binary.Name))
	assert.FileExists(t, filepath.Join(repo.Path, "x86_64", "repomd.xml"))

	notifier.Wait()
	// deliveries are concurrent, so only the set is stable
	assert.ElementsMatch(t, []string{"queued", "building", "ready"}, receiver.Statuses())
	for _, callback := range receiver.Received() {
		assert.Equal(t, "/callbacks/ceph/", callback.Path)
		assert.Equal(t, "admin", callback.User)
		assert.Equal(t, "https://repos.example.com/r/ceph/firefly/HEAD/centos/7/flavors/default/", callback.Payload["url"])
	}

	// age the repo past the default lifespan and sweep it
	repo.Modified = time.Now().UTC().AddDate(0, 0, -(types.DefaultPurgeDays + 1))
	require.NoError(t, store.SaveRepo(ctx, repo))
	purged, err := service.PurgeRepos(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, purged.Deleted, 1)
	assert.NoFileExists(t, binary.Path)
	assert.NoDirExists(t, repo.Path)

	notifier.Wait()
	statuses := receiver.Statuses()
	assert.Equal(t, "deleted", statuses[len(statuses)-1])
}
