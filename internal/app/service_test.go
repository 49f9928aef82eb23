package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repoforge/internal/adapters"
	"repoforge/internal/core"
	"repoforge/internal/ports"
	"repoforge/internal/types"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type recordingQueue struct {
	mu       sync.Mutex
	jobs     []types.BuildJob
	handlers map[string]ports.JobHandler
	err      error
	workers  int
}

func (q *recordingQueue) Enqueue(_ context.Context, job types.BuildJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) OnJob(queue string, handler ports.JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = map[string]ports.JobHandler{}
	}
	q.handlers[queue] = handler
}

func (q *recordingQueue) Workers() int {
	return q.workers
}

func (q *recordingQueue) enqueued() []types.BuildJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.BuildJob(nil), q.jobs...)
}

type notification struct {
	Status types.RepoStatus
	Repo   types.Repo
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notification
	pings []string
}

func (n *recordingNotifier) Notify(_ context.Context, status types.RepoStatus, repo types.Repo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{Status: status, Repo: repo})
}

func (n *recordingNotifier) Ping(_ context.Context, url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pings = append(n.pings, url)
}

func (n *recordingNotifier) statuses() []types.RepoStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	statuses := make([]types.RepoStatus, 0, len(n.sent))
	for _, sent := range n.sent {
		statuses = append(statuses, sent.Status)
	}
	return statuses
}

type recordingRunner struct {
	mu       sync.Mutex
	commands []types.Command
}

func (r *recordingRunner) Run(_ context.Context, command types.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	return nil
}

type serviceFixture struct {
	Service  Service
	Store    *adapters.MemoryStore
	Queue    *recordingQueue
	Notifier *recordingNotifier
	Runner   *recordingRunner
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	root := t.TempDir()
	cfg := types.DefaultConfig()
	cfg.Hostname = "repos.example.com"
	cfg.ReposRoot = filepath.Join(root, "repos")
	cfg.DistributionsRoot = filepath.Join(root, "distributions")
	cfg.BinaryRoot = filepath.Join(root, "binaries")

	store := adapters.NewMemoryStore()
	queue := &recordingQueue{workers: 2}
	notifier := &recordingNotifier{}
	runner := &recordingRunner{}
	service := Service{
		Store:         store,
		Queue:         queue,
		Notifier:      notifier,
		Runner:        runner,
		Distributions: adapters.NewDistributionsFileAdapter(cfg.DistributionsRoot),
		Storage:       adapters.NewBinaryFileStorage(cfg.BinaryRoot),
		Health: core.NewHealthChecker(
			adapters.WorkersCheck(queue),
			adapters.DatabaseCheck(store),
		),
		Config: cfg,
		Clock:  func() time.Time { return testNow },
	}
	return serviceFixture{Service: service, Store: store, Queue: queue, Notifier: notifier, Runner: runner}
}

func testKey(project, ref, distro, distroVersion string) types.RepoKey {
	return types.RepoKey{Project: project, Ref: ref, Distro: distro, DistroVersion: distroVersion}.Normalize()
}

// writeUpload drops a file to upload into a scratch directory.
func writeUpload(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	return path
}

// seedRepo creates a repo for key with the given type and flags.
func seedRepo(t *testing.T, store *adapters.MemoryStore, key types.RepoKey, mutate func(repo *types.Repo)) types.Repo {
	t.Helper()
	ctx := context.Background()
	repo, err := store.FindOrCreateRepo(ctx, key, testNow)
	require.NoError(t, err)
	if mutate != nil {
		mutate(&repo)
		require.NoError(t, store.SaveRepo(ctx, repo))
	}
	repo, err = store.GetRepo(ctx, repo.ID)
	require.NoError(t, err)
	return repo
}
