package core_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repoforge/internal/adapters"
	"repoforge/internal/types"
)

var buildNow = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time {
	return buildNow
}

type recordingRunner struct {
	mu       sync.Mutex
	commands []types.Command
	fail     func(command types.Command) error
}

func (r *recordingRunner) Run(_ context.Context, command types.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	if r.fail != nil {
		return r.fail(command)
	}
	return nil
}

func (r *recordingRunner) argvs() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([][]string, 0, len(r.commands))
	for _, command := range r.commands {
		result = append(result, command.Argv())
	}
	return result
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []types.RepoStatus
}

func (n *recordingNotifier) Notify(_ context.Context, status types.RepoStatus, _ types.Repo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
}

func (n *recordingNotifier) Ping(context.Context, string) {}

func (n *recordingNotifier) seen() []types.RepoStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.RepoStatus(nil), n.statuses...)
}

func repoKey(project, ref, distro, distroVersion string) types.RepoKey {
	return types.RepoKey{
		Project:       project,
		Ref:           ref,
		Distro:        distro,
		DistroVersion: distroVersion,
	}.Normalize()
}

// seedBinary attaches a binary named name to the repo keyed by key,
// creating the repo when needed.
func seedBinary(t *testing.T, store *adapters.MemoryStore, key types.RepoKey, name string) types.Binary {
	t.Helper()
	ctx := context.Background()
	repo, err := store.FindOrCreateRepo(ctx, key, buildNow)
	require.NoError(t, err)
	binary, err := store.AttachBinary(ctx, repo, types.Binary{
		Name: name,
		Path: filepath.Join("/srv/binaries", key.Project, key.Ref, key.Distro, key.DistroVersion, name),
	})
	require.NoError(t, err)
	return binary
}

func binaryIDs(binaries []types.Binary) []int64 {
	ids := make([]int64, 0, len(binaries))
	for _, binary := range binaries {
		ids = append(ids, binary.ID)
	}
	return ids
}
