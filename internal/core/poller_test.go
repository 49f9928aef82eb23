package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"repoforge/internal/types"
)

func TestDecideDispatch(t *testing.T) {
	dirty := types.Repo{ID: 1, NeedsUpdate: true}
	tests := []struct {
		name     string
		repo     func(repo types.Repo) types.Repo
		binaries []types.Binary
		action   DispatchAction
		queue    string
		repoType types.RepoType
	}{
		{
			name:   "idle repo is skipped",
			repo:   func(repo types.Repo) types.Repo { repo.NeedsUpdate = false; return repo },
			action: DispatchSkip,
		},
		{
			name:   "queued repo is skipped",
			repo:   func(repo types.Repo) types.Repo { repo.Type = types.RepoTypeRPM; repo.IsQueued = true; return repo },
			action: DispatchSkip,
		},
		{
			name:   "building repo is skipped",
			repo:   func(repo types.Repo) types.Repo { repo.Type = types.RepoTypeRPM; repo.IsUpdating = true; return repo },
			action: DispatchSkip,
		},
		{
			name:     "rpm repo goes to the rpm queue",
			repo:     func(repo types.Repo) types.Repo { repo.Type = types.RepoTypeRPM; return repo },
			action:   DispatchEnqueue,
			queue:    types.QueueBuildRPM,
			repoType: types.RepoTypeRPM,
		},
		{
			name:     "deb repo goes to the deb queue",
			repo:     func(repo types.Repo) types.Repo { repo.Type = types.RepoTypeDeb; return repo },
			action:   DispatchEnqueue,
			queue:    types.QueueBuildDeb,
			repoType: types.RepoTypeDeb,
		},
		{
			name:     "raw repo builds inline",
			repo:     func(repo types.Repo) types.Repo { repo.Type = types.RepoTypeRaw; return repo },
			action:   DispatchBuildInline,
			repoType: types.RepoTypeRaw,
		},
		{
			name: "unknown repo infers from the first known extension",
			repo: func(repo types.Repo) types.Repo { return repo },
			binaries: []types.Binary{
				{Name: "ceph.tar.gz"},
				{Name: "ceph_10.2.0-1_amd64.deb"},
				{Name: "ceph-10.2.0-1.el7.x86_64.rpm"},
			},
			action:   DispatchInferType,
			repoType: types.RepoTypeDeb,
		},
		{
			name:     "unknown repo without known extensions is skipped",
			repo:     func(repo types.Repo) types.Repo { return repo },
			binaries: []types.Binary{{Name: "ceph.tar.gz"}},
			action:   DispatchSkip,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := DecideDispatch(tt.repo(dirty), tt.binaries)
			assert.Equal(t, tt.action, decision.Action, decision.Action.String())
			assert.Equal(t, tt.queue, decision.Queue)
			assert.Equal(t, tt.repoType, decision.Type)
		})
	}
}

func TestDispatchActionString(t *testing.T) {
	assert.Equal(t, "skip", DispatchSkip.String())
	assert.Equal(t, "infer-type", DispatchInferType.String())
	assert.Equal(t, "build-inline", DispatchBuildInline.String())
	assert.Equal(t, "enqueue", DispatchEnqueue.String())
}
