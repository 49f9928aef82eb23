package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoforge/internal/adapters"
	"repoforge/internal/core"
	"repoforge/internal/types"
)

func TestAggregateOwnAndGenericBinaries(t *testing.T) {
	ctx := context.Background()
	store := adapters.NewMemoryStore()
	own := seedBinary(t, store, repoKey("ceph", "jewel", "ubuntu", "xenial"), "ceph_10.2.0-1_amd64.deb")
	generic := seedBinary(t, store, repoKey("ceph", "jewel", "ubuntu", "generic"), "ceph-docs_10.2.0-1_all.deb")
	seedBinary(t, store, repoKey("ceph", "master", "ubuntu", "generic"), "ceph-docs_11.0.0-1_all.deb")
	seedBinary(t, store, repoKey("ceph", "jewel", "ubuntu", "trusty"), "ceph_10.2.0-1trusty_amd64.deb")
	seedBinary(t, store, repoKey("ceph", "jewel", "debian", "generic"), "ceph-docs_10.2.0-1~deb_all.deb")

	repo, err := store.FindRepo(ctx, repoKey("ceph", "jewel", "ubuntu", "xenial"))
	require.NoError(t, err)
	repo.Type = types.RepoTypeDeb

	aggregator := core.NewAggregator(store, types.DefaultConfig())
	binaries, err := aggregator.Aggregate(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, []int64{own.ID, generic.ID}, binaryIDs(binaries))
}

func TestAggregateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := adapters.NewMemoryStore()
	seedBinary(t, store, repoKey("ceph", "jewel", "centos", "7"), "ceph-10.2.0-1.el7.x86_64.rpm")
	seedBinary(t, store, repoKey("ceph", "jewel", "centos", "generic"), "ceph-release-1-0.noarch.rpm")
	seedBinary(t, store, repoKey("ceph-deploy", "master", "centos", "7"), "ceph-deploy-1.5.0-0.noarch.rpm")

	cfg := types.DefaultConfig()
	cfg.Repos = map[string]types.ProjectRepoConfig{
		// the related project is listed under two refs that overlap
		"ceph": {Refs: map[string]map[string][]string{
			"jewel": {"ceph-deploy": {"master", "all"}},
		}},
	}
	repo, err := store.FindRepo(ctx, repoKey("ceph", "jewel", "centos", "7"))
	require.NoError(t, err)
	repo.Type = types.RepoTypeRPM

	aggregator := core.NewAggregator(store, cfg)
	first, err := aggregator.Aggregate(ctx, repo)
	require.NoError(t, err)
	second, err := aggregator.Aggregate(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, first, 3)
	assert.Equal(t, binaryIDs(first), binaryIDs(second))
}

func TestAggregateRelatedProjects(t *testing.T) {
	ctx := context.Background()
	store := adapters.NewMemoryStore()
	own := seedBinary(t, store, repoKey("ceph", "luminous", "centos", "7"), "ceph-12.2.0-0.el7.x86_64.rpm")
	related := seedBinary(t, store, repoKey("ceph-deploy", "master", "centos", "7"), "ceph-deploy-2.0.0-0.noarch.rpm")
	seedBinary(t, store, repoKey("ceph-deploy", "stable", "centos", "7"), "ceph-deploy-1.5.0-0.noarch.rpm")
	seedBinary(t, store, repoKey("ceph-deploy", "master", "centos", "8"), "ceph-deploy-2.0.0-0.el8.noarch.rpm")

	cfg := types.DefaultConfig()
	cfg.Repos = map[string]types.ProjectRepoConfig{
		"ceph": {Refs: map[string]map[string][]string{
			types.RefAll: {"ceph-deploy": {"master"}, "missing-project": {"main"}},
		}},
	}
	repo, err := store.FindRepo(ctx, repoKey("ceph", "luminous", "centos", "7"))
	require.NoError(t, err)
	repo.Type = types.RepoTypeRPM

	binaries, err := core.NewAggregator(store, cfg).Aggregate(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, []int64{own.ID, related.ID}, binaryIDs(binaries))
}

func TestAggregateCombinedDebVersions(t *testing.T) {
	ctx := context.Background()
	store := adapters.NewMemoryStore()
	own := seedBinary(t, store, repoKey("ceph", "jewel", "ubuntu", "xenial"), "ceph_10.2.0-1xenial_amd64.deb")
	combined := seedBinary(t, store, repoKey("ceph", "jewel", "debian", "jessie"), "ceph_10.2.0-1jessie_amd64.deb")
	seedBinary(t, store, repoKey("ceph", "jewel", "ubuntu", "trusty"), "ceph_10.2.0-1trusty_amd64.deb")

	cfg := types.DefaultConfig()
	cfg.Repos = map[string]types.ProjectRepoConfig{"ceph": {Combined: []string{"jessie"}}}
	repo, err := store.FindRepo(ctx, repoKey("ceph", "jewel", "ubuntu", "xenial"))
	require.NoError(t, err)

	repo.Type = types.RepoTypeDeb
	binaries, err := core.NewAggregator(store, cfg).Aggregate(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, []int64{own.ID, combined.ID}, binaryIDs(binaries))

	// combined versions only apply to deb repos
	repo.Type = types.RepoTypeRPM
	binaries, err = core.NewAggregator(store, cfg).Aggregate(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, []int64{own.ID}, binaryIDs(binaries))
}

func TestAggregateRelatedGenericBinaries(t *testing.T) {
	ctx := context.Background()
	store := adapters.NewMemoryStore()
	own := seedBinary(t, store, repoKey("ceph", "luminous", "centos", "7"), "ceph-12.2.0-0.el7.x86_64.rpm")
	relatedGeneric := seedBinary(t, store, repoKey("ceph-deploy", "master", "centos", "generic"), "ceph-deploy-2.0.0-0.noarch.rpm")
	seedBinary(t, store, repoKey("ceph-deploy", "master", "ubuntu", "generic"), "ceph-deploy_2.0.0-1_all.deb")
	seedBinary(t, store, repoKey("ceph-deploy", "stable", "centos", "generic"), "ceph-deploy-1.5.0-0.noarch.rpm")

	cfg := types.DefaultConfig()
	cfg.Repos = map[string]types.ProjectRepoConfig{
		"ceph": {Refs: map[string]map[string][]string{
			"luminous": {"ceph-deploy": {"master"}},
		}},
	}
	repo, err := store.FindRepo(ctx, repoKey("ceph", "luminous", "centos", "7"))
	require.NoError(t, err)
	repo.Type = types.RepoTypeRPM

	binaries, err := core.NewAggregator(store, cfg).Aggregate(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, []int64{own.ID, relatedGeneric.ID}, binaryIDs(binaries))
}
