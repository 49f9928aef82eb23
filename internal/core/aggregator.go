package core

import (
	"context"
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repoforge/internal/ports"
	"repoforge/internal/types"
)

// BinarySource is the subset of the store the aggregator reads.
type BinarySource interface {
	GetProject(ctx context.Context, name string) (types.Project, error)
	BinariesForRepo(ctx context.Context, repoID int64) ([]types.Binary, error)
	FindBinaries(ctx context.Context, filter types.BinaryFilter) ([]types.Binary, error)
}

var _ BinarySource = ports.StorePort(nil)

type Aggregator struct {
	Store  BinarySource
	Config types.Config
}

func NewAggregator(store BinarySource, cfg types.Config) Aggregator {
	return Aggregator{Store: store, Config: cfg}
}

// Aggregate returns every binary that belongs in repo, deduplicated and
// ordered by ID.
func (a Aggregator) Aggregate(ctx context.Context, repo types.Repo) ([]types.Binary, error) {
	collected := map[int64]types.Binary{}
	add := func(binaries []types.Binary) {
		for _, binary := range binaries {
			collected[binary.ID] = binary
		}
	}

	own, err := a.Store.BinariesForRepo(ctx, repo.ID)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to load repo binaries").
			WithCause(err)
	}
	add(own)

	project := repo.Key.Project
	combined := a.Config.CombinedVersions(project)

	generic, err := a.fetch(ctx, types.BinaryFilter{
		Project:        project,
		Ref:            stringPtr(repo.Key.Ref),
		Distro:         repo.Key.Distro,
		DistroVersions: types.GenericDistroVersions,
	})
	if err != nil {
		return nil, err
	}
	add(generic)

	for _, related := range sortedKeys(a.Config.ExtraRepos(project, repo.Key.Ref)) {
		refs := a.Config.ExtraRepos(project, repo.Key.Ref)[related]
		if !a.projectExists(ctx, related) {
			log.Ctx(ctx).Warn().
				Str("repo", repo.Key.String()).
				Str("project", related).
				Msg("related project is not known, skipping extra binaries")
			continue
		}
		for _, ref := range refs {
			refFilter := stringPtr(ref)
			if ref == types.RefAll {
				refFilter = nil
			}
			log.Ctx(ctx).Debug().Str("project", related).Str("ref", ref).Msg("fetching extra binaries")
			found, err := a.fetch(ctx, extraFilter(repo, related, refFilter, combined))
			if err != nil {
				return nil, err
			}
			add(found)

			relatedGeneric, err := a.fetch(ctx, types.BinaryFilter{
				Project:        related,
				Ref:            refFilter,
				Distro:         repo.Key.Distro,
				DistroVersions: types.GenericDistroVersions,
			})
			if err != nil {
				return nil, err
			}
			add(relatedGeneric)
		}
	}

	if repo.Type == types.RepoTypeDeb {
		for _, distroVersion := range combined {
			// distro stays unfiltered: combined versions span distros
			found, err := a.fetch(ctx, types.BinaryFilter{
				Project:        project,
				Ref:            stringPtr(repo.Key.Ref),
				DistroVersions: []string{distroVersion},
			})
			if err != nil {
				return nil, err
			}
			add(found)
		}
	}

	result := make([]types.Binary, 0, len(collected))
	for _, binary := range collected {
		result = append(result, binary)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	log.Ctx(ctx).Debug().Str("repo", repo.Key.String()).Int("binaries", len(result)).Msg("binaries aggregated")
	return result, nil
}

func extraFilter(repo types.Repo, project string, ref *string, combined []string) types.BinaryFilter {
	if repo.Type == types.RepoTypeDeb {
		versions := append([]string{repo.Key.DistroVersion}, combined...)
		return types.BinaryFilter{
			Project:        project,
			Ref:            ref,
			DistroVersions: versions,
		}
	}
	return types.BinaryFilter{
		Project:        project,
		Ref:            ref,
		Distro:         repo.Key.Distro,
		DistroVersions: []string{repo.Key.DistroVersion},
	}
}

func (a Aggregator) fetch(ctx context.Context, filter types.BinaryFilter) ([]types.Binary, error) {
	found, err := a.Store.FindBinaries(ctx, filter)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to query binaries").
			WithCause(err)
	}
	return found, nil
}

func (a Aggregator) projectExists(ctx context.Context, name string) bool {
	_, err := a.Store.GetProject(ctx, name)
	return err == nil
}

func stringPtr(value string) *string {
	return &value
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
