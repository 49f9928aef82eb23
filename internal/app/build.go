package app

import (
	"context"
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repoforge/internal/core"
	"repoforge/internal/types"
)

// BuildRepo builds the repo synchronously, outside the queue.
func (s Service) BuildRepo(ctx context.Context, key types.RepoKey) (BuildResult, error) {
	repo, err := s.Store.FindRepo(ctx, key)
	if err != nil {
		return BuildResult{}, err
	}
	if err := s.builder().Build(ctx, repo.ID); err != nil {
		return BuildResult{}, err
	}
	repo, err = s.Store.GetRepo(ctx, repo.ID)
	if err != nil {
		return BuildResult{}, err
	}
	return BuildResult{Repo: repo}, nil
}

// Update requests a rebuild. Raw repos are built on the spot; everything
// else is marked dirty for the next poll cycle.
func (s Service) Update(ctx context.Context, key types.RepoKey) (types.Repo, error) {
	repo, err := s.Store.FindRepo(ctx, key)
	if err != nil {
		return types.Repo{}, err
	}
	if repo.Type == types.RepoTypeRaw {
		result, err := s.BuildRepo(ctx, repo.Key)
		return result.Repo, err
	}
	if err := s.Store.MarkDirty(ctx, repo.ID, s.now(), repo.Type); err != nil {
		return types.Repo{}, err
	}
	repo, err = s.Store.GetRepo(ctx, repo.ID)
	if err != nil {
		return types.Repo{}, err
	}
	log.Ctx(ctx).Info().Str("repo", repo.Key.String()).Msg("repo update requested")
	s.Notifier.Notify(ctx, types.RepoStatusRequested, repo)
	return repo, nil
}

// Recreate wipes the on-disk repository and forces it back to DIRTY no
// matter what state it was in.
func (s Service) Recreate(ctx context.Context, key types.RepoKey) (types.Repo, error) {
	repo, err := s.Store.FindRepo(ctx, key)
	if err != nil {
		return types.Repo{}, err
	}
	path := repo.Path
	if path == "" && s.Config.ReposRoot != "" {
		path = core.ResolveRepoPaths(s.Config.ReposRoot, repo.Key).Absolute
	}
	if path != "" {
		if err := os.RemoveAll(path); err != nil {
			return types.Repo{}, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to remove repository directory").
				WithCause(err)
		}
	}
	repo.Reset(s.now())
	if err := s.Store.SaveRepo(ctx, repo); err != nil {
		return types.Repo{}, err
	}
	log.Ctx(ctx).Info().Str("repo", repo.Key.String()).Str("path", path).Msg("repo recreate requested")
	s.Notifier.Notify(ctx, types.RepoStatusRequested, repo)
	return repo, nil
}
