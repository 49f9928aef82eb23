package app

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repoforge/internal/core"
	"repoforge/internal/types"
)

// PlanPurge reports what a sweep at now would delete without touching
// anything.
func (s Service) PlanPurge(ctx context.Context, now time.Time) (types.PurgePlan, error) {
	if now.IsZero() {
		now = s.now()
	}
	repos, err := s.Store.ListRepos(ctx, types.RepoFilter{})
	if err != nil {
		return types.PurgePlan{}, err
	}
	return core.PlanPurge(repos, s.Config.Purge.Rotation, now), nil
}

// PurgeRepos deletes every repo the retention plan selects. Each repo is
// removed on its own; failures are collected and returned after the sweep.
func (s Service) PurgeRepos(ctx context.Context, now time.Time) (PurgeResult, error) {
	if !s.Config.Purge.Enabled {
		log.Ctx(ctx).Info().Msg("purge is disabled, will skip purge")
		return PurgeResult{}, nil
	}
	plan, err := s.PlanPurge(ctx, now)
	if err != nil {
		return PurgeResult{}, err
	}
	log.Ctx(ctx).Info().Int("candidates", len(plan.Delete)).Int("selections", len(plan.Selections)).Msg("purging repos")

	result := PurgeResult{Plan: plan}
	var errs []error
	for _, repo := range plan.Delete {
		repoCtx := log.Ctx(ctx).With().Str("repo", repo.Key.String()).Int64("repo_id", repo.ID).Logger().WithContext(ctx)
		deleted, err := s.purgeRepo(repoCtx, repo)
		if err != nil {
			log.Ctx(repoCtx).Error().Err(err).Msg("failed to purge repo")
			errs = append(errs, err)
			continue
		}
		if !deleted {
			result.Skipped = append(result.Skipped, repo)
			continue
		}
		result.Deleted = append(result.Deleted, repo)
	}
	log.Ctx(ctx).Info().Int("deleted", len(result.Deleted)).Int("skipped", len(result.Skipped)).Msg("completed repo purge")
	return result, errors.Join(errs...)
}

func (s Service) purgeRepo(ctx context.Context, repo types.Repo) (bool, error) {
	claimed, err := s.Store.ClaimForPurge(ctx, repo.ID)
	if err != nil {
		return false, err
	}
	if !claimed {
		log.Ctx(ctx).Info().Msg("repo is queued or building, skipping purge")
		return false, nil
	}
	release := func(cause error) (bool, error) {
		if releaseErr := s.Store.ReleasePurge(context.WithoutCancel(ctx), repo.ID); releaseErr != nil {
			return false, errors.Join(cause, releaseErr)
		}
		return false, cause
	}

	binaries, err := s.Store.BinariesForRepo(ctx, repo.ID)
	if err != nil {
		return release(err)
	}
	for _, binary := range binaries {
		if err := s.Storage.Remove(ctx, binary.Path); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("binary", binary.Name).Msg("failed to remove binary file")
		}
		if err := s.Store.DeleteBinary(ctx, binary.ID); err != nil {
			return release(err)
		}
	}
	if repo.Path != "" {
		if err := os.RemoveAll(repo.Path); err != nil {
			return release(errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to remove repository directory").
				WithCause(err))
		}
	}
	s.Notifier.Notify(ctx, types.RepoStatusDeleted, repo)
	if err := s.Store.DeleteRepo(ctx, repo.ID); err != nil {
		return release(err)
	}
	if removed, err := s.Store.DeleteProjectIfEmpty(ctx, repo.ProjectID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to remove empty project")
	} else if removed {
		log.Ctx(ctx).Info().Str("project", repo.Key.Project).Msg("removed empty project")
	}
	log.Ctx(ctx).Info().Msg("repo purged")
	return true, nil
}
