package app

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"repoforge/internal/core"
	"repoforge/internal/types"
)

// PollRepos runs one poll cycle: every dirty repo that is not already
// queued or building is dispatched to its build queue.
func (s Service) PollRepos(ctx context.Context) (PollResult, error) {
	log.Ctx(ctx).Info().Msg("polling repos")
	result := PollResult{}
	repos, err := s.Store.ListDirtyRepos(ctx)
	if err != nil {
		return result, err
	}

	var errs []error
	for _, repo := range repos {
		logger := log.Ctx(ctx).With().Str("repo", repo.Key.String()).Int64("repo_id", repo.ID).Logger()
		repoCtx := logger.WithContext(ctx)

		var binaries []types.Binary
		if repo.Type == types.RepoTypeUnknown {
			binaries, err = s.Store.BinariesForRepo(repoCtx, repo.ID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
		}

		decision := core.DecideDispatch(repo, binaries)
		switch decision.Action {
		case core.DispatchSkip:
			result.Skipped++
			logger.Debug().Str("reason", decision.Reason).Msg("repo not dispatched")
			if repo.Type == types.RepoTypeUnknown {
				logger.Warn().Msg("got a repository with an unknown type")
			}
		case core.DispatchInferType:
			if err := s.Store.SetRepoType(repoCtx, repo.ID, decision.Type); err != nil {
				errs = append(errs, err)
				continue
			}
			result.Inferred = append(result.Inferred, repo.ID)
			logger.Warn().Str("type", string(decision.Type)).Msg("inferred repo type")
		case core.DispatchBuildInline:
			logger.Info().Msg("repo needs to be updated/created")
			if err := s.builder().Build(repoCtx, repo.ID); err != nil {
				logger.Error().Err(err).Msg("inline build failed")
				errs = append(errs, err)
				continue
			}
			result.Built = append(result.Built, repo.ID)
		case core.DispatchEnqueue:
			queued, err := s.dispatch(repoCtx, repo, decision.Queue)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !queued {
				result.Skipped++
				continue
			}
			result.Queued = append(result.Queued, repo.ID)
		}
	}
	log.Ctx(ctx).Info().
		Int("queued", len(result.Queued)).
		Int("built", len(result.Built)).
		Int("inferred", len(result.Inferred)).
		Int("skipped", result.Skipped).
		Msg("completed repo polling")
	return result, errors.Join(errs...)
}

// dispatch wins the queued flag for repo and hands it to the build queue.
// Losing the flag means another dispatcher already owns the repo.
func (s Service) dispatch(ctx context.Context, repo types.Repo, queue string) (bool, error) {
	now := s.now()
	won, err := s.Store.MarkQueued(ctx, repo.ID, now)
	if err != nil {
		return false, err
	}
	if !won {
		log.Ctx(ctx).Debug().Msg("repo was claimed by another dispatcher")
		return false, nil
	}
	repo.MarkQueued(now)
	log.Ctx(ctx).Info().Str("queue", queue).Msg("repo needs to be updated/created")
	s.Notifier.Notify(ctx, types.RepoStatusQueued, repo)

	job := types.BuildJob{
		ID:     uuid.NewString(),
		RepoID: repo.ID,
		Delay:  s.Config.QuietTime,
		Queue:  queue,
	}
	if err := s.Queue.Enqueue(ctx, job); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to enqueue build, reverting queued flag")
		if revertErr := s.Store.UnmarkQueued(context.WithoutCancel(ctx), repo.ID); revertErr != nil {
			return false, errors.Join(err, revertErr)
		}
		return false, err
	}
	return true, nil
}

// RegisterWorkers binds the build queues to the repository builder.
func (s Service) RegisterWorkers() {
	handler := func(ctx context.Context, job types.BuildJob) error {
		return s.builder().Build(ctx, job.RepoID)
	}
	s.Queue.OnJob(types.QueueBuildRPM, handler)
	s.Queue.OnJob(types.QueueBuildDeb, handler)
}

// RecoverInterrupted puts repos that were queued or building when the
// previous process stopped back into DIRTY so the poller picks them up.
func (s Service) RecoverInterrupted(ctx context.Context) (int, error) {
	repos, err := s.Store.ListRepos(ctx, types.RepoFilter{})
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, repo := range repos {
		if !repo.IsQueued && !repo.IsUpdating {
			continue
		}
		repo.Reset(s.now())
		if err := s.Store.SaveRepo(ctx, repo); err != nil {
			return recovered, err
		}
		recovered++
		log.Ctx(ctx).Warn().Str("repo", repo.Key.String()).Msg("recovered interrupted repo")
	}
	return recovered, nil
}
