package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repoforge/internal/ports"
	"repoforge/internal/types"
)

type Builder struct {
	Store         ports.StorePort
	Aggregator    Aggregator
	Runner        ports.CommandRunnerPort
	Distributions ports.DistributionsPort
	Notifier      ports.NotifierPort
	Config        types.Config
	Clock         func() time.Time
}

func NewBuilder(
	store ports.StorePort,
	runner ports.CommandRunnerPort,
	distributions ports.DistributionsPort,
	notifier ports.NotifierPort,
	cfg types.Config,
	clock func() time.Time,
) Builder {
	return Builder{
		Store:         store,
		Aggregator:    NewAggregator(store, cfg),
		Runner:        runner,
		Distributions: distributions,
		Notifier:      notifier,
		Config:        cfg,
		Clock:         clock,
	}
}

// Build rebuilds the repository with the given id. The repo always leaves
// BUILDING before Build returns, whatever the outcome.
func (b Builder) Build(ctx context.Context, repoID int64) (err error) {
	repo, err := b.Store.GetRepo(ctx, repoID)
	if err != nil {
		return err
	}
	logger := log.Ctx(ctx).With().Str("repo", repo.Key.String()).Int64("repo_id", repo.ID).Logger()
	ctx = logger.WithContext(ctx)

	if b.Config.RepositoryIsDisabled(repo.Key.Project) {
		logger.Info().Msg("repository is disabled, will not build")
		return b.Store.ClearDirty(ctx, repo.ID)
	}

	paths := ResolveRepoPaths(b.Config.ReposRoot, repo.Key)
	now := b.now()
	won, err := b.Store.BeginBuild(ctx, repo.ID, paths.Absolute, now)
	if err != nil {
		return err
	}
	if !won {
		logger.Warn().Msg("repository is already being built, skipping")
		return nil
	}
	repo.BeginBuild(paths.Absolute, now)
	b.Notifier.Notify(ctx, types.RepoStatusBuilding, repo)

	defer func() {
		finished := b.now()
		if finishErr := b.Store.FinishBuild(context.WithoutCancel(ctx), repo.ID, finished); finishErr != nil {
			logger.Error().Err(finishErr).Msg("failed to clear updating flag")
			err = errors.Join(err, finishErr)
		}
		repo.FinishBuild(finished)
		if err != nil {
			b.Notifier.Notify(ctx, types.RepoStatusFailed, repo)
			return
		}
		b.Notifier.Notify(ctx, types.RepoStatusReady, repo)
	}()

	logger.Info().Str("path", paths.Absolute).Str("type", string(repo.Type)).Msg("building repository")
	return b.buildContent(ctx, repo)
}

func (b Builder) buildContent(ctx context.Context, repo types.Repo) error {
	binaries, err := b.Aggregator.Aggregate(ctx, repo)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(repo.Path, 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create repository directory").
			WithCause(err)
	}
	repoType := repo.Type
	if repoType == types.RepoTypeUnknown && len(binaries) > 0 {
		repoType = types.InferRepoType(binaries[0].Extension())
	}
	switch repoType {
	case types.RepoTypeRPM:
		return b.buildRPM(ctx, repo, binaries)
	case types.RepoTypeDeb:
		return b.buildDeb(ctx, repo, binaries)
	case types.RepoTypeRaw:
		b.linkAll(ctx, repo.Path, binaries)
		return nil
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("repository type is unknown")
	}
}

func (b Builder) buildRPM(ctx context.Context, repo types.Repo, binaries []types.Binary) error {
	dirs := map[string][]types.Binary{
		archDirSource: nil,
		archDirNoarch: nil,
	}
	for _, binary := range binaries {
		dir := InferArchDirectory(binaryFilename(binary))
		dirs[dir] = append(dirs[dir], binary)
	}
	for _, dir := range sortedKeys(dirs) {
		if err := os.MkdirAll(filepath.Join(repo.Path, dir), 0o755); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to create %s directory", dir)).
				WithCause(err)
		}
	}
	for _, dir := range sortedKeys(dirs) {
		b.linkAll(ctx, filepath.Join(repo.Path, dir), dirs[dir])
	}
	for _, dir := range sortedKeys(dirs) {
		if len(dirs[dir]) == 0 {
			continue
		}
		command := CreaterepoCommand(b.Config.Tools.Createrepo, repo.Key.Distro, filepath.Join(repo.Path, dir))
		log.Ctx(ctx).Info().Strs("command", command.Argv()).Msg("running metadata generator")
		if err := b.Runner.Run(ctx, command); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("createrepo failed").
				WithCause(err)
		}
	}
	return nil
}

func (b Builder) buildDeb(ctx context.Context, repo types.Repo, binaries []types.Binary) error {
	project := repo.Key.Project
	confDir, err := b.Distributions.WriteDistributions(ctx, project, b.Config.DistributionFields(project))
	if err != nil {
		return err
	}
	combined := b.Config.CombinedVersions(project)

	var debs []types.Binary
	for _, binary := range binaries {
		if _, ok := IncludeModeFor(binary.Extension()); ok {
			debs = append(debs, binary)
		}
	}
	sortDebBinaries(debs)

	var failed int
	for _, binary := range debs {
		mode, _ := IncludeModeFor(binary.Extension())
		targets := TargetDistroVersions(binary, combined, repo.Key.DistroVersion)
		if len(targets) == 0 {
			log.Ctx(ctx).Warn().Str("binary", binary.Name).Msg("no distro version to include generic binary in, skipping")
			continue
		}
		for _, target := range targets {
			command := RepreproCommand(b.Config.Tools.Reprepro, RepreproInvocation{
				ConfDir:  confDir,
				RepoRoot: repo.Path,
				Binary:   binary,
				Mode:     mode,
				Target:   target,
			})
			log.Ctx(ctx).Info().Strs("command", command.Argv()).Msg("running reprepro")
			if err := b.Runner.Run(ctx, command); err != nil {
				failed++
				log.Ctx(ctx).Error().Err(err).Str("binary", binary.Name).Str("distro_version", target).Msg("failed to add binary")
			}
		}
	}
	log.Ctx(ctx).Info().Int("binaries", len(debs)).Int("failed", failed).Msg("finished processing repository")
	return nil
}

// linkAll symlinks each binary into dir. Existing links are kept and
// failures are logged per binary.
func (b Builder) linkAll(ctx context.Context, dir string, binaries []types.Binary) {
	sorted := append([]types.Binary(nil), binaries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, binary := range sorted {
		link := filepath.Join(dir, binaryFilename(binary))
		if _, err := os.Lstat(link); err == nil {
			continue
		}
		if err := os.Symlink(binary.Path, link); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			log.Ctx(ctx).Warn().Err(err).Str("binary", binary.Name).Str("link", link).Msg("failed to link binary")
		}
	}
}

func (b Builder) now() time.Time {
	return timeNow(b.Clock)
}

func binaryFilename(binary types.Binary) string {
	if binary.Name != "" {
		return binary.Name
	}
	return filepath.Base(binary.Path)
}

func timeNow(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock().UTC()
}
