package app

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repoforge/internal/types"
)

// AddBinary stores an uploaded file, attaches it to the repo its metadata
// names and marks every repo that should pick it up as dirty.
func (s Service) AddBinary(ctx context.Context, req AddBinaryRequest) (types.Binary, error) {
	key := req.Key.Normalize()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = filepath.Base(req.Source)
	}
	if strings.TrimSpace(req.Source) == "" || name == "" || name == "." {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("binary source file is required")
	}
	now := s.now()

	repo, err := s.Store.FindOrCreateRepo(ctx, key, now)
	if err != nil {
		return types.Binary{}, err
	}
	if existing, ok := s.findBinary(ctx, repo.ID, name); ok && !req.Force && s.Storage.Exists(ctx, existing.Path) {
		return types.Binary{}, errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg("binary " + name + " already exists and force was not used")
	}

	binary := types.Binary{
		Name:          name,
		Project:       key.Project,
		Ref:           key.Ref,
		SHA1:          key.SHA1,
		Distro:        key.Distro,
		DistroVersion: key.DistroVersion,
		Flavor:        key.Flavor,
		Arch:          req.Arch,
	}
	binary, err = s.Storage.Put(ctx, binary, req.Source)
	if err != nil {
		return types.Binary{}, err
	}
	binary.Touch(now)
	binary, err = s.Store.AttachBinary(ctx, repo, binary)
	if err != nil {
		return types.Binary{}, err
	}
	log.Ctx(ctx).Info().Str("binary", binary.Name).Str("repo", repo.Key.String()).Str("checksum", binary.Checksum).Msg("binary added")

	if err := s.markOwnRepo(ctx, repo.ID, binary); err != nil {
		return binary, err
	}
	if err := s.markRelatedRepos(ctx, binary); err != nil {
		return binary, err
	}
	return binary, nil
}

func (s Service) findBinary(ctx context.Context, repoID int64, name string) (types.Binary, bool) {
	binaries, err := s.Store.BinariesForRepo(ctx, repoID)
	if err != nil {
		return types.Binary{}, false
	}
	for _, binary := range binaries {
		if binary.Name == name {
			return binary, true
		}
	}
	return types.Binary{}, false
}

// markOwnRepo dirties the owning repo unless a generic binary lands in a
// project that opted out of automatic repos.
func (s Service) markOwnRepo(ctx context.Context, repoID int64, binary types.Binary) error {
	if binary.IsGeneric() && !s.Config.AutomaticRepos(binary.Project) {
		log.Ctx(ctx).Info().Str("project", binary.Project).Msg("automatic repos disabled, not marking repo for generic binary")
		return nil
	}
	return s.markDirty(ctx, repoID, binary.RepoKey(), binary)
}

// markRelatedRepos dirties the repos of every project configured to pull
// binaries from the binary's project. A related project with no repo yet
// gets one keyed like the binary.
func (s Service) markRelatedRepos(ctx context.Context, binary types.Binary) error {
	related := s.Config.RelatedProjects(binary.Project)
	for _, project := range sortedProjectNames(related) {
		if !s.Config.AutomaticRepos(project) {
			continue
		}
		var repos []types.Repo
		for _, ref := range related[project] {
			filter := types.RepoFilter{Project: project}
			if ref != types.RefAll {
				filter.Ref = &ref
			}
			found, err := s.Store.ListRepos(ctx, filter)
			if err != nil {
				return err
			}
			repos = append(repos, found...)
		}
		if len(repos) == 0 {
			key := binary.RepoKey()
			key.Project = project
			repo, err := s.Store.FindOrCreateRepo(ctx, key, s.now())
			if err != nil {
				return err
			}
			repos = append(repos, repo)
		}
		for _, repo := range repos {
			if err := s.markDirty(ctx, repo.ID, repo.Key, binary); err != nil {
				return err
			}
		}
	}
	return nil
}

// markDirty sets needs_update and an unset type only; the queued and
// updating flags belong to the poller and the worker.
func (s Service) markDirty(ctx context.Context, repoID int64, key types.RepoKey, binary types.Binary) error {
	if err := s.Store.MarkDirty(ctx, repoID, s.now(), types.InferRepoType(binary.Extension())); err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Str("repo", key.String()).Msg("repo marked for update")
	return nil
}

// RemoveBinary deletes a binary and its file. The last binary of a repo
// takes the repo with it, and the last of a project takes the project.
func (s Service) RemoveBinary(ctx context.Context, id int64) (RemoveBinaryResult, error) {
	binary, err := s.Store.GetBinary(ctx, id)
	if err != nil {
		return RemoveBinaryResult{}, err
	}
	result := RemoveBinaryResult{Binary: binary}
	if err := s.Storage.Remove(ctx, binary.Path); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("binary", binary.Name).Msg("failed to remove binary file")
	}
	if err := s.Store.DeleteBinary(ctx, binary.ID); err != nil {
		return result, err
	}

	remaining, err := s.Store.BinariesForRepo(ctx, binary.RepoID)
	if err != nil {
		return result, err
	}
	if len(remaining) == 0 {
		if err := s.Store.DeleteRepo(ctx, binary.RepoID); err != nil {
			return result, err
		}
		result.RepoDeleted = true
	} else {
		if err := s.markDirty(ctx, binary.RepoID, binary.RepoKey(), binary); err != nil {
			return result, err
		}
	}

	removed, err := s.Store.DeleteProjectIfEmpty(ctx, binary.ProjectID)
	if err != nil {
		return result, err
	}
	result.ProjectDeleted = removed
	log.Ctx(ctx).Info().
		Str("binary", binary.Name).
		Bool("repo_deleted", result.RepoDeleted).
		Bool("project_deleted", result.ProjectDeleted).
		Msg("binary removed")
	return result, nil
}

func sortedProjectNames(values map[string][]string) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
