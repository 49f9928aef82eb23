package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"repoforge/internal/ports"
	"repoforge/internal/types"
)

// MemoryStore keeps projects, repos and binaries in maps behind one mutex.
// It backs tests and single-process runs that do not need persistence.
type MemoryStore struct {
	mu          sync.Mutex
	nextProject int64
	nextRepo    int64
	nextBinary  int64
	projects    map[int64]types.Project
	repos       map[int64]types.Repo
	binaries    map[int64]types.Binary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: map[int64]types.Project{},
		repos:    map[int64]types.Repo{},
		binaries: map[int64]types.Binary{},
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) GetProject(ctx context.Context, name string) (types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if project, ok := s.projectByNameLocked(name); ok {
		return project, nil
	}
	return types.Project{}, projectNotFound(name)
}

func (s *MemoryStore) GetOrCreateProject(ctx context.Context, name string) (types.Project, error) {
	if name == "" {
		return types.Project{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("project name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateProjectLocked(name), nil
}

func (s *MemoryStore) DeleteProjectIfEmpty(ctx context.Context, projectID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return false, nil
	}
	for _, binary := range s.binaries {
		if binary.ProjectID == projectID {
			return false, nil
		}
	}
	for _, repo := range s.repos {
		if repo.ProjectID == projectID {
			return false, nil
		}
	}
	delete(s.projects, projectID)
	return true, nil
}

func (s *MemoryStore) GetRepo(ctx context.Context, id int64) (types.Repo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[id]
	if !ok {
		return types.Repo{}, repoNotFound(fmt.Sprintf("id %d", id))
	}
	return repo, nil
}

func (s *MemoryStore) FindRepo(ctx context.Context, key types.RepoKey) (types.Repo, error) {
	key = key.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if repo, ok := s.repoByKeyLocked(key); ok {
		return repo, nil
	}
	return types.Repo{}, repoNotFound(key.String())
}

func (s *MemoryStore) FindOrCreateRepo(ctx context.Context, key types.RepoKey, now time.Time) (types.Repo, error) {
	key = key.Normalize()
	if err := validateRepoKey(key); err != nil {
		return types.Repo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if repo, ok := s.repoByKeyLocked(key); ok {
		return repo, nil
	}
	project := s.getOrCreateProjectLocked(key.Project)
	s.nextRepo++
	repo := types.Repo{ID: s.nextRepo, ProjectID: project.ID, Key: key}
	repo.Touch(now)
	s.repos[repo.ID] = repo
	return repo, nil
}

func (s *MemoryStore) SaveRepo(ctx context.Context, repo types.Repo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.repos[repo.ID]; !ok {
		return repoNotFound(fmt.Sprintf("id %d", repo.ID))
	}
	s.repos[repo.ID] = repo
	return nil
}

func (s *MemoryStore) DeleteRepo(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.repos[id]; !ok {
		return repoNotFound(fmt.Sprintf("id %d", id))
	}
	for binaryID, binary := range s.binaries {
		if binary.RepoID == id {
			delete(s.binaries, binaryID)
		}
	}
	delete(s.repos, id)
	return nil
}

func (s *MemoryStore) ListDirtyRepos(ctx context.Context) ([]types.Repo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []types.Repo
	for _, repo := range s.repos {
		if repo.NeedsUpdate && !repo.IsQueued {
			result = append(result, repo)
		}
	}
	sortReposByID(result)
	return result, nil
}

func (s *MemoryStore) ListRepos(ctx context.Context, filter types.RepoFilter) ([]types.Repo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []types.Repo
	for _, repo := range s.repos {
		if filter.Project != "" && repo.Key.Project != filter.Project {
			continue
		}
		if filter.Ref != nil && repo.Key.Ref != *filter.Ref {
			continue
		}
		if filter.Flavor != nil && repo.Key.Flavor != *filter.Flavor {
			continue
		}
		if !filter.ModifiedBefore.IsZero() && !repo.Modified.Before(filter.ModifiedBefore) {
			continue
		}
		result = append(result, repo)
	}
	sortReposByID(result)
	return result, nil
}

func (s *MemoryStore) MarkDirty(ctx context.Context, id int64, now time.Time, inferred types.RepoType) error {
	_, err := s.transition(id, func(repo *types.Repo) bool {
		repo.MarkDirty(now)
		if repo.Type == types.RepoTypeUnknown {
			repo.Type = inferred
		}
		return true
	})
	return err
}

func (s *MemoryStore) ClearDirty(ctx context.Context, id int64) error {
	_, err := s.transition(id, func(repo *types.Repo) bool {
		repo.NeedsUpdate = false
		repo.IsQueued = false
		return true
	})
	return err
}

func (s *MemoryStore) SetRepoType(ctx context.Context, id int64, repoType types.RepoType) error {
	_, err := s.transition(id, func(repo *types.Repo) bool {
		repo.Type = repoType
		return true
	})
	return err
}

func (s *MemoryStore) MarkQueued(ctx context.Context, id int64, now time.Time) (bool, error) {
	return s.transition(id, func(repo *types.Repo) bool {
		if !repo.NeedsUpdate || repo.IsQueued || repo.IsUpdating {
			return false
		}
		repo.MarkQueued(now)
		return true
	})
}

func (s *MemoryStore) UnmarkQueued(ctx context.Context, id int64) error {
	_, err := s.transition(id, func(repo *types.Repo) bool {
		repo.IsQueued = false
		return true
	})
	return err
}

func (s *MemoryStore) BeginBuild(ctx context.Context, id int64, path string, now time.Time) (bool, error) {
	return s.transition(id, func(repo *types.Repo) bool {
		if repo.IsUpdating {
			return false
		}
		repo.BeginBuild(path, now)
		return true
	})
}

func (s *MemoryStore) FinishBuild(ctx context.Context, id int64, now time.Time) error {
	_, err := s.transition(id, func(repo *types.Repo) bool {
		repo.FinishBuild(now)
		return true
	})
	return err
}

func (s *MemoryStore) ClaimForPurge(ctx context.Context, id int64) (bool, error) {
	return s.transition(id, func(repo *types.Repo) bool {
		if repo.IsQueued || repo.IsUpdating {
			return false
		}
		repo.IsUpdating = true
		return true
	})
}

func (s *MemoryStore) ReleasePurge(ctx context.Context, id int64) error {
	_, err := s.transition(id, func(repo *types.Repo) bool {
		repo.IsUpdating = false
		return true
	})
	return err
}

func (s *MemoryStore) transition(id int64, apply func(repo *types.Repo) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[id]
	if !ok {
		return false, repoNotFound(fmt.Sprintf("id %d", id))
	}
	if !apply(&repo) {
		return false, nil
	}
	s.repos[id] = repo
	return true, nil
}

func (s *MemoryStore) AttachBinary(ctx context.Context, repo types.Repo, binary types.Binary) (types.Binary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.repos[repo.ID]
	if !ok {
		return types.Binary{}, repoNotFound(fmt.Sprintf("id %d", repo.ID))
	}
	binary = bindBinary(stored, binary)
	for id, existing := range s.binaries {
		if existing.RepoID == stored.ID && existing.Name == binary.Name {
			binary.ID = id
			binary.Created = existing.Created
			s.binaries[id] = binary
			return binary, nil
		}
	}
	s.nextBinary++
	binary.ID = s.nextBinary
	s.binaries[binary.ID] = binary
	return binary, nil
}

func (s *MemoryStore) GetBinary(ctx context.Context, id int64) (types.Binary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	binary, ok := s.binaries[id]
	if !ok {
		return types.Binary{}, binaryNotFound(id)
	}
	return binary, nil
}

func (s *MemoryStore) DeleteBinary(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.binaries[id]; !ok {
		return binaryNotFound(id)
	}
	delete(s.binaries, id)
	return nil
}

func (s *MemoryStore) BinariesForRepo(ctx context.Context, repoID int64) ([]types.Binary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []types.Binary
	for _, binary := range s.binaries {
		if binary.RepoID == repoID {
			result = append(result, binary)
		}
	}
	sortBinariesByID(result)
	return result, nil
}

func (s *MemoryStore) FindBinaries(ctx context.Context, filter types.BinaryFilter) ([]types.Binary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := map[string]struct{}{}
	for _, version := range filter.DistroVersions {
		versions[version] = struct{}{}
	}
	var result []types.Binary
	for _, binary := range s.binaries {
		if filter.Project != "" && binary.Project != filter.Project {
			continue
		}
		if filter.Ref != nil && binary.Ref != *filter.Ref {
			continue
		}
		if filter.Distro != "" && binary.Distro != filter.Distro {
			continue
		}
		if len(versions) > 0 {
			if _, ok := versions[binary.DistroVersion]; !ok {
				continue
			}
		}
		result = append(result, binary)
	}
	sortBinariesByID(result)
	return result, nil
}

func (s *MemoryStore) projectByNameLocked(name string) (types.Project, bool) {
	for _, project := range s.projects {
		if project.Name == name {
			return project, true
		}
	}
	return types.Project{}, false
}

func (s *MemoryStore) getOrCreateProjectLocked(name string) types.Project {
	if project, ok := s.projectByNameLocked(name); ok {
		return project
	}
	s.nextProject++
	project := types.Project{ID: s.nextProject, Name: name}
	s.projects[project.ID] = project
	return project
}

func (s *MemoryStore) repoByKeyLocked(key types.RepoKey) (types.Repo, bool) {
	for _, repo := range s.repos {
		if repo.Key == key {
			return repo, true
		}
	}
	return types.Repo{}, false
}

// bindBinary copies the owning repo's identity onto the binary.
func bindBinary(repo types.Repo, binary types.Binary) types.Binary {
	binary.RepoID = repo.ID
	binary.ProjectID = repo.ProjectID
	binary.Project = repo.Key.Project
	binary.Ref = repo.Key.Ref
	binary.SHA1 = repo.Key.SHA1
	binary.Distro = repo.Key.Distro
	binary.DistroVersion = repo.Key.DistroVersion
	binary.Flavor = repo.Key.Flavor
	return binary
}

func validateRepoKey(key types.RepoKey) error {
	missing := ""
	switch {
	case key.Project == "":
		missing = "project"
	case key.Ref == "":
		missing = "ref"
	case key.Distro == "":
		missing = "distro"
	case key.DistroVersion == "":
		missing = "distro_version"
	}
	if missing == "" {
		return nil
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(missing + " is required for a repository")
}

func sortReposByID(repos []types.Repo) {
	sort.Slice(repos, func(i, j int) bool { return repos[i].ID < repos[j].ID })
}

func sortBinariesByID(binaries []types.Binary) {
	sort.Slice(binaries, func(i, j int) bool { return binaries[i].ID < binaries[j].ID })
}

func projectNotFound(name string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("project %q not found", name))
}

func repoNotFound(what string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg("repo not found: " + what)
}

func binaryNotFound(id int64) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("binary %d not found", id))
}

var _ ports.StorePort = (*MemoryStore)(nil)
