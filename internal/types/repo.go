package types

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
)

type Project struct {
	ID   int64
	Name string
}

// RepoKey is the composite identity of a repository.
type RepoKey struct {
	Project       string
	Ref           string
	SHA1          string
	Distro        string
	DistroVersion string
	Flavor        string
}

// Normalize fills SHA1 and Flavor defaults and trims whitespace.
func (k RepoKey) Normalize() RepoKey {
	k.Project = strings.TrimSpace(k.Project)
	k.Ref = strings.TrimSpace(k.Ref)
	k.SHA1 = strings.TrimSpace(k.SHA1)
	k.Distro = strings.TrimSpace(k.Distro)
	k.DistroVersion = strings.TrimSpace(k.DistroVersion)
	k.Flavor = strings.TrimSpace(k.Flavor)
	if k.SHA1 == "" {
		k.SHA1 = DefaultSHA1
	}
	if k.Flavor == "" {
		k.Flavor = DefaultFlavor
	}
	return k
}

func (k RepoKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s", k.Project, k.Ref, k.SHA1, k.Distro, k.DistroVersion, k.Flavor)
}

type Repo struct {
	ID          int64
	ProjectID   int64
	Key         RepoKey
	Path        string
	Type        RepoType
	Modified    time.Time
	Size        int64
	Signed      bool
	Extra       json.RawMessage
	NeedsUpdate bool
	IsQueued    bool
	IsUpdating  bool
}

func (r Repo) String() string {
	return fmt.Sprintf("<Repo %d %s>", r.ID, r.Key)
}

// URI is the path of the repository relative to the API and repos roots.
func (r Repo) URI() string {
	return path.Join(r.Key.Project, r.Key.Ref, r.Key.SHA1, r.Key.Distro, r.Key.DistroVersion, "flavors", r.Key.Flavor)
}

func (r *Repo) Touch(now time.Time) {
	r.Modified = now.UTC()
}

func (r *Repo) MarkDirty(now time.Time) {
	r.NeedsUpdate = true
	r.Touch(now)
}

func (r *Repo) MarkQueued(now time.Time) {
	r.IsQueued = true
	r.Touch(now)
}

// BeginBuild records the build target and moves the repo into BUILDING.
func (r *Repo) BeginBuild(repoPath string, now time.Time) {
	r.Path = repoPath
	r.IsUpdating = true
	r.IsQueued = false
	r.NeedsUpdate = false
	r.Touch(now)
}

func (r *Repo) FinishBuild(now time.Time) {
	r.IsUpdating = false
	r.Touch(now)
}

// Reset forces the repo back to DIRTY regardless of any in-flight state.
func (r *Repo) Reset(now time.Time) {
	r.NeedsUpdate = true
	r.IsQueued = false
	r.IsUpdating = false
	r.Touch(now)
}

// RepoState names the poller state machine position of a repo.
func (r Repo) State() string {
	switch {
	case r.IsUpdating:
		return "BUILDING"
	case r.IsQueued:
		return "QUEUED"
	case r.NeedsUpdate:
		return "DIRTY"
	default:
		return "IDLE"
	}
}

// RepoFilter selects repos for retention. Nil Ref or Flavor match any
// value; a zero ModifiedBefore disables the age filter.
type RepoFilter struct {
	Project        string
	Ref            *string
	Flavor         *string
	ModifiedBefore time.Time
}
