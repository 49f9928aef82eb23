package types

import (
	"path/filepath"
	"strings"
	"time"
)

type Binary struct {
	ID            int64
	Name          string
	Path          string
	Project       string
	ProjectID     int64
	RepoID        int64
	Ref           string
	SHA1          string
	Distro        string
	DistroVersion string
	Arch          string
	Flavor        string
	Size          int64
	Checksum      string
	Created       time.Time
	Modified      time.Time
}

func (b Binary) IsGeneric() bool {
	return IsGenericDistroVersion(b.DistroVersion)
}

// Extension is the lowercase file suffix without the dot.
func (b Binary) Extension() string {
	name := b.Name
	if name == "" {
		name = filepath.Base(b.Path)
	}
	ext := filepath.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func (b Binary) RepoKey() RepoKey {
	return RepoKey{
		Project:       b.Project,
		Ref:           b.Ref,
		SHA1:          b.SHA1,
		Distro:        b.Distro,
		DistroVersion: b.DistroVersion,
		Flavor:        b.Flavor,
	}.Normalize()
}

func (b *Binary) Touch(now time.Time) {
	b.Modified = now.UTC()
	if b.Created.IsZero() {
		b.Created = b.Modified
	}
}

// BinaryFilter selects binaries for aggregation. Empty fields are not
// filtered; a nil Ref matches every ref.
type BinaryFilter struct {
	Project        string
	Ref            *string
	Distro         string
	DistroVersions []string
}

// InferRepoType maps a binary extension to the repository type that can
// serve it.
func InferRepoType(extension string) RepoType {
	switch strings.ToLower(extension) {
	case "rpm":
		return RepoTypeRPM
	case "deb", "dsc", "changes":
		return RepoTypeDeb
	}
	return RepoTypeUnknown
}
