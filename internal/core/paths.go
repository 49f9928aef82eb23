package core

import (
	"path/filepath"

	"repoforge/internal/types"
)

type RepoPaths struct {
	Root     string
	Relative string
	Absolute string
}

// ResolveRepoPaths lays repositories out as
// <root>/<project>/<ref>/<sha1>/<distro>/<distro_version>/flavors/<flavor>.
func ResolveRepoPaths(reposRoot string, key types.RepoKey) RepoPaths {
	key = key.Normalize()
	root := filepath.Join(reposRoot, key.Project)
	relative := filepath.Join(key.Ref, key.SHA1, key.Distro, key.DistroVersion, "flavors", key.Flavor)
	return RepoPaths{
		Root:     root,
		Relative: relative,
		Absolute: filepath.Join(root, relative),
	}
}
