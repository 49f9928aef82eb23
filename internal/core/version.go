package core

import (
	"path/filepath"
	"sort"
	"strings"

	debversion "github.com/knqyf263/go-deb-version"

	"repoforge/internal/types"
)

// debVersionCache memoizes parsed Debian versions while ordering a batch
// of binaries.
type debVersionCache struct {
	parsed map[string]debversion.Version
	failed map[string]struct{}
}

func newDebVersionCache() *debVersionCache {
	return &debVersionCache{
		parsed: map[string]debversion.Version{},
		failed: map[string]struct{}{},
	}
}

func (c *debVersionCache) version(value string) (debversion.Version, bool) {
	if parsed, ok := c.parsed[value]; ok {
		return parsed, true
	}
	if _, ok := c.failed[value]; ok {
		return debversion.Version{}, false
	}
	parsed, err := debversion.NewVersion(value)
	if err != nil {
		c.failed[value] = struct{}{}
		return debversion.Version{}, false
	}
	c.parsed[value] = parsed
	return parsed, true
}

// compare orders two version strings, falling back to a plain string
// comparison when either side is not a valid Debian version.
func (c *debVersionCache) compare(a string, b string) int {
	v1, ok1 := c.version(a)
	v2, ok2 := c.version(b)
	if ok1 && ok2 {
		return v1.Compare(v2)
	}
	return strings.Compare(a, b)
}

// splitDebFilename extracts package name and version from the Debian
// naming convention name_version[_arch].ext.
func splitDebFilename(filename string) (string, string) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return base, ""
	}
	return parts[0], parts[1]
}

// sortDebBinaries orders binaries by package name and ascending version so
// that the newest upload of a package is handed to reprepro last.
func sortDebBinaries(binaries []types.Binary) {
	cache := newDebVersionCache()
	sort.SliceStable(binaries, func(i, j int) bool {
		nameI, versionI := splitDebFilename(binaries[i].Name)
		nameJ, versionJ := splitDebFilename(binaries[j].Name)
		if nameI != nameJ {
			return nameI < nameJ
		}
		if cmp := cache.compare(versionI, versionJ); cmp != 0 {
			return cmp < 0
		}
		return binaries[i].ID < binaries[j].ID
	})
}
