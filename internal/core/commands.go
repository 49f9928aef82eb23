package core

import (
	"strings"

	"repoforge/internal/types"
)

const (
	archDirSource = "SRPMS"
	archDirNoarch = "noarch"
)

// rpmArchSuffixes maps a filename suffix to its concrete arch directory.
var rpmArchSuffixes = []struct {
	suffix string
	dir    string
}{
	{suffix: "src.rpm", dir: archDirSource},
	{suffix: "x86_64.rpm", dir: "x86_64"},
	{suffix: "aarch64.rpm", dir: "aarch64"},
}

// flatMetadataDistros generate repositories without the sqlite index.
var flatMetadataDistros = map[string]struct{}{
	"opensuse": {},
	"sle":      {},
	"sles":     {},
}

// InferArchDirectory picks the RPM repository subdirectory for a binary
// from its filename, defaulting to noarch.
func InferArchDirectory(filename string) string {
	name := strings.ToLower(filename)
	for _, candidate := range rpmArchSuffixes {
		if strings.HasSuffix(name, candidate.suffix) {
			return candidate.dir
		}
	}
	return archDirNoarch
}

func UsesFlatMetadata(distro string) bool {
	_, ok := flatMetadataDistros[strings.ToLower(strings.TrimSpace(distro))]
	return ok
}

func CreaterepoCommand(binary string, distro string, dir string) types.Command {
	args := []string{}
	if UsesFlatMetadata(distro) {
		args = append(args, "--no-database")
	}
	args = append(args, dir)
	return types.Command{Name: binary, Args: args}
}

// IncludeModeFor returns the reprepro include subcommand for a file
// extension; false means the file is not directly installable.
func IncludeModeFor(extension string) (types.IncludeMode, bool) {
	switch strings.ToLower(extension) {
	case "deb":
		return types.IncludeModeDeb, true
	case "dsc":
		return types.IncludeModeDsc, true
	case "changes":
		return types.IncludeModeChanges, true
	}
	return "", false
}

// TargetDistroVersions decides which distributions a deb binary lands in.
// Generic binaries fan out to the combined versions, or the fallback.
func TargetDistroVersions(binary types.Binary, combined []string, fallback string) []string {
	if !binary.IsGeneric() {
		return []string{binary.DistroVersion}
	}
	if len(combined) > 0 {
		return append([]string(nil), combined...)
	}
	if strings.TrimSpace(fallback) != "" {
		return []string{fallback}
	}
	return nil
}

type RepreproInvocation struct {
	ConfDir  string
	RepoRoot string
	Binary   types.Binary
	Mode     types.IncludeMode
	Target   string
}

func RepreproCommand(binary string, invocation RepreproInvocation) types.Command {
	return types.Command{
		Name: binary,
		Args: []string{
			"--confdir", invocation.ConfDir,
			"-b", invocation.RepoRoot,
			"-C", "main",
			"--ignore=wrongdistribution",
			"--ignore=wrongversion",
			"--ignore=undefinedtarget",
			string(invocation.Mode),
			invocation.Target,
			invocation.Binary.Path,
		},
	}
}
