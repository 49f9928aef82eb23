package types

type RepoType string

const (
	RepoTypeUnknown RepoType = ""
	RepoTypeRPM     RepoType = "rpm"
	RepoTypeDeb     RepoType = "deb"
	RepoTypeRaw     RepoType = "raw"
)

func (t RepoType) Valid() bool {
	switch t {
	case RepoTypeUnknown, RepoTypeRPM, RepoTypeDeb, RepoTypeRaw:
		return true
	}
	return false
}

// RepoStatus is the lifecycle state reported to the callback endpoint.
type RepoStatus string

const (
	RepoStatusRequested RepoStatus = "requested"
	RepoStatusQueued    RepoStatus = "queued"
	RepoStatusBuilding  RepoStatus = "building"
	RepoStatusReady     RepoStatus = "ready"
	RepoStatusFailed    RepoStatus = "failed"
	RepoStatusDeleted   RepoStatus = "deleted"
)

type IncludeMode string

const (
	IncludeModeDeb     IncludeMode = "includedeb"
	IncludeModeDsc     IncludeMode = "includedsc"
	IncludeModeChanges IncludeMode = "include"
)

const (
	QueueBuildRPM = "build_rpm"
	QueueBuildDeb = "build_deb"
)

const (
	DefaultSHA1   = "HEAD"
	DefaultFlavor = "default"
	RefAll        = "all"
)

// GenericDistroVersions are the distro_version values of binaries that
// are not tied to one release and may land in several repositories.
var GenericDistroVersions = []string{"generic", "universal", "any"}

func IsGenericDistroVersion(value string) bool {
	for _, generic := range GenericDistroVersions {
		if value == generic {
			return true
		}
	}
	return false
}
