package types

import (
	"sort"
	"time"
)

// Config is built once at startup and handed to every component.
type Config struct {
	LogLevel          string `yaml:"log_level"`
	Hostname          string `yaml:"hostname"`
	BinaryRoot        string `yaml:"binary_root"`
	ReposRoot         string `yaml:"repos_root"`
	DistributionsRoot string `yaml:"distributions_root"`

	Database DatabaseConfig `yaml:"database"`

	PollingCycle time.Duration  `yaml:"polling_cycle"`
	QuietTime    time.Duration  `yaml:"quiet_time"`
	BuildWorkers map[string]int `yaml:"build_workers"`
	Tools        ToolsConfig    `yaml:"tools"`

	Repos                    map[string]ProjectRepoConfig `yaml:"repos,omitempty"`
	DisabledRepos            []string                     `yaml:"disabled_repos,omitempty"`
	DisableUnconfiguredRepos bool                         `yaml:"disable_unconfigured_repos"`
	Distributions            DistributionsConfig          `yaml:"distributions"`

	Purge    PurgeConfig    `yaml:"purge"`
	Callback CallbackConfig `yaml:"callback"`
	Health   HealthConfig   `yaml:"health"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ToolsConfig struct {
	Createrepo string `yaml:"createrepo"`
	Reprepro   string `yaml:"reprepro"`
}

// ProjectRepoConfig holds the per-project repository options. Refs maps a
// ref (or "all") to related projects and the refs to pull from them.
type ProjectRepoConfig struct {
	Automatic *bool                          `yaml:"automatic,omitempty"`
	Combined  []string                       `yaml:"combined,omitempty"`
	Refs      map[string]map[string][]string `yaml:"refs,omitempty"`
}

type DistributionsConfig struct {
	Defaults map[string]string            `yaml:"defaults"`
	Projects map[string]map[string]string `yaml:"projects,omitempty"`
}

type PurgeConfig struct {
	Enabled  bool                       `yaml:"enabled"`
	Interval time.Duration              `yaml:"interval"`
	Rotation map[string]ProjectRotation `yaml:"rotation,omitempty"`
}

type CallbackConfig struct {
	URL        string        `yaml:"url"`
	User       string        `yaml:"user"`
	Key        string        `yaml:"-"`
	VerifySSL  bool          `yaml:"verify_ssl"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

type HealthConfig struct {
	Ping                 bool          `yaml:"ping"`
	PingURL              string        `yaml:"ping_url"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	FailCheckTriggerPath string        `yaml:"fail_check_trigger_path"`
	DiskUsageThreshold   float64       `yaml:"disk_usage_threshold"`
}

const (
	DefaultPollingCycle       = 15 * time.Second
	DefaultQuietTime          = 30 * time.Second
	DefaultPurgeInterval      = 24 * time.Hour
	DefaultCallbackRetries    = 3
	DefaultCallbackRetryDelay = 30 * time.Second
	DefaultCallbackTimeout    = 30 * time.Second
	DefaultHealthPingInterval = 5 * time.Minute
	DefaultFailCheckPath      = "/tmp/fail_check"
	DefaultDiskUsageThreshold = 85.0
	DefaultBuildWorkers       = 2
)

// DefaultDistributionFields mirror the stock reprepro distributions
// stanza used when a project has no overrides.
var DefaultDistributionFields = map[string]string{
	"DebIndices":    "Packages Release . .gz .bz2",
	"DscIndices":    "Sources Release .gz .bz2",
	"Contents":      ".gz .bz2",
	"Origin":        "repoforge",
	"Description":   "",
	"Architectures": "amd64 arm64 armhf i386 source",
	"Suite":         "stable",
	"Components":    "main",
}

func DefaultConfig() Config {
	defaults := map[string]string{}
	for key, value := range DefaultDistributionFields {
		defaults[key] = value
	}
	return Config{
		LogLevel:     "info",
		Database:     DatabaseConfig{Driver: "sqlite", DSN: "repoforge.db"},
		PollingCycle: DefaultPollingCycle,
		QuietTime:    DefaultQuietTime,
		BuildWorkers: map[string]int{
			QueueBuildRPM: DefaultBuildWorkers,
			QueueBuildDeb: DefaultBuildWorkers,
		},
		Tools:         ToolsConfig{Createrepo: "createrepo", Reprepro: "reprepro"},
		Distributions: DistributionsConfig{Defaults: defaults},
		Purge:         PurgeConfig{Interval: DefaultPurgeInterval},
		Callback: CallbackConfig{
			VerifySSL:  true,
			Retries:    DefaultCallbackRetries,
			RetryDelay: DefaultCallbackRetryDelay,
			Timeout:    DefaultCallbackTimeout,
		},
		Health: HealthConfig{
			PingInterval:         DefaultHealthPingInterval,
			FailCheckTriggerPath: DefaultFailCheckPath,
			DiskUsageThreshold:   DefaultDiskUsageThreshold,
		},
	}
}

// ExtraRepos returns the related projects for project at ref, preferring an
// exact ref entry over the project's "all" entry.
func (c Config) ExtraRepos(project string, ref string) map[string][]string {
	projectConfig, ok := c.Repos[project]
	if !ok {
		return map[string][]string{}
	}
	if related, ok := projectConfig.Refs[ref]; ok {
		return related
	}
	if related, ok := projectConfig.Refs[RefAll]; ok {
		return related
	}
	return map[string][]string{}
}

func (c Config) CombinedVersions(project string) []string {
	projectConfig, ok := c.Repos[project]
	if !ok {
		return nil
	}
	return projectConfig.Combined
}

// AutomaticRepos reports whether generic binaries mark their repo dirty.
func (c Config) AutomaticRepos(project string) bool {
	projectConfig, ok := c.Repos[project]
	if !ok || projectConfig.Automatic == nil {
		return true
	}
	return *projectConfig.Automatic
}

func (c Config) RepositoryIsDisabled(project string) bool {
	for _, disabled := range c.DisabledRepos {
		if disabled == project {
			return true
		}
	}
	if c.DisableUnconfiguredRepos {
		if _, ok := c.Repos[project]; !ok {
			return true
		}
	}
	return false
}

// DistributionFields merges the defaults with the project's overrides.
func (c Config) DistributionFields(project string) map[string]string {
	fields := map[string]string{}
	for key, value := range c.Distributions.Defaults {
		fields[key] = value
	}
	for key, value := range c.Distributions.Projects[project] {
		fields[key] = value
	}
	return fields
}

func (c Config) WorkersFor(queue string) int {
	if count, ok := c.BuildWorkers[queue]; ok && count > 0 {
		return count
	}
	return DefaultBuildWorkers
}

// RelatedProjects inverts the repos config: it lists every project that
// pulls binaries from project, with the refs of that project which do so.
func (c Config) RelatedProjects(project string) map[string][]string {
	related := map[string][]string{}
	for name, projectConfig := range c.Repos {
		for ref, sources := range projectConfig.Refs {
			if _, ok := sources[project]; ok {
				related[name] = append(related[name], ref)
			}
		}
	}
	for name := range related {
		sort.Strings(related[name])
	}
	return related
}
