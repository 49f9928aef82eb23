package adapters

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"repoforge/internal/types"
)

const distributionsDefaultsKey = "defaults"

// distributionFieldNames restores reprepro's field casing, which viper folds
// to lowercase.
var distributionFieldNames = map[string]string{}

func init() {
	for _, name := range []string{
		"Origin", "Label", "Suite", "Codename", "Version", "Architectures", "Components",
		"UDebComponents", "Description", "SignWith", "DebIndices", "DscIndices", "Contents",
		"Update", "Pull", "NotAutomatic", "ButAutomaticUpgrades", "Limit", "Tracking", "Log",
	} {
		distributionFieldNames[strings.ToLower(name)] = name
	}
}

// SetConfigDefaults registers every default so env overrides and IsSet work
// for keys that appear in no config file.
func SetConfigDefaults(v *viper.Viper) {
	defaults := types.DefaultConfig()
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("database.driver", defaults.Database.Driver)
	v.SetDefault("database.dsn", defaults.Database.DSN)
	v.SetDefault("polling_cycle", defaults.PollingCycle)
	v.SetDefault("quiet_time", defaults.QuietTime)
	v.SetDefault("build_workers."+types.QueueBuildRPM, defaults.BuildWorkers[types.QueueBuildRPM])
	v.SetDefault("build_workers."+types.QueueBuildDeb, defaults.BuildWorkers[types.QueueBuildDeb])
	v.SetDefault("tools.createrepo", defaults.Tools.Createrepo)
	v.SetDefault("tools.reprepro", defaults.Tools.Reprepro)
	v.SetDefault("disable_unconfigured_repos", false)
	v.SetDefault("purge.enabled", false)
	v.SetDefault("purge.interval", defaults.Purge.Interval)
	v.SetDefault("callback.verify_ssl", defaults.Callback.VerifySSL)
	v.SetDefault("callback.retries", defaults.Callback.Retries)
	v.SetDefault("callback.retry_delay", defaults.Callback.RetryDelay)
	v.SetDefault("callback.timeout", defaults.Callback.Timeout)
	v.SetDefault("health.ping", false)
	v.SetDefault("health.ping_interval", defaults.Health.PingInterval)
	v.SetDefault("health.fail_check_trigger_path", defaults.Health.FailCheckTriggerPath)
	v.SetDefault("health.disk_usage_threshold", defaults.Health.DiskUsageThreshold)
}

// LoadConfig decodes viper's view of the configuration into the typed form
// and validates it.
func LoadConfig(v *viper.Viper) (types.Config, error) {
	SetConfigDefaults(v)
	cfg := types.DefaultConfig()

	cfg.LogLevel = v.GetString("log_level")
	cfg.Hostname = strings.TrimSpace(v.GetString("hostname"))
	if cfg.Hostname == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.Hostname = hostname
		}
	}
	cfg.BinaryRoot = v.GetString("binary_root")
	cfg.ReposRoot = v.GetString("repos_root")
	cfg.DistributionsRoot = v.GetString("distributions_root")
	cfg.Database = types.DatabaseConfig{
		Driver: v.GetString("database.driver"),
		DSN:    v.GetString("database.dsn"),
	}
	cfg.PollingCycle = v.GetDuration("polling_cycle")
	cfg.QuietTime = v.GetDuration("quiet_time")
	cfg.BuildWorkers = map[string]int{}
	for queue, count := range v.GetStringMap("build_workers") {
		workers, err := cast.ToIntE(count)
		if err != nil {
			return types.Config{}, invalidConfig(fmt.Sprintf("build_workers.%s must be a number", queue), err)
		}
		cfg.BuildWorkers[queue] = workers
	}
	cfg.Tools = types.ToolsConfig{
		Createrepo: v.GetString("tools.createrepo"),
		Reprepro:   v.GetString("tools.reprepro"),
	}

	repos, err := decodeRepos(v.GetStringMap("repos"))
	if err != nil {
		return types.Config{}, err
	}
	cfg.Repos = repos
	cfg.DisabledRepos = v.GetStringSlice("disabled_repos")
	cfg.DisableUnconfiguredRepos = v.GetBool("disable_unconfigured_repos")

	distributions, err := decodeDistributions(v.GetStringMap("distributions"))
	if err != nil {
		return types.Config{}, err
	}
	cfg.Distributions = distributions

	cfg.Purge.Enabled = v.GetBool("purge.enabled")
	cfg.Purge.Interval = v.GetDuration("purge.interval")
	rotation := map[string]types.ProjectRotation{}
	if v.IsSet("purge.rotation") {
		if err := v.UnmarshalKey("purge.rotation", &rotation); err != nil {
			return types.Config{}, invalidConfig("purge.rotation is malformed", err)
		}
	}
	cfg.Purge.Rotation = rotation

	cfg.Callback = types.CallbackConfig{
		URL:        v.GetString("callback.url"),
		User:       v.GetString("callback.user"),
		Key:        v.GetString("callback.key"),
		VerifySSL:  v.GetBool("callback.verify_ssl"),
		Retries:    v.GetInt("callback.retries"),
		RetryDelay: v.GetDuration("callback.retry_delay"),
		Timeout:    v.GetDuration("callback.timeout"),
	}
	cfg.Health = types.HealthConfig{
		Ping:                 v.GetBool("health.ping"),
		PingURL:              v.GetString("health.ping_url"),
		PingInterval:         v.GetDuration("health.ping_interval"),
		FailCheckTriggerPath: v.GetString("health.fail_check_trigger_path"),
		DiskUsageThreshold:   v.GetFloat64("health.disk_usage_threshold"),
	}

	if err := ValidateConfig(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

const MemoryDriver = "memory"

func ValidateConfig(cfg types.Config) error {
	if cfg.Database.Driver != MemoryDriver {
		if _, _, err := resolveDialect(cfg.Database.Driver); err != nil {
			return err
		}
	}
	if cfg.PollingCycle <= 0 {
		return invalidConfig("polling_cycle must be positive", nil)
	}
	if cfg.QuietTime < 0 {
		return invalidConfig("quiet_time must not be negative", nil)
	}
	if cfg.Purge.Interval <= 0 {
		return invalidConfig("purge.interval must be positive", nil)
	}
	for queue, count := range cfg.BuildWorkers {
		if count < 0 {
			return invalidConfig(fmt.Sprintf("build_workers.%s must not be negative", queue), nil)
		}
	}
	if cfg.Callback.Retries < 0 {
		return invalidConfig("callback.retries must not be negative", nil)
	}
	if cfg.Callback.RetryDelay < 0 {
		return invalidConfig("callback.retry_delay must not be negative", nil)
	}
	if cfg.Health.DiskUsageThreshold <= 0 || cfg.Health.DiskUsageThreshold > 100 {
		return invalidConfig("health.disk_usage_threshold must be within (0, 100]", nil)
	}
	if cfg.Health.Ping && strings.TrimSpace(cfg.Health.PingURL) == "" {
		return invalidConfig("health.ping_url is required when health.ping is enabled", nil)
	}
	for project, rules := range cfg.Purge.Rotation {
		for dimension, values := range map[string]map[string]types.RotationRule{"ref": rules.Ref, "flavor": rules.Flavor} {
			for value, rule := range values {
				if rule.Days != nil && *rule.Days < 0 {
					return invalidConfig(fmt.Sprintf("purge.rotation.%s.%s.%s.days must not be negative", project, dimension, value), nil)
				}
				if rule.KeepMinimum < 0 {
					return invalidConfig(fmt.Sprintf("purge.rotation.%s.%s.%s.keep_minimum must not be negative", project, dimension, value), nil)
				}
			}
		}
	}
	return nil
}

// decodeRepos reads each project's entry. "combined" and "automatic" are
// options; every other key is a ref.
func decodeRepos(raw map[string]any) (map[string]types.ProjectRepoConfig, error) {
	repos := map[string]types.ProjectRepoConfig{}
	for project, value := range raw {
		entries, err := cast.ToStringMapE(value)
		if err != nil {
			return nil, invalidConfig(fmt.Sprintf("repos.%s must be a mapping", project), err)
		}
		projectConfig := types.ProjectRepoConfig{Refs: map[string]map[string][]string{}}
		for key, entry := range entries {
			switch key {
			case "combined":
				combined, err := cast.ToStringSliceE(entry)
				if err != nil {
					return nil, invalidConfig(fmt.Sprintf("repos.%s.combined must be a list", project), err)
				}
				projectConfig.Combined = combined
			case "automatic":
				automatic, err := cast.ToBoolE(entry)
				if err != nil {
					return nil, invalidConfig(fmt.Sprintf("repos.%s.automatic must be a boolean", project), err)
				}
				projectConfig.Automatic = &automatic
			default:
				related, err := decodeRelated(entry)
				if err != nil {
					return nil, invalidConfig(fmt.Sprintf("repos.%s.%s must map projects to refs", project, key), err)
				}
				projectConfig.Refs[key] = related
			}
		}
		repos[project] = projectConfig
	}
	return repos, nil
}

// decodeRelated accepts either a list of refs or the literal "all" for
// every related project.
func decodeRelated(value any) (map[string][]string, error) {
	entries, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, err
	}
	related := map[string][]string{}
	for project, refs := range entries {
		if text, ok := refs.(string); ok {
			related[project] = []string{text}
			continue
		}
		list, err := cast.ToStringSliceE(refs)
		if err != nil {
			return nil, err
		}
		related[project] = list
	}
	return related, nil
}

func decodeDistributions(raw map[string]any) (types.DistributionsConfig, error) {
	result := types.DistributionsConfig{
		Defaults: map[string]string{},
		Projects: map[string]map[string]string{},
	}
	for key, value := range types.DefaultDistributionFields {
		result.Defaults[key] = value
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fields, err := cast.ToStringMapStringE(raw[key])
		if err != nil {
			return types.DistributionsConfig{}, invalidConfig(fmt.Sprintf("distributions.%s must be a mapping", key), err)
		}
		normalized := map[string]string{}
		for field, value := range fields {
			normalized[canonicalDistributionField(field)] = value
		}
		if key == distributionsDefaultsKey {
			for field, value := range normalized {
				result.Defaults[field] = value
			}
			continue
		}
		result.Projects[key] = normalized
	}
	return result, nil
}

func canonicalDistributionField(field string) string {
	if name, ok := distributionFieldNames[strings.ToLower(field)]; ok {
		return name
	}
	if field == "" {
		return field
	}
	return strings.ToUpper(field[:1]) + field[1:]
}

func invalidConfig(msg string, cause error) error {
	err := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
