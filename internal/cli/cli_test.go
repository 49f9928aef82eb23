package cli

import (
	"context"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"repoforge/internal/adapters"
	"repoforge/internal/core"
	"repoforge/internal/types"
)

// ---------- Command tree tests ----------

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	expected := []string{
		"serve", "poll", "build", "update", "recreate",
		"purge", "health", "binary", "config",
	}
	for _, name := range expected {
		assert.Contains(t, names, name, "missing subcommand: %s", name)
	}
}

func TestRootCommandVersion(t *testing.T) {
	root := newRootCommand()
	assert.Equal(t, "dev", root.Version)
}

func TestRepoKeyCommandFlags(t *testing.T) {
	for _, cmd := range []*cobra.Command{newBuildCommand(), newUpdateCommand(), newRecreateCommand(), newBinaryAddCommand()} {
		for _, name := range []string{"project", "ref", "sha1", "distro", "distro-version", "flavor"} {
			assert.NotNil(t, cmd.Flags().Lookup(name), "%s: missing flag: %s", cmd.Name(), name)
		}
	}
}

func TestRepoKeyOptionsDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	opts := repoKeyOptions{}
	opts.register(cmd)
	require.NoError(t, cmd.Flags().Set("project", " ceph "))
	require.NoError(t, cmd.Flags().Set("ref", "firefly"))
	require.NoError(t, cmd.Flags().Set("distro", "centos"))
	require.NoError(t, cmd.Flags().Set("distro-version", "7"))

	key := opts.key()
	assert.Equal(t, types.RepoKey{
		Project:       "ceph",
		Ref:           "firefly",
		SHA1:          types.DefaultSHA1,
		Distro:        "centos",
		DistroVersion: "7",
		Flavor:        types.DefaultFlavor,
	}, key)
}

func TestBinaryCommandHasSubcommands(t *testing.T) {
	cmd := newBinaryCommand()
	names := []string{}
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"add", "rm"}, names)
}

func TestPurgeCommandFlags(t *testing.T) {
	cmd := newPurgeCommand()
	assert.NotNil(t, cmd.Flags().Lookup("dry-run"))
	assert.NotNil(t, cmd.Flags().Lookup("force"))
}

func TestServeCommandBindsDurations(t *testing.T) {
	t.Cleanup(viper.Reset)
	cmd := newServeCommand()
	require.NoError(t, cmd.Flags().Set("polling-cycle", "45s"))
	assert.Equal(t, "45s", viper.GetDuration("polling_cycle").String())
}

// ---------- Helper function tests ----------

func TestResolveBool(t *testing.T) {
	got := resolveBool(nil, true, "test_key", "test-flag")
	assert.True(t, got)

	got = resolveBool(nil, false, "test_key", "test-flag")
	assert.False(t, got)
}

func TestResolveBoolFallsBackToConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("health.ping", true)

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("ping", false, "test flag")
	assert.True(t, resolveBool(cmd, false, "health.ping", "ping"))

	require.NoError(t, cmd.Flags().Set("ping", "false"))
	assert.False(t, resolveBool(cmd, false, "health.ping", "ping"))
}

func TestFlagChanged(t *testing.T) {
	assert.False(t, flagChanged(nil, "anything"), "nil cmd should return false")
	assert.False(t, flagChanged(nil, ""), "nil cmd with empty name")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("myflag", "", "test flag")
	assert.False(t, flagChanged(cmd, "myflag"), "unchanged flag")
	assert.False(t, flagChanged(cmd, "nonexistent"), "nonexistent flag")
}

func TestFlagChangedAfterSet(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("myflag", "", "test flag")
	require.NoError(t, cmd.Flags().Set("myflag", "val"))
	assert.True(t, flagChanged(cmd, "myflag"))
}

func TestOneShotHealthSkipsWorkersCheck(t *testing.T) {
	queue := adapters.NewMemoryQueue(nil)
	t.Cleanup(func() { _ = queue.Close() })
	checker := core.NewHealthChecker(
		adapters.WorkersCheck(queue),
		adapters.DatabaseCheck(adapters.NewMemoryStore()),
	)
	require.False(t, checker.IsHealthy(context.Background()), "no pool is running")

	oneShot := oneShotHealth(checker)
	require.Len(t, oneShot.Checks, 1)
	assert.Equal(t, "database", oneShot.Checks[0].Name)
	assert.True(t, oneShot.IsHealthy(context.Background()))
}

// ---------- Config rendering tests ----------

func TestRenderConfigMasksSecrets(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Database = types.DatabaseConfig{Driver: "postgres", DSN: "postgres://forge:hunter2@db:5432/repoforge"}
	cfg.Callback.Key = "secret-key"

	out, err := renderConfig(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "secret-key")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	database, ok := decoded["database"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "postgres://forge:xxxxx@db:5432/repoforge", database["dsn"])
	assert.Equal(t, "15s", decoded["polling_cycle"])
}

func TestMaskDSNLeavesPlainPaths(t *testing.T) {
	assert.Equal(t, "repoforge.db", maskDSN("repoforge.db"))
	assert.Equal(t, "postgres://db/repoforge", maskDSN("postgres://db/repoforge"))
}

// ---------- Exit code tests ----------

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name: "invalid argument",
			err: errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("bad input"),
			expected: 2,
		},
		{
			name: "already exists",
			err: errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg("binary already exists and force was not used"),
			expected: 2,
		},
		{
			name: "unhealthy",
			err: errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg(unhealthyMessagePrefix + ": workers check failed"),
			expected: 3,
		},
		{
			name: "generic failed precondition",
			err: errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("queue is closed"),
			expected: 4,
		},
		{
			name: "permission denied",
			err: errbuilder.New().
				WithCode(errbuilder.CodePermissionDenied).
				WithMsg("nope"),
			expected: 3,
		},
		{
			name: "not found",
			err: errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("repo not found"),
			expected: 5,
		},
		{
			name: "internal error",
			err: errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("boom"),
			expected: 5,
		},
		{
			name:     "unknown error",
			err:      assert.AnError,
			expected: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exitCodeForError(tt.err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name: "errbuilder with msg",
			err: errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("something broke"),
			expected: "something broke",
		},
		{
			name:     "plain error",
			err:      assert.AnError,
			expected: assert.AnError.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorMessage(tt.err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
