package cli

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"repoforge/internal/adapters"
	"repoforge/internal/types"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the validated configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := adapters.LoadConfig(viper.GetViper())
			if err != nil {
				return err
			}
			out, err := renderConfig(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	return cmd
}

// renderConfig encodes cfg with credentials in the database DSN masked.
// The callback key never leaves the process.
func renderConfig(cfg types.Config) ([]byte, error) {
	cfg.Database.DSN = maskDSN(cfg.Database.DSN)
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode config").
			WithCause(err)
	}
	if err := encoder.Close(); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode config").
			WithCause(err)
	}
	return buf.Bytes(), nil
}

func maskDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.User == nil {
		return dsn
	}
	if _, ok := parsed.User.Password(); !ok {
		return dsn
	}
	parsed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
	return parsed.String()
}
