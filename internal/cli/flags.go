package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"repoforge/internal/types"
)

type repoKeyOptions struct {
	Project       string
	Ref           string
	SHA1          string
	Distro        string
	DistroVersion string
	Flavor        string
}

func (o *repoKeyOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Project, "project", "", "Project name")
	cmd.Flags().StringVar(&o.Ref, "ref", "", "Branch or tag")
	cmd.Flags().StringVar(&o.SHA1, "sha1", types.DefaultSHA1, "Commit sha1")
	cmd.Flags().StringVar(&o.Distro, "distro", "", "Distribution name (centos, ubuntu, ...)")
	cmd.Flags().StringVar(&o.DistroVersion, "distro-version", "", "Distribution version or codename")
	cmd.Flags().StringVar(&o.Flavor, "flavor", types.DefaultFlavor, "Build flavor")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("ref")
	_ = cmd.MarkFlagRequired("distro")
	_ = cmd.MarkFlagRequired("distro-version")
}

func (o repoKeyOptions) key() types.RepoKey {
	return types.RepoKey{
		Project:       o.Project,
		Ref:           o.Ref,
		SHA1:          o.SHA1,
		Distro:        o.Distro,
		DistroVersion: o.DistroVersion,
		Flavor:        o.Flavor,
	}.Normalize()
}

func resolveBool(cmd *cobra.Command, value bool, key string, flagName string) bool {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return value
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
		return true
	}
	if flag := cmd.InheritedFlags().Lookup(name); flag != nil && flag.Changed {
		return true
	}
	return false
}
