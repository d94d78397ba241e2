package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type rootOptions struct {
	configPath string
}

func (o *rootOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "path to config file (default $CONFIG_PATH or config/config.yaml)")
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "motordiag",
		Short:        "Motor telemetry ingest, fault classification and remaining useful life estimation",
		SilenceUsage: true,
	}
	opts.addFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newServeCommand(opts),
		newValidateCommand(opts),
		newProfilesCommand(),
		newEstimateCommand(),
	)

	return cmd
}
