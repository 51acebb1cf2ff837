package commands

import (
	"github.com/spf13/cobra"

	"github.com/tendermint/alarm/config"
	"github.com/tendermint/alarm/libs/log"
	tmos "github.com/tendermint/alarm/libs/os"
)

// MakeInitCommand returns the command that writes a config file populated
// with the current configuration into the home directory.
func MakeInitCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the alarm home directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.EnsureRoot(conf.RootDir); err != nil {
				return err
			}

			path := conf.ConfigFile()
			if tmos.FileExists(path) {
				logger.Info("Found config file", "path", path)
				return nil
			}

			if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
				return err
			}
			logger.Info("Generated config file", "path", path, "backend", conf.Wake.Backend)
			return nil
		},
	}
}
