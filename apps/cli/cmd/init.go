package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
)

var initForceFlag bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default hitrun.yaml",
	Long: `Write the default configuration to hitrun.yaml in --dir.

An existing file is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(dirFlag, config.ConfigFilenames[0])
		if err := writeDefaultConfig(path, initForceFlag); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForceFlag, "force", false, "Overwrite an existing config file")
}

func writeDefaultConfig(path string, force bool) error {
	if !force {
		_, err := os.Stat(path)
		if err == nil {
			return exitWith(ExitUsageError, fmt.Errorf("%s already exists (use --force to overwrite)", path))
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return exitWith(ExitConfigError, err)
		}
	}
	if err := config.DefaultConfig().SaveConfig(path); err != nil {
		return exitWith(ExitConfigError, fmt.Errorf("writing %s: %w", path, err))
	}
	return nil
}
