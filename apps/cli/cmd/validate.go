package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file|directory]...",
	Short: "Validate configuration, catalogs and task files without touching the store",
	Long: `Check the resolved configuration and, when paths are given, validate
catalog files against the catalog schema. Use --tasks to also check a
schedule task file.

Examples:
  hitrun validate
  hitrun validate catalog.yaml
  hitrun validate ./catalogs/ --tasks tasks.yaml`,
	RunE: validateCommand,
}

var validateTasksFlag string

func init() {
	validateCmd.Flags().StringVar(&validateTasksFlag, "tasks", "", "Task file to validate")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if _, err := loadConfig(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Valid: configuration")

	if len(args) > 0 {
		c, err := catalog.Load(args...)
		if err != nil {
			if errors.Is(err, catalog.ErrInvalidCatalog) {
				return exitWith(ExitParseError, err)
			}
			return exitWith(ExitUsageError, err)
		}
		fmt.Fprintf(out, "Valid: %d environment(s), %d module(s), %d case(s)\n",
			len(c.Environments), len(c.Modules), c.CaseCount())
	}

	if validateTasksFlag != "" {
		tasks, err := readTaskFile(validateTasksFlag)
		if err != nil {
			return exitWith(ExitParseError, err)
		}
		fmt.Fprintf(out, "Valid: %d task(s) in %s\n", len(tasks), validateTasksFlag)
	}
	return nil
}
