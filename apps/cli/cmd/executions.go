package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/output"
	"github.com/abdul-hamid-achik/hitrun/packages/store"
)

var executionsCmd = &cobra.Command{
	Use:     "executions [execution-id]",
	Aliases: []string{"list"},
	Short:   "List recent executions or show one in detail",
	Long: `Without an argument, list the most recent executions. With an execution
id, render that execution the way "hitrun run" does.

Examples:
  hitrun executions
  hitrun executions --limit 50
  hitrun executions 42 -o junit --output-file report.xml`,
	Args: cobra.MaximumNArgs(1),
	RunE: executionsCommand,
}

var limitFlag int

func init() {
	f := executionsCmd.Flags()
	f.IntVar(&limitFlag, "limit", getEnvInt("HITRUN_LIST_LIMIT", 20), "Number of executions to list (env: HITRUN_LIST_LIMIT)")
	f.BoolVarP(&verboseFlag, "verbose", "v", false, "Show execution logs")
	f.BoolVar(&noColorFlag, "no-color", getEnvBool("HITRUN_NO_COLOR", false), "Disable colored output (env: HITRUN_NO_COLOR)")
	f.StringVarP(&outputFlag, "output", "o", "console", "Output format: console, json, junit")
	f.StringVar(&outputFileFlag, "output-file", "", "Write output to file (default: stdout)")
}

func executionsCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := render(cmd.Context(), st, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return exitWith(ExitUsageError, err)
			}
			return exitWith(ExitConfigError, err)
		}
		return nil
	}

	execs, err := st.ListExecutions(cmd.Context(), limitFlag)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	if len(execs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No executions recorded.")
		return nil
	}
	if noColorFlag {
		color.NoColor = true
	}
	output.NewConsoleFormatter(output.WithWriter(cmd.OutOrStdout())).FormatExecutions(execs)
	return nil
}
