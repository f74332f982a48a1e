package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/catalog"
	"github.com/abdul-hamid-achik/hitrun/packages/logging"
)

var loadCmd = &cobra.Command{
	Use:   "load <file|directory>...",
	Short: "Load environments, modules and cases from YAML catalogs",
	Long: `Validate catalog files and write their records into the store.

Records are matched by name, so loading the same catalog again updates it in
place and keeps the ids that "hitrun run" and task files refer to.

Examples:
  hitrun load catalog.yaml
  hitrun load ./catalogs/ --dsn ./hitrun.db`,
	Args: cobra.MinimumNArgs(1),
	RunE: loadCommand,
}

func loadCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := catalog.Load(args...)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidCatalog) {
			return exitWith(ExitParseError, err)
		}
		return exitWith(ExitUsageError, err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := catalog.Seed(cmd.Context(), st, c)
	if err != nil {
		return exitWith(ExitTestFailure, err)
	}
	logging.Info("cli", "catalog loaded: %d created, %d updated", res.Created, res.Updated)

	out := cmd.OutOrStdout()
	printIDs := func(title string, ids map[string]int64) {
		if len(ids) == 0 {
			return
		}
		fmt.Fprintf(out, "%s:\n", title)
		names := make([]string, 0, len(ids))
		for name := range ids {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %-6d %s\n", ids[name], name)
		}
	}
	printIDs("Environments", res.Environments)
	printIDs("Modules", res.Modules)
	printIDs("Cases", res.Cases)
	writeVariables(out, c)
	fmt.Fprintf(out, "\n%d created, %d updated\n", res.Created, res.Updated)
	return nil
}

// writeVariables lists module variables in their ${...} display form.
func writeVariables(w io.Writer, c *catalog.Catalog) {
	header := false
	for _, m := range c.Modules {
		for _, v := range m.Variables {
			if !header {
				fmt.Fprintln(w, "Variables:")
				header = true
			}
			line := fmt.Sprintf("  %s.%s = %s", m.Name, v.Name, v.DisplayValue())
			if v.Extractor != nil {
				line += fmt.Sprintf(" (from %s %s)", v.Extractor.Source.Normalize(), v.Extractor.Expression)
			}
			fmt.Fprintln(w, line)
		}
	}
}
