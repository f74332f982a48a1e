package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

var versionShortFlag bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		writeVersion(cmd.OutOrStdout(), versionShortFlag)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShortFlag, "short", false, "Print only the version number")
}

func writeVersion(w io.Writer, short bool) {
	if short {
		fmt.Fprintln(w, version)
		return
	}
	fmt.Fprintf(w, "hitrun %s (built %s, %s %s/%s)\n", version, buildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
