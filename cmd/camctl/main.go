// camctl runs the CAM analysis pipeline on local files without a server.
//
// Usage:
//
//	camctl analyze board.zip
//	camctl analyze gerbers/ --format narrative --min-trace-width 0.075
//	camctl rules > rules.yaml
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "camctl",
		Short: "Analyse PCB fabrication data for manufacturability",
		Long: "camctl reads Gerber/Excellon file sets or ODB++ jobs, builds the board model\n" +
			"and reports design summary facts and CAM rule findings.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newRulesCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "camctl:", err)
		if errors.Is(err, errIssuesFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
