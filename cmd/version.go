// =============================================================================
// Invoice Billing Converter - Version Command
// =============================================================================
//
// COMMAND USAGE:
//   converter version
//
// Prints the release and the document kinds this build can produce. It runs
// without a config.yaml, so it also works on a fresh install.
//
// =============================================================================

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
)

// Release metadata, stamped by the release build:
//
//	go build -ldflags "-X github.com/ginjaninja78/invoice-billing-converter/cmd.Version=$TAG \
//	  -X github.com/ginjaninja78/invoice-billing-converter/cmd.BuildDate=$(date -u +%F)"
var (
	Version   = "1.2.0"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print release information",
	Args:  cobra.NoArgs,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },

	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "converter %s (built %s, %s %s/%s)\n",
			Version, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "documents: %s, %s\n", types.KindBilling, types.KindCreditNote)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
