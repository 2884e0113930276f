// =============================================================================
// Invoice Billing Converter - Send Certifications Command
// =============================================================================
//
// COMMAND USAGE:
//   converter send-certifications [--dir ./certifications]
//
// Every PDF named <anything>_<invoice number>.pdf is mailed to the client of
// that invoice. Sent files move to <input_archive_dir>/certifications/YYYY/MM/DD.
//
// =============================================================================

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-billing-converter/internal/certify"
	"github.com/ginjaninja78/invoice-billing-converter/internal/notify"
	"github.com/ginjaninja78/invoice-billing-converter/pkg/utils"
)

var certificationsDir string

var certificationsCmd = &cobra.Command{
	Use:   "send-certifications",
	Short: "Email certification PDFs to each client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dir := certificationsDir
		if dir == "" {
			dir = mainConfig.CertificationsDir
		}

		mailer, err := notify.NewMailer(mainConfig.SMTP)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		fm := utils.NewFileManager(dir, mainConfig.OutputDir, filepath.Join(mainConfig.InputArchiveDir, "certifications"))
		fm.UseTimestampSubdirs = true
		if err := fm.EnsureDirectories(); err != nil {
			return err
		}

		d := &certify.Dispatcher{
			Dir:      dir,
			Files:    fm,
			Clients:  st,
			Notifier: mailer,
			Logger:   logger,
		}
		report, err := d.Dispatch(ctx)
		if err != nil {
			return err
		}

		fmt.Println("\n=== Certifications ===")
		fmt.Printf("Sent:                 %d\n", report.Sent)
		fmt.Printf("Without address:      %d (%d clients)\n", report.WithoutAddress, report.ClientsWithoutAddress)
		fmt.Printf("Unknown invoice:      %d\n", len(report.Unmatched))
		fmt.Printf("No invoice in name:   %d\n", len(report.Skipped))
		fmt.Printf("Delivery failed:      %d\n", len(report.Failed))
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d certification(s) could not be delivered", len(report.Failed))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(certificationsCmd)
	certificationsCmd.Flags().StringVar(&certificationsDir, "dir", "", "Directory with certification PDFs (default certifications_dir)")
}
