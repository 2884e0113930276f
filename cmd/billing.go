// =============================================================================
// Invoice Billing Converter - Billing Command
// =============================================================================
//
// This file defines the 'billing' command, which turns one invoice summary
// into the billing import workbook.
//
// COMMAND USAGE:
//   converter billing <summary.xlsx> [flags]
//
// FLAGS:
//   --month    : Reporting month (1-12 or a month name); default from file name
//   --year     : Reporting year; default current year
//   --dry-run  : Validate and build the workbook without touching the store
//   --out      : Also write the workbook to this path (useful with --dry-run)
//
// PROCESSING PIPELINE:
//   1. Read and validate the summary
//   2. Upsert agencies, clients and invoices
//   3. Generate the billing workbook into the output directory
//   4. Archive the summary (archive_inputs: true)
//
// On a validation error an error log is written to the output directory and
// nothing is stored.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-billing-converter/internal/canonical"
	"github.com/ginjaninja78/invoice-billing-converter/internal/converter"
	"github.com/ginjaninja78/invoice-billing-converter/internal/validation"
	"github.com/ginjaninja78/invoice-billing-converter/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// periodFlags are shared by billing and credit-notes.
type periodFlags struct {
	month  string
	year   int
	dryRun bool
	out    string
}

func (f *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.month, "month", "", "Reporting month (1-12 or name); default from the file name")
	cmd.Flags().IntVar(&f.year, "year", 0, "Reporting year; default the current year")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Build the workbook without writing to the store or output directory")
	cmd.Flags().StringVar(&f.out, "out", "", "Also write the generated workbook to this path")
}

func (f *periodFlags) monthNumber() (int, error) {
	if f.month == "" {
		return 0, nil
	}
	return canonical.ParseMonthArgument(f.month, canonical.DefaultMonths())
}

var billingFlags periodFlags

// =============================================================================
// BILLING COMMAND DEFINITION
// =============================================================================

var billingCmd = &cobra.Command{
	Use:   "billing <summary.xlsx>",
	Short: "Generate the billing workbook from an invoice summary",
	Long: `The billing command reads the "Invoice Summary" sheet, validates every row,
stores the invoices, and writes Facturacion_<Mes>_<PAIS>.xlsx to the output
directory, replacing any earlier workbook for the same month and country.

A bare file name is looked up in the input directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBilling(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(billingCmd)
	billingFlags.register(billingCmd)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runBilling(ctx context.Context, arg string) error {
	fm := newFileManager()
	path := fm.ResolveInput(arg)

	month, err := billingFlags.monthNumber()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read summary: %w", err)
	}

	fmt.Println("=== Invoice Billing Converter ===")
	fmt.Printf("Summary: %s\n", path)

	var conv *converter.Converter
	if billingFlags.dryRun {
		conv, err = newConverter(nil, nil)
	} else {
		st, openErr := openStore(ctx)
		if openErr != nil {
			return openErr
		}
		defer st.Close()
		conv, err = newConverter(st, fm)
	}
	if err != nil {
		return err
	}

	res, err := conv.RunBilling(ctx, converter.BillingInput{
		Filename: filepath.Base(path),
		Data:     data,
		Month:    month,
		Year:     billingFlags.year,
		DryRun:   billingFlags.dryRun,
	})
	if err != nil {
		reportFailure(fm, path, err)
		return err
	}

	if err := writeCopy(billingFlags.out, res.Workbook); err != nil {
		return err
	}
	archiveInput(fm, path, res.DryRun)
	printResult(res)
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// reportFailure writes validation failures to the error log.
func reportFailure(fm *utils.FileManager, path string, err error) {
	var ve *validation.ValidationError
	if !errors.As(err, &ve) {
		return
	}

	fmt.Fprint(os.Stderr, validation.FormatError(validation.Result{Error: ve}))

	logPath, logErr := fm.WriteErrorLog([]utils.ErrorLogEntry{{
		Timestamp:    time.Now(),
		FileName:     filepath.Base(path),
		ErrorType:    ve.Rule,
		ErrorMessage: ve.Message,
		RowNumber:    ve.SheetRow,
		FieldName:    ve.Field,
		FieldValue:   ve.Value,
	}})
	if logErr != nil {
		logger.Error().Err(logErr).Msg("Failed to write error log")
		return
	}
	logger.Info().Str("path", logPath).Msg("Error log written")
}

// writeCopy writes the workbook to path when one was requested.
func writeCopy(path string, workbook []byte) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, workbook, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("Workbook copy written")
	return nil
}

// archiveInput moves a processed summary to the archive when configured.
func archiveInput(fm *utils.FileManager, path string, dryRun bool) {
	if dryRun || !mainConfig.ArchiveInputs {
		return
	}
	archived, err := fm.ArchiveInputFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("Failed to archive input")
		return
	}
	logger.Info().Str("path", archived).Msg("Input archived")
}
