// =============================================================================
// Invoice Billing Converter - Credit Notes Command
// =============================================================================
//
// COMMAND USAGE:
//   converter credit-notes <summary.xlsx> <ledger.xlsx|ledger.csv> [flags]
//
// Only agencies flagged with 'converter agencies enable' receive credit
// notes, and only invoices cited in the ledger memos ("Certificacion <n>")
// are included. The ledger document of every matched invoice is recorded in
// the store.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-billing-converter/internal/converter"
)

var creditNoteFlags periodFlags

// eligibleOverride replaces the store's eligible agencies.
var eligibleOverride []string

var creditNotesCmd = &cobra.Command{
	Use:   "credit-notes <summary.xlsx> <ledger>",
	Short: "Generate the credit-note workbook for eligible agencies",
	Long: `The credit-notes command matches the invoice summary against the ledger
export and writes NotasCredito_<Mes>_<PAIS>.xlsx for the agencies marked to
receive credit notes. The ledger may be an .xlsx export or a .csv file
(delimiter and encoding from the 'ledger' config section).

Exits with status 2 when no credit note qualifies.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreditNotes(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(creditNotesCmd)
	creditNoteFlags.register(creditNotesCmd)
	creditNotesCmd.Flags().StringSliceVar(&eligibleOverride, "eligible", nil,
		"Comma-separated agencies to treat as eligible instead of the stored flags")
}

func runCreditNotes(ctx context.Context, summaryArg, ledgerArg string) error {
	fm := newFileManager()
	summaryPath := fm.ResolveInput(summaryArg)
	ledgerPath := fm.ResolveInput(ledgerArg)

	month, err := creditNoteFlags.monthNumber()
	if err != nil {
		return err
	}

	summary, err := os.ReadFile(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to read summary: %w", err)
	}
	ledger, err := os.ReadFile(ledgerPath)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	fmt.Println("=== Invoice Billing Converter ===")
	fmt.Printf("Summary: %s\n", summaryPath)
	fmt.Printf("Ledger:  %s\n", ledgerPath)

	// Dry runs still read the eligible agencies unless they are given.
	var (
		st   converter.InvoiceStore
		conv *converter.Converter
	)
	if !creditNoteFlags.dryRun || eligibleOverride == nil {
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		st = s
	}
	if creditNoteFlags.dryRun {
		conv, err = newConverter(st, nil)
	} else {
		conv, err = newConverter(st, fm)
	}
	if err != nil {
		return err
	}

	res, err := conv.RunCreditNotes(ctx, converter.CreditNoteInput{
		Filename:       filepath.Base(summaryPath),
		Data:           summary,
		LedgerFilename: filepath.Base(ledgerPath),
		LedgerData:     ledger,
		Month:          month,
		Year:           creditNoteFlags.year,
		Eligible:       eligibleOverride,
		DryRun:         creditNoteFlags.dryRun,
	})
	if err != nil {
		reportFailure(fm, summaryPath, err)
		return err
	}

	if err := writeCopy(creditNoteFlags.out, res.Workbook); err != nil {
		return err
	}
	printResult(res)
	return nil
}
