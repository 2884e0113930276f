// =============================================================================
// Invoice Billing Converter - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (converter)
//   ├── billingCmd          (converter billing)
//   ├── creditNotesCmd      (converter credit-notes)
//   ├── agenciesCmd         (converter agencies list|enable|disable|add-email)
//   ├── certificationsCmd   (converter send-certifications)
//   └── versionCmd          (converter version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading config.yaml, .env and environment overrides
//   3. Setting up logging
//
// EXIT CODES:
//   0  success
//   1  any failure
//   2  nothing to generate (no eligible credit notes)
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-billing-converter/internal/config"
	"github.com/ginjaninja78/invoice-billing-converter/internal/converter"
	"github.com/ginjaninja78/invoice-billing-converter/internal/store"
	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
	"github.com/ginjaninja78/invoice-billing-converter/pkg/utils"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
// This can be overridden using the --config flag.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// mainConfig is loaded once before any subcommand runs.
var mainConfig *config.MainConfig

// logger is the process-wide structured logger.
var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "converter",
	Short: "Invoice Billing Converter - Turn invoice summaries into accounting import workbooks",
	Long: `Invoice Billing Converter reads the monthly "Invoice Summary" workbook from
the billing source, validates it, stores every invoice, and writes the
accounting system's import workbook.

Key Features:
  - Billing documents (Facturacion_<Mes>_<PAIS>.xlsx)
  - Credit notes reconciled against the ledger export (NotasCredito_<Mes>_<PAIS>.xlsx)
  - Idempotent invoice store (SQLite or PostgreSQL)
  - Certification PDFs mailed to each client

Example Usage:
  converter billing Invoice_Summary_marzo.xlsx
  converter billing resumen.xlsx --month 3 --year 2025 --dry-run
  converter credit-notes Invoice_Summary_marzo.xlsx ledger_marzo.xlsx
  converter agencies enable "Agency A" --country ar
  converter send-certifications`,

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing config.yaml is fine unless --config was given explicitly.
		cfg, err := config.LoadMainConfig(cfgFile, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		mainConfig = cfg
		setupLogging(cfg.LogLevel)
		return nil
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		if errors.Is(err, types.ErrNoEligibleRecords) {
			fmt.Fprintf(os.Stderr, "Nothing to generate: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// setupLogging applies the configured level; --verbose forces debug.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	logger = logger.Level(lvl)
}

// openStore connects to the configured invoice store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, mainConfig.Store, logger)
	if err != nil {
		return nil, types.External("open invoice store", err)
	}
	return st, nil
}

// newFileManager returns the file manager for summaries and artifacts.
func newFileManager() *utils.FileManager {
	return utils.NewFileManager(mainConfig.InputDir, mainConfig.OutputDir, mainConfig.InputArchiveDir)
}

// newConverter builds a pipeline over st and fm. Both may be nil for dry runs.
func newConverter(st converter.InvoiceStore, fm *utils.FileManager) (*converter.Converter, error) {
	opts := converter.Options{
		Config: mainConfig,
		Store:  st,
		Logger: logger,
	}
	if fm != nil {
		opts.Artifacts = fm
	}
	return converter.New(opts)
}

// printResult prints the run summary.
func printResult(res *converter.Result) {
	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Document:        %s\n", res.Kind)
	fmt.Printf("Jurisdiction:    %s\n", res.Jurisdiction)
	fmt.Printf("Period:          %s\n", res.Period.Description())
	if res.MonthFromClock {
		fmt.Println("                 (month taken from the current date)")
	}
	fmt.Printf("Rows read:       %d\n", res.RowsRead)
	fmt.Printf("Documents:       %d\n", res.Pairs)
	if res.Kind == types.KindBilling {
		fmt.Printf("Invoices new:    %d\n", res.InvoicesCreated)
		fmt.Printf("Invoices upd.:   %d\n", res.InvoicesUpdated)
	} else {
		fmt.Printf("Ledger entries:  %d\n", res.LedgerEntries)
		fmt.Printf("Invoices linked: %d\n", res.InvoicesAssigned)
	}
	if res.DryRun {
		fmt.Printf("Artifact:        %s (dry run, not stored)\n", res.ArtifactName)
	} else {
		fmt.Printf("Artifact:        %s\n", res.ArtifactPath)
	}
	fmt.Printf("Time elapsed:    %s\n", res.Duration)
}
