// =============================================================================
// Invoice Billing Converter - Main Entry Point
// =============================================================================
//
// This is the main entry point for the Invoice Billing Converter CLI. It
// delegates command execution to the cmd package.
//
// USAGE:
//   converter billing <summary.xlsx>               - Billing import workbook
//   converter credit-notes <summary> <ledger>      - Credit-note import workbook
//   converter agencies list|enable|disable|add-email
//   converter send-certifications                  - Mail certification PDFs
//   converter version                              - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Readers, validation, generation, store, mail
//   - pkg/utils      : File management (artifacts, archives, error logs)
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/invoice-billing-converter/cmd"
)

func main() {
	cmd.Execute()
}
