// =============================================================================
// Invoice Billing Converter - Spreadsheet Reader
// =============================================================================
//
// This module turns workbook bytes into records. It knows two layouts:
//
//   INVOICE SUMMARY (billing source export)
//   | row 1..5 | report title, filters, blank rows (ignored)           |
//   | row 6    | header: Invoice # | Invoice Date | Agency | Client ... |
//   | row 7..  | one invoice per row                                   |
//   | last     | TOTAL row (Invoice Date column reads "TOTAL")          |
//
//   LEDGER EXPORT (accounting system)
//   | row 1    | header: Comprobante | Cliente | Observaciones | ...     |
//   | row 2..  | one issued document per row                           |
//
// Cell values are read raw (no number formatting applied), so an invoice
// number typed as 20251230070 is returned as "20251230070" and not "2.03E+10".
//
// =============================================================================

package xlsxparser

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
)

// =============================================================================
// OPTIONS
// =============================================================================

// SummaryOptions locates the data block inside the summary workbook.
type SummaryOptions struct {
	// SheetName is the sheet holding the summary.
	SheetName string

	// HeaderRow is the 0-based index of the header row.
	HeaderRow int

	// StatusColumn is compared against "TOTAL" to drop the totals row.
	StatusColumn string
}

// DefaultSummaryOptions matches the layout of the billing source export.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{
		SheetName:    "Invoice Summary",
		HeaderRow:    5,
		StatusColumn: types.ColInvoiceDate,
	}
}

// =============================================================================
// INVOICE SUMMARY
// =============================================================================

// ReadInvoiceSummary parses the summary sheet of a workbook.
//
// PARAMETERS:
//   - data: The workbook bytes (.xlsx).
//   - opts: Sheet name and header position.
//
// RETURNS:
//   - The records in sheet order. Blank rows, the TOTAL row and rows with a
//     blank invoice number, agency or client are dropped.
//   - *types.SheetNotFoundError when the sheet is missing.
func ReadInvoiceSummary(data []byte, opts SummaryOptions) ([]types.SummaryRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if !slices.Contains(sheets, opts.SheetName) {
		return nil, &types.SheetNotFoundError{Sheet: opts.SheetName, Available: sheets}
	}

	rows, err := f.GetRows(opts.SheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", opts.SheetName, err)
	}

	if len(rows) <= opts.HeaderRow {
		return nil, nil
	}

	headers := normalizeHeaders(rows[opts.HeaderRow])

	var records []types.SummaryRecord
	for i := opts.HeaderRow + 1; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}

		rec := types.SummaryRecord{
			RowNumber: i + 1,
			Fields:    rowToFields(headers, row),
		}

		if strings.EqualFold(rec.Field(opts.StatusColumn), "TOTAL") {
			continue
		}
		if rec.InvoiceNumber() == "" || rec.Agency() == "" || rec.Client() == "" {
			continue
		}

		records = append(records, rec)
	}

	return records, nil
}

// =============================================================================
// LEDGER EXPORT
// =============================================================================

// ReadLedger parses the first sheet of a ledger export. Rows without a
// document id or without a memo are dropped.
func ReadLedger(data []byte) ([]types.LedgerRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &types.SheetNotFoundError{}
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return LedgerFromRows(rows[0], rows[1:], 2), nil
}

// LedgerFromRows maps header + data rows onto ledger records. firstRow is the
// 1-based source row number of rows[0]. It is shared with the CSV reader.
func LedgerFromRows(header []string, rows [][]string, firstRow int) []types.LedgerRecord {
	headers := normalizeHeaders(header)

	var records []types.LedgerRecord
	for i, row := range rows {
		if isRowEmpty(row) {
			continue
		}
		fields := rowToFields(headers, row)

		rec := types.LedgerRecord{
			RowNumber:    firstRow + i,
			DocumentID:   strings.TrimSpace(fields[types.LedgerColDocumentID]),
			Counterparty: strings.TrimSpace(fields[types.LedgerColCounterparty]),
			Memo:         strings.TrimSpace(fields[types.LedgerColMemo]),
			Gross:        strings.TrimSpace(fields[types.LedgerColGross]),
			Date:         strings.TrimSpace(fields[types.LedgerColDate]),
		}
		if rec.DocumentID == "" || rec.Memo == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// normalizeHeaders trims header cells. Blank headers and repeated headers
// are returned as "" so their columns are ignored.
func normalizeHeaders(row []string) []string {
	headers := make([]string, len(row))
	seen := make(map[string]bool, len(row))
	for i, cell := range row {
		h := strings.TrimSpace(cell)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		headers[i] = h
	}
	return headers
}

// rowToFields keys the cells of a row by header. Cells past the end of a
// short row are recorded as "".
func rowToFields(headers, row []string) map[string]string {
	fields := make(map[string]string, len(headers))
	for j, h := range headers {
		if h == "" {
			continue
		}
		if j < len(row) {
			fields[h] = row[j]
		} else {
			fields[h] = ""
		}
	}
	return fields
}

// isRowEmpty checks if a row is completely empty.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
