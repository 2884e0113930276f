// =============================================================================
// Invoice Billing Converter - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - xlsxparser / csvparser (producers of records)
//   - validation, canonical, reconcile (consumers of records)
//   - converter, xlsxwriter (row pairs and flattened rows)
//
// =============================================================================

package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SUMMARY COLUMN HEADERS
// =============================================================================

// Column headers of the "Invoice Summary" sheet. Headers are trimmed when the
// sheet is read, so "Gross Invoice " in the source file matches ColGross.
const (
	ColInvoiceNumber  = "Invoice #"
	ColInvoiceDate    = "Invoice Date"
	ColAgency         = "Agency"
	ColClient         = "Client"
	ColChannel        = "Channel"
	ColOrderReference = "Order Reference"
	ColGross          = "Gross Invoice"
	ColNet            = "Net Invoice"
	ColCurrency       = "Currency"

	ColProduct           = "Product"
	ColFeed              = "Feed"
	ColCampaignNumber    = "Campaign #"
	ColCommissionPercent = "Comm %"
	ColCommission        = "Commission"
	ColSalesExecutive    = "Sales Exec."
	ColSystem            = "System"
	ColSpotCount         = "Spot Count"
	ColBusinessType      = "Business Type"
	ColDocumentType      = "Type"
	ColCompanyCode       = "Company Code"
	ColChannelByFeed     = "Channel by Feed"
)

// =============================================================================
// SUMMARY RECORD
// =============================================================================

// SummaryRecord is one data row of the invoice summary sheet.
type SummaryRecord struct {
	// RowNumber is the 1-based row number in the source sheet.
	RowNumber int

	// Fields holds the raw cell text keyed by trimmed column header.
	Fields map[string]string
}

// Field returns the trimmed value of a column, or "" when absent.
func (r SummaryRecord) Field(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

func (r SummaryRecord) InvoiceNumber() string  { return r.Field(ColInvoiceNumber) }
func (r SummaryRecord) InvoiceDate() string    { return r.Field(ColInvoiceDate) }
func (r SummaryRecord) Agency() string         { return r.Field(ColAgency) }
func (r SummaryRecord) Client() string         { return r.Field(ColClient) }
func (r SummaryRecord) Channel() string        { return r.Field(ColChannel) }
func (r SummaryRecord) OrderReference() string { return r.Field(ColOrderReference) }
func (r SummaryRecord) Currency() string       { return r.Field(ColCurrency) }

// Gross returns the gross amount, or zero when the cell is blank or not numeric.
func (r SummaryRecord) Gross() decimal.Decimal {
	d := ParseAmount(r.Field(ColGross))
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

// Net returns the net amount; Valid is false when the cell is blank or not numeric.
func (r SummaryRecord) Net() decimal.NullDecimal {
	return ParseAmount(r.Field(ColNet))
}

// ParseAmount parses a numeric cell. Blank and malformed values are reported
// as an invalid NullDecimal.
func ParseAmount(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// =============================================================================
// LEDGER RECORD
// =============================================================================

// Ledger export column headers.
const (
	LedgerColDocumentID   = "Comprobante"
	LedgerColCounterparty = "Cliente"
	LedgerColMemo         = "Observaciones"
	LedgerColGross        = "Importe Bruto"
	LedgerColDate         = "Fecha"
)

// LedgerRecord is one row of the accounting ledger export.
type LedgerRecord struct {
	RowNumber    int
	DocumentID   string
	Counterparty string
	Memo         string
	Gross        string
	Date         string
}

// =============================================================================
// OUTPUT ROWS
// =============================================================================

// DocumentKind distinguishes the two artifacts the pipeline can produce.
type DocumentKind string

const (
	KindBilling    DocumentKind = "Facturacion"
	KindCreditNote DocumentKind = "NotasCredito"
)

// HeaderRow is the document-level half of a row pair.
type HeaderRow struct {
	Counterparty       string
	DocumentType       int
	NumberTemplate     string
	IssueDate          string
	DueDate            string
	AssociatedDocument string
	CurrencyLabel      string
	ExchangeRate       string
	Memo               string
}

// DetailRow is the line-level half of a row pair.
type DetailRow struct {
	ServiceLabel    string
	CostCenterLabel string
	Description     string
	Quantity        int
	UnitPrice       decimal.Decimal
	Discount        string
	Amount          decimal.Decimal
	Tax             decimal.Decimal
}

// RowPair is the header + detail rows generated for one invoice.
type RowPair struct {
	// ControlNumber is dense and 1-based within a run.
	ControlNumber int

	// InvoiceNumber is the normalized invoice number the pair was built from.
	InvoiceNumber string

	Header HeaderRow
	Detail DetailRow
}

// OutputRow is one flattened worksheet row, one cell per output column.
// Cells hold int, float64 or string values; "" is written as an empty cell.
type OutputRow []any
