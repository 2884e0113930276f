// =============================================================================
// Invoice Billing Converter - Row Generator
// =============================================================================
//
// Builds the accounting system's import rows from validated summary records.
// Every invoice becomes a PAIR of rows sharing one control number:
//
//   | # | CLIENTE  | TIPO | NUMERO           | FECHA      | ... | OBSERVACIONES       | PRODUCTOSERVICIO    | ... | IVA    |
//   |---|----------|------|------------------|------------|-----|---------------------|---------------------|-----|--------|
//   | 1 | Agency A | 1    | A-00002-00000000 | 2025-03-31 | ... | Certificacion 100 / |                     |     |        |
//   | 1 |          |      |                  |            |     |                     | Servicio Publicidad | ... | 210.00 |
//
// MODES:
//   - Billing:      one pair per record, document type 1
//   - Credit notes: one pair per record whose agency is eligible AND whose
//                   invoice number has a ledger match, document type 3
//
// Control numbers are dense and 1-based in emission order, so records
// skipped in credit-note mode leave no gaps.
//
// =============================================================================

package converter

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/invoice-billing-converter/internal/canonical"
	"github.com/ginjaninja78/invoice-billing-converter/internal/config"
	"github.com/ginjaninja78/invoice-billing-converter/internal/reconcile"
	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
)

// Document type codes understood by the accounting import.
const (
	DocTypeInvoice    = 1
	DocTypeCreditNote = 3
)

// EligibilitySet holds the agency names that receive credit notes.
type EligibilitySet map[string]struct{}

// NewEligibilitySet builds a set from agency names.
func NewEligibilitySet(names ...string) EligibilitySet {
	set := make(EligibilitySet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Contains reports whether agency is eligible.
func (s EligibilitySet) Contains(agency string) bool {
	_, ok := s[agency]
	return ok
}

// Generator builds row pairs with a fixed set of document labels.
type Generator struct {
	labels config.DocumentSettings
	rate   decimal.Decimal
}

// NewGenerator creates a Generator. The tax rate comes from labels.TaxRate.
func NewGenerator(labels config.DocumentSettings) *Generator {
	return &Generator{labels: labels, rate: labels.Rate()}
}

// Billing produces one pair per record, in input order.
func (g *Generator) Billing(records []types.SummaryRecord, period canonical.ReportingPeriod) []types.RowPair {
	pairs := make([]types.RowPair, 0, len(records))
	for i, rec := range records {
		pairs = append(pairs, g.pair(i+1, rec, period, DocTypeInvoice, ""))
	}
	return pairs
}

// CreditNotes produces pairs only for eligible agencies with a ledger match.
// The returned slice is empty when nothing qualifies; the caller decides
// whether that is an error.
func (g *Generator) CreditNotes(
	records []types.SummaryRecord,
	recon reconcile.Map,
	eligible EligibilitySet,
	period canonical.ReportingPeriod,
) []types.RowPair {
	var pairs []types.RowPair
	for _, rec := range records {
		if !eligible.Contains(rec.Agency()) {
			continue
		}
		docID, ok := recon.Lookup(rec.InvoiceNumber())
		if !ok {
			continue
		}
		pairs = append(pairs, g.pair(len(pairs)+1, rec, period, DocTypeCreditNote, docID))
	}
	return pairs
}

func (g *Generator) pair(control int, rec types.SummaryRecord, period canonical.ReportingPeriod, docType int, associated string) types.RowPair {
	gross := rec.Gross()

	header := types.HeaderRow{
		Counterparty:       rec.Agency(),
		DocumentType:       docType,
		NumberTemplate:     g.labels.NumberTemplate,
		IssueDate:          period.IssueDateISO(),
		DueDate:            period.DueDateISO(),
		AssociatedDocument: associated,
		CurrencyLabel:      g.labels.CurrencyLabel,
		Memo:               Memo(rec),
	}
	detail := types.DetailRow{
		ServiceLabel:    g.labels.ServiceLabel,
		CostCenterLabel: g.labels.CostCenterLabel,
		Description:     period.Description(),
		Quantity:        1,
		UnitPrice:       gross,
		Amount:          gross,
		Tax:             g.Tax(gross),
	}
	if docType == DocTypeCreditNote {
		header.ExchangeRate = "1"
		detail.Discount = "0"
	}

	return types.RowPair{
		ControlNumber: control,
		InvoiceNumber: canonical.NormalizeInvoiceNumber(rec.InvoiceNumber()),
		Header:        header,
		Detail:        detail,
	}
}

// Tax is gross times the configured rate, rounded half away from zero to cents.
func (g *Generator) Tax(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(g.rate).Round(2)
}

// Memo is the header observation text. It cites the invoice number exactly as
// it appears in the sheet so the ledger can be matched back later.
func Memo(rec types.SummaryRecord) string {
	return fmt.Sprintf("Certificacion %s / %s / %s / %s",
		rec.InvoiceNumber(), rec.Channel(), rec.Client(), rec.OrderReference())
}

// =============================================================================
// FLATTENING
// =============================================================================

// Flatten expands pairs into worksheet rows: header row then detail row.
// Cell order follows xlsxwriter.Columns.
func Flatten(pairs []types.RowPair) []types.OutputRow {
	rows := make([]types.OutputRow, 0, len(pairs)*2)
	for _, p := range pairs {
		h, d := p.Header, p.Detail
		rows = append(rows,
			types.OutputRow{
				p.ControlNumber, h.Counterparty, h.DocumentType, h.NumberTemplate,
				h.IssueDate, h.DueDate, h.AssociatedDocument, h.CurrencyLabel,
				h.ExchangeRate, h.Memo,
				"", "", "", "", "", "", "", "",
			},
			types.OutputRow{
				p.ControlNumber, "", "", "", "", "", "", "", "", "",
				d.ServiceLabel, d.CostCenterLabel, d.Description, d.Quantity,
				d.UnitPrice.InexactFloat64(), d.Discount,
				d.Amount.InexactFloat64(), d.Tax.InexactFloat64(),
			},
		)
	}
	return rows
}
