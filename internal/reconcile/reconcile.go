// Package reconcile links invoices to the ledger documents already issued for
// them. The accounting system keeps the invoice number only inside the
// free-text memo ("Certificacion <n> / ..."), so the link is recovered with a
// pattern match.
package reconcile

import (
	"regexp"

	"github.com/ginjaninja78/invoice-billing-converter/internal/canonical"
	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
)

var referencePattern = regexp.MustCompile(`(?i)Certificacion\s+(\d+)`)

// ExtractReference returns the invoice number cited by a ledger memo.
func ExtractReference(memo string) (string, bool) {
	m := referencePattern.FindStringSubmatch(memo)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Map resolves normalized invoice numbers to ledger document ids. The zero
// value is an empty map.
type Map struct {
	docs       map[string]string
	duplicates []Duplicate
}

// Duplicate records an invoice number cited by more than one ledger row.
type Duplicate struct {
	InvoiceNumber string
	Replaced      string
	Kept          string
	Row           int
}

// BuildMap indexes ledger records by the invoice number in their memo. Rows
// without a document id or without a reference are skipped. When several rows
// cite the same invoice the last one in source order wins; the overridden
// entries are available from Duplicates.
func BuildMap(records []types.LedgerRecord) Map {
	m := Map{docs: make(map[string]string, len(records))}
	for _, rec := range records {
		if rec.DocumentID == "" {
			continue
		}
		ref, ok := ExtractReference(rec.Memo)
		if !ok {
			continue
		}
		key := canonical.NormalizeInvoiceNumber(ref)
		if prev, exists := m.docs[key]; exists && prev != rec.DocumentID {
			m.duplicates = append(m.duplicates, Duplicate{
				InvoiceNumber: key,
				Replaced:      prev,
				Kept:          rec.DocumentID,
				Row:           rec.RowNumber,
			})
		}
		m.docs[key] = rec.DocumentID
	}
	return m
}

// Lookup returns the ledger document id for an invoice number. The argument
// is normalized first, so "100.0" finds the entry for "100".
func (m Map) Lookup(invoiceNumber string) (string, bool) {
	id, ok := m.docs[canonical.NormalizeInvoiceNumber(invoiceNumber)]
	return id, ok
}

// Len is the number of distinct invoice numbers in the map.
func (m Map) Len() int { return len(m.docs) }

// Duplicates lists the entries replaced by a later ledger row.
func (m Map) Duplicates() []Duplicate {
	return append([]Duplicate(nil), m.duplicates...)
}
