// =============================================================================
// Invoice Billing Converter - Canonicalization
// =============================================================================
//
// Pure functions that turn raw spreadsheet text into canonical values:
//   - jurisdiction code from a currency cell
//   - reporting month from a source filename
//   - invoice numbers with spreadsheet artifacts (".0") removed
//
// The lookup tables are immutable values built by constructor functions and
// passed to the functions that need them.
//
// =============================================================================

package canonical

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GenericJurisdiction is returned for currencies outside the jurisdiction table.
const GenericJurisdiction = "generico"

// =============================================================================
// JURISDICTION
// =============================================================================

// JurisdictionTable maps lower-case currency or country codes to a jurisdiction.
type JurisdictionTable struct {
	codes map[string]string
}

// DefaultJurisdictions knows Argentina, Mexico and Chile by currency and by country code.
func DefaultJurisdictions() JurisdictionTable {
	return JurisdictionTable{codes: map[string]string{
		"ars": "ar",
		"mxn": "mx",
		"clp": "cl",
		"ar":  "ar",
		"mx":  "mx",
		"cl":  "cl",
	}}
}

// InferJurisdiction maps a currency cell to a jurisdiction code. Unknown and
// blank values map to GenericJurisdiction.
func InferJurisdiction(currency string, table JurisdictionTable) string {
	key := strings.ToLower(strings.TrimSpace(currency))
	if code, ok := table.codes[key]; ok {
		return code
	}
	return GenericJurisdiction
}

// =============================================================================
// MONTH
// =============================================================================

// MonthTable maps lower-case month names (Spanish, English and 3-letter English
// abbreviations) to month numbers 1..12.
type MonthTable struct {
	names map[string]int
}

var spanishMonths = [12]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var englishMonths = [12]string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// DefaultMonths builds the month table.
func DefaultMonths() MonthTable {
	names := make(map[string]int, 48)
	for i := 0; i < 12; i++ {
		names[spanishMonths[i]] = i + 1
		names[englishMonths[i]] = i + 1
		names[englishMonths[i][:3]] = i + 1
	}
	// "setiembre" is the other accepted Spanish spelling.
	names["setiembre"] = 9
	return MonthTable{names: names}
}

// Lookup returns the month number for a name, case-insensitively.
func (t MonthTable) Lookup(name string) (int, bool) {
	m, ok := t.names[strings.ToLower(strings.TrimSpace(name))]
	return m, ok
}

var filenameSeparators = regexp.MustCompile(`[_\-.\s]+`)

// InferMonth returns the month of the first filename token found in the
// table. The bool is false when no token names a month; the caller decides
// the fallback.
func InferMonth(filename string, table MonthTable) (int, bool) {
	for _, token := range filenameSeparators.Split(strings.ToLower(filename), -1) {
		if token == "" {
			continue
		}
		if m, ok := table.names[token]; ok {
			return m, true
		}
	}
	return 0, false
}

// MonthName returns the capitalized Spanish name of month m (1..12).
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return cases.Title(language.Spanish).String(spanishMonths[m-1])
}

// =============================================================================
// INVOICE NUMBER
// =============================================================================

// NormalizeInvoiceNumber trims s and strips the trailing ".0" that spreadsheet
// tools append to whole numbers. Stripping repeats until the value is stable,
// so the result is a fixed point.
func NormalizeInvoiceNumber(s string) string {
	for {
		next := strings.TrimSuffix(strings.TrimSpace(s), ".0")
		if next == s {
			return s
		}
		s = next
	}
}
