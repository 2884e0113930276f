// =============================================================================
// Invoice Billing Converter - CSV Ledger Reader
// =============================================================================
//
// The accounting system can export its issued-documents list as CSV instead
// of a workbook. This module reads such exports into the same LedgerRecord
// sequence the workbook reader produces.
//
// FEATURES:
//   - Configurable delimiter (comma, semicolon, tab, pipe)
//   - Legacy encodings (ISO-8859-1, Windows-1252) decoded to UTF-8
//   - UTF-8 byte-order mark stripped from the first header
//   - Ragged rows tolerated (missing trailing cells read as "")
//
// =============================================================================

package csvparser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/invoice-billing-converter/internal/config"
	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
	"github.com/ginjaninja78/invoice-billing-converter/internal/xlsxparser"
)

// ReadLedger parses a CSV ledger export.
//
// PARAMETERS:
//   - data:     The raw file bytes.
//   - settings: Delimiter and encoding from the configuration.
//
// RETURNS:
//   - Ledger records with a document id and a memo, in file order.
//   - An error if the file cannot be decoded or parsed.
func ReadLedger(data []byte, settings config.LedgerSettings) ([]types.LedgerRecord, error) {
	var reader io.Reader = bytes.NewReader(data)

	decoder, err := getDecoder(settings.Encoding)
	if err != nil {
		return nil, err
	}
	if decoder != nil {
		reader = transform.NewReader(reader, decoder.NewDecoder())
	}

	csvReader := csv.NewReader(reader)
	if err := configureReader(csvReader, settings); err != nil {
		return nil, err
	}

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(allRows) == 0 {
		return nil, nil
	}

	header := allRows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	return xlsxparser.LedgerFromRows(header, allRows[1:], 2), nil
}

// configureReader configures the CSV reader based on settings.
func configureReader(reader *csv.Reader, settings config.LedgerSettings) error {
	delimiter := settings.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	if delimiter == "\\t" {
		delimiter = "\t"
	}

	r, size := utf8.DecodeRuneInString(delimiter)
	if size != len(delimiter) {
		return fmt.Errorf("delimiter %q must be a single character", settings.Delimiter)
	}
	reader.Comma = r

	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	return nil
}

// getDecoder returns the charmap for a legacy encoding, or nil for UTF-8.
func getDecoder(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "UTF-8", "UTF8":
		return nil, nil
	case "ISO-8859-1", "LATIN1":
		return charmap.ISO8859_1, nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}
