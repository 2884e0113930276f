// =============================================================================
// Invoice Billing Converter - Row Validator
// =============================================================================
//
// Validates summary records before anything is written anywhere.
//
// RULES (checked in this order, first failure wins):
//   1. "Invoice #" is present and not blank
//   2. "Agency" is present and not blank
//   3. "Client" is present and not blank
//   4. "Gross Invoice" parses as a number, when present
//   5. "Net Invoice" parses as a number, when present
//
// ERROR HANDLING:
//   - Validation returns a Result value; it never panics or throws
//   - The failing row number is 1-based over the record sequence, the sheet
//     row is carried alongside for troubleshooting
//   - ValidateAll stops at the first invalid record
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// Rule names carried by ValidationError.
const (
	RuleRequired = "required"
	RuleNumeric  = "numeric"
)

// ValidationError describes the first rule a record violated.
type ValidationError struct {
	// RowNumber is the 1-based position of the record in the batch.
	RowNumber int

	// SheetRow is the 1-based row in the source sheet, 0 when unknown.
	SheetRow int

	// Field is the column header that failed validation.
	Field string

	// Value is the offending cell text.
	Value string

	// Rule is the validation rule that was violated.
	Rule string

	// Message is a human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.SheetRow > 0 {
		return fmt.Sprintf("row %d (sheet row %d): %s", e.RowNumber, e.SheetRow, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Message)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// Result is the outcome of validating one record or a batch.
type Result struct {
	// Valid is true when no rule failed.
	Valid bool

	// Error is set when Valid is false.
	Error *ValidationError

	// RecordsChecked counts records examined before stopping.
	RecordsChecked int
}

// Err returns the failure as an error, or nil for a valid result.
func (r Result) Err() error {
	if r.Valid || r.Error == nil {
		return nil
	}
	return r.Error
}

func valid(checked int) Result {
	return Result{Valid: true, RecordsChecked: checked}
}

func invalid(e *ValidationError, checked int) Result {
	return Result{Error: e, RecordsChecked: checked}
}

// =============================================================================
// VALIDATION FUNCTIONS
// =============================================================================

// ValidateRecord checks one record. index is its 0-based position in the batch.
func ValidateRecord(rec types.SummaryRecord, index int) Result {
	row := index + 1

	for _, field := range []string{types.ColInvoiceNumber, types.ColAgency, types.ColClient} {
		if rec.Field(field) == "" {
			return invalid(&ValidationError{
				RowNumber: row,
				SheetRow:  rec.RowNumber,
				Field:     field,
				Value:     rec.Fields[field],
				Rule:      RuleRequired,
				Message:   fmt.Sprintf("'%s' is required", field),
			}, 1)
		}
	}

	for _, field := range []string{types.ColGross, types.ColNet} {
		value := rec.Field(field)
		if value == "" {
			continue
		}
		if _, err := decimal.NewFromString(value); err != nil {
			return invalid(&ValidationError{
				RowNumber: row,
				SheetRow:  rec.RowNumber,
				Field:     field,
				Value:     value,
				Rule:      RuleNumeric,
				Message:   fmt.Sprintf("'%s' must be numeric (got %q)", field, value),
			}, 1)
		}
	}

	return valid(1)
}

// ValidateAll checks records in order and stops at the first failure.
func ValidateAll(records []types.SummaryRecord) Result {
	for i, rec := range records {
		if r := ValidateRecord(rec, i); !r.Valid {
			r.RecordsChecked = i + 1
			return r
		}
	}
	return valid(len(records))
}

// FormatError renders a failed result as a multi-line report for the console.
func FormatError(r Result) string {
	if r.Valid || r.Error == nil {
		return "validation passed"
	}

	var sb strings.Builder
	sb.WriteString("Validation failed\n")
	sb.WriteString(fmt.Sprintf("  Row:     %d\n", r.Error.RowNumber))
	if r.Error.SheetRow > 0 {
		sb.WriteString(fmt.Sprintf("  Sheet:   row %d\n", r.Error.SheetRow))
	}
	sb.WriteString(fmt.Sprintf("  Field:   %s\n", r.Error.Field))
	sb.WriteString(fmt.Sprintf("  Rule:    %s\n", r.Error.Rule))
	sb.WriteString(fmt.Sprintf("  Value:   %q\n", r.Error.Value))
	sb.WriteString(fmt.Sprintf("  Message: %s\n", r.Error.Message))
	return sb.String()
}
