package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline. Callers match them with errors.Is.
var (
	ErrMissingSheet             = errors.New("required sheet not found")
	ErrEmptyInput               = errors.New("input contains no valid rows")
	ErrNoEligibleRecords        = errors.New("no eligible records for credit notes")
	ErrMonthNotFound            = errors.New("no month name found in filename")
	ErrJurisdictionNotSupported = errors.New("document kind not supported for jurisdiction")
	ErrPeriodLocked             = errors.New("period is locked by another run")
)

// SheetNotFoundError reports a workbook without the expected sheet.
type SheetNotFoundError struct {
	Sheet     string
	Available []string
}

func (e *SheetNotFoundError) Error() string {
	if e.Sheet == "" {
		return "workbook has no sheets"
	}
	return fmt.Sprintf("sheet %q not found (available: %v)", e.Sheet, e.Available)
}

func (e *SheetNotFoundError) Is(target error) bool {
	return target == ErrMissingSheet
}

// ExternalIOError wraps a failure of the store, the artifact store or the mailer.
type ExternalIOError struct {
	Op  string
	Err error
}

func (e *ExternalIOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalIOError) Unwrap() error {
	return e.Err
}

// External wraps err as an ExternalIOError, returning nil for a nil err.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalIOError{Op: op, Err: err}
}
