package canonical

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// ReportingPeriod is the calendar month an invoice batch bills for.
type ReportingPeriod struct {
	Year  int
	Month int
}

// NewPeriod validates month and returns the period.
func NewPeriod(year, month int) (ReportingPeriod, error) {
	if month < 1 || month > 12 {
		return ReportingPeriod{}, fmt.Errorf("month %d out of range 1..12", month)
	}
	if year < 1 {
		return ReportingPeriod{}, fmt.Errorf("year %d out of range", year)
	}
	return ReportingPeriod{Year: year, Month: month}, nil
}

// IssueDate is the last day of the period's month.
func (p ReportingPeriod) IssueDate() time.Time {
	return time.Date(p.Year, time.Month(p.Month)+1, 0, 0, 0, 0, 0, time.UTC)
}

// DueDate is the last day of the following month; December rolls into January
// of the next year.
func (p ReportingPeriod) DueDate() time.Time {
	return time.Date(p.Year, time.Month(p.Month)+2, 0, 0, 0, 0, 0, time.UTC)
}

// IssueDateISO formats IssueDate as YYYY-MM-DD.
func (p ReportingPeriod) IssueDateISO() string { return p.IssueDate().Format(isoDate) }

// DueDateISO formats DueDate as YYYY-MM-DD.
func (p ReportingPeriod) DueDateISO() string { return p.DueDate().Format(isoDate) }

// MonthName is the Spanish month name used in artifact names and descriptions.
func (p ReportingPeriod) MonthName() string { return MonthName(p.Month) }

// Key is the period as YYYY-MM.
func (p ReportingPeriod) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Description is the detail-row text "<Mes>, <year>".
func (p ReportingPeriod) Description() string {
	return fmt.Sprintf("%s, %d", p.MonthName(), p.Year)
}

// Previous returns the month before p.
func (p ReportingPeriod) Previous() ReportingPeriod {
	if p.Month == 1 {
		return ReportingPeriod{Year: p.Year - 1, Month: 12}
	}
	return ReportingPeriod{Year: p.Year, Month: p.Month - 1}
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) ReportingPeriod {
	return ReportingPeriod{Year: t.Year(), Month: int(t.Month())}
}

// ParseMonthArgument accepts "1".."12", "01".."12" or any name in the table.
func ParseMonthArgument(s string, table MonthTable) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return 0, fmt.Errorf("month %d out of range 1..12", n)
		}
		return n, nil
	}
	if m, ok := table.Lookup(s); ok {
		return m, nil
	}
	return 0, fmt.Errorf("unrecognized month %q", s)
}
