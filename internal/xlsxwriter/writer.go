// =============================================================================
// Invoice Billing Converter - Workbook Writer
// =============================================================================
//
// Serializes flattened output rows into the accounting system's import
// workbook: one sheet named "Sheet1", a header row with the column names,
// then the data rows. Column order and widths are fixed by the import format.
//
// CELL TYPES:
//   - int / float64 cells are written as numbers
//   - "" cells are left empty (no cell is created)
//   - other strings are written as text
//
// =============================================================================

package xlsxwriter

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
)

// SheetName is the single sheet of the generated workbook.
const SheetName = "Sheet1"

// Column is one output column and its display width in characters.
type Column struct {
	Name  string
	Width float64
}

// Columns is the fixed import layout.
var Columns = [...]Column{
	{"NUMERODECONTROL", 18},
	{"CLIENTE", 40},
	{"TIPO", 6},
	{"NUMERO", 20},
	{"FECHA", 12},
	{"VENCIMIENTODELCOBRO", 20},
	{"COMPROBANTEASOCIADO", 20},
	{"MONEDA", 18},
	{"COTIZACION", 12},
	{"OBSERVACIONES", 80},
	{"PRODUCTOSERVICIO", 25},
	{"CENTRODECOSTO", 15},
	{"PRODUCTOOBSERVACION", 25},
	{"CANTIDAD", 10},
	{"PRECIO", 15},
	{"DESCUENTO", 12},
	{"IMPORTE", 15},
	{"IVA", 15},
}

// Write renders rows into an .xlsx document.
//
// RETURNS:
//   - The workbook bytes.
//   - An error if a row has the wrong number of cells or excelize fails.
func Write(rows []types.OutputRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, col := range Columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, name, name, col.Width); err != nil {
			return nil, fmt.Errorf("failed to set width of column %s: %w", col.Name, err)
		}
		if err := f.SetCellStr(SheetName, name+"1", col.Name); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for r, row := range rows {
		if len(row) != len(Columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", r+1, len(row), len(Columns))
		}
		for c, value := range row {
			if s, ok := value.(string); ok && s == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
