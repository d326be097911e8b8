package ingest

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readXLSXRows reads the first sheet of an XLSX export with the same
// semantics as the CSV path: first row is the header, remaining rows are
// data. excelize drops trailing empty cells, which the row-width repair pads
// back.
func readXLSXRows(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, fmt.Errorf("%s: no sheets", path)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s of %s: %w", sheet, path, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%s: empty file (no header)", path)
	}

	header := rows[0]
	if len(header) < ExpectedColumns {
		// Trailing empty header cells are dropped by excelize; restore them.
		padded := make([]string, ExpectedColumns)
		copy(padded, header)
		header = padded
	}
	return header, rows[1:], nil
}
