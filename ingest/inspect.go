package ingest

import (
	"fmt"
	"strings"
)

// InspectReport summarizes an export file's row-width health without writing
// anything. Used to decide whether a file is safe to load.
type InspectReport struct {
	FileName      string
	HeaderColumns int
	DataRows      int
	FixedShort    int
	FixedTrailing int
	BadRows       int
	Examples      []string
}

const maxInspectExamples = 5

// Inspect dry-runs the row-width repair over a file.
func Inspect(path string) (*InspectReport, error) {
	header, rows, err := readRows(path)
	if err != nil {
		return nil, err
	}

	report := &InspectReport{
		FileName:      path,
		HeaderColumns: len(header),
	}

	for i, row := range rows {
		report.DataRows++
		_, kind := repairRow(row, len(header))
		switch kind {
		case repairPadded:
			report.FixedShort++
		case repairTrimmed:
			report.FixedTrailing++
		case repairRejected:
			report.BadRows++
			if len(report.Examples) < maxInspectExamples {
				report.Examples = append(report.Examples,
					fmt.Sprintf("line %d: %d columns, extras: %v", i+2, len(row), row[len(header):]))
			}
		}
	}
	return report, nil
}

func (r *InspectReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", r.FileName)
	fmt.Fprintf(&b, "Header columns: %d\n", r.HeaderColumns)
	fmt.Fprintf(&b, "Data rows: %d\n", r.DataRows)
	fmt.Fprintf(&b, "Fixed short rows (padded): %d\n", r.FixedShort)
	fmt.Fprintf(&b, "Fixed trailing-empty extra cols (trimmed): %d\n", r.FixedTrailing)
	fmt.Fprintf(&b, "Bad rows (not auto-fixable): %d\n", r.BadRows)
	for _, ex := range r.Examples {
		fmt.Fprintf(&b, "  %s\n", ex)
	}
	return b.String()
}
