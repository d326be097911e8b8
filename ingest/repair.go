package ingest

import "strings"

type repairKind int

const (
	repairNone repairKind = iota
	repairPadded
	repairTrimmed
	repairRejected
)

// repairRow fixes the two benign width defects the export is known to
// produce: short rows (padded with empty strings) and trailing all-empty
// extra columns (trimmed). A row with non-empty extras cannot be fixed
// automatically and is rejected.
func repairRow(row []string, expected int) ([]string, repairKind) {
	if len(row) == expected {
		return row, repairNone
	}

	if len(row) > expected {
		for _, extra := range row[expected:] {
			if strings.TrimSpace(extra) != "" {
				return nil, repairRejected
			}
		}
		return row[:expected], repairTrimmed
	}

	fixed := make([]string, expected)
	copy(fixed, row)
	return fixed, repairPadded
}
