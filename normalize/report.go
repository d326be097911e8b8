package normalize

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/mmdatafocus/sales_insight_backend/models"
)

// SkipEntry identifies one skipped row with enough context for manual
// remediation and re-ingestion. Only the fields relevant to the reason are
// populated.
type SkipEntry struct {
	RowHash             string
	InvoiceId           string
	TransactionType     string
	SystemDateJalali    string
	ReferenceDateJalali string
	FailedColumns       string
	Reason              models.SkipReason
}

// RunReport carries one run's counters. Ephemeral: printed and optionally
// written as a skip-report file, never persisted.
type RunReport struct {
	Processed         int
	InsertedAttempted int
	Skipped           int
	SkippedRows       []SkipEntry
}

func (r *RunReport) addSkip(entry SkipEntry) {
	r.Skipped++
	r.SkippedRows = append(r.SkippedRows, entry)
}

func (r *RunReport) Summary() string {
	return fmt.Sprintf("Processed: %d\nInserted (attempted): %d\nSkipped: %d",
		r.Processed, r.InsertedAttempted, r.Skipped)
}

// skipColumns defines the report column order. A column appears only when at
// least one entry populated it, so the header follows the reasons present in
// the run.
var skipColumns = []struct {
	header string
	value  func(SkipEntry) string
}{
	{"row_hash", func(e SkipEntry) string { return e.RowHash }},
	{"invoice_id", func(e SkipEntry) string { return e.InvoiceId }},
	{"transaction_type", func(e SkipEntry) string { return e.TransactionType }},
	{"system_date_jalali", func(e SkipEntry) string { return e.SystemDateJalali }},
	{"reference_date_jalali", func(e SkipEntry) string { return e.ReferenceDateJalali }},
	{"failed_columns", func(e SkipEntry) string { return e.FailedColumns }},
	{"reason", func(e SkipEntry) string { return string(e.Reason) }},
}

// WriteSkipReport writes one CSV row per skipped record. No-op when nothing
// was skipped.
func (r *RunReport) WriteSkipReport(path string) error {
	if len(r.SkippedRows) == 0 {
		return nil
	}

	used := make([]bool, len(skipColumns))
	for _, entry := range r.SkippedRows {
		for i, col := range skipColumns {
			if col.value(entry) != "" {
				used[i] = true
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create skip report %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, 0, len(skipColumns))
	for i, col := range skipColumns {
		if used[i] {
			header = append(header, col.header)
		}
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write skip report header: %w", err)
	}
	for _, entry := range r.SkippedRows {
		record := make([]string, 0, len(header))
		for i, col := range skipColumns {
			if used[i] {
				record = append(record, col.value(entry))
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write skip report row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
