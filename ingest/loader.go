package ingest

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmdatafocus/sales_insight_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExpectedColumns is the fixed width of the source export.
const ExpectedColumns = models.RawColumnCount

// ingestStage identifies this pipeline stage in the DQ audit trail.
const ingestStage = "raw_ingest"

// Loader bulk-inserts raw export rows verbatim. Deduplication is delegated to
// the store's unique (source_system, row_hash) constraint: re-loading the same
// file, or overlapping files, is always safe.
type Loader struct {
	db           *gorm.DB
	logger       *logrus.Logger
	sourceSystem string
	rawTable     string
	chunkSize    int
}

// LoadResult reports one file's ingestion.
type LoadResult struct {
	FileName          string
	RowsRead          int
	RowsPadded        int
	RowsTrimmed       int
	RowsRejected      int
	RowsPresent       int64
	DuplicatesSkipped int64
}

func NewLoader(db *gorm.DB, logger *logrus.Logger, sourceSystem, rawTable string, chunkSize int) *Loader {
	// 66 placeholders per row; 500 rows stays well under MySQL's prepared
	// statement placeholder limit.
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Loader{
		db:           db,
		logger:       logger,
		sourceSystem: sourceSystem,
		rawTable:     rawTable,
		chunkSize:    chunkSize,
	}
}

// RowHash fingerprints one row: sha256 over the whitespace-trimmed values
// joined by a unit separator. The same content always hashes the same, which
// is what both raw dedup and canonical idempotency hang off.
func RowHash(values []string) string {
	trimmed := make([]string, len(values))
	for i, v := range values {
		trimmed[i] = strings.TrimSpace(v)
	}
	sum := sha256.Sum256([]byte(strings.Join(trimmed, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// LoadFile reads one export (CSV or XLSX by extension), repairs row widths,
// and inserts the rows in one transaction. Repairs and rejects become
// ingest-stage DQ findings in the same transaction.
func (l *Loader) LoadFile(ctx context.Context, path, batchId string) (*LoadResult, error) {
	header, rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	if len(header) != ExpectedColumns {
		return nil, fmt.Errorf("%s: header has %d columns, expected %d", path, len(header), ExpectedColumns)
	}

	result := &LoadResult{FileName: filepath.Base(path)}
	now := time.Now().UTC()

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending := make([][]string, 0, l.chunkSize)
		flush := func() error {
			if len(pending) == 0 {
				return nil
			}
			args := make([]interface{}, 0, len(pending)*(ExpectedColumns+5))
			for _, fixed := range pending {
				args = append(args, l.sourceSystem, result.FileName, batchId, RowHash(fixed))
				for _, v := range fixed {
					args = append(args, strings.TrimSpace(v))
				}
				args = append(args, now)
			}
			if err := tx.Exec(l.buildInsertSQL(len(pending)), args...).Error; err != nil {
				return fmt.Errorf("insert raw chunk (%d rows): %w", len(pending), err)
			}
			pending = pending[:0]
			return nil
		}

		for i, row := range rows {
			lineNo := i + 2 // header is line 1
			result.RowsRead++

			fixed, kind := repairRow(row, ExpectedColumns)
			switch kind {
			case repairPadded:
				result.RowsPadded++
			case repairTrimmed:
				result.RowsTrimmed++
			case repairRejected:
				result.RowsRejected++
				if err := l.recordRepair(tx, result.FileName, batchId, models.IssueCodeRowWidthUnfixable,
					fmt.Sprintf("line %d: %d columns with non-empty extras, expected %d; row rejected", lineNo, len(row), ExpectedColumns)); err != nil {
					return err
				}
				continue
			}
			if kind == repairPadded || kind == repairTrimmed {
				if err := l.recordRepair(tx, result.FileName, batchId, models.IssueCodeRowWidthRepaired,
					fmt.Sprintf("line %d: %d columns repaired to %d", lineNo, len(row), ExpectedColumns)); err != nil {
					return err
				}
			}

			pending = append(pending, fixed)
			if len(pending) >= l.chunkSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})
	if err != nil {
		return nil, err
	}

	if err := l.db.WithContext(ctx).Table(l.rawTable).
		Where("load_batch_id = ? and source_file = ?", batchId, result.FileName).
		Count(&result.RowsPresent).Error; err != nil {
		return nil, fmt.Errorf("count loaded rows: %w", err)
	}
	loaded := int64(result.RowsRead - result.RowsRejected)
	if result.RowsPresent < loaded {
		result.DuplicatesSkipped = loaded - result.RowsPresent
	}

	l.logger.WithFields(logrus.Fields{
		"module":     "ingest",
		"file":       result.FileName,
		"batch_id":   batchId,
		"rows_read":  result.RowsRead,
		"present":    result.RowsPresent,
		"duplicates": result.DuplicatesSkipped,
		"rejected":   result.RowsRejected,
	}).Info("raw load finished")

	return result, nil
}

// buildInsertSQL creates the multi-row verbatim-insert statement. Duplicate
// fingerprints are ignored by the store, not treated as errors.
func (l *Loader) buildInsertSQL(rowCount int) string {
	verb := "insert ignore into"
	if l.db.Dialector.Name() == "sqlite" {
		verb = "insert or ignore into"
	}
	cols := append([]string{"source_system", "source_file", "load_batch_id", "row_hash"}, models.RawColumnNames()...)
	cols = append(cols, "ingested_at")
	group := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	groups := make([]string, rowCount)
	for i := range groups {
		groups[i] = group
	}
	return fmt.Sprintf("%s %s (%s) values %s",
		verb, l.rawTable,
		strings.Join(cols, ", "),
		strings.Join(groups, ", "),
	)
}

func (l *Loader) recordRepair(tx *gorm.DB, fileName, batchId string, code models.IssueCode, description string) error {
	return models.RecordDQIssue(tx, &models.DQIssue{
		SourceSystem:     l.sourceSystem,
		SourceFile:       fileName,
		LoadBatchId:      batchId,
		TableStage:       ingestStage,
		IssueCode:        code,
		IssueDescription: description,
	})
}

// readRows returns the header row and all data rows of an export file.
func readRows(path string) ([]string, [][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readXLSXRows(path)
	}
	return readCSVRows(path)
}

func readCSVRows(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	skipBOM(br)

	r := csv.NewReader(br)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1 // widths are checked and repaired per row

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%s: empty file (no header)", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// skipBOM discards a UTF-8 byte order mark; the ERP writes one.
func skipBOM(br *bufio.Reader) {
	bom := []byte{0xEF, 0xBB, 0xBF}
	if peeked, err := br.Peek(3); err == nil && bytes.Equal(peeked, bom) {
		br.Discard(3)
	}
}
