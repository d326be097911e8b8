package normalize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/sales_insight_backend/config"
	"github.com/mmdatafocus/sales_insight_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// tableStage identifies this pipeline stage in the DQ audit trail.
const tableStage = "canonical_sales"

// Engine is the canonical upsert engine: it reads raw rows through the
// mapping projection, validates and classifies each one, records DQ findings,
// and performs the idempotent canonical insert. One gorm transaction per row:
// the row's findings and its canonical record commit together or not at all.
type Engine struct {
	db         *gorm.DB
	mapping    *config.Mapping
	classifier *Classifier
	logger     *logrus.Logger
}

// Options scopes a run. An empty BatchId processes every raw row; idempotency
// by fingerprint makes overlapping scopes safe.
type Options struct {
	BatchId string
}

func NewEngine(db *gorm.DB, mapping *config.Mapping, logger *logrus.Logger) *Engine {
	return &Engine{
		db:         db,
		mapping:    mapping,
		classifier: NewClassifier(mapping.ReturnMarkers),
		logger:     logger,
	}
}

// rawRow is the fixed projection of labeled columns the engine reads.
// Pointers distinguish NULL from empty text.
type rawRow struct {
	SourceSystem string
	SourceFile   *string
	LoadBatchId  *string
	RowHash      string

	SalespersonId       *string
	ProductId           *string
	TransactionTypeRaw  *string
	InvoiceId           *string
	CustomerId          *string
	SystemDateJalali    *string
	ReferenceDateJalali *string

	Quantity       *string
	UnitPrice      *string
	GrossAmount    *string
	DiscountVolume *string
	DiscountCash   *string
	NetAmount      *string

	IngestedAt *time.Time
}

// rowValues accumulates per-row state as the row moves through the state
// machine RECEIVED → NUMERIC_VALIDATED → CLASSIFIED → DATE_VALIDATED →
// INSERTED (terminal SKIPPED from any validation state).
type rowValues struct {
	quantity       *decimal.Decimal
	unitPrice      *decimal.Decimal
	grossAmount    *decimal.Decimal
	discountAmount decimal.Decimal
	netAmount      *decimal.Decimal

	class     Classification
	eventDate *time.Time
}

// Run processes all raw rows in scope in one sequential pass. A storage
// failure anywhere aborts the run; skipped rows do not.
func (e *Engine) Run(ctx context.Context, opts Options) (*RunReport, error) {
	rows, err := e.fetchRows(ctx, opts)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"module":   "normalize",
		"source":   e.mapping.SourceSystem,
		"rows":     len(rows),
		"batch_id": opts.BatchId,
	}).Info("normalization run started")

	report := &RunReport{}
	for i := range rows {
		row := &rows[i]
		report.Processed++

		var skip *SkipEntry
		txErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var perr error
			skip, perr = e.processRow(tx, row)
			return perr
		})
		if txErr != nil {
			config.LogError(e.logger, "normalize", "Run", "row processing aborted", row.RowHash, txErr)
			return report, fmt.Errorf("process row %s: %w", row.RowHash, txErr)
		}

		if skip != nil {
			report.addSkip(*skip)
		} else {
			report.InsertedAttempted++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"module":    "normalize",
		"processed": report.Processed,
		"inserted":  report.InsertedAttempted,
		"skipped":   report.Skipped,
	}).Info("normalization run finished")

	return report, nil
}

// fetchRows projects the raw table through the mapping contract. Column
// positions were validated against c01..c61 when the mapping loaded, so the
// generated SELECT contains nothing caller-controlled.
func (e *Engine) fetchRows(ctx context.Context, opts Options) ([]rawRow, error) {
	cols := e.mapping.Columns
	query := fmt.Sprintf(`select
		source_system, source_file, load_batch_id, row_hash,
		%s as salesperson_id,
		%s as product_id,
		%s as transaction_type_raw,
		%s as invoice_id,
		%s as customer_id,
		%s as system_date_jalali,
		%s as reference_date_jalali,
		%s as quantity,
		%s as unit_price,
		%s as gross_amount,
		%s as discount_volume,
		%s as discount_cash,
		%s as net_amount,
		ingested_at
	from %s`,
		cols.SalespersonID, cols.ProductID, cols.TransactionType,
		cols.InvoiceID, cols.CustomerID, cols.SystemDate, cols.ReferenceDate,
		cols.Quantity, cols.UnitPrice, cols.GrossAmount,
		cols.DiscountVolume, cols.DiscountCash, cols.NetAmount,
		e.mapping.RawTable,
	)

	var rows []rawRow
	var err error
	if strings.TrimSpace(opts.BatchId) != "" {
		err = e.db.WithContext(ctx).Raw(query+" where load_batch_id = ?", opts.BatchId).Scan(&rows).Error
	} else {
		err = e.db.WithContext(ctx).Raw(query).Scan(&rows).Error
	}
	if err != nil {
		return nil, fmt.Errorf("fetch raw rows from %s: %w", e.mapping.RawTable, err)
	}
	return rows, nil
}

// processRow runs one row through the state machine. A non-nil SkipEntry is
// the terminal SKIPPED state; a nil, nil return means the canonical insert was
// attempted. Any error is an infrastructure failure and rolls the row back.
func (e *Engine) processRow(tx *gorm.DB, row *rawRow) (*SkipEntry, error) {
	vals := &rowValues{}

	if skip, err := e.checkInvoiceId(tx, row); skip != nil || err != nil {
		return skip, err
	}
	if skip, err := e.validateNumerics(tx, row, vals); skip != nil || err != nil {
		return skip, err
	}
	if err := e.classify(tx, row, vals); err != nil {
		return nil, err
	}
	if skip, err := e.validateEventDate(tx, row, vals); skip != nil || err != nil {
		return skip, err
	}
	return nil, e.insertCanonical(tx, row, vals)
}

// checkInvoiceId is the RECEIVED state: a row without a business key cannot be
// remediated downstream.
func (e *Engine) checkInvoiceId(tx *gorm.DB, row *rawRow) (*SkipEntry, error) {
	if row.InvoiceId != nil && strings.TrimSpace(*row.InvoiceId) != "" {
		return nil, nil
	}

	if err := e.record(tx, row, models.DQIssue{
		IssueCode:        models.IssueCodeMissingInvoiceID,
		IssueDescription: "invoice id is null or blank",
		ColumnName:       "invoice_id",
		RawValue:         deref(row.InvoiceId),
	}); err != nil {
		return nil, err
	}

	return &SkipEntry{
		RowHash: row.RowHash,
		Reason:  models.SkipReasonMissingInvoiceID,
	}, nil
}

// validateNumerics is the NUMERIC_VALIDATED state. Discount components
// default to zero; the four required amounts must parse. One finding per
// failing column, each carrying the pre-parse raw text.
func (e *Engine) validateNumerics(tx *gorm.DB, row *rawRow, vals *rowValues) (*SkipEntry, error) {
	vals.quantity = ParseNumeric(row.Quantity)
	vals.unitPrice = ParseNumeric(row.UnitPrice)
	vals.grossAmount = ParseNumeric(row.GrossAmount)
	vals.netAmount = ParseNumeric(row.NetAmount)

	discountVolume := ParseNumeric(row.DiscountVolume)
	discountCash := ParseNumeric(row.DiscountCash)
	vals.discountAmount = decimal.Zero
	if discountVolume != nil {
		vals.discountAmount = vals.discountAmount.Add(*discountVolume)
	}
	if discountCash != nil {
		vals.discountAmount = vals.discountAmount.Add(*discountCash)
	}

	cols := e.mapping.Columns
	required := []struct {
		name     string
		position string
		parsed   *decimal.Decimal
		raw      *string
	}{
		{"quantity", cols.Quantity, vals.quantity, row.Quantity},
		{"unit_price", cols.UnitPrice, vals.unitPrice, row.UnitPrice},
		{"gross_amount", cols.GrossAmount, vals.grossAmount, row.GrossAmount},
		{"net_amount", cols.NetAmount, vals.netAmount, row.NetAmount},
	}

	var failed []string
	for _, field := range required {
		if field.parsed != nil {
			continue
		}
		failed = append(failed, field.name)
		if err := e.record(tx, row, models.DQIssue{
			IssueCode:        models.IssueCodeInvalidNumeric,
			IssueDescription: fmt.Sprintf("%s (%s) is not a valid number", field.name, field.position),
			ColumnName:       field.name,
			RawValue:         deref(field.raw),
		}); err != nil {
			return nil, err
		}
	}
	if len(failed) == 0 {
		return nil, nil
	}

	return &SkipEntry{
		RowHash:       row.RowHash,
		InvoiceId:     deref(row.InvoiceId),
		FailedColumns: strings.Join(failed, ";"),
		Reason:        models.SkipReasonInvalidNumeric,
	}, nil
}

// classify is the CLASSIFIED state. All findings here are advisory: they
// never change the row's outcome.
func (e *Engine) classify(tx *gorm.DB, row *rawRow, vals *rowValues) error {
	vals.class = e.classifier.Classify(
		vals.netAmount, vals.quantity,
		row.TransactionTypeRaw,
		row.SystemDateJalali, row.ReferenceDateJalali,
	)

	if vals.class.TransactionType == models.TransactionTypeReturn && vals.quantity.IsPositive() {
		if err := e.record(tx, row, models.DQIssue{
			IssueCode:        models.IssueCodePositiveQtyOnReturn,
			IssueDescription: "row classified RETURN but quantity is positive",
			ColumnName:       "quantity",
			RawValue:         deref(row.Quantity),
		}); err != nil {
			return err
		}
	}
	if vals.class.TransactionType == models.TransactionTypeSale && vals.quantity.IsNegative() {
		if err := e.record(tx, row, models.DQIssue{
			IssueCode:        models.IssueCodeNegativeQtyOnSale,
			IssueDescription: "row classified SALE but quantity is negative",
			ColumnName:       "quantity",
			RawValue:         deref(row.Quantity),
		}); err != nil {
			return err
		}
	}
	if vals.class.UsedFallbackDate {
		if err := e.record(tx, row, models.DQIssue{
			IssueCode:        models.IssueCodeFallbackEventDate,
			IssueDescription: "reference date absent; sale dated by system date",
			ColumnName:       "reference_date",
			RawValue:         deref(row.ReferenceDateJalali),
		}); err != nil {
			return err
		}
	}

	// Independent of classification: opposite signs on quantity and net
	// amount point at an upstream capture defect.
	if !vals.quantity.IsZero() && !vals.netAmount.IsZero() &&
		vals.quantity.Sign() != vals.netAmount.Sign() {
		if err := e.record(tx, row, models.DQIssue{
			IssueCode: models.IssueCodeSignMismatchQtyAmount,
			IssueDescription: fmt.Sprintf("quantity %s and net amount %s have opposite signs",
				vals.quantity.String(), vals.netAmount.String()),
			ColumnName: "net_amount",
			RawValue:   deref(row.NetAmount),
		}); err != nil {
			return err
		}
	}

	return nil
}

// validateEventDate is the DATE_VALIDATED state: the selected event date must
// convert to Gregorian.
func (e *Engine) validateEventDate(tx *gorm.DB, row *rawRow, vals *rowValues) (*SkipEntry, error) {
	vals.eventDate = JalaliToGregorian(vals.class.EventDateRaw)
	if vals.eventDate != nil {
		return nil, nil
	}

	if err := e.record(tx, row, models.DQIssue{
		IssueCode:        models.IssueCodeInvalidDate,
		IssueDescription: fmt.Sprintf("event date (%s) did not convert to a Gregorian date", vals.class.EventDateSource),
		ColumnName:       string(vals.class.EventDateSource),
		RawValue:         deref(vals.class.EventDateRaw),
	}); err != nil {
		return nil, err
	}

	return &SkipEntry{
		RowHash:             row.RowHash,
		InvoiceId:           deref(row.InvoiceId),
		TransactionType:     string(vals.class.TransactionType),
		SystemDateJalali:    deref(row.SystemDateJalali),
		ReferenceDateJalali: deref(row.ReferenceDateJalali),
		Reason:              models.SkipReasonMissingEventDate,
	}, nil
}

// insertCanonical is the INSERTED state.
func (e *Engine) insertCanonical(tx *gorm.DB, row *rawRow, vals *rowValues) error {
	rec := &models.CanonicalSalesRecord{
		SourceSystem: row.SourceSystem,
		RawRowHash:   row.RowHash,
		SourceFile:   deref(row.SourceFile),
		LoadBatchId:  deref(row.LoadBatchId),

		InvoiceId:     strings.TrimSpace(deref(row.InvoiceId)),
		CustomerId:    strings.TrimSpace(deref(row.CustomerId)),
		ProductId:     strings.TrimSpace(deref(row.ProductId)),
		SalespersonId: strings.TrimSpace(deref(row.SalespersonId)),

		InvoiceDateJalali:    strings.TrimSpace(deref(vals.class.EventDateRaw)),
		InvoiceDateGregorian: *vals.eventDate,

		TransactionType: vals.class.TransactionType,
		Sign:            vals.class.Sign,

		Quantity:       *vals.quantity,
		UnitPrice:      *vals.unitPrice,
		GrossAmount:    *vals.grossAmount,
		DiscountAmount: vals.discountAmount,
		NetAmount:      *vals.netAmount,

		IngestedAt: row.IngestedAt,
	}

	_, err := models.InsertCanonicalSalesRecord(tx, rec)
	return err
}

func (e *Engine) record(tx *gorm.DB, row *rawRow, issue models.DQIssue) error {
	issue.SourceSystem = row.SourceSystem
	issue.SourceFile = deref(row.SourceFile)
	issue.LoadBatchId = deref(row.LoadBatchId)
	issue.TableStage = tableStage
	if issue.RecordBusinessKey == nil && row.InvoiceId != nil && strings.TrimSpace(*row.InvoiceId) != "" {
		key := strings.TrimSpace(*row.InvoiceId)
		issue.RecordBusinessKey = &key
	}
	return models.RecordDQIssue(tx, &issue)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
