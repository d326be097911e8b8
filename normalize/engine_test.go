package normalize

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/sales_insight_backend/config"
	"github.com/mmdatafocus/sales_insight_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := models.Migrate(db, "raw_karamad_sales"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testMapping() *config.Mapping {
	return &config.Mapping{
		Version:       2,
		SourceSystem:  "karamad",
		RawTable:      "raw_karamad_sales",
		ReturnMarkers: []string{"برگشت", "RETURN"},
		Columns: config.MappingColumns{
			SalespersonID:   "c03",
			ProductID:       "c05",
			TransactionType: "c29",
			SystemDate:      "c38",
			InvoiceID:       "c39",
			CustomerID:      "c42",
			Quantity:        "c46",
			UnitPrice:       "c47",
			GrossAmount:     "c48",
			DiscountVolume:  "c49",
			DiscountCash:    "c50",
			NetAmount:       "c52",
			ReferenceDate:   "c54",
		},
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewEngine(db, testMapping(), testLogger()), db
}

// rawFixture seeds one row of the positional raw table through the mapped
// positions. Nil pointers land as SQL NULL.
type rawFixture struct {
	rowHash       string
	batchId       string
	salespersonId *string
	productId     *string
	typeRaw       *string
	systemDate    *string
	invoiceId     *string
	customerId    *string
	quantity      *string
	unitPrice     *string
	grossAmount   *string
	discountVol   *string
	discountCash  *string
	netAmount     *string
	referenceDate *string
}

func goodSale(hash string) rawFixture {
	return rawFixture{
		rowHash:       hash,
		batchId:       "batch-1",
		salespersonId: strp("77"),
		productId:     strp("P-100"),
		typeRaw:       strp("فروش"),
		systemDate:    strp("1403/01/03"),
		invoiceId:     strp("INV-1"),
		customerId:    strp("C-9"),
		quantity:      strp("2"),
		unitPrice:     strp("1,000"),
		grossAmount:   strp("2,000"),
		discountVol:   strp("100"),
		netAmount:     strp("1,900"),
		referenceDate: strp("1403/01/01"),
	}
}

func seedRaw(t *testing.T, db *gorm.DB, f rawFixture) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(`insert into raw_karamad_sales
		(source_system, source_file, load_batch_id, row_hash,
		 c03, c05, c29, c38, c39, c42, c46, c47, c48, c49, c50, c52, c54,
		 ingested_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"karamad", "sales.csv", f.batchId, f.rowHash,
		f.salespersonId, f.productId, f.typeRaw, f.systemDate, f.invoiceId,
		f.customerId, f.quantity, f.unitPrice, f.grossAmount,
		f.discountVol, f.discountCash, f.netAmount, f.referenceDate,
		now).Error
	if err != nil {
		t.Fatalf("seed raw row %s: %v", f.rowHash, err)
	}
}

func fetchIssues(t *testing.T, db *gorm.DB) []models.DQIssue {
	t.Helper()
	var issues []models.DQIssue
	if err := db.Order("id").Find(&issues).Error; err != nil {
		t.Fatalf("fetch dq issues: %v", err)
	}
	return issues
}

func hasIssue(issues []models.DQIssue, code models.IssueCode) bool {
	for _, issue := range issues {
		if issue.IssueCode == code {
			return true
		}
	}
	return false
}

func TestEngineRun_SaleInserted(t *testing.T) {
	engine, db := newTestEngine(t)
	seedRaw(t, db, goodSale("hash-1"))

	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Processed != 1 || report.InsertedAttempted != 1 || report.Skipped != 0 {
		t.Fatalf("unexpected counters: %+v", report)
	}

	var rec models.CanonicalSalesRecord
	if err := db.First(&rec).Error; err != nil {
		t.Fatalf("fetch canonical record: %v", err)
	}
	if rec.TransactionType != models.TransactionTypeSale || rec.Sign != 1 {
		t.Fatalf("expected SALE/+1, got %s/%d", rec.TransactionType, rec.Sign)
	}
	if rec.InvoiceId != "INV-1" || rec.CustomerId != "C-9" || rec.ProductId != "P-100" {
		t.Fatalf("unexpected identifiers: %+v", rec)
	}
	if rec.InvoiceDateJalali != "1403/01/01" {
		t.Fatalf("expected reference date 1403/01/01, got %s", rec.InvoiceDateJalali)
	}
	if got := rec.InvoiceDateGregorian.UTC().Format("2006-01-02"); got != "2024-03-20" {
		t.Fatalf("expected 2024-03-20, got %s", got)
	}
	if rec.NetAmount.String() != "1900" {
		t.Fatalf("expected net 1900, got %s", rec.NetAmount)
	}
	if rec.DiscountAmount.String() != "100" {
		t.Fatalf("expected discount 100, got %s", rec.DiscountAmount)
	}

	if issues := fetchIssues(t, db); len(issues) != 0 {
		t.Fatalf("clean row must not raise findings, got %+v", issues)
	}
}

func TestEngineRun_Idempotent(t *testing.T) {
	engine, db := newTestEngine(t)
	seedRaw(t, db, goodSale("hash-1"))

	for i := 0; i < 2; i++ {
		if _, err := engine.Run(context.Background(), Options{}); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	var count int64
	if err := db.Model(&models.CanonicalSalesRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 canonical record after re-run, got %d", count)
	}
}

func TestEngineRun_InvalidNumericSkips(t *testing.T) {
	engine, db := newTestEngine(t)
	f := goodSale("hash-1")
	f.unitPrice = strp("abc")
	seedRaw(t, db, f)

	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Skipped != 1 || report.InsertedAttempted != 0 {
		t.Fatalf("unexpected counters: %+v", report)
	}
	entry := report.SkippedRows[0]
	if entry.Reason != models.SkipReasonInvalidNumeric {
		t.Fatalf("expected invalid_numeric, got %s", entry.Reason)
	}
	if !strings.Contains(entry.FailedColumns, "unit_price") {
		t.Fatalf("expected unit_price among failed columns, got %q", entry.FailedColumns)
	}

	issues := fetchIssues(t, db)
	if len(issues) != 1 || issues[0].IssueCode != models.IssueCodeInvalidNumeric {
		t.Fatalf("expected one INVALID_NUMERIC finding, got %+v", issues)
	}
	if issues[0].IssueSeverity != models.IssueSeverityError {
		t.Fatalf("expected ERROR severity, got %s", issues[0].IssueSeverity)
	}
	if issues[0].RawValue != "abc" || issues[0].ColumnName != "unit_price" {
		t.Fatalf("finding must carry the pre-parse value, got %+v", issues[0])
	}

	var count int64
	if err := db.Model(&models.CanonicalSalesRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("skipped row must not reach canonical, got %d records", count)
	}
}

func TestEngineRun_MissingInvoiceIdSkips(t *testing.T) {
	engine, db := newTestEngine(t)
	f := goodSale("hash-1")
	f.invoiceId = strp("   ")
	seedRaw(t, db, f)

	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Skipped != 1 {
		t.Fatalf("expected skip, got %+v", report)
	}
	if report.SkippedRows[0].Reason != models.SkipReasonMissingInvoiceID {
		t.Fatalf("expected missing_invoice_id, got %s", report.SkippedRows[0].Reason)
	}

	issues := fetchIssues(t, db)
	if len(issues) != 1 || issues[0].IssueCode != models.IssueCodeMissingInvoiceID {
		t.Fatalf("expected MISSING_INVOICE_ID, got %+v", issues)
	}
}

func TestEngineRun_ReturnWithPositiveQuantity(t *testing.T) {
	engine, db := newTestEngine(t)
	f := goodSale("hash-1")
	f.quantity = strp("5")
	f.grossAmount = strp("-50")
	f.netAmount = strp("-50")
	seedRaw(t, db, f)

	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.InsertedAttempted != 1 || report.Skipped != 0 {
		t.Fatalf("advisory findings must not skip the row: %+v", report)
	}

	var rec models.CanonicalSalesRecord
	if err := db.First(&rec).Error; err != nil {
		t.Fatalf("fetch canonical record: %v", err)
	}
	if rec.TransactionType != models.TransactionTypeReturn || rec.Sign != -1 {
		t.Fatalf("expected RETURN/-1, got %s/%d", rec.TransactionType, rec.Sign)
	}
	// Returns take the system date, not the reference date.
	if rec.InvoiceDateJalali != "1403/01/03" {
		t.Fatalf("expected system date, got %s", rec.InvoiceDateJalali)
	}

	issues := fetchIssues(t, db)
	if !hasIssue(issues, models.IssueCodePositiveQtyOnReturn) {
		t.Fatalf("expected POSITIVE_QTY_ON_RETURN, got %+v", issues)
	}
	if !hasIssue(issues, models.IssueCodeSignMismatchQtyAmount) {
		t.Fatalf("expected SIGN_MISMATCH_QTY_AMOUNT, got %+v", issues)
	}
	for _, issue := range issues {
		if issue.IssueSeverity != models.IssueSeverityWarning {
			t.Fatalf("advisory finding with non-WARNING severity: %+v", issue)
		}
	}
}

func TestEngineRun_FallbackEventDate(t *testing.T) {
	engine, db := newTestEngine(t)
	f := goodSale("hash-1")
	f.referenceDate = nil
	seedRaw(t, db, f)

	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.InsertedAttempted != 1 {
		t.Fatalf("fallback must still insert: %+v", report)
	}

	var rec models.CanonicalSalesRecord
	if err := db.First(&rec).Error; err != nil {
		t.Fatalf("fetch canonical record: %v", err)
	}
	if rec.InvoiceDateJalali != "1403/01/03" {
		t.Fatalf("expected system date fallback, got %s", rec.InvoiceDateJalali)
	}

	issues := fetchIssues(t, db)
	if len(issues) != 1 || issues[0].IssueCode != models.IssueCodeFallbackEventDate {
		t.Fatalf("expected FALLBACK_EVENT_DATE, got %+v", issues)
	}
}

func TestEngineRun_InvalidDateSkipsButKeepsFinding(t *testing.T) {
	engine, db := newTestEngine(t)
	f := goodSale("hash-1")
	f.referenceDate = strp("1403/13/01")
	seedRaw(t, db, f)

	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Skipped != 1 {
		t.Fatalf("expected skip, got %+v", report)
	}
	if report.SkippedRows[0].Reason != models.SkipReasonMissingEventDate {
		t.Fatalf("expected missing_event_date, got %s", report.SkippedRows[0].Reason)
	}

	// The skip commits: the finding survives even though the row did not.
	issues := fetchIssues(t, db)
	if len(issues) != 1 || issues[0].IssueCode != models.IssueCodeInvalidDate {
		t.Fatalf("expected INVALID_DATE, got %+v", issues)
	}
	if issues[0].RawValue != "1403/13/01" {
		t.Fatalf("finding must carry the bad date, got %+v", issues[0])
	}
}

func TestEngineRun_BatchScope(t *testing.T) {
	engine, db := newTestEngine(t)
	a := goodSale("hash-a")
	a.batchId = "batch-a"
	b := goodSale("hash-b")
	b.batchId = "batch-b"
	b.invoiceId = strp("INV-2")
	seedRaw(t, db, a)
	seedRaw(t, db, b)

	report, err := engine.Run(context.Background(), Options{BatchId: "batch-a"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("expected 1 row in batch scope, got %d", report.Processed)
	}

	var count int64
	if err := db.Model(&models.CanonicalSalesRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 canonical record, got %d", count)
	}
}

func TestWriteSkipReport_ColumnsFollowContent(t *testing.T) {
	engine, db := newTestEngine(t)
	f := goodSale("hash-1")
	f.unitPrice = strp("oops")
	seedRaw(t, db, f)

	report, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	path := filepath.Join(t.TempDir(), "skipped.csv")
	if err := report.WriteSkipReport(path); err != nil {
		t.Fatalf("write skip report: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read skip report: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus 1 row, got %d lines", len(lines))
	}
	header := lines[0]
	for _, want := range []string{"row_hash", "invoice_id", "failed_columns", "reason"} {
		if !strings.Contains(header, want) {
			t.Fatalf("header missing %s: %s", want, header)
		}
	}
	// Columns no entry populated stay out of the report.
	if strings.Contains(header, "transaction_type") {
		t.Fatalf("unpopulated column leaked into header: %s", header)
	}
	if !strings.Contains(lines[1], "unit_price") || !strings.Contains(lines[1], "invalid_numeric") {
		t.Fatalf("unexpected report row: %s", lines[1])
	}
}

func TestWriteSkipReport_NoopWhenClean(t *testing.T) {
	report := &RunReport{Processed: 3, InsertedAttempted: 3}
	path := filepath.Join(t.TempDir(), "skipped.csv")
	if err := report.WriteSkipReport(path); err != nil {
		t.Fatalf("write skip report: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("clean run must not create a report file")
	}
}
