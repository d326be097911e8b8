package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// RawColumnCount is the fixed width of the source export.
const RawColumnCount = 61

// RawColumnNames returns c01..c61 in order.
func RawColumnNames() []string {
	names := make([]string, 0, RawColumnCount)
	for i := 1; i <= RawColumnCount; i++ {
		names = append(names, fmt.Sprintf("c%02d", i))
	}
	return names
}

// Migrate brings the schema up: canonical + DQ tables via AutoMigrate, the
// positional raw table via generated DDL, and the precomputed KPI views.
func Migrate(db *gorm.DB, rawTable string) error {
	if err := db.AutoMigrate(&CanonicalSalesRecord{}, &DQIssue{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := EnsureRawTable(db, rawTable); err != nil {
		return err
	}
	return EnsureKPIViews(db)
}

// EnsureRawTable creates the 61-column raw table. Rows are immutable and
// deduplicated by the store itself: unique (source_system, row_hash).
// Everything is text: the raw layer stores the export verbatim, repair and
// typing happen downstream.
func EnsureRawTable(db *gorm.DB, table string) error {
	cols := []string{
		"source_system varchar(64) not null",
		"source_file varchar(255)",
		"load_batch_id varchar(64)",
		"row_hash varchar(64) not null",
	}
	for _, name := range RawColumnNames() {
		cols = append(cols, name+" text")
	}
	cols = append(cols,
		"ingested_at timestamp null",
		"unique (source_system, row_hash)",
	)

	ddl := fmt.Sprintf("create table if not exists %s (\n  %s\n)", table, strings.Join(cols, ",\n  "))
	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("create raw table %s: %w", table, err)
	}
	return nil
}

// EnsureKPIViews (re)creates the aggregate views the read API serves.
// drop+create rather than create-or-replace so the same DDL runs on MySQL and
// on the sqlite test store.
func EnsureKPIViews(db *gorm.DB) error {
	views := map[string]string{
		"kpi_net_sales_daily": `
			select invoice_date_gregorian as day,
			       sum(net_amount) as net_sales_amount,
			       count(*) as transaction_count
			from canonical_sales
			group by invoice_date_gregorian`,
		"kpi_top_customers_month": `
			select substr(invoice_date_gregorian, 1, 7) as month,
			       customer_id,
			       sum(net_amount) as net_sales_amount,
			       count(*) as transaction_count
			from canonical_sales
			group by substr(invoice_date_gregorian, 1, 7), customer_id`,
		"kpi_return_rate_by_product_month": `
			select substr(invoice_date_gregorian, 1, 7) as month,
			       product_id,
			       sum(case when transaction_type = 'RETURN' then 1 else 0 end) as return_count,
			       count(*) as transaction_count,
			       sum(case when transaction_type = 'RETURN' then 1 else 0 end) * 1.0 / count(*) as return_rate
			from canonical_sales
			group by substr(invoice_date_gregorian, 1, 7), product_id`,
	}

	for name, query := range views {
		if err := db.Exec("drop view if exists " + name).Error; err != nil {
			return fmt.Errorf("drop view %s: %w", name, err)
		}
		if err := db.Exec(fmt.Sprintf("create view %s as %s", name, query)).Error; err != nil {
			return fmt.Errorf("create view %s: %w", name, err)
		}
	}
	return nil
}
