package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CanonicalSalesRecord is the analytics-ready representation of one sale or
// return. Identity is the raw-row fingerprint: one canonical record per
// distinct fingerprint, never updated in place.
type CanonicalSalesRecord struct {
	ID           int    `gorm:"primary_key" json:"id"`
	SourceSystem string `gorm:"size:64;not null;uniqueIndex:ux_canonical_fingerprint" json:"source_system"`
	RawRowHash   string `gorm:"size:64;not null;uniqueIndex:ux_canonical_fingerprint" json:"raw_row_hash"`

	SourceFile  string `gorm:"size:255" json:"source_file"`
	LoadBatchId string `gorm:"size:64;index" json:"load_batch_id"`

	InvoiceId     string `gorm:"size:64;index" json:"invoice_id"`
	CustomerId    string `gorm:"size:64;index" json:"customer_id"`
	ProductId     string `gorm:"size:64;index" json:"product_id"`
	SalespersonId string `gorm:"size:64" json:"salesperson_id"`

	InvoiceDateJalali    string    `gorm:"size:10" json:"invoice_date_jalali"`
	InvoiceDateGregorian time.Time `gorm:"index;not null" json:"invoice_date_gregorian"`

	TransactionType TransactionType `gorm:"size:6;not null" json:"transaction_type"`
	Sign            int             `gorm:"not null" json:"sign"`

	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	GrossAmount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"gross_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"discount_amount"`
	NetAmount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"net_amount"`

	IngestedAt *time.Time `json:"ingested_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (CanonicalSalesRecord) TableName() string {
	return "canonical_sales"
}

// InsertCanonicalSalesRecord attempts an idempotent insert. A conflict on the
// fingerprint is a silent no-op: a prior run already produced the record.
// Returns whether a new row was actually written.
func InsertCanonicalSalesRecord(tx *gorm.DB, rec *CanonicalSalesRecord) (bool, error) {
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_system"}, {Name: "raw_row_hash"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return false, fmt.Errorf("insert canonical record %s: %w", rec.RawRowHash, res.Error)
	}
	return res.RowsAffected > 0, nil
}
