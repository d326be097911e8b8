package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DQIssue is one immutable, observational audit finding. Writing one never
// blocks the pipeline; it shares the transactional scope of the row it
// describes so a crashed row leaves no orphaned findings.
type DQIssue struct {
	ID                int           `gorm:"primary_key" json:"id"`
	SourceSystem      string        `gorm:"size:64;not null;index" json:"source_system"`
	SourceFile        string        `gorm:"size:255" json:"source_file"`
	LoadBatchId       string        `gorm:"size:64;index" json:"load_batch_id"`
	TableStage        string        `gorm:"size:64;not null" json:"table_stage"`
	RecordBusinessKey *string       `gorm:"size:255" json:"record_business_key"`
	IssueCode         IssueCode     `gorm:"size:64;not null;index" json:"issue_code"`
	IssueSeverity     IssueSeverity `gorm:"size:16;not null" json:"issue_severity"`
	IssueDescription  string        `gorm:"type:text" json:"issue_description"`
	ColumnName        string        `gorm:"size:64" json:"column_name"`
	RawValue          string        `gorm:"type:text" json:"raw_value"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (DQIssue) TableName() string {
	return "dq_issues"
}

// RecordDQIssue appends one finding within the caller's transaction.
// It carries no business logic: the finding arrives fully computed, only the
// severity is stamped from the closed taxonomy. A storage failure propagates,
// a lost audit trail is never safe to swallow.
func RecordDQIssue(tx *gorm.DB, issue *DQIssue) error {
	if !issue.IssueCode.Valid() {
		return fmt.Errorf("unknown issue code %q", issue.IssueCode)
	}
	issue.IssueSeverity = issue.IssueCode.Severity()

	if err := tx.Create(issue).Error; err != nil {
		return fmt.Errorf("record dq issue %s: %w", issue.IssueCode, err)
	}
	return nil
}
