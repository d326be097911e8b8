package models

type TransactionType string

const (
	TransactionTypeSale   TransactionType = "SALE"
	TransactionTypeReturn TransactionType = "RETURN"
)

type IssueSeverity string

const (
	IssueSeverityWarning IssueSeverity = "WARNING"
	IssueSeverityError   IssueSeverity = "ERROR"
)

// IssueCode is the closed data-quality taxonomy. Every code carries a fixed
// severity; the recorder refuses anything outside this enumeration.
type IssueCode string

const (
	// Normalization stage.
	IssueCodeMissingInvoiceID      IssueCode = "MISSING_INVOICE_ID"
	IssueCodeInvalidNumeric        IssueCode = "INVALID_NUMERIC"
	IssueCodePositiveQtyOnReturn   IssueCode = "POSITIVE_QTY_ON_RETURN"
	IssueCodeNegativeQtyOnSale     IssueCode = "NEGATIVE_QTY_ON_SALE"
	IssueCodeFallbackEventDate     IssueCode = "FALLBACK_EVENT_DATE"
	IssueCodeSignMismatchQtyAmount IssueCode = "SIGN_MISMATCH_QTY_AMOUNT"
	IssueCodeInvalidDate           IssueCode = "INVALID_DATE"

	// Raw ingestion stage.
	IssueCodeRowWidthRepaired  IssueCode = "ROW_WIDTH_REPAIRED"
	IssueCodeRowWidthUnfixable IssueCode = "ROW_WIDTH_UNFIXABLE"
)

var issueSeverities = map[IssueCode]IssueSeverity{
	IssueCodeMissingInvoiceID:      IssueSeverityError,
	IssueCodeInvalidNumeric:        IssueSeverityError,
	IssueCodePositiveQtyOnReturn:   IssueSeverityWarning,
	IssueCodeNegativeQtyOnSale:     IssueSeverityWarning,
	IssueCodeFallbackEventDate:     IssueSeverityWarning,
	IssueCodeSignMismatchQtyAmount: IssueSeverityWarning,
	IssueCodeInvalidDate:           IssueSeverityError,
	IssueCodeRowWidthRepaired:      IssueSeverityWarning,
	IssueCodeRowWidthUnfixable:     IssueSeverityError,
}

func (c IssueCode) Valid() bool {
	_, ok := issueSeverities[c]
	return ok
}

// Severity returns the fixed severity for a code. Callers never choose
// severity themselves.
func (c IssueCode) Severity() IssueSeverity {
	return issueSeverities[c]
}

// SkipReason labels a row's terminal SKIPPED state in the run report.
type SkipReason string

const (
	SkipReasonMissingInvoiceID SkipReason = "missing_invoice_id"
	SkipReasonInvalidNumeric   SkipReason = "invalid_numeric"
	SkipReasonMissingEventDate SkipReason = "missing_event_date"
)

// EventDateSource records which raw date field the classifier selected.
type EventDateSource string

const (
	EventDateSourceReference EventDateSource = "reference_date"
	EventDateSourceSystem    EventDateSource = "system_date"
)
