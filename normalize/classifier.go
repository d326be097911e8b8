package normalize

import (
	"strings"

	"github.com/mmdatafocus/sales_insight_backend/models"
	"github.com/shopspring/decimal"
)

// defaultReturnMarkers covers the source ERP's vocabulary when the mapping
// does not supply its own set.
var defaultReturnMarkers = []string{"برگشت", "RETURN"}

// Classification is the classifier's verdict for one row.
type Classification struct {
	TransactionType models.TransactionType
	Sign            int
	EventDateSource models.EventDateSource
	// EventDateRaw is the selected raw Jalali string (may be nil/blank; date
	// validation happens after classification).
	EventDateRaw *string
	// UsedFallbackDate is set when a SALE fell back to the system date
	// because the reference date was absent.
	UsedFallbackDate bool
}

// Classifier decides SALE vs RETURN. Only the free-text marker set is tied to
// a specific source system; everything else is sign arithmetic.
type Classifier struct {
	returnMarkers []string
}

func NewClassifier(markers []string) *Classifier {
	if len(markers) == 0 {
		markers = defaultReturnMarkers
	}
	return &Classifier{returnMarkers: markers}
}

// Classify applies the priority chain:
//
//  1. A negative net amount or quantity always means RETURN. Numeric evidence
//     beats the free-text type field, which is unreliable across the ERP's
//     language variants.
//  2. With no negative sign among the amounts, a return marker in the raw
//     type text still means RETURN.
//  3. Otherwise SALE. Sales key off the customer reference date when present,
//     falling back to the system posting date. Returns always key off the
//     system date.
func (c *Classifier) Classify(netAmount, quantity *decimal.Decimal, rawType *string, systemDate, referenceDate *string) Classification {
	negativeEvidence := (netAmount != nil && netAmount.IsNegative()) ||
		(quantity != nil && quantity.IsNegative())

	if negativeEvidence || c.hasReturnMarker(rawType) {
		return Classification{
			TransactionType: models.TransactionTypeReturn,
			Sign:            -1,
			EventDateSource: models.EventDateSourceSystem,
			EventDateRaw:    systemDate,
		}
	}

	out := Classification{
		TransactionType: models.TransactionTypeSale,
		Sign:            1,
		EventDateSource: models.EventDateSourceReference,
		EventDateRaw:    referenceDate,
	}
	if referenceDate == nil || strings.TrimSpace(*referenceDate) == "" {
		out.EventDateSource = models.EventDateSourceSystem
		out.EventDateRaw = systemDate
		out.UsedFallbackDate = true
	}
	return out
}

func (c *Classifier) hasReturnMarker(rawType *string) bool {
	if rawType == nil {
		return false
	}
	s := strings.TrimSpace(*rawType)
	if s == "" {
		return false
	}
	for _, marker := range c.returnMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
