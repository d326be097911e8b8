package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseNumeric converts locale-formatted numeric text such as "764,463" into
// an exact decimal. nil means absent or unparseable; the caller decides
// whether that is a defect. Never floats: monetary fields must not drift
// across re-runs.
func ParseNumeric(raw *string) *decimal.Decimal {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(strings.ReplaceAll(*raw, ",", ""))
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
