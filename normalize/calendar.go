package normalize

import (
	"strconv"
	"strings"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
)

// JalaliToGregorian converts a Jalali date string "YYYY/MM/DD" to a
// proleptic-Gregorian date at UTC midnight. nil for absent or malformed
// input; never panics into the caller. Jalali leap rules differ from
// Gregorian, so out-of-range days (1402/12/30) are detected by converting and
// round-tripping rather than by a hand-rolled table.
func JalaliToGregorian(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return nil
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		nums[i] = n
	}
	year, month, day := nums[0], nums[1], nums[2]

	if year < 1 || month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}

	pt := ptime.Date(year, ptime.Month(month), day, 0, 0, 0, 0, time.UTC)
	if pt.Year() != year || int(pt.Month()) != month || pt.Day() != day {
		// Input was normalized, so the day never existed in that month.
		return nil
	}

	g := pt.Time()
	out := time.Date(g.Year(), g.Month(), g.Day(), 0, 0, 0, 0, time.UTC)
	return &out
}
