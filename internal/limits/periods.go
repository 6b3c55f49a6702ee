package limits

import (
	"time"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

// openEnded marks periods that never roll over (per_order, lifetime).
var openEnded = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// PeriodBounds returns the accounting window containing the given instant.
// Daily and weekly windows are UTC-aligned; weeks start on Monday.
func PeriodBounds(period enums.LimitPeriod, at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	switch period {
	case enums.LimitPeriodDaily:
		start := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	case enums.LimitPeriodWeekly:
		weekday := int(at.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7)
	case enums.LimitPeriodMonthly:
		start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return at, openEnded
	}
}
