package limits

import (
	"testing"
	"time"

	"github.com/bijouxtrade/bijoux-backend/pkg/enums"
)

func TestPeriodBounds(t *testing.T) {
	// Wednesday 2026-03-18 14:30 UTC
	at := time.Date(2026, time.March, 18, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		period    enums.LimitPeriod
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "daily",
			period:    enums.LimitPeriodDaily,
			wantStart: time.Date(2026, time.March, 18, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, time.March, 19, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "weekly starts monday",
			period:    enums.LimitPeriodWeekly,
			wantStart: time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, time.March, 23, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "monthly",
			period:    enums.LimitPeriodMonthly,
			wantStart: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, end := PeriodBounds(tc.period, at)
			if !start.Equal(tc.wantStart) || !end.Equal(tc.wantEnd) {
				t.Fatalf("bounds = [%s, %s), want [%s, %s)", start, end, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestPeriodBoundsWeeklyOnSunday(t *testing.T) {
	sunday := time.Date(2026, time.March, 22, 9, 0, 0, 0, time.UTC)
	start, _ := PeriodBounds(enums.LimitPeriodWeekly, sunday)
	if !start.Equal(time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("sunday should belong to the monday-starting week, got %s", start)
	}
}

func TestPeriodBoundsOpenEnded(t *testing.T) {
	at := time.Now().UTC()
	for _, period := range []enums.LimitPeriod{enums.LimitPeriodLifetime, enums.LimitPeriodPerOrder} {
		_, end := PeriodBounds(period, at)
		if end.Year() != 9999 {
			t.Fatalf("%s period should be open ended, got %s", period, end)
		}
	}
}
