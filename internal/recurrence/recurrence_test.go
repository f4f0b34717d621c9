package recurrence_test

import (
	"testing"
	"time"

	"campaign-engine/internal/domain"
	"campaign-engine/internal/recurrence"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNext(t *testing.T) {
	cases := []struct {
		name   string
		from   string
		repeat domain.RepeatType
		want   string
	}{
		{"daily", "2024-03-10T10:30:00Z", domain.RepeatDaily, "2024-03-11T10:30:00Z"},
		{"weekly", "2024-03-10T10:30:00Z", domain.RepeatWeekly, "2024-03-17T10:30:00Z"},
		{"monthly mid month", "2024-03-15T08:00:00Z", domain.RepeatMonthly, "2024-04-15T08:00:00Z"},
		{"monthly clamp leap year", "2024-01-31T10:00:00Z", domain.RepeatMonthly, "2024-02-29T10:00:00Z"},
		{"monthly clamp non leap", "2023-01-31T10:00:00Z", domain.RepeatMonthly, "2023-02-28T10:00:00Z"},
		{"monthly clamp 31 to 30", "2024-05-31T23:59:59Z", domain.RepeatMonthly, "2024-06-30T23:59:59Z"},
		{"monthly from clamped day", "2024-02-29T10:00:00Z", domain.RepeatMonthly, "2024-03-29T10:00:00Z"},
		{"monthly year rollover", "2023-12-31T06:00:00Z", domain.RepeatMonthly, "2024-01-31T06:00:00Z"},
		{"daily across month end", "2024-02-29T10:00:00Z", domain.RepeatDaily, "2024-03-01T10:00:00Z"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := recurrence.Next(ts(tc.from), tc.repeat)
			if !ok {
				t.Fatalf("expected a next occurrence for %s", tc.repeat)
			}
			if want := ts(tc.want); !got.Equal(want) {
				t.Errorf("Next(%s, %s) = %s, want %s", tc.from, tc.repeat, got, want)
			}
		})
	}
}

func TestNextNone(t *testing.T) {
	if _, ok := recurrence.Next(ts("2024-03-10T10:30:00Z"), domain.RepeatNone); ok {
		t.Error("repeat_type none must not produce a next occurrence")
	}
}
