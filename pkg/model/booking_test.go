package model

import (
	"testing"
	"time"
)

func TestEndTime(t *testing.T) {
	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	b := &Booking{ScheduledAt: start, Duration: 1.5}
	want := start.Add(90 * time.Minute)
	if got := b.EndTime(); !got.Equal(want) {
		t.Errorf("EndTime = %v, want %v", got, want)
	}
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 9, 1, h, 0, 0, 0, time.UTC) }
	b := &Booking{ScheduledAt: at(10), Duration: 2} // 10:00 - 12:00

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"fully inside", at(10), at(11), true},
		{"straddles the start", at(9), at(11), true},
		{"straddles the end", at(11), at(13), true},
		{"covers entirely", at(9), at(13), true},
		{"touches the start", at(9), at(10), false},
		{"touches the end", at(12), at(13), false},
		{"well before", at(7), at(8), false},
		{"well after", at(13), at(14), false},
	}
	for _, tc := range cases {
		if got := b.Overlaps(tc.start, tc.end); got != tc.want {
			t.Errorf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}
