/*
DESCRIPTION
  sched_test.go provides testing for next wake instant computation; periodic
  and leap time schedules, rollover behavior and capture window bounds.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sched

import (
	"testing"
	"time"
)

var unset = LeapTime{Day: Unspecified, Hour: Unspecified, Minute: Unspecified}

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestNextPeriodic(t *testing.T) {
	prev := utc(2024, time.March, 10, 14, 0)
	now := utc(2024, time.March, 10, 14, 0)

	tests := []struct {
		name string
		d    time.Duration
		w    Window
		want time.Time
		ok   bool
	}{
		{
			name: "plain period",
			d:    50 * time.Second,
			want: prev.Add(50 * time.Second),
			ok:   true,
		},
		{
			name: "clamped to window start",
			d:    50 * time.Second,
			w:    Window{Start: prev.Add(time.Hour), End: prev.Add(2 * time.Hour)},
			want: prev.Add(time.Hour),
			ok:   true,
		},
		{
			name: "terminal past window end",
			d:    50 * time.Second,
			w:    Window{Start: prev.Add(-30 * time.Second), End: prev.Add(20 * time.Second)},
			ok:   false,
		},
		{
			// The window is [Start, End); an instant exactly at End is out.
			name: "terminal at window end boundary",
			d:    20 * time.Second,
			w:    Window{Start: prev.Add(-30 * time.Second), End: prev.Add(20 * time.Second)},
			ok:   false,
		},
		{
			name: "unbounded when start not before end",
			d:    50 * time.Second,
			w:    Window{Start: prev.Add(20 * time.Second), End: prev.Add(20 * time.Second)},
			want: prev.Add(50 * time.Second),
			ok:   true,
		},
	}

	for _, test := range tests {
		got, ok := Next(prev, now, test.d, unset, time.UTC, test.w)
		if ok != test.ok {
			t.Errorf("%s: unexpected ok: got: %v, want: %v", test.name, ok, test.ok)
			continue
		}
		if ok && !got.Equal(test.want) {
			t.Errorf("%s: unexpected next: got: %v, want: %v", test.name, got, test.want)
		}
	}
}

func TestNextPeriodicDeterministic(t *testing.T) {
	prev := utc(2024, time.March, 10, 14, 0)
	now := utc(2024, time.March, 10, 14, 5)
	first, ok := Next(prev, now, 90*time.Second, unset, time.UTC, Window{})
	if !ok {
		t.Fatal("unexpected terminal schedule")
	}
	second, ok := Next(prev, now, 90*time.Second, unset, time.UTC, Window{})
	if !ok || !first.Equal(second) {
		t.Errorf("periodic schedule not deterministic: %v vs %v", first, second)
	}
}

func TestNextLeap(t *testing.T) {
	prev := utc(2024, time.March, 10, 9, 0)

	tests := []struct {
		name string
		now  time.Time
		lt   LeapTime
		tz   *time.Location
		want time.Time
	}{
		{
			name: "hour passed rolls to tomorrow",
			now:  utc(2024, time.March, 10, 14, 5),
			lt:   LeapTime{Day: Unspecified, Hour: 9, Minute: Unspecified},
			want: utc(2024, time.March, 11, 9, 0),
		},
		{
			name: "hour ahead stays today",
			now:  utc(2024, time.March, 10, 8, 0),
			lt:   LeapTime{Day: Unspecified, Hour: 9, Minute: Unspecified},
			want: utc(2024, time.March, 10, 9, 0),
		},
		{
			name: "hour with minute",
			now:  utc(2024, time.March, 10, 8, 0),
			lt:   LeapTime{Day: Unspecified, Hour: 9, Minute: 30},
			want: utc(2024, time.March, 10, 9, 30),
		},
		{
			name: "day ahead stays this month",
			now:  utc(2024, time.March, 5, 12, 0),
			lt:   LeapTime{Day: 10, Hour: Unspecified, Minute: Unspecified},
			want: utc(2024, time.March, 10, 0, 0),
		},
		{
			name: "day passed rolls to next month",
			now:  utc(2024, time.March, 15, 12, 0),
			lt:   LeapTime{Day: 10, Hour: 6, Minute: Unspecified},
			want: utc(2024, time.April, 10, 6, 0),
		},
		{
			name: "day rolls december to january",
			now:  utc(2024, time.December, 20, 12, 0),
			lt:   LeapTime{Day: 10, Hour: Unspecified, Minute: Unspecified},
			want: utc(2025, time.January, 10, 0, 0),
		},
		{
			name: "minute ahead stays this hour",
			now:  utc(2024, time.March, 10, 14, 5),
			lt:   LeapTime{Day: Unspecified, Hour: Unspecified, Minute: 30},
			want: utc(2024, time.March, 10, 14, 30),
		},
		{
			name: "minute passed rolls to next hour",
			now:  utc(2024, time.March, 10, 14, 45),
			lt:   LeapTime{Day: Unspecified, Hour: Unspecified, Minute: 30},
			want: utc(2024, time.March, 10, 15, 30),
		},
		{
			name: "minute at hour 23 rolls to tomorrow",
			now:  utc(2024, time.March, 10, 23, 45),
			lt:   LeapTime{Day: Unspecified, Hour: Unspecified, Minute: 30},
			want: utc(2024, time.March, 11, 0, 30),
		},
		{
			name: "hour interpreted in fixed offset zone",
			now:  utc(2024, time.March, 10, 0, 30), // 09:30 at +9.
			lt:   LeapTime{Day: Unspecified, Hour: 9, Minute: Unspecified},
			tz:   Zone(9),
			want: utc(2024, time.March, 11, 0, 0), // Mar 11 09:00 at +9.
		},
	}

	for _, test := range tests {
		tz := test.tz
		if tz == nil {
			tz = time.UTC
		}
		got, ok := Next(prev, test.now, 0, test.lt, tz, Window{})
		if !ok {
			t.Errorf("%s: unexpected terminal schedule", test.name)
			continue
		}
		if !got.Equal(test.want) {
			t.Errorf("%s: unexpected next: got: %v, want: %v", test.name, got, test.want)
		}
	}
}

func TestNextLeapWindow(t *testing.T) {
	prev := utc(2024, time.March, 10, 9, 0)
	now := utc(2024, time.March, 10, 14, 5)
	lt := LeapTime{Day: Unspecified, Hour: 9, Minute: Unspecified}

	// Clamped up to a future window start.
	start := utc(2024, time.March, 20, 0, 0)
	got, ok := Next(prev, now, 0, lt, time.UTC, Window{Start: start, End: utc(2024, time.April, 1, 0, 0)})
	if !ok || !got.Equal(start) {
		t.Errorf("unexpected clamped next: got: %v (ok %v), want: %v", got, ok, start)
	}

	// Terminal when the computed instant passes a live window end.
	_, ok = Next(prev, now, 0, lt, time.UTC, Window{End: utc(2024, time.March, 11, 0, 0)})
	if ok {
		t.Error("expected terminal schedule past window end")
	}

	// A window end already in the past does not terminate the schedule.
	got, ok = Next(prev, now, 0, lt, time.UTC, Window{End: utc(2024, time.March, 1, 0, 0)})
	if !ok {
		t.Error("stale window end terminated schedule")
	}
	if !got.Equal(utc(2024, time.March, 11, 9, 0)) {
		t.Errorf("unexpected next with stale window: got: %v", got)
	}
}

func TestNextLeapNothingSet(t *testing.T) {
	prev := utc(2024, time.March, 10, 9, 0)
	now := utc(2024, time.March, 10, 14, 5)
	got, ok := Next(prev, now, 0, unset, time.UTC, Window{})
	if !ok || !got.Equal(prev) {
		t.Errorf("unconfigured leap schedule must return prev: got: %v (ok %v)", got, ok)
	}
}

func TestLeapTimeIsSet(t *testing.T) {
	tests := []struct {
		lt   LeapTime
		want bool
	}{
		{unset, false},
		{LeapTime{Day: 5, Hour: Unspecified, Minute: Unspecified}, true},
		{LeapTime{Day: Unspecified, Hour: 0, Minute: Unspecified}, true},
		{LeapTime{Day: Unspecified, Hour: Unspecified, Minute: 30}, true},
	}
	for _, test := range tests {
		if test.lt.IsSet() != test.want {
			t.Errorf("unexpected IsSet for %+v: got: %v, want: %v", test.lt, test.lt.IsSet(), test.want)
		}
	}
}
