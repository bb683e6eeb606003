/*
DESCRIPTION
  sched.go provides computation of the next capture wake instant; either a
  fixed period from the previous instant, or a calendar style leap time with
  independently wildcarded day, hour and minute fields, bounded by an optional
  capture window.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sched provides wake time scheduling for the capture control loop,
// and checkpointing of scheduler state across power cycles.
package sched

import (
	"time"
)

// Unspecified is the wildcard value for LeapTime fields.
const Unspecified = -1

// LeapTime describes a calendar style schedule. Each field is independently
// Unspecified or a concrete value; the combination selects the next matching
// instant:
//
//	Day set:               hour/minute default to zero; next occurrence of
//	                       that day of the month.
//	Hour set, day unset:   next occurrence of that time of day.
//	Minute set, rest unset: next occurrence of that minute within the hour.
type LeapTime struct {
	Day    int // 1-31, or Unspecified.
	Hour   int // 0-23, or Unspecified.
	Minute int // 1-59, or Unspecified; a zero minute alone selects nothing.
}

// IsSet reports whether any schedule field is specified.
func (lt LeapTime) IsSet() bool {
	return lt.Day > 0 || lt.Hour >= 0 || lt.Minute >= 0
}

// Window bounds the allowed capture interval. A window with Start not before
// End leaves periodic scheduling unbounded; an End in the past is ignored for
// leap time termination.
type Window struct {
	Start time.Time
	End   time.Time
}

// Next computes the instant of the capture after prev. With d positive the
// schedule is periodic and the result is prev+d clamped into the window; d
// zero or negative selects the leap time schedule lt, interpreted in tz (a
// fixed offset zone, no DST). The boolean result is false when the schedule
// is exhausted, i.e. the computed instant falls at or beyond the window end;
// the window is the half open interval [Start, End).
func Next(prev, now time.Time, d time.Duration, lt LeapTime, tz *time.Location, w Window) (time.Time, bool) {
	if d > 0 {
		next := prev.Add(d)
		if w.Start.Before(w.End) {
			if next.Before(w.Start) {
				next = w.Start
			} else if !next.Before(w.End) {
				// The window is half open; an instant at End is out.
				return time.Time{}, false
			}
		}
		return next, true
	}

	next := nextLeap(prev, now, lt, tz)
	if next.Before(w.Start) {
		next = w.Start
	} else if !next.Before(w.End) && w.End.After(now) {
		return time.Time{}, false
	}
	return next, true
}

// nextLeap resolves the leap time schedule against now in tz. Resolution
// order is day, then hour, then minute; an already passed candidate rolls to
// the next month, day or hour respectively. With no field specified prev is
// returned unchanged.
func nextLeap(prev, now time.Time, lt LeapTime, tz *time.Location) time.Time {
	n := now.In(tz)
	y, m, day := n.Date()

	switch {
	case lt.Day > 0:
		h, min := lt.Hour, lt.Minute
		if h < 0 {
			h = 0
		}
		if min < 0 {
			min = 0
		}
		c := time.Date(y, m, lt.Day, h, min, 0, 0, tz)
		if n.Before(c) {
			return c
		}
		// Passed this month; same day next month. time.Date normalizes the
		// December to January rollover.
		return time.Date(y, m+1, lt.Day, h, min, 0, 0, tz)

	case lt.Hour >= 0:
		min := lt.Minute
		if min < 0 {
			min = 0
		}
		c := time.Date(y, m, day, lt.Hour, min, 0, 0, tz)
		if n.Before(c) {
			return c
		}
		return time.Date(y, m, day+1, lt.Hour, min, 0, 0, tz)

	case lt.Minute > 0:
		c := time.Date(y, m, day, n.Hour(), lt.Minute, 0, 0, tz)
		if n.Before(c) {
			return c
		}
		// Next hour; hour 24 normalizes to midnight tomorrow.
		return time.Date(y, m, day, n.Hour()+1, lt.Minute, 0, 0, tz)
	}
	return prev
}

// Zone returns the fixed offset location for a whole hour UTC offset, the
// form in which the control layer configures timezones.
func Zone(offsetHours int) *time.Location {
	if offsetHours == 0 {
		return time.UTC
	}
	return time.FixedZone("", offsetHours*3600)
}
