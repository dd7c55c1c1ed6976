// Package gnsstime handles GPS time: week number and time of week.
//
// A Time is a continuous GPS time scale instant. Leap seconds are applied only
// by UTC; the wrapped time.Time is labelled UTC so calendar fields read as GPST.
package gnsstime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SecondsPerWeek is the length of a GPS week.
const SecondsPerWeek = 604800

var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// Time is an instant in GPS time.
type Time struct {
	t time.Time
}

// FromGPST builds a Time from a GPS week and time of week in seconds. Out of
// range tow values roll into neighbouring weeks.
func FromGPST(week int, tow float64) Time {
	whole := math.Floor(tow)
	frac := tow - whole
	t := gpsEpoch.
		Add(time.Duration(week) * SecondsPerWeek * time.Second).
		Add(time.Duration(whole) * time.Second).
		Add(time.Duration(math.Round(frac * 1e9)))
	return Time{t: t}
}

// FromCalendar builds a Time from calendar fields expressed in GPST.
func FromCalendar(year, month, day, hour, min int, sec float64) Time {
	whole := math.Floor(sec)
	nanos := int(math.Round((sec - whole) * 1e9))
	return Time{t: time.Date(year, time.Month(month), day, hour, min, int(whole), nanos, time.UTC)}
}

// GPST returns the GPS week and time of week in seconds.
func (t Time) GPST() (week int, tow float64) {
	d := t.t.Sub(gpsEpoch)
	secs := int64(d / time.Second)
	nanos := int64(d % time.Second)
	if nanos < 0 {
		secs--
		nanos += int64(time.Second)
	}
	w := secs / SecondsPerWeek
	rem := secs - w*SecondsPerWeek
	if rem < 0 {
		w--
		rem += SecondsPerWeek
	}
	return int(w), float64(rem) + float64(nanos)/1e9
}

// leaps lists the UTC instants at which GPST-UTC changed, newest first,
// with the offset in effect from that instant.
var leaps = []struct {
	from   time.Time
	offset time.Duration
}{
	{time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), 18 * time.Second},
	{time.Date(2015, 7, 1, 0, 0, 0, 0, time.UTC), 17 * time.Second},
	{time.Date(2012, 7, 1, 0, 0, 0, 0, time.UTC), 16 * time.Second},
	{time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC), 15 * time.Second},
	{time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC), 14 * time.Second},
	{time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), 13 * time.Second},
	{time.Date(1997, 7, 1, 0, 0, 0, 0, time.UTC), 12 * time.Second},
	{time.Date(1996, 1, 1, 0, 0, 0, 0, time.UTC), 11 * time.Second},
	{time.Date(1994, 7, 1, 0, 0, 0, 0, time.UTC), 10 * time.Second},
	{time.Date(1993, 7, 1, 0, 0, 0, 0, time.UTC), 9 * time.Second},
	{time.Date(1992, 7, 1, 0, 0, 0, 0, time.UTC), 8 * time.Second},
	{time.Date(1991, 1, 1, 0, 0, 0, 0, time.UTC), 7 * time.Second},
	{time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), 6 * time.Second},
	{time.Date(1988, 1, 1, 0, 0, 0, 0, time.UTC), 5 * time.Second},
	{time.Date(1985, 7, 1, 0, 0, 0, 0, time.UTC), 4 * time.Second},
	{time.Date(1983, 7, 1, 0, 0, 0, 0, time.UTC), 3 * time.Second},
	{time.Date(1982, 7, 1, 0, 0, 0, 0, time.UTC), 2 * time.Second},
	{time.Date(1981, 7, 1, 0, 0, 0, 0, time.UTC), 1 * time.Second},
}

// UTC shifts t from GPST to UTC by the leap seconds in effect. The result is
// still a Time so it formats the same way.
func (t Time) UTC() Time {
	for _, l := range leaps {
		if u := t.t.Add(-l.offset); !u.Before(l.from) {
			return Time{t: u}
		}
	}
	return t
}

// IsZero reports whether t is unset.
func (t Time) IsZero() bool { return t.t.IsZero() }

// Add returns t+d.
func (t Time) Add(d time.Duration) Time { return Time{t: t.t.Add(d)} }

// Sub returns t-u.
func (t Time) Sub(u Time) time.Duration { return t.t.Sub(u.t) }

// Before reports whether t is before u.
func (t Time) Before(u Time) bool { return t.t.Before(u.t) }

// After reports whether t is after u.
func (t Time) After(u Time) bool { return t.t.After(u.t) }

// Calendar returns the underlying calendar instant in the GPST scale.
func (t Time) Calendar() time.Time { return t.t }

// Format renders t as "yyyy/mm/dd hh:mm:ss" with n decimals of seconds.
func (t Time) Format(decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	base := t.t.Format("2006/01/02 15:04:05")
	if decimals == 0 {
		return base
	}
	frac := float64(t.t.Nanosecond()) / 1e9
	s := strconv.FormatFloat(frac, 'f', decimals, 64)
	return base + s[1:]
}

func (t Time) String() string { return t.Format(3) }

// ParseEpoch parses a date "y/m/d" and clock "h:m:s" pair as used by the
// -ts/-te options.
func ParseEpoch(date, clock string) (Time, error) {
	d, err := splitFloats(date, "/")
	if err != nil {
		return Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	c, err := splitFloats(clock, ":")
	if err != nil {
		return Time{}, fmt.Errorf("parse time %q: %w", clock, err)
	}
	if d[1] < 1 || d[1] > 12 || d[2] < 1 || d[2] > 31 {
		return Time{}, fmt.Errorf("parse date %q: out of range", date)
	}
	if c[0] < 0 || c[0] > 24 || c[1] < 0 || c[1] >= 60 || c[2] < 0 || c[2] > 60 {
		return Time{}, fmt.Errorf("parse time %q: out of range", clock)
	}
	return FromCalendar(int(d[0]), int(d[1]), int(d[2]), int(c[0]), int(c[1]), c[2]), nil
}

func splitFloats(s, sep string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(strings.TrimSpace(s), sep)
	if len(parts) != 3 {
		return out, fmt.Errorf("want 3 fields separated by %q", sep)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}
