package gnsstime

import (
	"math"
	"testing"
	"time"
)

func TestGPSTRoundTrip(t *testing.T) {
	cases := []struct {
		week int
		tow  float64
	}{
		{0, 0},
		{2200, 345600},
		{2200, 345600.5},
		{1024, 604799.25},
	}
	for _, c := range cases {
		week, tow := FromGPST(c.week, c.tow).GPST()
		if week != c.week || math.Abs(tow-c.tow) > 1e-9 {
			t.Errorf("FromGPST(%d, %v).GPST() = (%d, %v)", c.week, c.tow, week, tow)
		}
	}
}

func TestGPSTRollsOverWeek(t *testing.T) {
	week, tow := FromGPST(2200, SecondsPerWeek+10).GPST()
	if week != 2201 || tow != 10 {
		t.Errorf("got (%d, %v), want (2201, 10)", week, tow)
	}
}

func TestFromCalendarKnownWeek(t *testing.T) {
	// 2022-03-10 00:00:00 GPST is week 2200, Thursday.
	week, tow := FromCalendar(2022, 3, 10, 0, 0, 0).GPST()
	if week != 2200 {
		t.Fatalf("week = %d, want 2200", week)
	}
	if tow != 4*86400 {
		t.Errorf("tow = %v, want %v", tow, 4*86400)
	}
}

func TestParseEpoch(t *testing.T) {
	got, err := ParseEpoch("2022/03/10", "12:30:15.5")
	if err != nil {
		t.Fatalf("ParseEpoch: %v", err)
	}
	want := time.Date(2022, 3, 10, 12, 30, 15, 500000000, time.UTC)
	if !got.Calendar().Equal(want) {
		t.Errorf("ParseEpoch = %v, want %v", got.Calendar(), want)
	}
	if s := got.Format(1); s != "2022/03/10 12:30:15.5" {
		t.Errorf("Format(1) = %q", s)
	}
}

func TestParseEpochErrors(t *testing.T) {
	bad := [][2]string{
		{"2022-03-10", "00:00:00"},
		{"2022/13/10", "00:00:00"},
		{"2022/03/10", "25:00:00"},
		{"2022/03/10", "aa:00:00"},
	}
	for _, b := range bad {
		if _, err := ParseEpoch(b[0], b[1]); err == nil {
			t.Errorf("ParseEpoch(%q, %q) should fail", b[0], b[1])
		}
	}
}

func TestOrdering(t *testing.T) {
	a := FromGPST(2200, 100)
	b := a.Add(30 * time.Second)
	if !a.Before(b) || !b.After(a) {
		t.Error("ordering broken")
	}
	if b.Sub(a) != 30*time.Second {
		t.Errorf("Sub = %v", b.Sub(a))
	}
}

func TestUTCAppliesLeapSeconds(t *testing.T) {
	cases := []struct {
		name string
		gpst Time
		want time.Time
	}{
		{"2022", FromCalendar(2022, 3, 10, 0, 0, 18), time.Date(2022, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"before 2017 leap", FromCalendar(2016, 12, 31, 23, 59, 59), time.Date(2016, 12, 31, 23, 59, 42, 0, time.UTC)},
		{"after 2017 leap", FromCalendar(2017, 1, 1, 0, 0, 18), time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"gps epoch", FromGPST(0, 0), time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		if got := c.gpst.UTC().Calendar(); !got.Equal(c.want) {
			t.Errorf("%s: UTC = %v, want %v", c.name, got, c.want)
		}
	}
}

