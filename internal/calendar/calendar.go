// Package calendar defines the trading-day and market-hours model used for
// daily order caps. A trading day is the calendar date in the configured
// exchange timezone, not wall-clock midnight UTC. Exchange holidays are not
// modeled; a holiday simply sees no ticks.
package calendar

import (
	"fmt"
	"time"
)

// Calendar resolves timestamps to trading days and session state.
type Calendar struct {
	loc       *time.Location
	openHour  int
	openMin   int
	closeHour int
	closeMin  int
}

// New creates a calendar for the given IANA timezone with a regular
// open/close session given as "15:04" strings.
func New(tz, open, close string) (*Calendar, error) {
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	c := &Calendar{loc: loc}
	if c.openHour, c.openMin, err = parseClock(open, 9, 30); err != nil {
		return nil, err
	}
	if c.closeHour, c.closeMin, err = parseClock(close, 16, 0); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNew panics on a bad timezone; used for defaults known to be valid.
func MustNew(tz string) *Calendar {
	c, err := New(tz, "", "")
	if err != nil {
		panic(err)
	}
	return c
}

func parseClock(s string, defHour, defMin int) (int, int, error) {
	if s == "" {
		return defHour, defMin, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse session time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// TradingDay returns the day key ("2006-01-02") for t in the exchange zone.
func (c *Calendar) TradingDay(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// SameTradingDay reports whether a and b fall on the same trading day.
func (c *Calendar) SameTradingDay(a, b time.Time) bool {
	return c.TradingDay(a) == c.TradingDay(b)
}

// IsOpen reports whether t falls inside the regular session on a weekday.
func (c *Calendar) IsOpen(t time.Time) bool {
	lt := t.In(c.loc)
	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := lt.Hour()*60 + lt.Minute()
	return mins >= c.openHour*60+c.openMin && mins < c.closeHour*60+c.closeMin
}

// Location exposes the exchange timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}
