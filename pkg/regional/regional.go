// Package regional converts instants into calendar-day keys for a fixed UTC offset,
// independent of the host timezone.
//
// A "shifted" instant is the absolute instant plus the regional offset, expressed in UTC,
// so that its UTC field accessors (Year, Month, Day, Hour) read as regional wall-clock fields.
// Every attendance key and day-range query goes through a Clock.
package regional

import (
	"strings"
	"time"
)

// DateLayout is the wire format accepted for caller supplied dates.
const DateLayout = "2006-01-02"

// Clock normalises instants against a fixed regional offset.
type Clock struct {
	offset time.Duration
	now    func() time.Time
}

// New returns a Clock for the given offset east of UTC.
func New(offset time.Duration) *Clock {
	return &Clock{offset: offset, now: time.Now}
}

// WithNow overrides the wall clock. Used by tests.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	clone := *c
	clone.now = now
	return &clone
}

// Offset reports the configured offset.
func (c *Clock) Offset() time.Duration {
	return c.offset
}

// Instant returns the current absolute time.
func (c *Clock) Instant() time.Time {
	return c.now().UTC()
}

// Now returns the current instant shifted into regional wall-clock fields.
func (c *Clock) Now() time.Time {
	return c.Shift(c.now())
}

// Shift converts an absolute instant into its shifted form.
func (c *Clock) Shift(t time.Time) time.Time {
	return t.UTC().Add(c.offset)
}

// NormalizeDay zeroes the time-of-day of an already shifted instant, producing the day key.
func (c *Clock) NormalizeDay(shifted time.Time) time.Time {
	y, m, d := shifted.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey shifts and normalises an absolute instant in one step.
func (c *Clock) DayKey(t time.Time) time.Time {
	return c.NormalizeDay(c.Shift(t))
}

// Today returns the day key for the current instant.
func (c *Clock) Today() time.Time {
	return c.NormalizeDay(c.Now())
}

// DayRange returns the absolute [start, end) bounds of the regional day containing t.
func (c *Clock) DayRange(t time.Time) (time.Time, time.Time) {
	start := c.DayKey(t).Add(-c.offset)
	return start, start.Add(24 * time.Hour)
}

// KeyRange returns the absolute [start, end) bounds of the regional day identified by key.
func (c *Clock) KeyRange(key time.Time) (time.Time, time.Time) {
	start := c.NormalizeDay(key).Add(-c.offset)
	return start, start.Add(24 * time.Hour)
}

// ParseOrToday parses a caller supplied date. YYYY-MM-DD is read as a regional calendar date;
// RFC3339 values are treated as absolute instants. Empty or unparseable input yields today.
func (c *Clock) ParseOrToday(raw string) time.Time {
	key, ok := c.Parse(raw)
	if !ok {
		return c.Today()
	}
	return key
}

// Parse is ParseOrToday without the fallback.
func (c *Clock) Parse(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if d, err := time.Parse(DateLayout, raw); err == nil {
		return d, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return c.DayKey(t), true
	}
	return time.Time{}, false
}

// FormatDay renders a day key as YYYY-MM-DD.
func FormatDay(key time.Time) string {
	return key.UTC().Format(DateLayout)
}
