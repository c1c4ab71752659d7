// Package calendar answers date questions in a tour operator's local zone:
// what "today" is, which dates are past, which slots have already started and
// how a month grid is laid out.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/tournetwork/storefront/internal/tour"
)

// DefaultTimezone applies when a package does not declare a zone.
const DefaultTimezone = "America/Phoenix"

const (
	dateLayout    = "2006-01-02"
	clockLayout   = "15:04"
	displayLayout = "Monday, January 2, 2006"
	gridCells     = 42
)

// Calendar evaluates dates in a single IANA zone.
type Calendar struct {
	id    string
	loc   *time.Location
	valid bool
	now   func() time.Time
}

// New binds a calendar to tz. An empty tz selects DefaultTimezone. An unknown
// tz falls back to UTC for computations while ID and DisplayName keep the raw
// identifier.
func New(tz string, now func() time.Time) Calendar {
	id := strings.TrimSpace(tz)
	if id == "" {
		id = DefaultTimezone
	}
	loc, err := time.LoadLocation(id)
	valid := err == nil
	if !valid {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Calendar{id: id, loc: loc, valid: valid, now: now}
}

// IsValidTimezone reports whether tz names a loadable zone.
func IsValidTimezone(tz string) bool {
	if strings.TrimSpace(tz) == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

func (c Calendar) ID() string               { return c.id }
func (c Calendar) Valid() bool              { return c.valid }
func (c Calendar) Location() *time.Location { return c.loc }

// Now returns the current instant in the calendar's zone.
func (c Calendar) Now() time.Time {
	clock := c.now
	if clock == nil {
		clock = time.Now
	}
	loc := c.loc
	if loc == nil {
		loc = time.UTC
	}
	return clock().In(loc)
}

// Today is the local date as YYYY-MM-DD.
func (c Calendar) Today() string {
	return c.Now().Format(dateLayout)
}

// NowTime is the local wall clock as HH:MM.
func (c Calendar) NowTime() string {
	return c.Now().Format(clockLayout)
}

// IsPast reports whether date is strictly before today.
func (c Calendar) IsPast(date string) bool {
	return date < c.Today()
}

// IsToday reports whether date is today.
func (c Calendar) IsToday(date string) bool {
	return date == c.Today()
}

// FilterFutureSlots drops open slots that already started when selectedDate is
// today. Closed slots are always kept so the UI can show them as unavailable.
func (c Calendar) FilterFutureSlots(slots []tour.TimeSlot, selectedDate string) []tour.TimeSlot {
	out := make([]tour.TimeSlot, 0, len(slots))
	if !c.IsToday(selectedDate) {
		return append(out, slots...)
	}
	now := c.NowTime()
	for _, slot := range slots {
		if slot.Open() && slot.Time < now {
			continue
		}
		out = append(out, slot)
	}
	return out
}

// CurrentMonth is the month containing today.
func (c Calendar) CurrentMonth() Month {
	now := c.Now()
	return Month{Year: now.Year(), Month: now.Month()}
}

// Day is one cell of a month grid.
type Day struct {
	Date           string `json:"date"`
	Day            int    `json:"day"`
	IsCurrentMonth bool   `json:"isCurrentMonth"`
	IsPast         bool   `json:"isPast"`
	IsToday        bool   `json:"isToday"`
	IsSelected     bool   `json:"isSelected"`
}

// Days lays out a six week grid for month starting on the Sunday on or before
// the first of the month.
func (c Calendar) Days(month Month, selectedDate string) []Day {
	today := c.Today()
	first := month.first()
	start := first.AddDate(0, 0, -int(first.Weekday()))
	days := make([]Day, 0, gridCells)
	for i := 0; i < gridCells; i++ {
		d := start.AddDate(0, 0, i)
		date := d.Format(dateLayout)
		days = append(days, Day{
			Date:           date,
			Day:            d.Day(),
			IsCurrentMonth: d.Month() == first.Month(),
			IsPast:         date < today,
			IsToday:        date == today,
			IsSelected:     date == selectedDate,
		})
	}
	return days
}

// FormatDate renders a YYYY-MM-DD date as "Monday, June 10, 2024". Unparseable
// input is returned unchanged.
func (c Calendar) FormatDate(date string) string {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return d.Format(displayLayout)
}

// Abbreviation returns the zone abbreviation in effect now, or the raw
// identifier when the zone is unknown.
func (c Calendar) Abbreviation() string {
	if !c.valid {
		return c.id
	}
	name, _ := c.Now().Zone()
	return name
}

// DisplayName returns "America/Phoenix (MST)", or the raw identifier when the
// zone is unknown.
func (c Calendar) DisplayName() string {
	if !c.valid {
		return c.id
	}
	return fmt.Sprintf("%s (%s)", c.id, c.Abbreviation())
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
