package calendar

import (
	"fmt"
	"time"
)

// Month identifies a calendar month independent of any zone.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// ParseMonth reads "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("calendar: invalid month %q", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing a YYYY-MM-DD date.
func MonthOf(date string) (Month, bool) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return Month{}, false
	}
	return Month{Year: t.Year(), Month: t.Month()}, true
}

func (m Month) first() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next is the following month.
func (m Month) Next() Month {
	t := m.first().AddDate(0, 1, 0)
	return Month{Year: t.Year(), Month: t.Month()}
}

// Prev is the preceding month.
func (m Month) Prev() Month {
	t := m.first().AddDate(0, -1, 0)
	return Month{Year: t.Year(), Month: t.Month()}
}

// Before reports whether m is earlier than other.
func (m Month) Before(other Month) bool {
	return m.first().Before(other.first())
}

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Label renders "June 2024".
func (m Month) Label() string {
	return m.first().Format("January 2006")
}
