package core

import (
	"fmt"
	"time"
)

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month int // 1-12
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: int(t.Month())}
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

func (m Month) Valid() bool {
	return m.Year >= 1 && m.Year <= 9999 && m.Month >= 1 && m.Month <= 12
}

func (m Month) first() time.Time {
	return time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC)
}

// Start is the first day of the month as an ISO date.
func (m Month) Start() string {
	return m.first().Format(DateLayout)
}

// End is the last day of the month as an ISO date (inclusive bound).
func (m Month) End() string {
	return m.first().AddDate(0, 1, -1).Format(DateLayout)
}

// Days is the number of days in the month.
func (m Month) Days() int {
	return m.first().AddDate(0, 1, -1).Day()
}

func (m Month) Prev() Month {
	return MonthOf(m.first().AddDate(0, -1, 0))
}

func (m Month) Next() Month {
	return MonthOf(m.first().AddDate(0, 1, 0))
}

// Contains reports whether the ISO date falls inside the month.
func (m Month) Contains(date string) bool {
	return date >= m.Start() && date <= m.End()
}

// Label renders the navigator header, e.g. "2024년 5월".
func (m Month) Label() string {
	return fmt.Sprintf("%d년 %d월", m.Year, m.Month)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}
