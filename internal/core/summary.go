package core

import "time"

// Totals are the monthly income and expense sums.
type Totals struct {
	Income  int64
	Expense int64
}

// Balance is income minus expense.
func (t Totals) Balance() int64 {
	return t.Income - t.Expense
}

// DayStat is the per-date income/expense bucket used by the calendar.
type DayStat struct {
	Income  int64
	Expense int64
}

// Empty reports whether the day has no records.
func (d DayStat) Empty() bool {
	return d.Income == 0 && d.Expense == 0
}

// MonthlyTotals sums amounts by type. Order of items does not matter.
func MonthlyTotals(items []Transaction) Totals {
	var t Totals
	for _, it := range items {
		switch it.Type {
		case Income:
			t.Income += it.Amount
		case Expense:
			t.Expense += it.Amount
		}
	}
	return t
}

// DailyStats buckets amounts by date and type.
func DailyStats(items []Transaction) map[string]DayStat {
	out := make(map[string]DayStat)
	for _, it := range items {
		s := out[it.Date]
		switch it.Type {
		case Income:
			s.Income += it.Amount
		case Expense:
			s.Expense += it.Amount
		default:
			continue
		}
		out[it.Date] = s
	}
	return out
}

// ItemsOn returns the records dated date, preserving their order.
func ItemsOn(items []Transaction, date string) []Transaction {
	var out []Transaction
	for _, it := range items {
		if it.Date == date {
			out = append(out, it)
		}
	}
	return out
}

// CalendarDay is one cell of the month grid.
type CalendarDay struct {
	Date    string
	Day     int
	Weekday time.Weekday
	InMonth bool
	Today   bool
	Stat    DayStat
}

// CalendarGrid lays a month out in Sunday-first weeks. Leading and
// trailing days of the neighbouring months fill the first and last week.
func CalendarGrid(m Month, stats map[string]DayStat, today time.Time) [][]CalendarDay {
	first := m.first()
	start := first.AddDate(0, 0, -int(first.Weekday()))
	last := first.AddDate(0, 1, -1)
	end := last.AddDate(0, 0, 6-int(last.Weekday()))
	todayStr := today.Format(DateLayout)

	var weeks [][]CalendarDay
	var week []CalendarDay
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(DateLayout)
		week = append(week, CalendarDay{
			Date:    date,
			Day:     d.Day(),
			Weekday: d.Weekday(),
			InMonth: int(d.Month()) == m.Month,
			Today:   date == todayStr,
			Stat:    stats[date],
		})
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = nil
		}
	}
	return weeks
}

// WeekdayLabels are the Sunday-first calendar column headers.
var WeekdayLabels = []string{"일", "월", "화", "수", "목", "금", "토"}
