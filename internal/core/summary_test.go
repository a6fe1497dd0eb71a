package core

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func scenario() []Transaction {
	return []Transaction{
		{Date: "2024-05-01", Type: Expense, Amount: 5000},
		{Date: "2024-05-01", Type: Income, Amount: 20000},
		{Date: "2024-05-02", Type: Expense, Amount: 3000},
	}
}

func TestMonthlyTotals(t *testing.T) {
	got := MonthlyTotals(scenario())
	want := Totals{Income: 20000, Expense: 8000}
	if got != want {
		t.Fatalf("MonthlyTotals = %+v, want %+v", got, want)
	}
	if got.Balance() != 12000 {
		t.Fatalf("Balance = %d, want 12000", got.Balance())
	}
}

func TestMonthlyTotalsEmpty(t *testing.T) {
	if got := MonthlyTotals(nil); got != (Totals{}) {
		t.Fatalf("expected zero totals, got %+v", got)
	}
}

func TestMonthlyTotalsOrderIndependent(t *testing.T) {
	items := scenario()
	reversed := []Transaction{items[2], items[1], items[0]}
	if MonthlyTotals(items) != MonthlyTotals(reversed) {
		t.Fatalf("totals depend on order")
	}
}

func TestDailyStats(t *testing.T) {
	got := DailyStats(scenario())
	want := map[string]DayStat{
		"2024-05-01": {Income: 20000, Expense: 5000},
		"2024-05-02": {Expense: 3000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("DailyStats mismatch (-want +got):\n%s", diff)
	}
}

func TestItemsOn(t *testing.T) {
	got := ItemsOn(scenario(), "2024-05-01")
	if len(got) != 2 || got[0].Amount != 5000 || got[1].Amount != 20000 {
		t.Fatalf("unexpected items: %+v", got)
	}
	if len(ItemsOn(scenario(), "2024-05-03")) != 0 {
		t.Fatalf("expected no items")
	}
}

func TestCalendarGrid(t *testing.T) {
	// May 2024 starts on a Wednesday and ends on a Friday.
	m := Month{Year: 2024, Month: 5}
	today := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)
	weeks := CalendarGrid(m, DailyStats(scenario()), today)

	if len(weeks) != 5 {
		t.Fatalf("weeks = %d, want 5", len(weeks))
	}
	for i, w := range weeks {
		if len(w) != 7 {
			t.Fatalf("week %d has %d days", i, len(w))
		}
		if w[0].Weekday != time.Sunday {
			t.Fatalf("week %d does not start on Sunday", i)
		}
	}
	first := weeks[0]
	if first[0].Date != "2024-04-28" || first[0].InMonth {
		t.Fatalf("unexpected leading day: %+v", first[0])
	}
	if first[3].Date != "2024-05-01" || !first[3].InMonth {
		t.Fatalf("unexpected first of month: %+v", first[3])
	}
	if first[3].Stat != (DayStat{Income: 20000, Expense: 5000}) {
		t.Fatalf("unexpected stat: %+v", first[3].Stat)
	}
	last := weeks[4]
	if last[6].Date != "2024-06-01" || last[6].InMonth {
		t.Fatalf("unexpected trailing day: %+v", last[6])
	}

	var todays int
	for _, w := range weeks {
		for _, d := range w {
			if d.Today {
				todays++
				if d.Date != "2024-05-15" {
					t.Fatalf("wrong today cell %s", d.Date)
				}
			}
		}
	}
	if todays != 1 {
		t.Fatalf("today cells = %d, want 1", todays)
	}
}
