package http

import (
	"fmt"
	"net/http"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

const msgLoadFailed = "데이터를 불러오지 못했어요. 잠시 후 다시 시도해주세요."

// homeData drives index.html and its "home_content" block.
type homeData struct {
	page
	Month    core.Month
	Prev     core.Month
	Next     core.Month
	View     string
	Items    []core.Transaction
	Totals   core.Totals
	LoadErr  string
	Weeks    [][]core.CalendarDay
	Weekdays []string
	Selected string
	DayItems []core.Transaction
}

// Calendar reports whether the calendar view is active.
func (d homeData) Calendar() bool { return d.View == ViewCalendar }

// MonthURL keeps the current view while moving to m.
func (d homeData) MonthURL(m core.Month) string {
	return fmt.Sprintf("/?year=%d&month=%d&view=%s", m.Year, m.Month, d.View)
}

// ViewURL switches the view within the current month.
func (d homeData) ViewURL(view string) string {
	return fmt.Sprintf("/?year=%d&month=%d&view=%s", d.Month.Year, d.Month.Month, view)
}

// DayURL selects a calendar date.
func (d homeData) DayURL(date string) string {
	return d.ViewURL(ViewCalendar) + "&day=" + date
}

// SelfURL reloads exactly what is on screen.
func (d homeData) SelfURL() string {
	if d.Calendar() {
		return d.DayURL(d.Selected)
	}
	return d.ViewURL(d.View)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rs := sessionFrom(ctx)
	now := s.now()
	q := r.URL.Query()

	m := ParseMonthParams(q, now)
	data := homeData{
		page:  s.page(r, m.Label()),
		Month: m,
		Prev:  m.Prev(),
		Next:  m.Next(),
		View:  ParseView(q),
	}

	items, err := s.tx.Month(ctx, rs.UserID(), m)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Month query failed",
			log.FieldError, err,
			log.FieldMonth, m.String())
		data.LoadErr = msgLoadFailed
	}
	data.Items = items
	data.Totals = core.MonthlyTotals(items)

	if data.Calendar() {
		data.Weeks = core.CalendarGrid(m, core.DailyStats(items), now)
		data.Weekdays = core.WeekdayLabels
		data.Selected = ParseSelectedDay(q, m, now)
		data.DayItems = core.ItemsOn(items, data.Selected)
	}

	name := "index.html"
	if isHTMX(r) && r.Header.Get("HX-Target") == "home" {
		name = "home_content"
	}
	s.render(w, r, http.StatusOK, name, data)
}
