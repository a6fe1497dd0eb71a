// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// month navigation parameters, the editor form and input sanitization.

package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gagyebu/internal/core"
)

// View modes of the home page.
const (
	ViewList     = "list"
	ViewCalendar = "calendar"
)

// ParseMonthParams extracts year and month from query parameters, using the
// month of now for a missing or invalid value.
func ParseMonthParams(query url.Values, now time.Time) core.Month {
	m := core.MonthOf(now)

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			m.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if mo, err := strconv.Atoi(v); err == nil {
			m.Month = mo
		}
	}
	if !m.Valid() {
		return core.MonthOf(now)
	}
	return m
}

// ParseView returns the requested view mode, list by default.
func ParseView(query url.Values) string {
	if query.Get("view") == ViewCalendar {
		return ViewCalendar
	}
	return ViewList
}

// ParseSelectedDay returns the calendar's selected date. Without a valid
// ?day= inside m it is today when today falls in m, else the first of m.
func ParseSelectedDay(query url.Values, m core.Month, now time.Time) string {
	if d := strings.TrimSpace(query.Get("day")); d != "" {
		if _, err := core.ParseDate(d); err == nil && m.Contains(d) {
			return d
		}
	}
	today := now.Format(core.DateLayout)
	if m.Contains(today) {
		return today
	}
	return m.Start()
}

// ParseDraft reads the editor form. Unknown type values fall back to expense.
func ParseDraft(form url.Values) core.Draft {
	d := core.Draft{
		ID:       sanitizeInput(form.Get("id")),
		Type:     core.TxType(sanitizeInput(form.Get("type"))),
		Amount:   sanitizeInput(form.Get("amount")),
		Title:    sanitizeInput(form.Get("title")),
		Date:     sanitizeInput(form.Get("date")),
		Category: sanitizeInput(form.Get("category")),
		Method:   core.Method(sanitizeInput(form.Get("method"))),
		Memo:     sanitizeInput(form.Get("memo")),
	}
	if !d.Type.Valid() {
		d.Type = core.Expense
	}
	return d
}

// sanitizeInput removes control characters (except tab, newline and
// carriage return) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("요청 형식이 올바르지 않습니다.")
	}
	return nil
}
