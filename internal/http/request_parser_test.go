package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gagyebu/internal/core"
)

var testNow = time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

func TestParseMonthParams(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  core.Month
	}{
		{"both values provided", url.Values{"year": {"2023"}, "month": {"12"}}, core.Month{Year: 2023, Month: 12}},
		{"only year", url.Values{"year": {"2023"}}, core.Month{Year: 2023, Month: 5}},
		{"only month", url.Values{"month": {"2"}}, core.Month{Year: 2024, Month: 2}},
		{"empty uses now", url.Values{}, core.Month{Year: 2024, Month: 5}},
		{"invalid month", url.Values{"year": {"2023"}, "month": {"13"}}, core.Month{Year: 2024, Month: 5}},
		{"garbage ignored", url.Values{"year": {"abc"}, "month": {"xyz"}}, core.Month{Year: 2024, Month: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseMonthParams(tt.query, testNow); got != tt.want {
				t.Errorf("ParseMonthParams() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSelectedDay(t *testing.T) {
	may := core.Month{Year: 2024, Month: 5}
	june := core.Month{Year: 2024, Month: 6}
	tests := []struct {
		name  string
		query url.Values
		month core.Month
		want  string
	}{
		{"explicit day", url.Values{"day": {"2024-05-03"}}, may, "2024-05-03"},
		{"today in month", url.Values{}, may, "2024-05-15"},
		{"other month defaults to first", url.Values{}, june, "2024-06-01"},
		{"day outside month ignored", url.Values{"day": {"2024-05-03"}}, june, "2024-06-01"},
		{"invalid day ignored", url.Values{"day": {"2024-05-40"}}, may, "2024-05-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseSelectedDay(tt.query, tt.month, testNow); got != tt.want {
				t.Errorf("ParseSelectedDay() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseView(t *testing.T) {
	if ParseView(url.Values{"view": {"calendar"}}) != ViewCalendar {
		t.Error("calendar view not recognised")
	}
	if ParseView(url.Values{"view": {"grid"}}) != ViewList {
		t.Error("unknown view should fall back to list")
	}
}

func TestParseDraft(t *testing.T) {
	form := url.Values{
		"type":     {"income"},
		"amount":   {" 20,000 "},
		"title":    {"월급\x00"},
		"date":     {"2024-05-25"},
		"category": {"월급"},
		"method":   {"cash"},
		"memo":     {"5월분\n"},
	}
	got := ParseDraft(form)
	want := core.Draft{
		Type:     core.Income,
		Amount:   "20,000",
		Title:    "월급",
		Date:     "2024-05-25",
		Category: "월급",
		Method:   core.MethodCash,
		Memo:     "5월분",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseDraft() mismatch (-want +got):\n%s", diff)
	}

	if d := ParseDraft(url.Values{"type": {"transfer"}}); d.Type != core.Expense {
		t.Errorf("unknown type should default to expense, got %q", d.Type)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"a\x01b\x7fc", "ab\x7fc"},
		{"line1\nline2", "line1\nline2"},
		{"tab\there", "tab\there"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFormOrFail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("a=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if ParseFormOrFail(req) != nil {
		t.Error("valid form should parse")
	}

	bad := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("%zz"))
	bad.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if ParseFormOrFail(bad) == nil {
		t.Error("malformed form should fail")
	}
}
