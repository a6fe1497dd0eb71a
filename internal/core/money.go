// Package core holds the ledger domain: records, categories, the editor
// state machine and the monthly folds used by the list and calendar views.
//
// This file contains amount parsing and Korean won formatting.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
)

// maxAmount bounds a single record so monthly sums cannot overflow int64.
const maxAmount = 1_000_000_000_000

// ParseAmount converts a typed amount in whole won to an integer.
//
// Thousands separators (commas) and surrounding whitespace are accepted.
// Signs, decimals and values above one trillion are rejected. An empty
// string parses to 0 so the editor can report "amount missing" and
// "amount zero" with the same message.
//
// Examples:
//
//	ParseAmount("20000")  -> 20000, nil
//	ParseAmount("20,000") -> 20000, nil
//	ParseAmount("")       -> 0, nil
//	ParseAmount("1.5")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, nil
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v > maxAmount {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatWon renders an amount with thousands separators, e.g. "20,000원".
func FormatWon(n int64) string {
	return humanize.Comma(n) + "원"
}

// FormatSigned renders a list-row amount: "+20,000" for income,
// "-5,000" for expense.
func FormatSigned(t TxType, n int64) string {
	if t == Income {
		return "+" + humanize.Comma(n)
	}
	return "-" + humanize.Comma(n)
}

// FormatSummary renders a summary card value, e.g. "+ 20,000 원".
func FormatSummary(t TxType, n int64) string {
	sign := "-"
	if t == Income {
		sign = "+"
	}
	return fmt.Sprintf("%s %s 원", sign, humanize.Comma(n))
}

// FormatCompact renders a calendar cell amount without a unit.
func FormatCompact(n int64) string {
	return humanize.Comma(n)
}

// FormatJoinDate renders a date in Korean long form, e.g. "2024년 5월 1일".
func FormatJoinDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d년 %d월 %d일", t.Year(), int(t.Month()), t.Day())
}
