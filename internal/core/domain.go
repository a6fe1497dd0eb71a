package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

const (
	MethodCheck  Method = "check"
	MethodCredit Method = "credit"
	MethodCash   Method = "cash"
)

// DateLayout is the storage format of Transaction.Date. Lexical order of
// values in this layout equals chronological order.
const DateLayout = "2006-01-02"

type (
	TxType string

	Method string

	Transaction struct {
		ID        string
		UserID    string
		Title     string
		Date      string // YYYY-MM-DD
		Category  string
		Amount    int64 // whole won
		Type      TxType
		Method    Method // empty when Type is Income
		Memo      string
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

var (
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyTitle      = errors.New("empty title")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidMethod   = errors.New("invalid payment method")
	ErrNoOwner         = errors.New("transaction has no owner")
)

var methods = []Method{MethodCredit, MethodCheck, MethodCash}

// Methods returns the payment methods in display order.
func Methods() []Method {
	return append([]Method(nil), methods...)
}

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

// Label is the Korean noun used in notifications ("지출", "수입").
func (t TxType) Label() string {
	switch t {
	case Income:
		return "수입"
	case Expense:
		return "지출"
	}
	return ""
}

func (m Method) Valid() bool {
	switch m {
	case MethodCheck, MethodCredit, MethodCash:
		return true
	}
	return false
}

// Label is the short badge text shown in lists.
func (m Method) Label() string {
	switch m {
	case MethodCheck:
		return "체크"
	case MethodCredit:
		return "신용"
	case MethodCash:
		return "현금"
	}
	return ""
}

// LongLabel is the text used on the editor's method buttons.
func (m Method) LongLabel() string {
	switch m {
	case MethodCheck:
		return "체크카드"
	case MethodCredit:
		return "신용카드"
	case MethodCash:
		return "현금"
	}
	return ""
}

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Normalize trims free text and drops the method of income records.
func (t Transaction) Normalize() Transaction {
	t.Title = strings.TrimSpace(t.Title)
	t.Category = strings.TrimSpace(t.Category)
	t.Memo = strings.TrimSpace(t.Memo)
	if t.Type == Income {
		t.Method = ""
	}
	return t
}

// Validate checks the persisted shape of a record against the built-in
// categories.
func (t Transaction) Validate() error {
	return t.ValidateWith(Taxonomy{})
}

// ValidateWith checks the persisted shape of a record against tax.
func (t Transaction) ValidateWith(tax Taxonomy) error {
	if err := t.ValidateShape(); err != nil {
		return err
	}
	if !tax.Allows(t.Type, t.Category) {
		return ErrInvalidCategory
	}
	return nil
}

// ValidateShape checks every invariant except category membership, which
// depends on the configured taxonomy. Storage backends use it.
func (t Transaction) ValidateShape() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrNoOwner
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if len(t.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if _, err := ParseDate(t.Date); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrInvalidCategory
	}
	if IsMethodRequired(t.Type) && !t.Method.Valid() {
		return ErrInvalidMethod
	}
	if t.Type == Income && t.Method != "" {
		return ErrInvalidMethod
	}
	return nil
}
