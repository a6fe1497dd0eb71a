package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Editor messages shown to the user.
const (
	MsgAmountRequired   = "금액을 입력해주세요!"
	MsgTitleRequired    = "거래명을 입력해주세요!"
	MsgCategoryRequired = "카테고리를 선택해주세요!"
	MsgMethodRequired   = "결제 수단을 선택해주세요!"
	MsgDateRequired     = "날짜를 선택해주세요!"
	MsgLoginRequired    = "로그인이 필요합니다!"
	MsgLoginRequiredSub = "기록을 저장하려면 먼저 로그인해주세요."
	MsgSaveFailed       = "저장에 실패했습니다. 다시 시도해주세요."
	MsgDeleteFailed     = "삭제에 실패했습니다. 다시 시도해주세요."
	MsgDeleted          = "기록이 삭제되었어요."
	MsgDeleteConfirm    = "정말 삭제하시겠어요? 삭제한 기록은 되돌릴 수 없어요."
)

// ValidationError reports the first editor field that failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Draft is the editor form state. Amount is kept as typed so a failed
// submission can be re-rendered with the user's input intact.
type Draft struct {
	ID       string // set in edit mode
	Type     TxType
	Amount   string
	Title    string
	Date     string
	Category string
	Method   Method
	Memo     string
}

// NewDraft returns the editor defaults.
func NewDraft(today time.Time) Draft {
	return Draft{
		Type: Expense,
		Date: today.Format(DateLayout),
	}
}

// DraftFrom loads an existing record into the editor.
func DraftFrom(t Transaction) Draft {
	return Draft{
		ID:       t.ID,
		Type:     t.Type,
		Amount:   fmt.Sprintf("%d", t.Amount),
		Title:    t.Title,
		Date:     t.Date,
		Category: t.Category,
		Method:   t.Method,
		Memo:     t.Memo,
	}
}

// Editing reports whether the draft overwrites an existing record.
func (d Draft) Editing() bool {
	return d.ID != ""
}

// SetType switches the type, resetting a category the new type does not
// allow and dropping the method when it is no longer required.
func (d Draft) SetType(tt TxType, tax Taxonomy) Draft {
	if !tt.Valid() {
		return d
	}
	d.Type = tt
	if d.Category != "" && !tax.Allows(tt, d.Category) {
		d.Category = ""
	}
	if !IsMethodRequired(tt) {
		d.Method = ""
	}
	return d
}

// Validate runs the editor checks in order and stops at the first failure.
func (d Draft) Validate(tax Taxonomy) error {
	amount, err := ParseAmount(d.Amount)
	if err != nil || amount == 0 {
		return &ValidationError{Field: "amount", Message: MsgAmountRequired}
	}
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Message: MsgTitleRequired}
	}
	if !tax.Allows(d.Type, strings.TrimSpace(d.Category)) {
		return &ValidationError{Field: "category", Message: MsgCategoryRequired}
	}
	if IsMethodRequired(d.Type) && !d.Method.Valid() {
		return &ValidationError{Field: "method", Message: MsgMethodRequired}
	}
	if _, err := ParseDate(d.Date); err != nil {
		return &ValidationError{Field: "date", Message: MsgDateRequired}
	}
	return nil
}

// Transaction converts a validated draft into a record owned by userID.
func (d Draft) Transaction(userID string, tax Taxonomy) (Transaction, error) {
	if err := d.Validate(tax); err != nil {
		return Transaction{}, err
	}
	amount, _ := ParseAmount(d.Amount)
	t := Transaction{
		ID:       d.ID,
		UserID:   userID,
		Title:    d.Title,
		Date:     d.Date,
		Category: d.Category,
		Amount:   amount,
		Type:     d.Type,
		Method:   d.Method,
		Memo:     d.Memo,
	}
	return t.Normalize(), nil
}

// SuccessTitle is the toast title after a save, e.g. "지출이 추가되었어요!".
func SuccessTitle(t Transaction, edited bool) string {
	verb := "추가되었어요!"
	if edited {
		verb = "수정되었어요!"
	}
	return t.Type.Label() + "이 " + verb
}

// SuccessDescription is the toast body, e.g. "점심 12,000원이 저장되었어요.".
func SuccessDescription(t Transaction) string {
	return t.Title + " " + FormatWon(t.Amount) + "이 저장되었어요."
}

// FieldOf returns the failing field of a validation error, or "".
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}
