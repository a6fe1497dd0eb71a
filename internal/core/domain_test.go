package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		UserID:   "u1",
		Title:    "버스",
		Date:     "2024-05-02",
		Category: "교통",
		Amount:   1500,
		Type:     Expense,
		Method:   MethodCheck,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"no owner", func(tx *Transaction) { tx.UserID = "" }, ErrNoOwner},
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, ErrInvalidType},
		{"zero amount", func(tx *Transaction) { tx.Amount = 0 }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = -1 }, ErrInvalidAmount},
		{"empty title", func(tx *Transaction) { tx.Title = " " }, ErrEmptyTitle},
		{"bad date", func(tx *Transaction) { tx.Date = "2024-13-01" }, ErrInvalidDate},
		{"wrong category", func(tx *Transaction) { tx.Category = "월급" }, ErrInvalidCategory},
		{"missing method", func(tx *Transaction) { tx.Method = "" }, ErrInvalidMethod},
		{"income with method", func(tx *Transaction) { tx.Type = Income; tx.Category = "월급" }, ErrInvalidMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := good
			tt.mutate(&tx)
			if err := tx.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateShapeIgnoresTaxonomy(t *testing.T) {
	tx := Transaction{UserID: "u1", Title: "t", Date: "2024-05-02", Category: "커피", Amount: 1, Type: Expense, Method: MethodCash}
	if err := tx.ValidateShape(); err != nil {
		t.Fatalf("ValidateShape should accept custom category: %v", err)
	}
	if err := tx.Validate(); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("Validate should reject custom category, got %v", err)
	}
	custom := Taxonomy{Expense: []string{"커피"}}
	if err := tx.ValidateWith(custom); err != nil {
		t.Fatalf("ValidateWith custom taxonomy: %v", err)
	}
}

func TestTaxonomyDefaults(t *testing.T) {
	exp := AllowedCategories(Expense)
	if len(exp) != 6 || exp[0] != "식비" || exp[5] != "기타" {
		t.Fatalf("unexpected expense categories: %v", exp)
	}
	inc := AllowedCategories(Income)
	if len(inc) != 5 || inc[0] != "월급" || inc[3] != "금융수익" {
		t.Fatalf("unexpected income categories: %v", inc)
	}
	if AllowedCategories("other") != nil {
		t.Fatalf("unknown type must have no categories")
	}
	if !IsMethodRequired(Expense) || IsMethodRequired(Income) {
		t.Fatalf("method is required only for expense")
	}
	// Returned slices are copies.
	exp[0] = "changed"
	if AllowedCategories(Expense)[0] != "식비" {
		t.Fatalf("AllowedCategories leaked internal slice")
	}
}

func TestLoadTaxonomy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "categories.yaml")
	content := "expense:\n  - 커피\n  - 식비\n  - 커피\n  - ''\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tax, err := LoadTaxonomy(path)
	if err != nil {
		t.Fatalf("LoadTaxonomy: %v", err)
	}
	if got := tax.Categories(Expense); len(got) != 2 || got[0] != "커피" || got[1] != "식비" {
		t.Fatalf("unexpected expense list: %v", got)
	}
	if got := tax.Categories(Income); len(got) != 5 {
		t.Fatalf("income should fall back to defaults, got %v", got)
	}

	if _, err := LoadTaxonomy(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestMonth(t *testing.T) {
	m := Month{Year: 2024, Month: 2}
	if m.Start() != "2024-02-01" || m.End() != "2024-02-29" {
		t.Fatalf("leap February bounds: %s..%s", m.Start(), m.End())
	}
	if m.Days() != 29 {
		t.Fatalf("Days = %d", m.Days())
	}
	if m.Prev() != (Month{2024, 1}) || m.Next() != (Month{2024, 3}) {
		t.Fatalf("Prev/Next wrong: %v %v", m.Prev(), m.Next())
	}
	if (Month{2024, 12}).Next() != (Month{2025, 1}) || (Month{2024, 1}).Prev() != (Month{2023, 12}) {
		t.Fatalf("year rollover wrong")
	}
	if !m.Contains("2024-02-29") || m.Contains("2024-03-01") || m.Contains("2024-01-31") {
		t.Fatalf("Contains wrong")
	}
	if m.Label() != "2024년 2월" {
		t.Fatalf("Label = %q", m.Label())
	}
	if got, err := ParseMonth("2024-05"); err != nil || got != (Month{2024, 5}) {
		t.Fatalf("ParseMonth = %v, %v", got, err)
	}
	if MonthOf(time.Date(2024, 7, 31, 23, 0, 0, 0, time.UTC)) != (Month{2024, 7}) {
		t.Fatalf("MonthOf wrong")
	}
	if (Month{2024, 13}).Valid() || !(Month{2024, 1}).Valid() {
		t.Fatalf("Valid wrong")
	}
}

func TestMethodLabels(t *testing.T) {
	if MethodCredit.Label() != "신용" || MethodCheck.LongLabel() != "체크카드" || MethodCash.Label() != "현금" {
		t.Fatalf("unexpected labels")
	}
	if Method("card").Valid() {
		t.Fatalf("unknown method must be invalid")
	}
}
