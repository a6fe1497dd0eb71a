package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	defaultExpenseCategories = []string{"식비", "교통", "생활", "의료", "쇼핑", "기타"}
	defaultIncomeCategories  = []string{"월급", "부수입", "용돈", "금융수익", "기타"}
)

// Taxonomy maps a transaction type to its ordered category labels.
// The zero value uses the built-in labels.
type Taxonomy struct {
	Expense []string `yaml:"expense"`
	Income  []string `yaml:"income"`
}

// DefaultTaxonomy returns the built-in category labels.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Expense: append([]string(nil), defaultExpenseCategories...),
		Income:  append([]string(nil), defaultIncomeCategories...),
	}
}

// LoadTaxonomy reads a YAML file with `expense:` and `income:` lists.
// An empty or missing list keeps the built-in labels for that type.
func LoadTaxonomy(path string) (Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("read taxonomy file: %w", err)
	}
	var raw Taxonomy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Taxonomy{}, fmt.Errorf("parse taxonomy file: %w", err)
	}
	tax := Taxonomy{Expense: clean(raw.Expense), Income: clean(raw.Income)}
	return tax.withDefaults(), nil
}

func (t Taxonomy) withDefaults() Taxonomy {
	if len(t.Expense) == 0 {
		t.Expense = append([]string(nil), defaultExpenseCategories...)
	}
	if len(t.Income) == 0 {
		t.Income = append([]string(nil), defaultIncomeCategories...)
	}
	return t
}

// Categories returns the ordered labels allowed for tt.
func (t Taxonomy) Categories(tt TxType) []string {
	t = t.withDefaults()
	switch tt {
	case Expense:
		return append([]string(nil), t.Expense...)
	case Income:
		return append([]string(nil), t.Income...)
	}
	return nil
}

// Allows reports whether category is valid for tt.
func (t Taxonomy) Allows(tt TxType, category string) bool {
	if category == "" {
		return false
	}
	for _, c := range t.Categories(tt) {
		if c == category {
			return true
		}
	}
	return false
}

// AllowedCategories returns the built-in labels for tt.
func AllowedCategories(tt TxType) []string {
	return Taxonomy{}.Categories(tt)
}

// IsAllowedCategory checks category against the built-in labels.
func IsAllowedCategory(tt TxType, category string) bool {
	return Taxonomy{}.Allows(tt, category)
}

// IsMethodRequired reports whether records of type tt carry a payment method.
func IsMethodRequired(tt TxType) bool {
	return tt == Expense
}

func clean(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
