package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day format transactions are stored and compared in
const DateLayout = "2006-01-02"

// TransactionType represents the direction of a transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Transaction is a read-only view of a stored financial transaction.
// Project and category identifiers are opaque to search; they are only used as filters.
type Transaction struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	ProjectID    string          `json:"project_id,omitempty"`
	ProjectName  string          `json:"project_name,omitempty"`
	CategoryID   string          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	Source       string          `json:"source,omitempty"`
}

// Filters restricts every retrieval path in the same way. Zero values mean "no filter".
type Filters struct {
	StartDate  *time.Time      `json:"start_date,omitempty"`
	EndDate    *time.Time      `json:"end_date,omitempty"`
	Type       TransactionType `json:"type,omitempty"`
	ProjectID  string          `json:"project_id,omitempty"`
	CategoryID string          `json:"category_id,omitempty"`
}

// Day returns the UTC calendar day of t in DateLayout, the form dates are stored and
// compared in
func Day(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Match reports whether a transaction satisfies the filters. Date bounds are inclusive
// and compared at UTC day granularity.
func (f Filters) Match(t Transaction) bool {
	day := Day(t.Date)
	if f.StartDate != nil && day < Day(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && day > Day(*f.EndDate) {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.CategoryID != "" && t.CategoryID != f.CategoryID {
		return false
	}
	return true
}

// HasDateRange reports whether either date bound is set
func (f Filters) HasDateRange() bool {
	return f.StartDate != nil || f.EndDate != nil
}
