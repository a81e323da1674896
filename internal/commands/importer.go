package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/lox/transaction-search/internal/types"
)

// TransactionWriter is the write side of the transaction store
type TransactionWriter interface {
	Store(ctx context.Context, t types.Transaction) error
}

// importRecord is the on-disk shape of a transaction, with a calendar-day date
type importRecord struct {
	ID           string          `json:"id"`
	Date         string          `json:"date"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	ProjectID    string          `json:"project_id"`
	ProjectName  string          `json:"project_name"`
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Source       string          `json:"source"`
}

func (r importRecord) transaction() (types.Transaction, error) {
	if r.ID == "" {
		return types.Transaction{}, fmt.Errorf("transaction id is required")
	}
	date, err := time.Parse(types.DateLayout, r.Date)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("transaction %s: invalid date %q: %w", r.ID, r.Date, err)
	}
	kind := types.TransactionType(strings.ToLower(r.Type))
	if !kind.Valid() {
		return types.Transaction{}, fmt.Errorf("transaction %s: invalid type %q", r.ID, r.Type)
	}
	return types.Transaction{
		ID:           r.ID,
		Date:         date,
		Type:         kind,
		Amount:       r.Amount,
		Description:  r.Description,
		ProjectID:    r.ProjectID,
		ProjectName:  r.ProjectName,
		CategoryID:   r.CategoryID,
		CategoryName: r.CategoryName,
		Source:       r.Source,
	}, nil
}

// ImportTransactions reads a JSON array of transactions from r and stores each one.
// The whole file is validated before anything is written.
func ImportTransactions(ctx context.Context, r io.Reader, store TransactionWriter, progress Progress, logger *log.Logger) (int, error) {
	var records []importRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return 0, fmt.Errorf("failed to decode transactions: %w", err)
	}

	transactions := make([]types.Transaction, 0, len(records))
	for i, record := range records {
		t, err := record.transaction()
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		transactions = append(transactions, t)
	}

	start := time.Now()
	defer progress.Close()
	for i, t := range transactions {
		if err := store.Store(ctx, t); err != nil {
			return i, fmt.Errorf("failed to store transaction %s: %w", t.ID, err)
		}
		_ = progress.Add(1)
	}

	logger.Info("Imported transactions", "count", len(transactions), "duration", time.Since(start))
	return len(transactions), nil
}
