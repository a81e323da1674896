package db

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/transaction-search/internal/types"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	logger := log.New(io.Discard)
	logger.SetLevel(log.DebugLevel)

	db, err := New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func day(s string) time.Time {
	d, err := time.Parse(types.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func seed(t *testing.T, db *DB, txs ...types.Transaction) {
	t.Helper()
	for _, tx := range txs {
		require.NoError(t, db.Store(context.Background(), tx))
	}
}

func fixtures() []types.Transaction {
	return []types.Transaction{
		{
			ID: "t1", Date: day("2024-03-02"), Type: types.TransactionTypeExpense,
			Amount: decimal.RequireFromString("1250.00"), Description: "Portland cement 40 bags",
			ProjectID: "p1", ProjectName: "North Site", CategoryID: "c1", CategoryName: "Materials", Source: "invoice",
		},
		{
			ID: "t2", Date: day("2024-03-15"), Type: types.TransactionTypeExpense,
			Amount: decimal.RequireFromString("300.50"), Description: "Cement mixer rental",
			ProjectID: "p2", ProjectName: "Harbour Office", CategoryID: "c2", CategoryName: "Equipment", Source: "card",
		},
		{
			ID: "t3", Date: day("2024-02-20"), Type: types.TransactionTypeIncome,
			Amount: decimal.RequireFromString("9000"), Description: "Progress payment milestone 2",
			ProjectID: "p1", ProjectName: "North Site", CategoryID: "c3", CategoryName: "Client Payments", Source: "bank transfer",
		},
		{
			ID: "t4", Date: day("2024-03-20"), Type: types.TransactionTypeExpense,
			Amount: decimal.RequireFromString("75"), Description: "Fuel for site truck",
			ProjectID: "p1", ProjectName: "North Site", CategoryID: "c4", CategoryName: "Transport", Source: "card",
		},
	}
}

func TestStoreAndGetTransaction(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tx := fixtures()[0]
	seed(t, db, tx)

	got, err := db.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tx.Description, got.Description)
	assert.Equal(t, tx.ProjectName, got.ProjectName)
	assert.Equal(t, tx.CategoryID, got.CategoryID)
	assert.True(t, tx.Amount.Equal(got.Amount))
	assert.Equal(t, tx.Date, got.Date)
	assert.Equal(t, types.TransactionTypeExpense, got.Type)

	missing, err := db.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	count, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStoreRejectsInvalidTransactions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	assert.Error(t, db.Store(ctx, types.Transaction{Type: types.TransactionTypeIncome}))
	assert.Error(t, db.Store(ctx, types.Transaction{ID: "x", Type: "transfer"}))
}

func TestStoreUpdateKeepsIndexInSync(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tx := fixtures()[0]
	seed(t, db, tx)

	tx.Description = "Steel rebar bundle"
	seed(t, db, tx)

	matches, err := db.SearchText(ctx, "cement", types.Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = db.SearchText(ctx, "rebar", types.Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t1", matches[0].Transaction.ID)

	count, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSearchText(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seed(t, db, fixtures()...)

	matches, err := db.SearchText(ctx, "cement", types.Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	ids := []string{matches[0].Transaction.ID, matches[1].Transaction.ID}
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)
	for _, m := range matches {
		assert.Greater(t, m.Score, 0.0)
	}

	// stemming matches plural query terms
	matches, err = db.SearchText(ctx, "payments", types.Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t3", matches[0].Transaction.ID)
}

func TestSearchTextAppliesFilters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seed(t, db, fixtures()...)

	start, end := day("2024-03-01"), day("2024-03-10")
	matches, err := db.SearchText(ctx, "cement", types.Filters{StartDate: &start, EndDate: &end}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t1", matches[0].Transaction.ID)

	// inclusive bounds
	exact := day("2024-03-15")
	matches, err = db.SearchText(ctx, "cement", types.Filters{StartDate: &exact, EndDate: &exact}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t2", matches[0].Transaction.ID)

	matches, err = db.SearchText(ctx, "north site", types.Filters{Type: types.TransactionTypeIncome}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t3", matches[0].Transaction.ID)

	matches, err = db.SearchText(ctx, "cement", types.Filters{ProjectID: "p2", CategoryID: "c2"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t2", matches[0].Transaction.ID)
}

func TestSearchTextLimitAndBlank(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seed(t, db, fixtures()...)

	matches, err := db.SearchText(ctx, "north", types.Filters{}, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	for _, q := range []string{"", "   ", "!!! ???"} {
		matches, err := db.SearchText(ctx, q, types.Filters{}, 10)
		require.NoError(t, err)
		assert.Empty(t, matches, "query %q", q)
	}
}

func TestSearchTextPunctuationIsNotSyntax(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seed(t, db, fixtures()...)

	matches, err := db.SearchText(ctx, `cement" OR NEAR(fuel`, types.Filters{}, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestSearchSubstring(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seed(t, db, fixtures()...)

	matches, err := db.SearchSubstring(ctx, "CEM", types.Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// most recent first
	assert.Equal(t, "t2", matches[0].Transaction.ID)
	assert.Equal(t, "t1", matches[1].Transaction.ID)
	assert.Zero(t, matches[0].Score)

	// any free-text field matches
	matches, err = db.SearchSubstring(ctx, "bank trans", types.Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "t3", matches[0].Transaction.ID)

	matches, err = db.SearchSubstring(ctx, "site", types.Filters{Type: types.TransactionTypeExpense}, 10)
	require.NoError(t, err)
	ids := []string{}
	for _, m := range matches {
		ids = append(ids, m.Transaction.ID)
	}
	assert.Equal(t, []string{"t4", "t1"}, ids)
}

func TestSearchSubstringEscapesWildcards(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seed(t, db, fixtures()...)

	matches, err := db.SearchSubstring(ctx, "%", types.Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = db.SearchSubstring(ctx, "  ", types.Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchSubstringFoldsUnicodeCase(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seed(t, db, types.Transaction{
		ID: "u1", Date: day("2024-03-05"), Type: types.TransactionTypeExpense,
		Amount: decimal.RequireFromString("410"), Description: "Ürün Çimento",
		ProjectName: "Straße Nord", CategoryName: "Materials", Source: "invoice",
	})

	for _, query := range []string{"Ürün", "ürün", "ÜRÜN", "Çimento", "çimento", "rün çim", "straße"} {
		matches, err := db.SearchSubstring(ctx, query, types.Filters{}, 10)
		require.NoError(t, err, query)
		require.Len(t, matches, 1, query)
		assert.Equal(t, "u1", matches[0].Transaction.ID)
	}
}

func TestGetTransactionsByIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seed(t, db, fixtures()...)

	got, err := db.GetTransactionsByIDs(ctx, []string{"t1", "t3", "missing"}, types.Filters{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "t1")
	assert.Contains(t, got, "t3")

	start := day("2024-03-01")
	got, err = db.GetTransactionsByIDs(ctx, []string{"t1", "t3"}, types.Filters{StartDate: &start})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "t1")

	got, err = db.GetTransactionsByIDs(ctx, nil, types.Filters{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchExpression(t *testing.T) {
	assert.Equal(t, `"cement" OR "purchases"`, MatchExpression("Cement purchases!"))
	assert.Equal(t, `"o" OR "brien"`, MatchExpression(`O'Brien`))
	assert.Equal(t, "", MatchExpression(" - * "))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard)

	db, err := New(dir, logger)
	require.NoError(t, err)
	seed(t, db, fixtures()[0])
	require.NoError(t, db.Close())

	reopened, err := New(dir, logger)
	require.NoError(t, err)
	defer reopened.Close()

	var applied int
	require.NoError(t, reopened.db.QueryRow(`SELECT COUNT(*) FROM migrations`).Scan(&applied))
	assert.Equal(t, len(migrations), applied)

	matches, err := reopened.SearchText(context.Background(), "cement", types.Filters{}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
