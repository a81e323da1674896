package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	sqliteunicode "github.com/ncruces/go-sqlite3/ext/unicode"
	"github.com/shopspring/decimal"

	"github.com/charmbracelet/log"
	"github.com/lox/transaction-search/internal/types"
)

// Match is a transaction returned by a store query. Score is the backend relevance,
// higher is better; it is 0 for queries without graded relevance.
type Match struct {
	Transaction types.Transaction
	Score       float64
}

// DB represents a SQLite database connection
type DB struct {
	db     *sql.DB
	logger *log.Logger
}

// New opens (creating if needed) transactions.db under dataDir
func New(dataDir string, logger *log.Logger) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return Open(filepath.Join(dataDir, "transactions.db"), logger)
}

// Open opens the database at path
func Open(path string, logger *log.Logger) (*DB, error) {
	// Unicode aware lower() and LIKE so substring search folds case beyond ASCII
	db, err := driver.Open(path, sqliteunicode.Register)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &DB{db: db, logger: logger}, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('income', 'expense')),
			amount TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			project_name TEXT NOT NULL DEFAULT '',
			category_id TEXT NOT NULL DEFAULT '',
			category_name TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT ''
		);

		-- Full-text index over the free-text fields
		CREATE VIRTUAL TABLE IF NOT EXISTS transactions_fts USING fts5(
			description,
			project_name,
			category_name,
			source,
			content='transactions',
			content_rowid='rowid',
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS transactions_ai AFTER INSERT ON transactions BEGIN
			INSERT INTO transactions_fts(rowid, description, project_name, category_name, source)
			VALUES (new.rowid, new.description, new.project_name, new.category_name, new.source);
		END;

		CREATE TRIGGER IF NOT EXISTS transactions_ad AFTER DELETE ON transactions BEGIN
			INSERT INTO transactions_fts(transactions_fts, rowid, description, project_name, category_name, source)
			VALUES ('delete', old.rowid, old.description, old.project_name, old.category_name, old.source);
		END;

		CREATE TRIGGER IF NOT EXISTS transactions_au AFTER UPDATE ON transactions BEGIN
			INSERT INTO transactions_fts(transactions_fts, rowid, description, project_name, category_name, source)
			VALUES ('delete', old.rowid, old.description, old.project_name, old.category_name, old.source);
			INSERT INTO transactions_fts(rowid, description, project_name, category_name, source)
			VALUES (new.rowid, new.description, new.project_name, new.category_name, new.source);
		END;
	`)
	if err != nil {
		return fmt.Errorf("failed to create transactions table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_project ON transactions(project_id)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(category_id)",
	}
	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

const transactionColumns = `t.id, t.date, t.type, t.amount, t.description,
	t.project_id, t.project_name, t.category_id, t.category_name, t.source`

// Store inserts or updates a transaction
func (d *DB) Store(ctx context.Context, t types.Transaction) error {
	if t.ID == "" {
		return errors.New("transaction id is required")
	}
	if !t.Type.Valid() {
		return fmt.Errorf("invalid transaction type %q", t.Type)
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, date, type, amount, description,
			project_id, project_name, category_id, category_name, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			type = excluded.type,
			amount = excluded.amount,
			description = excluded.description,
			project_id = excluded.project_id,
			project_name = excluded.project_name,
			category_id = excluded.category_id,
			category_name = excluded.category_name,
			source = excluded.source
	`,
		t.ID, types.Day(t.Date), string(t.Type), t.Amount.String(), t.Description,
		t.ProjectID, t.ProjectName, t.CategoryID, t.CategoryName, t.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to store transaction: %w", err)
	}

	d.logger.Debug("Transaction stored", "id", t.ID, "date", types.Day(t.Date), "type", t.Type)
	return nil
}

// Get returns the transaction with the given id, or nil if there is none
func (d *DB) Get(ctx context.Context, id string) (*types.Transaction, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &t, nil
}

// GetTransactionsByIDs returns the transactions among ids that satisfy filters, keyed by id
func (d *DB) GetTransactionsByIDs(ctx context.Context, ids []string, filters types.Filters) (map[string]types.Transaction, error) {
	out := make(map[string]types.Transaction, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	where, args := filterClause(filters)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	idArgs := make([]any, 0, len(ids)+len(args))
	for _, id := range ids {
		idArgs = append(idArgs, id)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id IN (` + placeholders + `)` + where
	rows, err := d.db.QueryContext(ctx, query, append(idArgs, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}

// SearchText runs a full-text query. Score is the negated bm25 rank, so it is
// non-negative and higher means more relevant.
func (d *DB) SearchText(ctx context.Context, query string, filters types.Filters, limit int) ([]Match, error) {
	match := MatchExpression(query)
	if match == "" || limit <= 0 {
		return []Match{}, nil
	}

	start := time.Now()
	where, args := filterClause(filters)
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`, bm25(transactions_fts) AS relevance
		FROM transactions_fts
		JOIN transactions t ON t.rowid = transactions_fts.rowid
		WHERE transactions_fts MATCH ?`+where+`
		ORDER BY relevance ASC, t.date DESC, t.id ASC
		LIMIT ?
	`, append(append([]any{match}, args...), limit)...)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var t types.Transaction
		var date, amount, kind string
		var rank float64
		if err := rows.Scan(
			&t.ID, &date, &kind, &amount, &t.Description,
			&t.ProjectID, &t.ProjectName, &t.CategoryID, &t.CategoryName, &t.Source,
			&rank,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if err := fillTransaction(&t, date, kind, amount); err != nil {
			return nil, err
		}
		score := -rank
		if score < 0 {
			score = 0
		}
		matches = append(matches, Match{Transaction: t, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	d.logger.Debug("Full-text search completed",
		"query", query,
		"match", match,
		"results", len(matches),
		"duration", time.Since(start))
	return matches, nil
}

// SearchSubstring returns transactions where any free-text field contains query,
// ignoring case. Matches are ordered by date, most recent first.
func (d *DB) SearchSubstring(ctx context.Context, query string, filters types.Filters, limit int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []Match{}, nil
	}

	start := time.Now()
	pattern := "%" + escapeLike(query) + "%"
	where, args := filterClause(filters)
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions t
		WHERE (t.description LIKE ?1 ESCAPE '\'
			OR t.project_name LIKE ?1 ESCAPE '\'
			OR t.category_name LIKE ?1 ESCAPE '\'
			OR t.source LIKE ?1 ESCAPE '\')`+where+`
		ORDER BY t.date DESC, t.id ASC
		LIMIT ?
	`, append(append([]any{pattern}, args...), limit)...)
	if err != nil {
		return nil, fmt.Errorf("substring search failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		matches = append(matches, Match{Transaction: t})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	d.logger.Debug("Substring search completed",
		"query", query,
		"results", len(matches),
		"duration", time.Since(start))
	return matches, nil
}

// Count returns the number of transactions in the database
func (d *DB) Count() (int, error) {
	var count int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// MatchExpression turns free text into an FTS5 query: every word becomes a quoted
// term and terms are OR-ed. Returns "" when the text has no words.
func MatchExpression(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return ""
	}
	terms := make([]string, len(words))
	for i, w := range words {
		terms[i] = `"` + w + `"`
	}
	return strings.Join(terms, " OR ")
}

// filterClause renders filters as " AND ..." conditions on alias t
func filterClause(f types.Filters) (string, []any) {
	var conds []string
	var args []any
	if f.StartDate != nil {
		conds = append(conds, "t.date >= ?")
		args = append(args, types.Day(*f.StartDate))
	}
	if f.EndDate != nil {
		conds = append(conds, "t.date <= ?")
		args = append(args, types.Day(*f.EndDate))
	}
	if f.Type != "" {
		conds = append(conds, "t.type = ?")
		args = append(args, string(f.Type))
	}
	if f.ProjectID != "" {
		conds = append(conds, "t.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.CategoryID != "" {
		conds = append(conds, "t.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (types.Transaction, error) {
	var t types.Transaction
	var date, amount, kind string
	if err := row.Scan(
		&t.ID, &date, &kind, &amount, &t.Description,
		&t.ProjectID, &t.ProjectName, &t.CategoryID, &t.CategoryName, &t.Source,
	); err != nil {
		return types.Transaction{}, err
	}
	if err := fillTransaction(&t, date, kind, amount); err != nil {
		return types.Transaction{}, err
	}
	return t, nil
}

func fillTransaction(t *types.Transaction, date, kind, amount string) error {
	parsed, err := time.Parse(types.DateLayout, date)
	if err != nil {
		return fmt.Errorf("failed to parse date for transaction %s: %w", t.ID, err)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("failed to parse amount for transaction %s: %w", t.ID, err)
	}
	t.Date = parsed
	t.Type = types.TransactionType(kind)
	t.Amount = value
	return nil
}
