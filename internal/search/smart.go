package search

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/lox/transaction-search/internal/types"
)

// dateRule resolves a relative period phrase into an inclusive day range
type dateRule struct {
	phrase  string
	pattern *regexp.Regexp
	resolve func(today time.Time) (start, end time.Time)
}

// typeRule maps a family of keywords onto a transaction type
type typeRule struct {
	pattern *regexp.Regexp
	kind    types.TransactionType
}

func phrasePattern(words ...string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + strings.Join(words, `\s+`) + `\b`)
}

// dateRules are evaluated in order; the first match wins
var dateRules = []dateRule{
	{"last month", phrasePattern("last", "month"), func(today time.Time) (time.Time, time.Time) {
		first := monthStart(today).AddDate(0, -1, 0)
		return first, first.AddDate(0, 1, -1)
	}},
	{"this month", phrasePattern("this", "month"), func(today time.Time) (time.Time, time.Time) {
		first := monthStart(today)
		return first, first.AddDate(0, 1, -1)
	}},
	{"last year", phrasePattern("last", "year"), func(today time.Time) (time.Time, time.Time) {
		first := yearStart(today).AddDate(-1, 0, 0)
		return first, first.AddDate(1, 0, -1)
	}},
	{"this year", phrasePattern("this", "year"), func(today time.Time) (time.Time, time.Time) {
		first := yearStart(today)
		return first, first.AddDate(1, 0, -1)
	}},
	{"last week", phrasePattern("last", "week"), func(today time.Time) (time.Time, time.Time) {
		monday := weekStart(today).AddDate(0, 0, -7)
		return monday, monday.AddDate(0, 0, 6)
	}},
	{"this week", phrasePattern("this", "week"), func(today time.Time) (time.Time, time.Time) {
		monday := weekStart(today)
		return monday, monday.AddDate(0, 0, 6)
	}},
	{"yesterday", phrasePattern("yesterday"), func(today time.Time) (time.Time, time.Time) {
		d := today.AddDate(0, 0, -1)
		return d, d
	}},
	{"today", phrasePattern("today"), func(today time.Time) (time.Time, time.Time) {
		return today, today
	}},
}

// typeRules are evaluated in order; the first match wins and only its keywords are removed
var typeRules = []typeRule{
	{regexp.MustCompile(`\b(income|incomes|revenue|revenues)\b`), types.TransactionTypeIncome},
	{regexp.MustCompile(`\b(expense|expenses|spending|spend|spent)\b`), types.TransactionTypeExpense},
}

// ParseQuery extracts a date range and a transaction type from a free-text query.
// Relative dates are resolved against the calendar day of now in now's location and
// returned as UTC midnights. Recognised phrases are
// removed; when nothing else remains the original query is kept as the residual so
// there is still something to search for.
func ParseQuery(query string, now time.Time) types.QueryContext {
	qc := types.QueryContext{Original: query}
	text := strings.ToLower(query)
	today := dayStart(now)

	for _, rule := range dateRules {
		loc := rule.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		start, end := rule.resolve(today)
		qc.Filters.StartDate = &start
		qc.Filters.EndDate = &end
		qc.Matched = append(qc.Matched, rule.phrase)
		text = text[:loc[0]] + " " + text[loc[1]:]
		break
	}

	for _, rule := range typeRules {
		keywords := rule.pattern.FindAllString(text, -1)
		if len(keywords) == 0 {
			continue
		}
		qc.Filters.Type = rule.kind
		qc.Matched = append(qc.Matched, keywords...)
		text = rule.pattern.ReplaceAllString(text, " ")
		break
	}

	qc.Residual = strings.Join(strings.Fields(text), " ")
	if qc.Residual == "" {
		qc.Residual = query
	}
	return qc
}

// SmartSearch interprets relative dates and income or expense keywords in query as
// filters, then runs HybridSearch on what remains of the query
func (e *Engine) SmartSearch(ctx context.Context, query string, limit int, opts ...SearchOption) (types.SmartSearchResults, error) {
	opts = append(opts[:len(opts):len(opts)], WithLimit(limit))
	options, err := applyOptions(opts)
	if err != nil {
		return types.SmartSearchResults{}, err
	}

	qc := ParseQuery(query, options.now())
	e.logger.Debug("Parsed smart query",
		"original", qc.Original,
		"residual", qc.Residual,
		"matched", qc.Matched,
		"type", qc.Filters.Type)

	results, err := e.HybridSearch(ctx, qc.Residual, qc.Filters, opts...)
	if err != nil {
		return types.SmartSearchResults{}, err
	}
	return types.SmartSearchResults{SearchResults: results, Query: qc}, nil
}

// dayStart returns midnight UTC of t's calendar day in t's own location
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func yearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// weekStart returns the Monday on or before t
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return dayStart(t).AddDate(0, 0, -offset)
}
