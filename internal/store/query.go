package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

var (
	// ErrEmptyValues is returned when an insert has no columns
	ErrEmptyValues = errors.New("insert requires at least one value")

	// ErrNoFilter is returned for a delete without a filter
	ErrNoFilter = errors.New("delete requires a filter")
)

// Filter matches rows whose columns equal the given values, combined with AND
type Filter map[string]interface{}

// Query is SQL text plus its positional arguments
type Query struct {
	SQL  string
	Args []interface{}
}

// BuildSelect composes a SELECT. No columns means *. An orderBy entry
// prefixed with "-" sorts descending. limit <= 0 means no limit.
func BuildSelect(table string, columns []string, filter Filter, orderBy []string, limit int) Query {
	var b strings.Builder
	var args []interface{}

	b.WriteString("SELECT ")
	if len(columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(quoteList(columns))
	}
	b.WriteString(" FROM ")
	b.WriteString(pq.QuoteIdentifier(table))

	args = writeWhere(&b, filter, args)

	if len(orderBy) > 0 {
		parts := make([]string, 0, len(orderBy))
		for _, col := range orderBy {
			if strings.HasPrefix(col, "-") {
				parts = append(parts, pq.QuoteIdentifier(col[1:])+" DESC")
			} else {
				parts = append(parts, pq.QuoteIdentifier(col))
			}
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	return Query{SQL: b.String(), Args: args}
}

// BuildInsert composes an INSERT of one row, optionally RETURNING columns
func BuildInsert(table string, values map[string]interface{}, returning []string) (Query, error) {
	if len(values) == 0 {
		return Query{}, ErrEmptyValues
	}

	cols := sortedKeys(values)
	args := make([]interface{}, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for i, col := range cols {
		args = append(args, values[col])
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(table), quoteList(cols), strings.Join(placeholders, ", "))

	if len(returning) > 0 {
		b.WriteString(" RETURNING ")
		b.WriteString(quoteList(returning))
	}

	return Query{SQL: b.String(), Args: args}, nil
}

// BuildDelete composes a DELETE. A filter is mandatory; with limit > 0 only
// that many matching rows are removed.
func BuildDelete(table string, filter Filter, limit int) (Query, error) {
	if len(filter) == 0 {
		return Query{}, ErrNoFilter
	}

	var b strings.Builder
	var args []interface{}
	t := pq.QuoteIdentifier(table)

	if limit <= 0 {
		b.WriteString("DELETE FROM ")
		b.WriteString(t)
		args = writeWhere(&b, filter, args)
		return Query{SQL: b.String(), Args: args}, nil
	}

	// Postgres has no DELETE ... LIMIT, so select the row ids first
	fmt.Fprintf(&b, "DELETE FROM %s WHERE ctid IN (SELECT ctid FROM %s", t, t)
	args = writeWhere(&b, filter, args)
	args = append(args, limit)
	fmt.Fprintf(&b, " LIMIT $%d)", len(args))

	return Query{SQL: b.String(), Args: args}, nil
}

func writeWhere(b *strings.Builder, filter Filter, args []interface{}) []interface{} {
	if len(filter) == 0 {
		return args
	}

	cols := sortedKeys(filter)
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		args = append(args, filter[col])
		parts = append(parts, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), len(args)))
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(parts, " AND "))
	return args
}

func quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
