package db

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// Identifier splits a possibly schema-qualified table name ("hotcalls.jc_hc_curent")
// into a pgx.Identifier.
func Identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	return Identifier(table).Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}

// qualifyAndJoin quotes each column, prefixes it with alias and joins with commas.
func qualifyAndJoin(alias string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = alias + "." + quote(c)
	}
	return strings.Join(quoted, ", ")
}

func quote(col string) string {
	return pgx.Identifier{col}.Sanitize()
}

// union returns the distinct elements of a then b, preserving first occurrence order.
func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
