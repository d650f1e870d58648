package store

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/persistorai/anonforum/internal/backup"
)

// Dialect selects the placeholder style of a backend.
type Dialect int

// Supported dialects.
const (
	DialectPostgres Dialect = iota + 1
	DialectSQLite
)

// ErrInvalidIdentifier is returned for table or column names that are not
// plain SQL identifiers.
var ErrInvalidIdentifier = errors.New("invalid sql identifier")

var tableRef = regexp.MustCompile(`\{([^{}]*)\}`)

// expandTables replaces every {name} with prefix+name.
func expandTables(prefix, query string) (string, error) {
	var bad string

	out := tableRef.ReplaceAllStringFunc(query, func(m string) string {
		name := m[1 : len(m)-1]
		if !validIdent(name) {
			bad = name

			return m
		}

		return prefix + name
	})
	if bad != "" {
		return "", fmt.Errorf("table %q: %w", bad, ErrInvalidIdentifier)
	}

	return out, nil
}

// rebind rewrites "?" placeholders outside quoted literals for the dialect.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))

			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// prepare expands table names and rebinds placeholders.
func prepare(d Dialect, prefix, query string) (string, error) {
	q, err := expandTables(prefix, query)
	if err != nil {
		return "", err
	}

	return rebind(d, q), nil
}

// buildSelect renders a single-table equality query in "?" form. NULL
// filter values match with IS NULL and take no argument.
func buildSelect(table string, where []backup.Filter, orderBy []string) (string, []any, error) {
	if !validIdent(table) {
		return "", nil, fmt.Errorf("table %q: %w", table, ErrInvalidIdentifier)
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM {")
	b.WriteString(table)
	b.WriteString("}")

	args := make([]any, 0, len(where))
	for i, f := range where {
		if !validIdent(f.Column) {
			return "", nil, fmt.Errorf("column %q: %w", f.Column, ErrInvalidIdentifier)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(f.Column)
		if f.Value == nil {
			b.WriteString(" IS NULL")

			continue
		}
		b.WriteString(" = ?")
		args = append(args, f.Value)
	}

	for i, term := range orderBy {
		o, err := backup.ParseOrder(term)
		if err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(o.Column)
		if o.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	return b.String(), args, nil
}

func validIdent(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}
