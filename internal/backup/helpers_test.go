package backup

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

// memRecords is an in-memory Records keyed by table name and query text.
type memRecords struct {
	tables  map[string][]Row
	queries map[string]func(args []any) []Row
	err     error
	calls   []string
}

func (m *memRecords) GetRecords(_ context.Context, table string, where []Filter, orderBy []string) ([]Row, error) {
	m.calls = append(m.calls, "table:"+table)
	if m.err != nil {
		return nil, m.err
	}

	var out []Row
	for _, row := range m.tables[table] {
		match := true
		for _, f := range where {
			if fmt.Sprint(row[f.Column]) != fmt.Sprint(f.Value) {
				match = false

				break
			}
		}
		if match {
			out = append(out, row)
		}
	}

	for i := len(orderBy) - 1; i >= 0; i-- {
		o, err := ParseOrder(orderBy[i])
		if err != nil {
			return nil, err
		}
		slices.SortStableFunc(out, func(a, b Row) int {
			c := compareIDs(fmt.Sprint(a[o.Column]), fmt.Sprint(b[o.Column]))
			if o.Desc {
				return -c
			}

			return c
		})
	}

	return out, nil
}

func (m *memRecords) Query(_ context.Context, query string, args ...any) ([]Row, error) {
	m.calls = append(m.calls, "query")
	if m.err != nil {
		return nil, m.err
	}

	fn, ok := m.queries[query]
	if !ok {
		return nil, fmt.Errorf("unexpected query %q", query)
	}

	return fn(args), nil
}
