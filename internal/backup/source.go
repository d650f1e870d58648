package backup

import (
	"errors"
	"fmt"
	"strings"
)

// ParamKind tells an exporter where a source parameter takes its value from.
type ParamKind int

const (
	// ParamParentID is the primary key of the nearest keyed ancestor row.
	ParamParentID ParamKind = iota + 1
	// ParamContextID is the activity's context id.
	ParamContextID
	// ParamActivityID is the activity instance id.
	ParamActivityID
	// ParamLiteral is a fixed value.
	ParamLiteral
)

// String implements fmt.Stringer.
func (k ParamKind) String() string {
	switch k {
	case ParamParentID:
		return "parentid"
	case ParamContextID:
		return "contextid"
	case ParamActivityID:
		return "activityid"
	case ParamLiteral:
		return "literal"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// Param is a value placeholder in a source binding.
type Param struct {
	Kind  ParamKind
	Value any
}

// ParentID refers to the nearest keyed ancestor row's primary key.
func ParentID() Param { return Param{Kind: ParamParentID} }

// ContextID refers to the exported activity's context id.
func ContextID() Param { return Param{Kind: ParamContextID} }

// ActivityID refers to the exported activity instance id.
func ActivityID() Param { return Param{Kind: ParamActivityID} }

// Literal is a constant parameter value.
func Literal(v any) Param { return Param{Kind: ParamLiteral, Value: v} }

// String implements fmt.Stringer.
func (p Param) String() string {
	if p.Kind == ParamLiteral {
		return fmt.Sprintf("'%v'", p.Value)
	}

	return ":" + p.Kind.String()
}

// Condition is a column = param predicate of a table source.
type Condition struct {
	Column string
	Value  Param
}

// Where builds a Condition.
func Where(column string, value Param) Condition {
	return Condition{Column: column, Value: value}
}

// Source declares which rows populate an element. It is implemented by
// *TableSource and *SQLSource only.
type Source interface {
	params() []Param
	validate() error
	describe() string
}

// TableSource selects rows of Table matching all Where predicates.
type TableSource struct {
	Table   string
	Where   []Condition
	OrderBy []string
}

func (s *TableSource) params() []Param {
	out := make([]Param, len(s.Where))
	for i, c := range s.Where {
		out[i] = c.Value
	}

	return out
}

func (s *TableSource) validate() error {
	if !validIdent(s.Table) {
		return fmt.Errorf("invalid table name %q", s.Table)
	}
	for _, c := range s.Where {
		if !validIdent(c.Column) {
			return fmt.Errorf("table %s: invalid column %q", s.Table, c.Column)
		}
		if err := c.Value.validate(); err != nil {
			return fmt.Errorf("table %s column %s: %w", s.Table, c.Column, err)
		}
	}
	for _, o := range s.OrderBy {
		if _, err := ParseOrder(o); err != nil {
			return fmt.Errorf("table %s: %w", s.Table, err)
		}
	}

	return nil
}

func (s *TableSource) describe() string {
	var b strings.Builder
	b.WriteString("table ")
	b.WriteString(s.Table)
	for i, c := range s.Where {
		if i == 0 {
			b.WriteString(" where ")
		} else {
			b.WriteString(" and ")
		}
		fmt.Fprintf(&b, "%s = %s", c.Column, c.Value)
	}
	if len(s.OrderBy) > 0 {
		b.WriteString(" order by ")
		b.WriteString(strings.Join(s.OrderBy, ", "))
	}

	return b.String()
}

// SQLSource selects the rows returned by Query, with Params bound in order.
type SQLSource struct {
	Query  string
	Params []Param
}

func (s *SQLSource) params() []Param { return s.Params }

func (s *SQLSource) validate() error {
	if strings.TrimSpace(s.Query) == "" {
		return errors.New("empty source query")
	}
	if n := CountPlaceholders(s.Query); n != len(s.Params) {
		return fmt.Errorf("source query has %d placeholders but %d params", n, len(s.Params))
	}
	for i, p := range s.Params {
		if err := p.validate(); err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
	}

	return nil
}

func (s *SQLSource) describe() string {
	return "sql " + strings.Join(strings.Fields(s.Query), " ")
}

// Describe renders a one-line, human readable form of a source.
func Describe(src Source) string {
	if src == nil {
		return ""
	}

	return src.describe()
}

func (p Param) validate() error {
	switch p.Kind {
	case ParamParentID, ParamContextID, ParamActivityID:
		return nil
	case ParamLiteral:
		if p.Value == nil {
			return errors.New("literal param has nil value")
		}

		return nil
	default:
		return fmt.Errorf("unknown param kind %d", int(p.Kind))
	}
}

func usesParentID(src Source) bool {
	for _, p := range src.params() {
		if p.Kind == ParamParentID {
			return true
		}
	}

	return false
}

// resolve turns a Param into a concrete value for one lookup.
func (p Param) resolve(env Env, parentID any) (any, error) {
	switch p.Kind {
	case ParamParentID:
		if parentID == nil {
			return nil, ErrNoParentID
		}

		return parentID, nil
	case ParamContextID:
		return env.ContextID, nil
	case ParamActivityID:
		return env.ActivityID, nil
	case ParamLiteral:
		return p.Value, nil
	default:
		return nil, fmt.Errorf("unknown param kind %d", int(p.Kind))
	}
}

// Order is one parsed ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// ParseOrder parses "col", "col ASC" or "col DESC".
func ParseOrder(s string) (Order, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 || len(parts) > 2 || !validIdent(parts[0]) {
		return Order{}, fmt.Errorf("invalid order term %q", s)
	}

	o := Order{Column: parts[0]}
	if len(parts) == 2 {
		switch strings.ToUpper(parts[1]) {
		case "ASC":
		case "DESC":
			o.Desc = true
		default:
			return Order{}, fmt.Errorf("invalid order direction in %q", s)
		}
	}

	return o, nil
}

// CountPlaceholders counts "?" placeholders outside quoted literals.
func CountPlaceholders(query string) int {
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
		}
	}

	return n
}
