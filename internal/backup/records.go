package backup

import (
	"context"
	"errors"
)

// Sentinel errors returned while exporting.
var (
	// ErrNoParentID is returned when a ParentID param has no keyed ancestor row.
	ErrNoParentID = errors.New("backup: no parent id available")

	// ErrMissingField is returned when a row lacks a declared field.
	ErrMissingField = errors.New("backup: row is missing a declared field")
)

// Row is one record keyed by column name.
type Row map[string]any

// Filter is a resolved column = value predicate.
type Filter struct {
	Column string
	Value  any
}

// Records is the persistence layer an Exporter pulls rows from. Rows must be
// returned in the order requested; queries use "?" placeholders and "{table}"
// names, which implementations rewrite for their dialect and table prefix.
type Records interface {
	GetRecords(ctx context.Context, table string, where []Filter, orderBy []string) ([]Row, error)
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
}

// Env carries the per-export values source params resolve against.
type Env struct {
	ActivityID int64
	ModuleID   int64
	ContextID  int64
	ModuleName string
}

// fetch resolves src against env and parentID and loads its rows.
func fetch(ctx context.Context, records Records, src Source, env Env, parentID any) ([]Row, error) {
	switch s := src.(type) {
	case *TableSource:
		where := make([]Filter, len(s.Where))
		for i, c := range s.Where {
			v, err := c.Value.resolve(env, parentID)
			if err != nil {
				return nil, err
			}
			where[i] = Filter{Column: c.Column, Value: v}
		}

		return records.GetRecords(ctx, s.Table, where, s.OrderBy)
	case *SQLSource:
		args := make([]any, len(s.Params))
		for i, p := range s.Params {
			v, err := p.resolve(env, parentID)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}

		return records.Query(ctx, s.Query, args...)
	default:
		return nil, errors.New("backup: unsupported source type")
	}
}
