package store

import (
	"errors"
	"testing"

	"github.com/persistorai/anonforum/internal/backup"
)

func TestExpandTables(t *testing.T) {
	got, err := expandTables("mdl_", "SELECT * FROM {anonforum_posts} p JOIN {anonforum} f ON f.id = p.id")
	if err != nil {
		t.Fatalf("expandTables: %v", err)
	}

	want := "SELECT * FROM mdl_anonforum_posts p JOIN mdl_anonforum f ON f.id = p.id"
	if got != want {
		t.Errorf("expandTables = %q, want %q", got, want)
	}

	if _, err := expandTables("", "SELECT * FROM {posts; DROP TABLE x}"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("expandTables(bad) = %v, want ErrInvalidIdentifier", err)
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{DialectPostgres, "a = ? AND b = ?", "a = $1 AND b = $2"},
		{DialectPostgres, "a = '?' AND b = ?", "a = '?' AND b = $1"},
		{DialectSQLite, "a = ? AND b = ?", "a = ? AND b = ?"},
	}

	for _, tt := range tests {
		if got := rebind(tt.dialect, tt.in); got != tt.want {
			t.Errorf("rebind(%d, %q) = %q, want %q", tt.dialect, tt.in, got, tt.want)
		}
	}
}

func TestBuildSelect(t *testing.T) {
	query, args, err := buildSelect("rating", []backup.Filter{
		{Column: "contextid", Value: int64(30)},
		{Column: "component", Value: "mod_anonforum"},
		{Column: "deleted", Value: nil},
	}, []string{"id ASC", "timecreated desc"})
	if err != nil {
		t.Fatalf("buildSelect: %v", err)
	}

	want := "SELECT * FROM {rating} WHERE contextid = ? AND component = ? AND deleted IS NULL ORDER BY id ASC, timecreated DESC"
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if len(args) != 2 || args[0] != int64(30) || args[1] != "mod_anonforum" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildSelect_RejectsBadIdentifiers(t *testing.T) {
	if _, _, err := buildSelect("rating x", nil, nil); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("bad table: %v", err)
	}
	if _, _, err := buildSelect("rating", []backup.Filter{{Column: "1=1 OR a", Value: 1}}, nil); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("bad column: %v", err)
	}
	if _, _, err := buildSelect("rating", nil, []string{"id; DROP"}); err == nil {
		t.Error("bad order should fail")
	}
}
