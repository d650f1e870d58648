package backup

import (
	"cmp"
	"slices"
	"strconv"
)

// FileRef identifies a file area owned by an exported row.
type FileRef struct {
	Component string `json:"component"`
	FileArea  string `json:"file_area"`
	ItemID    string `json:"item_id,omitempty"`
}

// Annotations collects the identifiers and file areas referenced by the rows
// of one export. The zero value is not usable; call NewAnnotations.
type Annotations struct {
	ids   map[string]map[string]struct{}
	files map[FileRef]struct{}
}

// NewAnnotations returns an empty collection.
func NewAnnotations() *Annotations {
	return &Annotations{
		ids:   make(map[string]map[string]struct{}),
		files: make(map[FileRef]struct{}),
	}
}

// AddID records value as a reference to kind. Empty, zero and NULL values are
// ignored; for "scale" only negative values name a scale and are stored as
// their absolute value.
func (a *Annotations) AddID(kind, value string) {
	ref, ok := normalizeRef(kind, value)
	if !ok {
		return
	}

	set, exists := a.ids[kind]
	if !exists {
		set = make(map[string]struct{})
		a.ids[kind] = set
	}
	set[ref] = struct{}{}
}

// AddFile records a file area reference.
func (a *Annotations) AddFile(ref FileRef) {
	if ref.ItemID == NullMarker {
		return
	}
	a.files[ref] = struct{}{}
}

// Kinds returns the annotated entity kinds in sorted order.
func (a *Annotations) Kinds() []string {
	kinds := make([]string, 0, len(a.ids))
	for k := range a.ids {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	return kinds
}

// IDs returns the identifiers recorded for kind, numerically sorted.
func (a *Annotations) IDs(kind string) []string {
	set := a.ids[kind]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.SortFunc(out, compareIDs)

	return out
}

// Files returns the recorded file areas in a stable order.
func (a *Annotations) Files() []FileRef {
	out := make([]FileRef, 0, len(a.files))
	for f := range a.files {
		out = append(out, f)
	}
	slices.SortFunc(out, func(x, y FileRef) int {
		return cmp.Or(
			cmp.Compare(x.Component, y.Component),
			cmp.Compare(x.FileArea, y.FileArea),
			compareIDs(x.ItemID, y.ItemID),
		)
	})

	return out
}

// Count returns the number of distinct id references and file areas.
func (a *Annotations) Count() (ids, files int) {
	for _, set := range a.ids {
		ids += len(set)
	}

	return ids, len(a.files)
}

// Merge adds every reference in other to a.
func (a *Annotations) Merge(other *Annotations) {
	for kind, set := range other.ids {
		for id := range set {
			a.AddID(kind, id)
		}
	}
	for f := range other.files {
		a.files[f] = struct{}{}
	}
}

func normalizeRef(kind, value string) (string, bool) {
	if value == "" || value == "0" || value == NullMarker {
		return "", false
	}
	if kind != "scale" {
		return value, true
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n >= 0 {
		return "", false
	}

	return strconv.FormatInt(-n, 10), true
}

func compareIDs(x, y string) int {
	xi, xerr := strconv.ParseInt(x, 10, 64)
	yi, yerr := strconv.ParseInt(y, 10, 64)
	if xerr == nil && yerr == nil {
		return cmp.Compare(xi, yi)
	}

	return cmp.Compare(x, y)
}
