// Package backup describes how relational records map onto a nested backup
// document and walks those descriptions to write the document.
//
// A structure is a tree of [Element] values. Each element declares its
// primary-key attributes and final fields, optionally binds a [Source] that
// says which rows populate it, and carries id and file annotations consumed
// by the restore side. Trees are built once per export and never mutated
// while an [Exporter] walks them.
package backup

import (
	"fmt"
	"slices"
	"strings"
)

// Element is one named node of a backup structure.
type Element struct {
	name     string
	idFields []string
	fields   []string
	parent   *Element
	children []*Element
	source   Source
	aliases  map[string]string
	idRefs   []IDAnnotation
	fileRefs []FileAnnotation
}

// IDAnnotation marks Field as a reference to an entity of Kind (e.g. "user").
type IDAnnotation struct {
	Kind  string `json:"kind"`
	Field string `json:"field"`
}

// FileAnnotation declares that rows may own files in Component/FileArea.
// An empty ItemField means the area is not scoped to a row.
type FileAnnotation struct {
	Component string `json:"component"`
	FileArea  string `json:"file_area"`
	ItemField string `json:"item_field,omitempty"`
}

// NewElement creates an element. Grouping elements pass no id fields and no fields.
func NewElement(name string, idFields []string, fields ...string) *Element {
	if !validIdent(name) {
		panic(fmt.Sprintf("backup: invalid element name %q", name))
	}

	seen := make(map[string]struct{}, len(idFields)+len(fields))
	for _, f := range slices.Concat(idFields, fields) {
		if !validIdent(f) {
			panic(fmt.Sprintf("backup: element %s: invalid field name %q", name, f))
		}
		if _, dup := seen[f]; dup {
			panic(fmt.Sprintf("backup: element %s: duplicate field %q", name, f))
		}
		seen[f] = struct{}{}
	}

	return &Element{
		name:     name,
		idFields: slices.Clone(idFields),
		fields:   slices.Clone(fields),
	}
}

// Name returns the element name, which is also its XML tag.
func (e *Element) Name() string { return e.name }

// IDFields returns the primary-key attribute names.
func (e *Element) IDFields() []string { return slices.Clone(e.idFields) }

// Fields returns the final field names in declaration order.
func (e *Element) Fields() []string { return slices.Clone(e.fields) }

// Parent returns the parent element, or nil for the root.
func (e *Element) Parent() *Element { return e.parent }

// Children returns the child elements in insertion order.
func (e *Element) Children() []*Element { return slices.Clone(e.children) }

// Source returns the bound source, or nil.
func (e *Element) Source() Source { return e.source }

// IDAnnotations returns the id annotations in declaration order.
func (e *Element) IDAnnotations() []IDAnnotation { return slices.Clone(e.idRefs) }

// FileAnnotations returns the file annotations in declaration order.
func (e *Element) FileAnnotations() []FileAnnotation { return slices.Clone(e.fileRefs) }

// IsGrouping reports whether the element only wraps its children.
func (e *Element) IsGrouping() bool {
	return len(e.idFields) == 0 && len(e.fields) == 0
}

// HasField reports whether name is declared as an id field or final field.
func (e *Element) HasField(name string) bool {
	return slices.Contains(e.idFields, name) || slices.Contains(e.fields, name)
}

// Path returns the slash-separated element names from the root.
func (e *Element) Path() string {
	var parts []string
	for cur := e; cur != nil; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	slices.Reverse(parts)

	return strings.Join(parts, "/")
}

// Depth returns the number of edges between the element and the root.
func (e *Element) Depth() int {
	d := 0
	for cur := e.parent; cur != nil; cur = cur.parent {
		d++
	}

	return d
}

// Child returns the direct child with the given name, or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}

	return nil
}

// Find resolves a slash-separated path relative to e, e.g. "discussions/discussion".
func (e *Element) Find(path string) *Element {
	cur := e
	for _, part := range strings.Split(path, "/") {
		if cur = cur.Child(part); cur == nil {
			return nil
		}
	}

	return cur
}

// AddChild attaches child below e. It panics if child already has a parent,
// if attaching it would create a cycle or if e already has a child of that name.
func (e *Element) AddChild(child *Element) {
	switch {
	case child == nil:
		panic("backup: nil child")
	case child.parent != nil:
		panic(fmt.Sprintf("backup: element %s already has parent %s", child.name, child.parent.Path()))
	case e.Child(child.name) != nil:
		panic(fmt.Sprintf("backup: element %s already has a child named %s", e.Path(), child.name))
	}

	for cur := e; cur != nil; cur = cur.parent {
		if cur == child {
			panic(fmt.Sprintf("backup: adding %s below %s would create a cycle", child.name, e.Path()))
		}
	}

	child.parent = e
	e.children = append(e.children, child)
}

// SetSourceTable binds the element to rows of table matching every condition.
func (e *Element) SetSourceTable(table string, where []Condition, orderBy ...string) {
	e.bind(&TableSource{Table: table, Where: slices.Clone(where), OrderBy: slices.Clone(orderBy)})
}

// SetSourceSQL binds the element to the rows returned by query. The query uses
// "?" placeholders and "{table}" names.
func (e *Element) SetSourceSQL(query string, params ...Param) {
	e.bind(&SQLSource{Query: query, Params: slices.Clone(params)})
}

func (e *Element) bind(src Source) {
	if e.IsGrouping() {
		panic(fmt.Sprintf("backup: grouping element %s cannot have a source", e.Path()))
	}
	if e.source != nil {
		panic(fmt.Sprintf("backup: element %s already has a source", e.Path()))
	}
	e.source = src
}

// SetSourceAlias exports source column under the declared field name.
func (e *Element) SetSourceAlias(column, field string) {
	if !e.HasField(field) {
		panic(fmt.Sprintf("backup: element %s: alias target %q is not a declared field", e.Path(), field))
	}
	if e.aliases == nil {
		e.aliases = make(map[string]string)
	}
	e.aliases[column] = field
}

// Aliases returns a copy of the column to field alias map.
func (e *Element) Aliases() map[string]string {
	out := make(map[string]string, len(e.aliases))
	for k, v := range e.aliases {
		out[k] = v
	}

	return out
}

// AnnotateIDs records that field holds identifiers of entities of kind.
func (e *Element) AnnotateIDs(kind, field string) {
	if !e.HasField(field) {
		panic(fmt.Sprintf("backup: element %s: annotated field %q is not declared", e.Path(), field))
	}
	e.idRefs = append(e.idRefs, IDAnnotation{Kind: kind, Field: field})
}

// AnnotateFiles records that rows may own files in component/fileArea, keyed
// by itemField. Pass an empty itemField for areas without item ids.
func (e *Element) AnnotateFiles(component, fileArea, itemField string) {
	if itemField != "" && !e.HasField(itemField) {
		panic(fmt.Sprintf("backup: element %s: file item field %q is not declared", e.Path(), itemField))
	}
	e.fileRefs = append(e.fileRefs, FileAnnotation{Component: component, FileArea: fileArea, ItemField: itemField})
}

// Walk visits e and its descendants depth-first in document order.
func (e *Element) Walk(fn func(*Element) error) error {
	if err := fn(e); err != nil {
		return err
	}
	for _, c := range e.children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}

	return nil
}

// keyAncestor returns the nearest ancestor that carries a primary key.
func (e *Element) keyAncestor() *Element {
	for cur := e.parent; cur != nil; cur = cur.parent {
		if len(cur.idFields) > 0 {
			return cur
		}
	}

	return nil
}

// Validate checks the invariants an exporter relies on.
func (e *Element) Validate() error {
	return e.Walk(func(el *Element) error {
		if el.source == nil {
			return nil
		}
		if err := el.source.validate(); err != nil {
			return fmt.Errorf("element %s: %w", el.Path(), err)
		}
		if usesParentID(el.source) && el.keyAncestor() == nil {
			return fmt.Errorf("element %s: %w", el.Path(), ErrNoParentID)
		}
		for col, field := range el.aliases {
			if !validIdent(col) {
				return fmt.Errorf("element %s: invalid alias column %q for %s", el.Path(), col, field)
			}
		}

		return nil
	})
}

func validIdent(s string) bool {
	if s == "" {
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
