package models

// StructureNode is the JSON description of one backup element.
type StructureNode struct {
	Name            string            `json:"name"`
	Path            string            `json:"path"`
	IDFields        []string          `json:"id_fields,omitempty"`
	Fields          []string          `json:"fields,omitempty"`
	Source          string            `json:"source,omitempty"`
	Aliases         map[string]string `json:"aliases,omitempty"`
	IDAnnotations   []IDAnnotation    `json:"id_annotations,omitempty"`
	FileAnnotations []FileAnnotation  `json:"file_annotations,omitempty"`
	Children        []StructureNode   `json:"children,omitempty"`
}

// IDAnnotation marks a field as a reference to another entity kind.
type IDAnnotation struct {
	Kind  string `json:"kind"`
	Field string `json:"field"`
}

// FileAnnotation declares a file area owned by an element's rows.
type FileAnnotation struct {
	Component string `json:"component"`
	FileArea  string `json:"file_area"`
	ItemField string `json:"item_field,omitempty"`
}
