package backup

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ContentEncoder rewrites exported text, e.g. to make absolute links portable.
type ContentEncoder interface {
	EncodeContent(text string) string
}

// ContentEncoderFunc adapts a plain function to ContentEncoder.
type ContentEncoderFunc func(string) string

// EncodeContent implements ContentEncoder.
func (f ContentEncoderFunc) EncodeContent(text string) string { return f(text) }

// Result summarises one export.
type Result struct {
	// Rows counts exported rows keyed by element path.
	Rows        map[string]int
	Annotations *Annotations
}

// TotalRows returns the number of rows exported across all elements.
func (r *Result) TotalRows() int {
	n := 0
	for _, c := range r.Rows {
		n += c
	}

	return n
}

// Exporter writes backup documents by walking an element tree against Records.
type Exporter struct {
	records  Records
	encoders []ContentEncoder
	log      *logrus.Logger
}

// NewExporter creates an Exporter. A nil logger discards output.
func NewExporter(records Records, log *logrus.Logger, encoders ...ContentEncoder) *Exporter {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	return &Exporter{records: records, encoders: encoders, log: log}
}

// exportState is the per-call accumulator; Exporter itself stays reusable.
type exportState struct {
	enc    *xml.Encoder
	env    Env
	result *Result
}

// Export writes the document for root into w, wrapped in an activity envelope.
func (x *Exporter) Export(ctx context.Context, root *Element, env Env, w io.Writer) (*Result, error) {
	if err := root.Validate(); err != nil {
		return nil, err
	}

	st := &exportState{
		enc: xml.NewEncoder(w),
		env: env,
		result: &Result{
			Rows:        make(map[string]int),
			Annotations: NewAnnotations(),
		},
	}
	st.enc.Indent("", "  ")

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	envelope := xml.StartElement{
		Name: xml.Name{Local: "activity"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "id"}, Value: strconv.FormatInt(env.ActivityID, 10)},
			{Name: xml.Name{Local: "moduleid"}, Value: strconv.FormatInt(env.ModuleID, 10)},
			{Name: xml.Name{Local: "modulename"}, Value: env.ModuleName},
			{Name: xml.Name{Local: "contextid"}, Value: strconv.FormatInt(env.ContextID, 10)},
		},
	}
	if err := st.enc.EncodeToken(envelope); err != nil {
		return nil, fmt.Errorf("writing envelope: %w", err)
	}

	if err := x.exportElement(ctx, st, root, nil); err != nil {
		return nil, err
	}

	if err := st.enc.EncodeToken(envelope.End()); err != nil {
		return nil, fmt.Errorf("closing envelope: %w", err)
	}
	if err := st.enc.Flush(); err != nil {
		return nil, fmt.Errorf("flushing document: %w", err)
	}

	x.log.WithFields(logrus.Fields{
		"activity": env.ActivityID,
		"module":   env.ModuleName,
		"rows":     st.result.TotalRows(),
	}).Debug("export written")

	return st.result, nil
}

// exportElement writes el for one parent row. parentID is the primary key of
// the nearest keyed ancestor row, or nil at the root.
func (x *Exporter) exportElement(ctx context.Context, st *exportState, el *Element, parentID any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if el.IsGrouping() {
		start := xml.StartElement{Name: xml.Name{Local: el.name}}
		if err := st.enc.EncodeToken(start); err != nil {
			return fmt.Errorf("element %s: %w", el.Path(), err)
		}
		for _, child := range el.children {
			if err := x.exportElement(ctx, st, child, parentID); err != nil {
				return err
			}
		}

		return st.enc.EncodeToken(start.End())
	}

	if el.source == nil {
		return nil
	}

	rows, err := fetch(ctx, x.records, el.source, st.env, parentID)
	if err != nil {
		return fmt.Errorf("element %s: %w", el.Path(), err)
	}

	x.log.WithFields(logrus.Fields{
		"element": el.Path(),
		"rows":    len(rows),
	}).Trace("element rows fetched")

	for _, raw := range rows {
		row := applyAliases(raw, el.aliases)
		if err := x.exportRow(ctx, st, el, row, parentID); err != nil {
			return err
		}
	}

	return nil
}

func (x *Exporter) exportRow(ctx context.Context, st *exportState, el *Element, row Row, parentID any) error {
	start := xml.StartElement{Name: xml.Name{Local: el.name}}
	for _, f := range el.idFields {
		v, ok := row[f]
		if !ok {
			return fmt.Errorf("element %s field %s: %w", el.Path(), f, ErrMissingField)
		}
		text, _ := formatValue(v)
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: f}, Value: text})
	}

	if err := st.enc.EncodeToken(start); err != nil {
		return fmt.Errorf("element %s: %w", el.Path(), err)
	}

	for _, f := range el.fields {
		v, ok := row[f]
		if !ok {
			return fmt.Errorf("element %s field %s: %w", el.Path(), f, ErrMissingField)
		}
		text, isNull := formatValue(v)
		if _, isString := v.(string); isString && !isNull {
			text = x.encode(text)
		}
		if err := st.enc.EncodeElement(text, xml.StartElement{Name: xml.Name{Local: f}}); err != nil {
			return fmt.Errorf("element %s field %s: %w", el.Path(), f, err)
		}
	}

	collect(st.result.Annotations, el, row)

	childParent := parentID
	if len(el.idFields) > 0 {
		childParent = row[el.idFields[0]]
	}
	for _, child := range el.children {
		if err := x.exportElement(ctx, st, child, childParent); err != nil {
			return err
		}
	}

	if err := st.enc.EncodeToken(start.End()); err != nil {
		return fmt.Errorf("element %s: %w", el.Path(), err)
	}
	st.result.Rows[el.Path()]++

	return nil
}

func (x *Exporter) encode(text string) string {
	for _, e := range x.encoders {
		text = e.EncodeContent(text)
	}

	return text
}

// collect records the annotated references carried by one row.
func collect(a *Annotations, el *Element, row Row) {
	for _, ref := range el.idRefs {
		text, isNull := formatValue(row[ref.Field])
		if isNull {
			continue
		}
		a.AddID(ref.Kind, text)
	}

	for _, ref := range el.fileRefs {
		fr := FileRef{Component: ref.Component, FileArea: ref.FileArea}
		if ref.ItemField != "" {
			text, isNull := formatValue(row[ref.ItemField])
			if isNull {
				continue
			}
			fr.ItemID = text
		}
		a.AddFile(fr)
	}
}
