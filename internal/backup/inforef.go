package backup

import (
	"encoding/xml"
	"fmt"
	"io"
)

// InfoRefFile is the archive member listing the references of an activity.
const InfoRefFile = "inforef.xml"

// WriteInfoRef writes the collected references as an inforef document. Id
// kinds become <kindref> groups of <kind><id/></kind> items; file areas are
// listed under <fileref>.
func WriteInfoRef(w io.Writer, a *Annotations) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "inforef"}}
	if err := enc.EncodeToken(root); err != nil {
		return fmt.Errorf("writing inforef: %w", err)
	}

	for _, kind := range a.Kinds() {
		ids := a.IDs(kind)
		if len(ids) == 0 {
			continue
		}
		if err := writeIDGroup(enc, kind, ids); err != nil {
			return fmt.Errorf("writing %s refs: %w", kind, err)
		}
	}

	if files := a.Files(); len(files) > 0 {
		if err := writeFileGroup(enc, files); err != nil {
			return fmt.Errorf("writing file refs: %w", err)
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return fmt.Errorf("closing inforef: %w", err)
	}

	return enc.Flush()
}

func writeIDGroup(enc *xml.Encoder, kind string, ids []string) error {
	group := xml.StartElement{Name: xml.Name{Local: kind + "ref"}}
	if err := enc.EncodeToken(group); err != nil {
		return err
	}

	for _, id := range ids {
		item := xml.StartElement{Name: xml.Name{Local: kind}}
		if err := enc.EncodeToken(item); err != nil {
			return err
		}
		if err := enc.EncodeElement(id, xml.StartElement{Name: xml.Name{Local: "id"}}); err != nil {
			return err
		}
		if err := enc.EncodeToken(item.End()); err != nil {
			return err
		}
	}

	return enc.EncodeToken(group.End())
}

type fileRefXML struct {
	XMLName   xml.Name `xml:"file"`
	Component string   `xml:"component"`
	FileArea  string   `xml:"filearea"`
	ItemID    string   `xml:"itemid,omitempty"`
}

func writeFileGroup(enc *xml.Encoder, files []FileRef) error {
	group := xml.StartElement{Name: xml.Name{Local: "fileref"}}
	if err := enc.EncodeToken(group); err != nil {
		return err
	}

	for _, f := range files {
		item := fileRefXML{Component: f.Component, FileArea: f.FileArea, ItemID: f.ItemID}
		if err := enc.Encode(item); err != nil {
			return err
		}
	}

	return enc.EncodeToken(group.End())
}
