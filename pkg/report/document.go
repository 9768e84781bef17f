package report

import (
	"encoding/xml"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/schema"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/tabular"
)

// DocumentTemplate renders one interchange document per valid data
// row. The template text is generated once from the form definition's
// question order and compiled once; rendering is per row.
type DocumentTemplate struct {
	model *schema.Model
	tmpl  *template.Template
}

// documentData is the per-row execution context for the template.
type documentData struct {
	FormID     string
	Version    string
	InstanceID string
	Values     map[string]string
}

var documentFuncs = template.FuncMap{
	"xmlesc": xmlEscape,
}

// NewDocumentTemplate builds and compiles the per-form template: a
// root element carrying the form id and version, one child element per
// question in definition order, and a meta section for the instance ID.
func NewDocumentTemplate(m *schema.Model) (*DocumentTemplate, error) {
	var b strings.Builder
	b.WriteString("<?xml version='1.0'?>\n")
	b.WriteString(`<data id="{{.FormID}}" version="{{.Version}}" xmlns:h="http://www.w3.org/1999/xhtml" xmlns:jr="http://openrosa.org/javarosa">` + "\n")
	for _, name := range m.Names {
		fmt.Fprintf(&b, "  <%s>{{xmlesc (index .Values %q)}}</%s>\n", name, name, name)
	}
	b.WriteString("  <meta>\n    <instanceID>{{.InstanceID}}</instanceID>\n  </meta>\n")
	b.WriteString("</data>\n")

	tmpl, err := template.New("document").Funcs(documentFuncs).Parse(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile document template: %w", err)
	}
	return &DocumentTemplate{model: m, tmpl: tmpl}, nil
}

// Render produces one document for a row's values, assigning a freshly
// generated instance identifier. Integral numeric values must already
// be collapsed by the caller's cell-to-string conversion.
func (d *DocumentTemplate) Render(values map[string]string) (string, error) {
	var out strings.Builder
	data := documentData{
		FormID:     d.model.FormID,
		Version:    d.model.Version,
		InstanceID: "uuid:" + uuid.NewString(),
		Values:     values,
	}
	if err := d.tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return out.String(), nil
}

// Generate streams one document per row to fn, materializing a single
// document at a time. Re-invoking Generate re-runs from the table, so
// the sequence is safely re-iterable. Callers must only generate from
// data that already validated.
func (d *DocumentTemplate) Generate(t *tabular.Table, fn func(doc string) error) error {
	for rowIdx, row := range t.Rows {
		values := make(map[string]string)
		for colIdx, header := range t.Headers {
			name, ok := d.model.Resolve(header)
			if !ok {
				continue
			}
			var cell tabular.Cell
			if colIdx < len(row) {
				cell = row[colIdx]
			}
			values[name] = tabular.String(cell)
		}

		doc, err := d.Render(values)
		if err != nil {
			return fmt.Errorf("line %d: %w", rowIdx+2, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// xmlEscape escapes a value for use as XML character data.
func xmlEscape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}
