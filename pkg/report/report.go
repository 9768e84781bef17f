// Package report builds the two validation outputs: an annotated copy
// of the input with error cells flagged plus an appended error table,
// and per-row structured interchange documents for valid data. The
// workbook is a pure value model — writing it to a concrete
// spreadsheet format is the caller's concern.
package report

import (
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/tabular"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/validate"
)

// CellRef identifies one cell of the data sheet, 1-based, with the
// header row as line 1.
type CellRef struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Sheet is one table of the workbook.
type Sheet struct {
	Name string  `json:"name"`
	Rows [][]any `json:"rows"`
}

// Workbook is the annotated copy: the original data sheet, the cells
// to flag on it, and the appended error sheet.
type Workbook struct {
	Sheets     []*Sheet  `json:"sheets"`
	Highlights []CellRef `json:"highlights"`
}

// errorSheetHeader matches the appended error table's column order.
var errorSheetHeader = []any{"Line", "Column", "Question", "Error Type", "Explanation", "Constraint Message"}

// BuildHighlighted copies the original data into a workbook, records a
// highlight for every error cell (header cells are never flagged, even
// if an error references line 1), and appends an Errors sheet listing
// every error in the same order as the error list.
func BuildHighlighted(t *tabular.Table, errs []*validate.Error) *Workbook {
	data := &Sheet{Name: "data"}

	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	data.Rows = append(data.Rows, header)
	for _, row := range t.Rows {
		copied := make([]any, len(row))
		for i := range row {
			copied[i] = row[i]
		}
		data.Rows = append(data.Rows, copied)
	}

	wb := &Workbook{Sheets: []*Sheet{data}}
	for _, e := range errs {
		if e.Line > 1 {
			wb.Highlights = append(wb.Highlights, CellRef{Line: e.Line, Column: e.Column})
		}
	}

	errorsSheet := &Sheet{Name: "Errors"}
	errorsSheet.Rows = append(errorsSheet.Rows, errorSheetHeader)
	for _, e := range errs {
		errorsSheet.Rows = append(errorsSheet.Rows, []any{
			e.Line, e.Column, e.Question, e.Kind, e.Explanation, e.ConstraintMessage,
		})
	}
	wb.Sheets = append(wb.Sheets, errorsSheet)

	return wb
}
