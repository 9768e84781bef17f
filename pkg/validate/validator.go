package validate

import (
	"fmt"

	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/schema"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/tabular"
)

// Validator runs the self-contained validation path against a schema
// model. It holds no mutable state across runs; a single Validator may
// be reused for multiple tables as long as the model stays untouched.
type Validator struct {
	Model *schema.Model
}

// New creates a Validator for the given model.
func New(m *schema.Model) *Validator {
	return &Validator{Model: m}
}

// Validate scans the table in one deterministic pass. Every column
// header must resolve before any row is examined: an unresolved header
// aborts the run with one error per bad header and no row-level
// errors, since the row data is meaningless without a column mapping.
// Row scanning never stops early — all errors across all rows are
// collected, in row-major order with columns in header order.
func (v *Validator) Validate(t *tabular.Table) *Result {
	if errs := CheckHeaders(v.Model, t.Headers); len(errs) > 0 {
		return &Result{Valid: false, Errors: errs}
	}

	var errs []*Error
	for rowIdx, row := range t.Rows {
		line := rowIdx + 2 // header row is line 1
		for colIdx, header := range t.Headers {
			name, _ := v.Model.Resolve(header)
			q := v.Model.Questions[name]

			var cell tabular.Cell
			if colIdx < len(row) {
				cell = row[colIdx]
			}

			if tabular.IsEmpty(cell) {
				if q.Required {
					errs = append(errs, &Error{
						Line:        line,
						Column:      colIdx + 1,
						Kind:        KindValueRequired,
						Explanation: fmt.Sprintf("Value is required for question '%s'", q.Name),
						Question:    q.Name,
					})
				}
				continue
			}

			if explanation := CheckType(cell, q, v.Model); explanation != "" {
				errs = append(errs, &Error{
					Line:        line,
					Column:      colIdx + 1,
					Kind:        KindTypeMismatch,
					Explanation: explanation,
					Question:    q.Name,
				})
				continue // constraint checks assume a type-valid value
			}

			if explanation := CheckConstraint(cell, q); explanation != "" {
				errs = append(errs, &Error{
					Line:              line,
					Column:            colIdx + 1,
					Kind:              KindConstraintUnsatisfied,
					Explanation:       explanation,
					Question:          q.Name,
					ConstraintMessage: q.ConstraintMsg,
				})
			}
		}
	}

	return &Result{Valid: len(errs) == 0, Errors: errs}
}

// CheckHeaders resolves every column header against the model,
// returning one header_unresolved error per column that matches
// neither a question name nor a label. Both validation paths run this
// before touching row data.
func CheckHeaders(m *schema.Model, headers []string) []*Error {
	var errs []*Error
	for colIdx, header := range headers {
		if _, ok := m.Resolve(header); !ok {
			errs = append(errs, &Error{
				Line:        1,
				Column:      colIdx + 1,
				Kind:        KindHeaderUnresolved,
				Explanation: fmt.Sprintf("Column header '%s' does not match any question name or label in the form definition", header),
				Question:    header,
			})
		}
	}
	return errs
}
