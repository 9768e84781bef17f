// Package validate implements the validation engine: per-cell type,
// constraint and choice checks, and the orchestrator that scans a
// tabular source against an extracted schema model.
package validate

import "encoding/json"

// Error kinds. The first five are produced by the engine itself;
// timeout and tool_error come from the external validator bridge, and
// doc_generation_error from interchange-document generation.
const (
	KindTypeMismatch          = "type_mismatch"
	KindConstraintUnsatisfied = "constraint_unsatisfied"
	KindValueRequired         = "value_required"
	KindHeaderUnresolved      = "header_unresolved"
	KindParseError            = "parse_error"
	KindTimeout               = "timeout"
	KindToolError             = "tool_error"
	KindDocGeneration         = "doc_generation_error"
)

// Error is a single validation failure. Line numbers are 1-based with
// the header row as line 1, so the first data row is line 2; columns
// are 1-based. Never mutated after creation.
type Error struct {
	Line              int    `json:"line"`
	Column            int    `json:"column"`
	Kind              string `json:"error_type"`
	Explanation       string `json:"error_explanation"`
	Question          string `json:"question_name"`
	ConstraintMessage string `json:"constraint_message,omitempty"`
}

// Result is the outcome of one validation run. Valid is true iff the
// error list is empty. Documents is only populated when the caller
// requested interchange-document generation on a valid result.
type Result struct {
	Valid     bool
	Errors    []*Error
	Documents []string
}

// MarshalJSON renders the wire shape:
// {"result": "valid"|"invalid", "errors": [...], "documents": [...]}.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Result    string   `json:"result"`
		Errors    []*Error `json:"errors,omitempty"`
		Documents []string `json:"documents,omitempty"`
	}{Result: "valid"}
	if !r.Valid {
		out.Result = "invalid"
		out.Errors = r.Errors
	}
	out.Documents = r.Documents
	return json.Marshal(out)
}

// ParseFailure builds the run-fatal result for an unreadable form
// definition. No row-level errors ever accompany it.
func ParseFailure(explanation string) *Result {
	return &Result{
		Valid: false,
		Errors: []*Error{{
			Line:        0,
			Column:      0,
			Kind:        KindParseError,
			Explanation: explanation,
		}},
	}
}
