// Package odk delegates per-row validation to an external structured-
// data validator tool (an ODK-Validate-style executable). It consumes
// the same schema model as the self-contained engine and produces the
// same error shape, so the caller is agnostic to which path ran.
package odk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/runner"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/schema"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/tabular"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/validate"
)

// Failure tokens the tool emits in its stderr payload.
const (
	tokenConstraintViolated = "Answer is violating a constraint"
	tokenValueRequired      = "Answer was required but empty"
)

// DefaultTimeout is the per-row wall-clock budget for the external
// tool, matching the upstream validator's 100-second limit.
const DefaultTimeout = 100 * time.Second

// toolFailure is the machine-parsable payload the tool writes to
// stderr when a row is invalid.
type toolFailure struct {
	Question string `json:"question"`
	Error    string `json:"error"`
	Answer   string `json:"answer"`
}

// Bridge invokes the external validator once per row and translates
// its responses into the engine's error shape.
type Bridge struct {
	Model      *schema.Model
	Definition *schema.Definition
	BinPath    string
	Timeout    time.Duration
	Runner     runner.CommandRunner
}

// New creates a Bridge using the real command runner and the default
// per-row timeout.
func New(m *schema.Model, def *schema.Definition, binPath string) *Bridge {
	return &Bridge{
		Model:      m,
		Definition: def,
		BinPath:    binPath,
		Timeout:    DefaultTimeout,
		Runner:     &runner.Real{},
	}
}

// InstallOK probes the tool with an empty answers document to verify
// the binary is present and functional.
func (b *Bridge) InstallOK(ctx context.Context) (bool, error) {
	defPath, cleanup, err := b.writeDefinition()
	if err != nil {
		return false, err
	}
	defer cleanup()

	res, err := b.Runner.Run(ctx, []string{b.BinPath, "-x", defPath, "-a", "{}"}, b.Timeout)
	if err != nil {
		return false, err
	}
	return res.ExitCode != 1, nil
}

// Validate checks every row through the external tool. Headers must
// all resolve first, exactly as in the self-contained path. A timed
// out or crashed invocation is a validation failure for that row —
// never a silent pass. When withDocs is true and every row came back
// valid, the tool's per-row document output is collected.
func (b *Bridge) Validate(ctx context.Context, t *tabular.Table, withDocs bool) (*validate.Result, error) {
	if errs := validate.CheckHeaders(b.Model, t.Headers); len(errs) > 0 {
		return &validate.Result{Valid: false, Errors: errs}, nil
	}

	defPath, cleanup, err := b.writeDefinition()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	columns := b.columnIndex(t.Headers)

	var errs []*validate.Error
	var docs []string
	for rowIdx, row := range t.Rows {
		line := rowIdx + 2
		answers, err := json.Marshal(b.rowAnswers(t.Headers, row))
		if err != nil {
			return nil, fmt.Errorf("marshal answers for line %d: %w", line, err)
		}

		res, err := b.Runner.Run(ctx, []string{b.BinPath, "-x", defPath, "-a", string(answers)}, b.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invoke external validator for line %d: %w", line, err)
		}

		switch {
		case res.TimedOut:
			errs = append(errs, &validate.Error{
				Line:        line,
				Kind:        validate.KindTimeout,
				Explanation: "External validation did not complete within the timeout",
			})
		case res.ExitCode > 0:
			errs = append(errs, b.translateFailure(line, columns, res.Stderr))
		case res.ExitCode < 0:
			errs = append(errs, &validate.Error{
				Line:        line,
				Kind:        validate.KindToolError,
				Explanation: "Bad return code from external validator",
			})
		default:
			docs = append(docs, res.Stdout)
		}
	}

	result := &validate.Result{Valid: len(errs) == 0, Errors: errs}
	if result.Valid && withDocs {
		result.Documents = docs
	}
	return result, nil
}

// translateFailure parses the tool's stderr payload into the engine's
// error shape, synthesizing the explanation from the failure token and
// the constraint metadata already held in the model.
func (b *Bridge) translateFailure(line int, columns map[string]int, stderr string) *validate.Error {
	var failure toolFailure
	if err := json.Unmarshal([]byte(strings.TrimSpace(stderr)), &failure); err != nil {
		return &validate.Error{
			Line:        line,
			Kind:        validate.KindToolError,
			Explanation: fmt.Sprintf("Unparsable external validator output: %s", strings.TrimSpace(stderr)),
		}
	}

	e := &validate.Error{
		Line:     line,
		Column:   columns[failure.Question],
		Question: failure.Question,
	}
	q := b.Model.Questions[failure.Question]

	switch failure.Error {
	case tokenConstraintViolated:
		e.Kind = validate.KindConstraintUnsatisfied
		constraint := ""
		if q != nil && q.Constraint != nil {
			constraint = q.Constraint.Raw
			e.ConstraintMessage = q.ConstraintMsg
		}
		e.Explanation = fmt.Sprintf("Constraint '%s' is not satisfied for value '%s'", constraint, failure.Answer)
	case tokenValueRequired:
		e.Kind = validate.KindValueRequired
		e.Explanation = fmt.Sprintf("Value is required for question '%s'", failure.Question)
	default:
		e.Kind = validate.KindToolError
		e.Explanation = failure.Error
	}
	return e
}

// rowAnswers resolves and formats one row for the answers document.
// Select answers are canonicalized through the choice list so aliases
// and case variants reach the tool as the canonical value.
func (b *Bridge) rowAnswers(headers []string, row []tabular.Cell) map[string]string {
	answers := make(map[string]string)
	for colIdx, header := range headers {
		name, ok := b.Model.Resolve(header)
		if !ok {
			continue
		}

		var cell tabular.Cell
		if colIdx < len(row) {
			cell = row[colIdx]
		}
		answers[name] = b.formatAnswer(b.Model.Questions[name], cell)
	}
	return answers
}

func (b *Bridge) formatAnswer(q *schema.Question, cell tabular.Cell) string {
	text := tabular.String(cell)
	list := b.Model.ListFor(q)
	if list == nil {
		return text
	}

	if q.IsSelectOne() {
		if canonical, ok := list.Match(text); ok {
			return canonical
		}
		return text
	}
	if q.IsSelectMultiple() {
		tokens := strings.Fields(text)
		for i, token := range tokens {
			if canonical, ok := list.Match(token); ok {
				tokens[i] = canonical
			}
		}
		return strings.Join(tokens, " ")
	}
	return text
}

// columnIndex maps each question name to its 1-based column position
// in the data, derived from the resolved headers.
func (b *Bridge) columnIndex(headers []string) map[string]int {
	columns := make(map[string]int)
	for colIdx, header := range headers {
		if name, ok := b.Model.Resolve(header); ok {
			columns[name] = colIdx + 1
		}
	}
	return columns
}

// writeDefinition serializes the form definition to a temp file for
// the tool's -x argument. The caller removes it via cleanup.
func (b *Bridge) writeDefinition() (string, func(), error) {
	f, err := os.CreateTemp("", "form-definition-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("create definition temp file: %w", err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(b.Definition); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("write definition temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("close definition temp file: %w", err)
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
