package odk

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/runner"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/schema"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/tabular"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/validate"
)

// fakeRunner returns canned results in sequence and records every argv
// it was handed.
type fakeRunner struct {
	results []*runner.Result
	calls   [][]string
}

func (f *fakeRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (*runner.Result, error) {
	f.calls = append(f.calls, argv)
	if len(f.results) == 0 {
		return &runner.Result{ExitCode: 0, Stdout: "<doc/>"}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func bridgeFixture(t *testing.T, fake *fakeRunner) *Bridge {
	t.Helper()
	def := &schema.Definition{
		ID: "bridge_form",
		Children: []schema.Node{
			{Name: "age", Type: "integer", Label: "Age", Bind: &schema.Bind{
				Required:      "yes",
				Constraint:    ". < 150",
				ConstraintMsg: "Age must be under 150",
			}},
			{Name: "gender", Type: "select_one", ListName: "gender", Label: "Gender"},
		},
		Choices: map[string][]schema.Choice{
			"gender": {{Name: "male", Alias: "man"}, {Name: "female"}},
		},
	}
	m, err := schema.Extract(def)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	b := New(m, def, "/usr/local/bin/validate-tool")
	b.Runner = fake
	return b
}

func stderrPayload(t *testing.T, question, errText, answer string) string {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		"question": question, "error": errText, "answer": answer,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(data)
}

func TestBridgeValidRowsCollectDocuments(t *testing.T) {
	fake := &fakeRunner{results: []*runner.Result{
		{ExitCode: 0, Stdout: "<doc>1</doc>"},
		{ExitCode: 0, Stdout: "<doc>2</doc>"},
	}}
	b := bridgeFixture(t, fake)

	result, err := b.Validate(context.Background(), &tabular.Table{
		Headers: []string{"age", "gender"},
		Rows:    [][]tabular.Cell{{"30", "male"}, {"45", "female"}},
	}, true)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, got %+v", result.Errors)
	}
	if len(result.Documents) != 2 || result.Documents[0] != "<doc>1</doc>" {
		t.Errorf("documents = %v", result.Documents)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("tool invoked %d times, want 2", len(fake.calls))
	}
	argv := fake.calls[0]
	if argv[0] != "/usr/local/bin/validate-tool" || argv[1] != "-x" || argv[3] != "-a" {
		t.Errorf("argv = %v", argv)
	}
}

func TestBridgeDocumentsOnlyWhenRequested(t *testing.T) {
	fake := &fakeRunner{}
	b := bridgeFixture(t, fake)

	result, err := b.Validate(context.Background(), &tabular.Table{
		Headers: []string{"age", "gender"},
		Rows:    [][]tabular.Cell{{"30", "male"}},
	}, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Valid || result.Documents != nil {
		t.Errorf("valid=%v documents=%v", result.Valid, result.Documents)
	}
}

// A constraint failure from the tool is translated into the engine's
// error shape: the kind, the raw constraint and custom message from the
// model, and the column derived from the resolved header position.
func TestBridgeTranslatesConstraintFailure(t *testing.T) {
	fake := &fakeRunner{results: []*runner.Result{
		{ExitCode: 1, Stderr: stderrPayload(t, "age", "Answer is violating a constraint", "200")},
	}}
	b := bridgeFixture(t, fake)

	result, err := b.Validate(context.Background(), &tabular.Table{
		Headers: []string{"gender", "age"}, // age deliberately second
		Rows:    [][]tabular.Cell{{"male", "200"}},
	}, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Valid || len(result.Errors) != 1 {
		t.Fatalf("want one error, got %+v", result.Errors)
	}
	e := result.Errors[0]
	if e.Kind != validate.KindConstraintUnsatisfied {
		t.Errorf("kind = %q", e.Kind)
	}
	if e.Line != 2 || e.Column != 2 {
		t.Errorf("location = (%d,%d), want (2,2)", e.Line, e.Column)
	}
	if e.Explanation != "Constraint '. < 150' is not satisfied for value '200'" {
		t.Errorf("explanation = %q", e.Explanation)
	}
	if e.ConstraintMessage != "Age must be under 150" {
		t.Errorf("constraint message = %q", e.ConstraintMessage)
	}
}

func TestBridgeTranslatesRequiredFailure(t *testing.T) {
	fake := &fakeRunner{results: []*runner.Result{
		{ExitCode: 1, Stderr: stderrPayload(t, "age", "Answer was required but empty", "")},
	}}
	b := bridgeFixture(t, fake)

	result, err := b.Validate(context.Background(), &tabular.Table{
		Headers: []string{"age", "gender"},
		Rows:    [][]tabular.Cell{{nil, "male"}},
	}, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	e := result.Errors[0]
	if e.Kind != validate.KindValueRequired || e.Question != "age" {
		t.Errorf("got kind=%q question=%q", e.Kind, e.Question)
	}
	if e.Explanation != "Value is required for question 'age'" {
		t.Errorf("explanation = %q", e.Explanation)
	}
}

func TestBridgeTimeoutIsRowError(t *testing.T) {
	fake := &fakeRunner{results: []*runner.Result{
		{TimedOut: true, ExitCode: -1},
		{ExitCode: 0, Stdout: "<doc/>"},
	}}
	b := bridgeFixture(t, fake)

	result, err := b.Validate(context.Background(), &tabular.Table{
		Headers: []string{"age", "gender"},
		Rows:    [][]tabular.Cell{{"30", "male"}, {"45", "female"}},
	}, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("want one error, got %+v", result.Errors)
	}
	e := result.Errors[0]
	if e.Kind != validate.KindTimeout || e.Line != 2 {
		t.Errorf("got kind=%q line=%d", e.Kind, e.Line)
	}
	// The remaining rows are still scanned after a timeout.
	if len(fake.calls) != 2 {
		t.Errorf("tool invoked %d times, want 2", len(fake.calls))
	}
}

func TestBridgeNegativeExitCode(t *testing.T) {
	fake := &fakeRunner{results: []*runner.Result{{ExitCode: -1}}}
	b := bridgeFixture(t, fake)

	result, err := b.Validate(context.Background(), &tabular.Table{
		Headers: []string{"age", "gender"},
		Rows:    [][]tabular.Cell{{"30", "male"}},
	}, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	e := result.Errors[0]
	if e.Kind != validate.KindToolError {
		t.Errorf("kind = %q", e.Kind)
	}
	if e.Explanation != "Bad return code from external validator" {
		t.Errorf("explanation = %q", e.Explanation)
	}
}

func TestBridgeUnparsableStderr(t *testing.T) {
	fake := &fakeRunner{results: []*runner.Result{
		{ExitCode: 1, Stderr: "java.lang.NullPointerException\n\tat org.odk..."},
	}}
	b := bridgeFixture(t, fake)

	result, err := b.Validate(context.Background(), &tabular.Table{
		Headers: []string{"age", "gender"},
		Rows:    [][]tabular.Cell{{"30", "male"}},
	}, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	e := result.Errors[0]
	if e.Kind != validate.KindToolError {
		t.Errorf("kind = %q", e.Kind)
	}
}

// The bridge runs the same header gate as the engine: a bad header
// aborts before the tool is ever invoked.
func TestBridgeHeaderGate(t *testing.T) {
	fake := &fakeRunner{}
	b := bridgeFixture(t, fake)

	result, err := b.Validate(context.Background(), &tabular.Table{
		Headers: []string{"age", "bogus"},
		Rows:    [][]tabular.Cell{{"30", "x"}},
	}, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Kind != validate.KindHeaderUnresolved {
		t.Fatalf("want one header error, got %+v", result.Errors)
	}
	if len(fake.calls) != 0 {
		t.Errorf("tool invoked %d times, want 0", len(fake.calls))
	}
}

// Answers handed to the tool are canonicalized: a choice alias reaches
// the tool as the canonical value, and integral floats lose the point.
func TestBridgeCanonicalizesAnswers(t *testing.T) {
	fake := &fakeRunner{}
	b := bridgeFixture(t, fake)

	_, err := b.Validate(context.Background(), &tabular.Table{
		Headers: []string{"age", "gender"},
		Rows:    [][]tabular.Cell{{float64(30), "MAN"}},
	}, false)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("tool invoked %d times, want 1", len(fake.calls))
	}
	var answers map[string]string
	if err := json.Unmarshal([]byte(fake.calls[0][4]), &answers); err != nil {
		t.Fatalf("unmarshal answers: %v", err)
	}
	if answers["age"] != "30" {
		t.Errorf("age = %q, want %q", answers["age"], "30")
	}
	if answers["gender"] != "male" {
		t.Errorf("gender = %q, want %q", answers["gender"], "male")
	}
}

func TestBridgeInstallOK(t *testing.T) {
	ok, err := bridgeFixture(t, &fakeRunner{results: []*runner.Result{{ExitCode: 0}}}).InstallOK(context.Background())
	if err != nil || !ok {
		t.Errorf("exit 0: ok=%v err=%v", ok, err)
	}
	ok, err = bridgeFixture(t, &fakeRunner{results: []*runner.Result{{ExitCode: 1}}}).InstallOK(context.Background())
	if err != nil || ok {
		t.Errorf("exit 1: ok=%v err=%v", ok, err)
	}
}
