package validate

import (
	"strings"
	"testing"

	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/schema"
)

func questionWithConstraint(t *testing.T, qType, constraint, message string) *schema.Question {
	t.Helper()
	c, err := schema.ParseConstraint(constraint, message)
	if err != nil {
		t.Fatalf("parse constraint %q: %v", constraint, err)
	}
	return &schema.Question{
		Name:          "q",
		Type:          qType,
		Constraint:    c,
		ConstraintMsg: message,
	}
}

// TestRegexConstraintNumericPadding pins the zero-padding contract:
// numeric cells lose leading zeros that a fixed-width code pattern
// requires, so they are padded back to the pattern's digit count.
func TestRegexConstraintNumericPadding(t *testing.T) {
	q := questionWithConstraint(t, "text", `regex(.,'^([0-9]{5})$')`, "")

	if msg := CheckConstraint(float64(1652.0), q); msg != "" {
		t.Errorf("1652.0 should pass as '01652': %s", msg)
	}
	if msg := CheckConstraint(float64(123.0), q); msg != "" {
		t.Errorf("123.0 should pass as '00123': %s", msg)
	}
	if msg := CheckConstraint("01234", q); msg != "" {
		t.Errorf("already-padded string should pass: %s", msg)
	}
	if msg := CheckConstraint(float64(123456), q); msg == "" {
		t.Error("six digits should not satisfy a 5-digit pattern")
	}
	if msg := CheckConstraint("12", q); msg == "" {
		t.Error("short string should not be padded; strings carry their exact digits")
	}
}

// TestRegexConstraintPlainCoercion verifies that without a fixed-width
// digit class, integral numerics collapse to their integer string form.
func TestRegexConstraintPlainCoercion(t *testing.T) {
	q := questionWithConstraint(t, "text", `regex(.,'^123$')`, "")

	if msg := CheckConstraint(float64(123.0), q); msg != "" {
		t.Errorf("123.0 should collapse to '123': %s", msg)
	}
	if msg := CheckConstraint("123", q); msg != "" {
		t.Errorf("'123' should pass: %s", msg)
	}
	if msg := CheckConstraint("124", q); msg == "" {
		t.Error("'124' should fail")
	}
}

func TestRegexConstraintMonthCode(t *testing.T) {
	q := questionWithConstraint(t, "text", `regex(.,'^(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)-\d{2}$')`, "")

	for _, v := range []string{"Jan-01", "Feb-15", "Dec-31"} {
		if msg := CheckConstraint(v, q); msg != "" {
			t.Errorf("%q should pass: %s", v, msg)
		}
	}
	for _, v := range []string{"January-01", "Feb-1", "13-31"} {
		if msg := CheckConstraint(v, q); msg == "" {
			t.Errorf("%q should fail", v)
		}
	}
}

// TestExpressionConstraint verifies relational evaluation with the
// value coerced per the declared type.
func TestExpressionConstraint(t *testing.T) {
	q := questionWithConstraint(t, "integer", ". < 150", "")

	if msg := CheckConstraint("120", q); msg != "" {
		t.Errorf("120 satisfies '. < 150': %s", msg)
	}
	msg := CheckConstraint("200", q)
	if msg == "" {
		t.Fatal("200 should violate '. < 150'")
	}
	// The explanation carries the literal constraint text and value.
	if !strings.Contains(msg, ". < 150") || !strings.Contains(msg, "200") {
		t.Errorf("explanation should cite constraint and value: %s", msg)
	}
}

func TestExpressionConstraintDecimal(t *testing.T) {
	q := questionWithConstraint(t, "decimal", ". >= 0.5 and . <= 99.9", "")

	if msg := CheckConstraint("50.25", q); msg != "" {
		t.Errorf("50.25 should pass: %s", msg)
	}
	if msg := CheckConstraint("0.1", q); msg == "" {
		t.Error("0.1 should fail")
	}
}

// TestExpressionConstraintNonNumeric verifies coercion failure is a
// distinct message, not a constraint violation.
func TestExpressionConstraintNonNumeric(t *testing.T) {
	q := questionWithConstraint(t, "integer", ". < 150", "")

	msg := CheckConstraint("abc", q)
	if msg == "" {
		t.Fatal("non-integer value cannot be validated")
	}
	if !strings.Contains(msg, "Cannot validate constraint for non-integer value") {
		t.Errorf("want coercion failure message, got: %s", msg)
	}
}

// TestExpressionConstraintFailsClosed verifies an evaluation error is
// treated as constraint-not-satisfied, never a pass or a panic.
func TestExpressionConstraintFailsClosed(t *testing.T) {
	// Comparing a string value numerically errors inside the evaluator.
	q := questionWithConstraint(t, "text", ". > 10", "")
	if msg := CheckConstraint("hello", q); msg == "" {
		t.Error("unevaluable constraint must fail closed")
	}

	// A constraint that never compiled also fails closed.
	q = questionWithConstraint(t, "integer", ". >= and", "")
	if msg := CheckConstraint("5", q); msg == "" {
		t.Error("uncompilable constraint must fail closed")
	}
}

func TestStringEqualityConstraint(t *testing.T) {
	q := questionWithConstraint(t, "text", ". = 'yes' or . = 'no'", "")

	for _, v := range []string{"yes", "no"} {
		if msg := CheckConstraint(v, q); msg != "" {
			t.Errorf("%q should pass: %s", v, msg)
		}
	}
	if msg := CheckConstraint("maybe", q); msg == "" {
		t.Error("'maybe' should fail")
	}
}

func TestNoConstraintPasses(t *testing.T) {
	q := &schema.Question{Name: "q", Type: "integer"}
	if msg := CheckConstraint("42", q); msg != "" {
		t.Errorf("question without constraint should pass: %s", msg)
	}
}
