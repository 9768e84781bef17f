package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/schema"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/tabular"
)

// CheckConstraint validates a type-valid, non-empty cell against the
// question's compiled constraint. It returns the error explanation, or
// "" when the constraint is satisfied. Evaluation never panics out of
// the validator: anything that cannot be evaluated fails closed.
func CheckConstraint(value tabular.Cell, q *schema.Question) string {
	c := q.Constraint
	if c == nil {
		return ""
	}

	if c.Regex != nil {
		return checkRegex(value, q, c)
	}
	return checkExpression(value, q, c)
}

func checkRegex(value tabular.Cell, q *schema.Question, c *schema.Constraint) string {
	text := regexInput(value, c.Regex.PadWidth)
	if !c.Regex.Pattern.MatchString(text) {
		return fmt.Sprintf("Constraint '%s' is not satisfied for value '%s'", c.Raw, cellText(value))
	}
	return ""
}

// regexInput coerces a cell for regex matching. Numeric answers lose
// leading zeros in spreadsheets, so when the pattern opens with a fixed
// digit-count class the integer value is zero-padded back to that
// width; otherwise integral numerics collapse to their integer string.
func regexInput(value tabular.Cell, padWidth int) string {
	if padWidth > 0 {
		if n, ok := integralValue(value); ok {
			return fmt.Sprintf("%0*d", padWidth, n)
		}
	}
	return cellText(value)
}

// integralValue extracts an integer from a numeric cell whose
// fractional part is zero. Strings are not coerced: a string answer
// already carries its exact digits.
func integralValue(value tabular.Cell) (int64, bool) {
	switch v := value.(type) {
	case float64:
		if v == math.Trunc(v) && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return int64(v), true
		}
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func checkExpression(value tabular.Cell, q *schema.Question, c *schema.Constraint) string {
	text := cellText(value)

	// Coerce per the declared type before evaluation. A value that
	// cannot be coerced is a distinct failure, not a constraint one.
	var evalValue any = text
	switch q.Type {
	case "integer":
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return fmt.Sprintf("Cannot validate constraint for non-integer value '%s'", text)
		}
		evalValue = n
	case "decimal":
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return fmt.Sprintf("Cannot validate constraint for non-decimal value '%s'", text)
		}
		evalValue = f
	}

	if c.Expr == nil || c.Expr.Program == nil {
		// Uncompilable constraint: fail closed rather than pass bad data.
		return fmt.Sprintf("Constraint '%s' is not satisfied for value '%s'", c.Raw, text)
	}

	out, err := expr.Run(c.Expr.Program, map[string]any{"value": evalValue})
	if err != nil {
		return fmt.Sprintf("Constraint '%s' is not satisfied for value '%s'", c.Raw, text)
	}
	if ok, isBool := out.(bool); !isBool || !ok {
		return fmt.Sprintf("Constraint '%s' is not satisfied for value '%s'", c.Raw, text)
	}
	return ""
}
