package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Constraint is a per-question rule compiled once at extraction time.
// Exactly one of Regex or Expr is set. Resolving the dialect here makes
// a bad regex pattern a load-time failure instead of a per-cell one.
type Constraint struct {
	Raw     string
	Message string

	Regex *RegexConstraint
	Expr  *ExprConstraint
}

// RegexConstraint is the textual regex(., '<pattern>') dialect. The
// pattern is applied as a match-from-start test. PadWidth > 0 means the
// pattern opens with a fixed digit-count class and numeric answers must
// be zero-padded to that width before matching.
type RegexConstraint struct {
	Pattern  *regexp.Regexp
	PadWidth int
}

// ExprConstraint is the relational/boolean expression dialect, compiled
// with expr-lang. Program is nil when compilation failed; evaluation
// then fails closed (constraint not satisfied, never a panic).
type ExprConstraint struct {
	Program    *vm.Program
	Translated string
	CompileErr error
}

// regexConstraintRe matches the regex(., '<pattern>') form, tolerant of
// whitespace around the dot, comma and parens, with single or double
// quotes around the pattern.
var regexConstraintRe = regexp.MustCompile(`^regex\(\s*\.\s*,\s*['"](.*?)['"]\s*\)$`)

// padWidthRe finds a fixed digit-count class at or near the start of a
// pattern: optional ^, optional opening parens, then \d{N} or [0-9]{N}.
var padWidthRe = regexp.MustCompile(`^\^?\(*(?:\\d|\[0-9\])\{(\d+)\}`)

// ParseConstraint resolves the constraint dialect and compiles it.
// An invalid regex pattern is a distinct reportable failure naming the
// bad pattern; an uncompilable expression is kept and fails closed at
// evaluation time.
func ParseConstraint(raw, message string) (*Constraint, error) {
	c := &Constraint{Raw: raw, Message: message}

	if m := regexConstraintRe.FindStringSubmatch(strings.TrimSpace(raw)); m != nil {
		pat := m[1]
		// Match-from-start semantics, not full-string and not search.
		re, err := regexp.Compile(`\A(?:` + pat + `)`)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern in constraint %q: %w", raw, err)
		}
		c.Regex = &RegexConstraint{Pattern: re, PadWidth: padWidth(pat)}
		return c, nil
	}

	translated := translateExpression(raw)
	program, err := expr.Compile(translated, expr.AsBool())
	c.Expr = &ExprConstraint{Program: program, Translated: translated, CompileErr: err}
	if err != nil {
		c.Expr.Program = nil
	}
	return c, nil
}

// padWidth extracts the intended zero-pad width from a pattern opening
// with a fixed digit-count class. This is a best-effort heuristic: more
// complex patterns (multiple digit groups, digit classes away from the
// start) return 0 and answers fall back to plain string coercion.
func padWidth(pattern string) int {
	m := padWidthRe.FindStringSubmatch(pattern)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// translateExpression rewrites the XLSForm constraint syntax into an
// expr-lang expression over the identifier "value": the lone dot
// placeholder becomes "value" and the single-equals comparison becomes
// "==". Quoted string literals pass through untouched; and/or/not are
// expr-lang keywords already.
func translateExpression(raw string) string {
	var b strings.Builder
	runes := []rune(raw)
	var quote rune

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}

		switch r {
		case '\'', '"':
			quote = r
			b.WriteRune(r)
		case '.':
			// A dot between digits is a decimal point, not the placeholder.
			if isDigitAt(runes, i-1) || isDigitAt(runes, i+1) {
				b.WriteRune(r)
			} else {
				b.WriteString("value")
			}
		case '=':
			prev := runeAt(runes, i-1)
			next := runeAt(runes, i+1)
			if prev == '<' || prev == '>' || prev == '!' || prev == '=' || next == '=' {
				b.WriteRune(r)
			} else {
				b.WriteString("==")
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func runeAt(runes []rune, i int) rune {
	if i < 0 || i >= len(runes) {
		return 0
	}
	return runes[i]
}

func isDigitAt(runes []rune, i int) bool {
	r := runeAt(runes, i)
	return r >= '0' && r <= '9'
}
