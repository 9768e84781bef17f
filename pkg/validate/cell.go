package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/schema"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/tabular"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)
)

// cellText renders a cell for type and constraint checking. Timestamp
// cells use the spreadsheet-native date-time serialization so that a
// date-typed field still recognizes them.
func cellText(c tabular.Cell) string {
	if ts, ok := c.(time.Time); ok {
		return ts.Format("2006-01-02 15:04:05")
	}
	return tabular.String(c)
}

// CheckType validates a non-empty cell against the question's declared
// type. It returns the error explanation, or "" when the value passes.
// Unrecognized types always pass: free-text has no shape constraint.
func CheckType(value tabular.Cell, q *schema.Question, m *schema.Model) string {
	text := cellText(value)

	switch {
	case q.Type == "integer":
		if _, err := strconv.Atoi(strings.TrimSpace(text)); err != nil {
			return fmt.Sprintf("Value '%s' is not a valid integer for question '%s'", text, q.Name)
		}

	case q.Type == "decimal":
		if _, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err != nil {
			return fmt.Sprintf("Value '%s' is not a valid decimal for question '%s'", text, q.Name)
		}

	case q.IsSelectOne():
		list := m.ListFor(q)
		if list == nil {
			return ""
		}
		if _, ok := list.Match(text); !ok {
			return fmt.Sprintf("Value '%s' is not a valid choice for select_one question '%s'", text, q.Name)
		}

	case q.IsSelectMultiple():
		list := m.ListFor(q)
		if list == nil {
			return ""
		}
		for _, token := range strings.Fields(text) {
			if _, ok := list.Match(token); !ok {
				return fmt.Sprintf("Value '%s' is not a valid choice for select_multiple question '%s'", token, q.Name)
			}
		}

	case q.Type == "date":
		if !isDate(text) {
			return fmt.Sprintf("Value '%s' is not a valid date (YYYY-MM-DD) for question '%s'", text, q.Name)
		}

	case q.Type == "time":
		if !timeRe.MatchString(text) {
			return fmt.Sprintf("Value '%s' is not a valid time (HH:MM[:SS]) for question '%s'", text, q.Name)
		}
	}

	return ""
}

// isDate accepts YYYY-MM-DD, or a full YYYY-MM-DD HH:MM:SS timestamp
// whose date component reduces to it. Spreadsheets serialize date-only
// cells as midnight timestamps, so both shapes mean the same answer.
func isDate(text string) bool {
	if dateRe.MatchString(text) {
		return true
	}
	if _, err := time.Parse("2006-01-02 15:04:05", text); err == nil {
		return true
	}
	return false
}
