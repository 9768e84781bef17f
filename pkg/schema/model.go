package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/tabular"
)

// Question is one named, typed field extracted from the definition.
// Immutable after extraction; a Model shared across runs is read-only.
type Question struct {
	Name          string
	Type          string // canonical type, keeps the list reference: "select_one gender"
	Label         string
	Required      bool
	Constraint    *Constraint // nil when the question has no constraint
	ConstraintMsg string
}

// IsSelectOne reports whether the question is a single-select.
func (q *Question) IsSelectOne() bool {
	return strings.HasPrefix(q.Type, "select_one")
}

// IsSelectMultiple reports whether the question is a multi-select.
func (q *Question) IsSelectMultiple() bool {
	return strings.HasPrefix(q.Type, "select_multiple")
}

// ListName extracts the choice-list reference from a select-type
// question's canonical type string. Empty for non-select questions.
func (q *Question) ListName() string {
	for _, prefix := range []string{"select_one ", "select_multiple "} {
		if strings.HasPrefix(q.Type, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(q.Type, prefix))
		}
	}
	return ""
}

// ChoiceList is a named set of allowed values with optional aliases.
// Canonical values and aliases match case-insensitively, and numeric
// choice names match their textual form (1 and "1" are the same value).
type ChoiceList struct {
	Name    string
	Values  []string          // canonical values in definition order
	Aliases map[string]string // alias -> canonical value

	lowerValues  map[string]string
	lowerAliases map[string]string
}

// Match resolves an answer against the list, case-insensitively, first
// by canonical value and then by alias. It returns the canonical value.
func (cl *ChoiceList) Match(value string) (string, bool) {
	lower := strings.ToLower(value)
	if canonical, ok := cl.lowerValues[lower]; ok {
		return canonical, true
	}
	if canonical, ok := cl.lowerAliases[lower]; ok {
		return canonical, true
	}
	return "", false
}

// Model is the normalized rule set extracted from a form definition:
// question lookup by canonical name, label-to-name mapping for column
// resolution, and choice lists keyed by list name.
type Model struct {
	FormID  string
	Version string

	Names       []string // question names in definition order
	Questions   map[string]*Question
	Labels      map[string]string // human label -> canonical name
	ChoiceLists map[string]*ChoiceList
}

// Extract builds the Model from a decoded definition. Group containers
// and the reserved meta section are recursed into transparently: their
// children land in the same flat namespace as if the grouping did not
// exist. Constraints compile here, so an invalid regex pattern fails
// extraction before any row is scanned.
func Extract(def *Definition) (*Model, error) {
	m := &Model{
		FormID:      def.ID,
		Version:     def.Version,
		Questions:   make(map[string]*Question),
		Labels:      make(map[string]string),
		ChoiceLists: make(map[string]*ChoiceList),
	}

	if err := collectQuestions(def.Children, m); err != nil {
		return nil, err
	}

	for listName, choices := range def.Choices {
		cl := &ChoiceList{
			Name:         listName,
			Aliases:      make(map[string]string),
			lowerValues:  make(map[string]string),
			lowerAliases: make(map[string]string),
		}
		for _, choice := range choices {
			if choice.Name == nil {
				continue
			}
			value := formatScalar(choice.Name)
			cl.Values = append(cl.Values, value)
			cl.lowerValues[strings.ToLower(value)] = value
			if choice.Alias != "" {
				cl.Aliases[choice.Alias] = value
				cl.lowerAliases[strings.ToLower(choice.Alias)] = value
			}
		}
		m.ChoiceLists[listName] = cl
	}

	return m, nil
}

// collectQuestions is the depth-first visitor over the definition tree.
// It accumulates into the caller-owned model rather than into shared
// state, flattening groups and meta into one namespace.
func collectQuestions(nodes []Node, m *Model) error {
	for _, node := range nodes {
		if node.Name == "" || node.Type == "" {
			continue
		}

		if node.Type == "group" || node.Name == "meta" {
			if err := collectQuestions(node.Children, m); err != nil {
				return err
			}
			continue
		}

		qType := node.Type
		if strings.HasPrefix(qType, "select") && node.ListName != "" && !strings.Contains(qType, " ") {
			qType = qType + " " + node.ListName
		}

		q := &Question{
			Name:     node.Name,
			Type:     qType,
			Label:    node.Label,
			Required: node.Bind.IsRequired(),
		}
		if node.Bind != nil && node.Bind.Constraint != "" {
			c, err := ParseConstraint(node.Bind.Constraint, node.Bind.ConstraintMsg)
			if err != nil {
				return fmt.Errorf("question %q: %w", node.Name, err)
			}
			q.Constraint = c
			q.ConstraintMsg = node.Bind.ConstraintMsg
		}

		m.Names = append(m.Names, node.Name)
		m.Questions[node.Name] = q
		if node.Label != "" {
			m.Labels[node.Label] = node.Name
		}
	}
	return nil
}

// Resolve maps a spreadsheet column header to a canonical question
// name: exact match against question names first, then exact match
// against human labels. No fuzzy or partial matching — a near-match
// must surface as unresolved rather than silently bind.
func (m *Model) Resolve(header string) (string, bool) {
	if _, ok := m.Questions[header]; ok {
		return header, true
	}
	if name, ok := m.Labels[header]; ok {
		return name, true
	}
	return "", false
}

// ListFor returns the choice list referenced by a select-type question,
// or nil when the question is not a select or the list is undefined.
func (m *Model) ListFor(q *Question) *ChoiceList {
	name := q.ListName()
	if name == "" {
		return nil
	}
	return m.ChoiceLists[name]
}

// formatScalar renders a choice name scalar to its canonical string
// form, sharing the cell-to-string coercion so a numeric choice value
// and a numeric answer cell always collapse identically.
func formatScalar(v any) string {
	switch s := v.(type) {
	case float32:
		return tabular.String(float64(s))
	case bool:
		return strconv.FormatBool(s)
	default:
		return tabular.String(v)
	}
}
