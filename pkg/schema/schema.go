// Package schema defines the Go struct types for the form-definition
// document produced by the XLSForm compiler, provides strict JSON/YAML
// parsing, and extracts the normalized rule model used for validation.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the top-level form-definition document. It is the
// machine-readable output of the schema compiler: a tree of question
// nodes plus the choice lists referenced by select-type questions.
type Definition struct {
	ID       string              `yaml:"id,omitempty"       json:"id,omitempty"`
	Version  string              `yaml:"version,omitempty"  json:"version,omitempty"`
	Children []Node              `yaml:"children"           json:"children" jsonschema:"required"`
	Choices  map[string][]Choice `yaml:"choices,omitempty"  json:"choices,omitempty"`
}

// Node is one entry in the definition tree. Leaf nodes are questions;
// nodes of type "group" and the reserved "meta" section carry children
// that are flattened into the top-level namespace during extraction.
type Node struct {
	Name     string `yaml:"name"                json:"name"`
	Type     string `yaml:"type"                json:"type"`
	ListName string `yaml:"list_name,omitempty" json:"list_name,omitempty"`
	Label    string `yaml:"label,omitempty"     json:"label,omitempty"`
	Bind     *Bind  `yaml:"bind,omitempty"      json:"bind,omitempty"`
	Children []Node `yaml:"children,omitempty"  json:"children,omitempty"`
}

// Bind holds the per-question binding attributes: the constraint rule,
// its custom violation message, and the required flag.
type Bind struct {
	Constraint    string `yaml:"constraint,omitempty"    json:"constraint,omitempty"`
	ConstraintMsg string `yaml:"constraintMsg,omitempty" json:"constraintMsg,omitempty"`
	Required      string `yaml:"required,omitempty"      json:"required,omitempty"`
}

// IsRequired interprets the required flag. The compiler emits "yes" but
// "true" and the XPath literal "true()" appear in older form exports.
func (b *Bind) IsRequired() bool {
	if b == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(b.Required)) {
	case "yes", "true", "true()":
		return true
	}
	return false
}

// Choice is a single allowed value in a choice list. Name may be a
// string or a number; both must match answers value-insensitively.
type Choice struct {
	Name  any    `yaml:"name"            json:"name" jsonschema:"required"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	Alias string `yaml:"alias,omitempty" json:"alias,omitempty"`
}

// LoadFile reads and parses a form-definition file. The format is chosen
// by extension: .json uses strict JSON, anything else strict YAML.
func LoadFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open form definition: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadJSON(f)
	}
	return Load(f)
}

// Load parses a form definition from YAML with strict unknown-field
// rejection.
func Load(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode form definition: %w", err)
	}
	return &def, nil
}

// LoadJSON parses a form definition from JSON with strict unknown-field
// rejection.
func LoadJSON(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read form definition: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode form definition: %w", err)
	}
	return &def, nil
}
