// Package descriptor turns external preservation requests into obligations the
// mark engine consumes: root assemblies, descriptor manifests and annotations
// carried by custom attributes.
package descriptor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Position is a location inside a manifest.
type Position struct {
	Line   int
	Column int
}

// Manifest is one descriptor file. JSON manifests are read as YAML.
type Manifest struct {
	Assemblies []AssemblyEntry `yaml:"assemblies"`

	// Source names the file the manifest came from.
	Source string `yaml:"-"`
}

// AssemblyEntry requests an action or preservation for one assembly.
type AssemblyEntry struct {
	Name     string      `yaml:"name"`
	Action   string      `yaml:"action,omitempty"`
	Preserve string      `yaml:"preserve,omitempty"`
	Types    []TypeEntry `yaml:"types,omitempty"`

	Pos Position `yaml:"-"`
}

// TypeEntry keeps a type and some or all of its members. A type listed without
// preserve and without members keeps everything.
type TypeEntry struct {
	Name        string             `yaml:"name"`
	Preserve    string             `yaml:"preserve,omitempty"`
	Required    *bool              `yaml:"required,omitempty"`
	Methods     []MemberEntry      `yaml:"methods,omitempty"`
	Fields      []MemberEntry      `yaml:"fields,omitempty"`
	Properties  []MemberEntry      `yaml:"properties,omitempty"`
	Events      []MemberEntry      `yaml:"events,omitempty"`
	Nested      []TypeEntry        `yaml:"nested,omitempty"`
	Bodies      []BodySubstitution `yaml:"bodies,omitempty"`
	FieldValues []FieldValue       `yaml:"field_values,omitempty"`

	Pos Position `yaml:"-"`
}

// MemberEntry names a member by name or by "Name(ParamType,...)" signature.
type MemberEntry struct {
	Signature string
	Pos       Position
}

// BodySubstitution replaces the body of the methods matching Method.
type BodySubstitution struct {
	Method string `yaml:"method"`
	Action string `yaml:"action"`
	Value  any    `yaml:"value,omitempty"`

	Pos Position `yaml:"-"`
}

// FieldValue substitutes the value of a static field.
type FieldValue struct {
	Field string `yaml:"field"`
	Value any    `yaml:"value"`

	Pos Position `yaml:"-"`
}

// IsRequired reports whether the type is kept even when nothing else uses it.
func (t *TypeEntry) IsRequired() bool {
	return t.Required == nil || *t.Required
}

func (e *AssemblyEntry) UnmarshalYAML(n *yaml.Node) error {
	type plain AssemblyEntry
	if err := n.Decode((*plain)(e)); err != nil {
		return err
	}
	e.Pos = Position{Line: n.Line, Column: n.Column}
	return nil
}

func (t *TypeEntry) UnmarshalYAML(n *yaml.Node) error {
	type plain TypeEntry
	if err := n.Decode((*plain)(t)); err != nil {
		return err
	}
	t.Pos = Position{Line: n.Line, Column: n.Column}
	return nil
}

// UnmarshalYAML accepts a bare string or a mapping with a signature key.
func (m *MemberEntry) UnmarshalYAML(n *yaml.Node) error {
	m.Pos = Position{Line: n.Line, Column: n.Column}
	if n.Kind == yaml.ScalarNode {
		return n.Decode(&m.Signature)
	}
	var v struct {
		Signature string `yaml:"signature"`
	}
	if err := n.Decode(&v); err != nil {
		return err
	}
	m.Signature = v.Signature
	return nil
}

func (b *BodySubstitution) UnmarshalYAML(n *yaml.Node) error {
	type plain BodySubstitution
	if err := n.Decode((*plain)(b)); err != nil {
		return err
	}
	b.Pos = Position{Line: n.Line, Column: n.Column}
	return nil
}

func (f *FieldValue) UnmarshalYAML(n *yaml.Node) error {
	type plain FieldValue
	if err := n.Decode((*plain)(f)); err != nil {
		return err
	}
	f.Pos = Position{Line: n.Line, Column: n.Column}
	return nil
}

// Parse decodes a manifest. source is used in locations.
func Parse(content []byte, source string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	m.Source = source
	return &m, nil
}

// LoadFile reads and decodes the manifest at path.
func LoadFile(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(content, path)
}

// Location renders pos inside the manifest.
func (m *Manifest) Location(pos Position) string {
	if pos.Line == 0 {
		return m.Source
	}
	return fmt.Sprintf("%s:%d:%d", m.Source, pos.Line, pos.Column)
}
