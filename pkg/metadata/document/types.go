// Package document reads and writes assembly documents: the textual YAML or JSON
// projection of an assembly that iltrim links. One document describes one assembly.
package document

// Document is one assembly.
type Document struct {
	Name       string         `yaml:"name" json:"name"`
	References []string       `yaml:"references,omitempty" json:"references,omitempty"`
	EntryPoint *MethodRef     `yaml:"entry_point,omitempty" json:"entry_point,omitempty"`
	Attributes []Attribute    `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Forwarders []Forwarder    `yaml:"forwarders,omitempty" json:"forwarders,omitempty"`
	Types      []TypeDocument `yaml:"types,omitempty" json:"types,omitempty"`
}

// Forwarder is an exported type entry.
type Forwarder struct {
	Type   string `yaml:"type" json:"type"`
	Target string `yaml:"target" json:"target"`
}

// TypeDocument is a type definition with its members and nested types.
type TypeDocument struct {
	Namespace     string           `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Name          string           `yaml:"name" json:"name"`
	Visibility    string           `yaml:"visibility,omitempty" json:"visibility,omitempty"`
	Flags         []string         `yaml:"flags,omitempty" json:"flags,omitempty"`
	Base          string           `yaml:"base,omitempty" json:"base,omitempty"`
	Interfaces    []Interface      `yaml:"interfaces,omitempty" json:"interfaces,omitempty"`
	GenericParams []GenericParam   `yaml:"generic_params,omitempty" json:"generic_params,omitempty"`
	Attributes    []Attribute      `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Nested        []TypeDocument   `yaml:"nested,omitempty" json:"nested,omitempty"`
	Fields        []FieldDocument  `yaml:"fields,omitempty" json:"fields,omitempty"`
	Methods       []MethodDocument `yaml:"methods,omitempty" json:"methods,omitempty"`
	Properties    []Property       `yaml:"properties,omitempty" json:"properties,omitempty"`
	Events        []Event          `yaml:"events,omitempty" json:"events,omitempty"`
}

// Interface is an interface implementation edge.
type Interface struct {
	Type       string      `yaml:"type" json:"type"`
	Attributes []Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// GenericParam is a generic parameter declaration.
type GenericParam struct {
	Name          string      `yaml:"name" json:"name"`
	Constraints   []string    `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	DefaultCtor   bool        `yaml:"default_ctor,omitempty" json:"default_ctor,omitempty"`
	ReferenceType bool        `yaml:"reference_type,omitempty" json:"reference_type,omitempty"`
	Attributes    []Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// FieldDocument is a field definition.
type FieldDocument struct {
	Name       string      `yaml:"name" json:"name"`
	Type       string      `yaml:"type" json:"type"`
	Visibility string      `yaml:"visibility,omitempty" json:"visibility,omitempty"`
	Flags      []string    `yaml:"flags,omitempty" json:"flags,omitempty"`
	Attributes []Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// MethodDocument is a method definition.
type MethodDocument struct {
	Name             string         `yaml:"name" json:"name"`
	Visibility       string         `yaml:"visibility,omitempty" json:"visibility,omitempty"`
	Flags            []string       `yaml:"flags,omitempty" json:"flags,omitempty"`
	Impl             []string       `yaml:"impl,omitempty" json:"impl,omitempty"`
	Returns          string         `yaml:"returns,omitempty" json:"returns,omitempty"`
	Params           []Param        `yaml:"params,omitempty" json:"params,omitempty"`
	ReturnAttributes []Attribute    `yaml:"return_attributes,omitempty" json:"return_attributes,omitempty"`
	GenericParams    []GenericParam `yaml:"generic_params,omitempty" json:"generic_params,omitempty"`
	Overrides        []MethodRef    `yaml:"overrides,omitempty" json:"overrides,omitempty"`
	Attributes       []Attribute    `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Body             *Body          `yaml:"body,omitempty" json:"body,omitempty"`
}

// Param is a method parameter.
type Param struct {
	Name       string      `yaml:"name,omitempty" json:"name,omitempty"`
	Type       string      `yaml:"type" json:"type"`
	Attributes []Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// Property names its accessors by method name within the declaring type.
type Property struct {
	Name       string      `yaml:"name" json:"name"`
	Type       string      `yaml:"type" json:"type"`
	Getter     string      `yaml:"getter,omitempty" json:"getter,omitempty"`
	Setter     string      `yaml:"setter,omitempty" json:"setter,omitempty"`
	Attributes []Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// Event names its accessors by method name within the declaring type.
type Event struct {
	Name       string      `yaml:"name" json:"name"`
	Type       string      `yaml:"type" json:"type"`
	Add        string      `yaml:"add,omitempty" json:"add,omitempty"`
	Remove     string      `yaml:"remove,omitempty" json:"remove,omitempty"`
	Attributes []Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// MethodRef references a method. Parameter and return types use the generic
// parameters of the definition (!n, !!n).
type MethodRef struct {
	Type          string   `yaml:"type" json:"type"`
	Name          string   `yaml:"name" json:"name"`
	Params        []string `yaml:"params,omitempty" json:"params,omitempty"`
	Returns       string   `yaml:"returns,omitempty" json:"returns,omitempty"`
	Arity         int      `yaml:"arity,omitempty" json:"arity,omitempty"`
	Instantiation []string `yaml:"instantiation,omitempty" json:"instantiation,omitempty"`
}

// FieldRef references a field.
type FieldRef struct {
	Type      string `yaml:"type" json:"type"`
	Name      string `yaml:"name" json:"name"`
	FieldType string `yaml:"field_type" json:"field_type"`
}

// Body is a method implementation.
type Body struct {
	Locals       []string      `yaml:"locals,omitempty" json:"locals,omitempty"`
	InitLocals   bool          `yaml:"init_locals,omitempty" json:"init_locals,omitempty"`
	Instructions []Instruction `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	Handlers     []Handler     `yaml:"handlers,omitempty" json:"handlers,omitempty"`
	Debug        *Debug        `yaml:"debug,omitempty" json:"debug,omitempty"`
}

// Instruction is one IL instruction; which operand is set depends on the opcode.
type Instruction struct {
	Op      string     `yaml:"op" json:"op"`
	Int     *int64     `yaml:"int,omitempty" json:"int,omitempty"`
	Float   *float64   `yaml:"float,omitempty" json:"float,omitempty"`
	String  *string    `yaml:"string,omitempty" json:"string,omitempty"`
	Type    string     `yaml:"type,omitempty" json:"type,omitempty"`
	Method  *MethodRef `yaml:"method,omitempty" json:"method,omitempty"`
	Field   *FieldRef  `yaml:"field,omitempty" json:"field,omitempty"`
	Target  *int       `yaml:"target,omitempty" json:"target,omitempty"`
	Targets []int      `yaml:"targets,omitempty" json:"targets,omitempty"`
}

// Handler is an exception handling clause over instruction indices.
type Handler struct {
	Kind         string `yaml:"kind" json:"kind"`
	TryStart     int    `yaml:"try_start" json:"try_start"`
	TryEnd       int    `yaml:"try_end" json:"try_end"`
	HandlerStart int    `yaml:"handler_start" json:"handler_start"`
	HandlerEnd   int    `yaml:"handler_end" json:"handler_end"`
	FilterStart  int    `yaml:"filter_start,omitempty" json:"filter_start,omitempty"`
	CatchType    string `yaml:"catch_type,omitempty" json:"catch_type,omitempty"`
}

// Debug is symbol information.
type Debug struct {
	SequencePoints []SequencePoint `yaml:"sequence_points,omitempty" json:"sequence_points,omitempty"`
	Scopes         []Scope         `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// SequencePoint maps an instruction to a source line.
type SequencePoint struct {
	Offset   int    `yaml:"offset" json:"offset"`
	Document string `yaml:"document,omitempty" json:"document,omitempty"`
	Line     int    `yaml:"line" json:"line"`
}

// Scope lists local variable names over an instruction range.
type Scope struct {
	Start     int      `yaml:"start" json:"start"`
	End       int      `yaml:"end" json:"end"`
	Variables []string `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// Attribute is a custom attribute. The constructor signature is the list of
// argument types.
type Attribute struct {
	Type  string     `yaml:"type" json:"type"`
	Args  []Arg      `yaml:"args,omitempty" json:"args,omitempty"`
	Named []NamedArg `yaml:"named,omitempty" json:"named,omitempty"`
}

// Arg is a typed attribute argument. Values are strings for System.String and
// System.Type, booleans, integers for integral and enum types, lists for arrays, or null.
type Arg struct {
	Type  string `yaml:"type" json:"type"`
	Value any    `yaml:"value" json:"value"`
}

// NamedArg assigns a property or field of the attribute.
type NamedArg struct {
	Name  string `yaml:"name" json:"name"`
	Field bool   `yaml:"field,omitempty" json:"field,omitempty"`
	Type  string `yaml:"type" json:"type"`
	Value any    `yaml:"value" json:"value"`
}
