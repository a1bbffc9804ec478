package annotations

import (
	"fmt"
	"strings"
)

// AssemblyAction decides what happens to an assembly in the output.
type AssemblyAction uint8

const (
	// ActionUnset means no action was assigned yet.
	ActionUnset AssemblyAction = iota
	// ActionSkip leaves the assembly untouched and out of the walk.
	ActionSkip
	// ActionCopy keeps the assembly whole.
	ActionCopy
	// ActionCopyUsed keeps the assembly whole once anything in it is used.
	ActionCopyUsed
	// ActionLink trims the assembly to its marked entities.
	ActionLink
	// ActionDelete drops the assembly.
	ActionDelete
	// ActionSave keeps the assembly whole and rewrites it.
	ActionSave
	// ActionAddBypassNGen is Copy with native image generation disabled.
	ActionAddBypassNGen
	// ActionAddBypassNGenUsed is CopyUsed with native image generation disabled.
	ActionAddBypassNGenUsed
)

var assemblyActionNames = [...]string{
	ActionUnset:             "",
	ActionSkip:              "skip",
	ActionCopy:              "copy",
	ActionCopyUsed:          "copyused",
	ActionLink:              "link",
	ActionDelete:            "delete",
	ActionSave:              "save",
	ActionAddBypassNGen:     "addbypassngen",
	ActionAddBypassNGenUsed: "addbypassngenused",
}

func (a AssemblyAction) String() string {
	if int(a) < len(assemblyActionNames) {
		if a == ActionUnset {
			return "unset"
		}
		return assemblyActionNames[a]
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// ParseAssemblyAction parses an action name case-insensitively.
func ParseAssemblyAction(s string) (AssemblyAction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range assemblyActionNames {
		if n != "" && n == name {
			return AssemblyAction(i), nil
		}
	}
	return ActionUnset, fmt.Errorf("unknown assembly action %q", s)
}

// KeepsWhole reports whether the action marks every entity of the assembly.
func (a AssemblyAction) KeepsWhole() bool {
	return a == ActionCopy || a == ActionSave || a == ActionAddBypassNGen
}

// KeepsWholeWhenUsed reports whether the action marks every entity once one is used.
func (a AssemblyAction) KeepsWholeWhenUsed() bool {
	return a == ActionCopyUsed || a == ActionAddBypassNGenUsed
}

// MethodAction is a pending body rewrite for a method.
type MethodAction uint8

const (
	MethodNone MethodAction = iota
	MethodConvertToStub
	MethodConvertToThrow
	MethodConvertToThrowNull
	MethodConvertToReturn
	MethodDelete
)

var methodActionNames = [...]string{
	MethodNone:               "none",
	MethodConvertToStub:      "stub",
	MethodConvertToThrow:     "throw",
	MethodConvertToThrowNull: "thrownull",
	MethodConvertToReturn:    "return",
	MethodDelete:             "remove",
}

func (a MethodAction) String() string {
	if int(a) < len(methodActionNames) {
		return methodActionNames[a]
	}
	return fmt.Sprintf("method-action(%d)", uint8(a))
}

// ParseMethodAction parses a body substitution name.
func ParseMethodAction(s string) (MethodAction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range methodActionNames {
		if n == name {
			return MethodAction(i), nil
		}
	}
	return MethodNone, fmt.Errorf("unknown method action %q", s)
}

// RewritesBody reports whether the action replaces the body while keeping the method.
func (a MethodAction) RewritesBody() bool {
	switch a {
	case MethodConvertToStub, MethodConvertToThrow, MethodConvertToThrowNull, MethodConvertToReturn:
		return true
	default:
		return false
	}
}
