package linker

import (
	"fmt"

	"github.com/panbanda/iltrim/pkg/metadata"
)

// ReasonKind classifies why an entity was marked.
type ReasonKind uint8

const (
	ReasonUnknown ReasonKind = iota
	ReasonRoot
	ReasonEntryPoint
	ReasonDescriptor
	ReasonRootAttribute
	ReasonDynamicDependency
	ReasonCall
	ReasonFieldAccess
	ReasonTypeReference
	ReasonBaseType
	ReasonInterface
	ReasonOverride
	ReasonDeclaringType
	ReasonStaticConstructor
	ReasonAccessor
	ReasonMemberOfProperty
	ReasonCustomAttribute
	ReasonReflection
	ReasonPreserve
	ReasonInstantiation
	ReasonCopyAssembly
	ReasonGenericArgument
	ReasonRewrite
	ReasonDynamicallyAccessed
	ReasonPattern
	ReasonSignature
	ReasonForwarder
)

var reasonNames = [...]string{
	ReasonUnknown:             "unknown",
	ReasonRoot:                "root",
	ReasonEntryPoint:          "entry-point",
	ReasonDescriptor:          "descriptor",
	ReasonRootAttribute:       "root-attribute",
	ReasonDynamicDependency:   "dynamic-dependency",
	ReasonCall:                "call",
	ReasonFieldAccess:         "field-access",
	ReasonTypeReference:       "type-reference",
	ReasonBaseType:            "base-type",
	ReasonInterface:           "interface",
	ReasonOverride:            "override",
	ReasonDeclaringType:       "declaring-type",
	ReasonStaticConstructor:   "static-constructor",
	ReasonAccessor:            "accessor",
	ReasonMemberOfProperty:    "property-member",
	ReasonCustomAttribute:     "custom-attribute",
	ReasonReflection:          "reflection",
	ReasonPreserve:            "preserve",
	ReasonInstantiation:       "instantiation",
	ReasonCopyAssembly:        "copy-assembly",
	ReasonGenericArgument:     "generic-argument",
	ReasonRewrite:             "rewrite",
	ReasonDynamicallyAccessed: "dynamically-accessed",
	ReasonPattern:             "pattern",
	ReasonSignature:           "signature",
	ReasonForwarder:           "forwarder",
}

func (k ReasonKind) String() string {
	if int(k) < len(reasonNames) {
		return reasonNames[k]
	}
	return fmt.Sprintf("reason(%d)", uint8(k))
}

// Reason travels with every mark request. Source is the entity whose processing
// produced the edge, or a string naming an external origin such as a descriptor
// location.
type Reason struct {
	Kind   ReasonKind
	Source any
}

// Because builds a reason with an entity source.
func Because(kind ReasonKind, source metadata.Entity) Reason {
	return Reason{Kind: kind, Source: source}
}

// External builds a reason whose source is not an entity.
func External(kind ReasonKind, origin string) Reason {
	return Reason{Kind: kind, Source: origin}
}

// SourceEntity returns the entity source of r, if any.
func (r Reason) SourceEntity() (metadata.Entity, bool) {
	e, ok := r.Source.(metadata.Entity)
	return e, ok && e.IsValid()
}
