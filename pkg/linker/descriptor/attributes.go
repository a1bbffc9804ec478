package descriptor

import (
	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/linker/reflection"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// scanAttributes reads the annotations carried by custom attributes: dynamically
// accessed member kinds, requires-unreferenced-code messages, dynamic
// dependencies and root markers. Assemblies and types are visited in load and
// declaration order.
func (r *Resolver) scanAttributes() {
	for i := range r.model.Assemblies {
		id := metadata.AssemblyID(i)
		if r.store.GetAction(id) == annotations.ActionDelete {
			continue
		}
		for _, t := range r.model.AllTypes(id) {
			r.scanType(t)
		}
	}
}

func (r *Resolver) scanType(t metadata.TypeID) {
	td := r.model.Type(t)
	ent := metadata.TypeEntity(t)
	for _, ca := range td.Attributes {
		switch {
		case ca.IsType(metadata.TypeDynamicallyAccessed):
			if dam, ok := r.damValue(ent, ca); ok {
				r.store.SetTypeDAM(t, dam)
			}
		case r.matchesRootAttribute(describe(ca)):
			r.rootMarker(ent, ca)
		}
	}
	r.scanGenericParameters(ent, td.GenericParameters)

	for _, m := range td.Methods {
		r.scanMethod(m)
	}
	for _, f := range td.Fields {
		r.scanField(f)
	}
	for _, p := range td.Properties {
		r.scanRootMarkers(metadata.PropertyEntity(p), r.model.Property(p).Attributes)
	}
	for _, ev := range td.Events {
		r.scanRootMarkers(metadata.EventEntity(ev), r.model.Event(ev).Attributes)
	}
}

func (r *Resolver) scanMethod(id metadata.MethodID) {
	md := r.model.Method(id)
	ent := metadata.MethodEntity(id)
	for _, ca := range md.Attributes {
		switch {
		case ca.IsType(metadata.TypeRequiresUnreferenced):
			msg := ""
			if len(ca.Args) > 0 && ca.Args[0].Kind == metadata.ArgString {
				msg = ca.Args[0].Str
			}
			r.store.SetRequiresUnreferencedCode(id, msg)
		case ca.IsType(metadata.TypeDynamicDependency):
			r.dynamicDependency(ent, ca)
		case r.matchesRootAttribute(describe(ca)):
			r.rootMarker(ent, ca)
		}
	}
	for i, p := range md.Parameters {
		for _, ca := range p.Attributes {
			if !ca.IsType(metadata.TypeDynamicallyAccessed) {
				continue
			}
			if dam, ok := r.damValue(ent, ca); ok {
				r.store.SetParamDAM(annotations.ParamRef{Method: id, Index: i}, dam)
			}
		}
	}
	for _, ca := range md.ReturnAttributes {
		if !ca.IsType(metadata.TypeDynamicallyAccessed) {
			continue
		}
		if dam, ok := r.damValue(ent, ca); ok {
			r.store.SetReturnDAM(id, dam)
		}
	}
	r.scanGenericParameters(ent, md.GenericParameters)
}

func (r *Resolver) scanField(id metadata.FieldID) {
	fd := r.model.Field(id)
	ent := metadata.FieldEntity(id)
	for _, ca := range fd.Attributes {
		switch {
		case ca.IsType(metadata.TypeDynamicallyAccessed):
			if dam, ok := r.damValue(ent, ca); ok {
				r.store.SetFieldDAM(id, dam)
			}
		case ca.IsType(metadata.TypeDynamicDependency):
			r.dynamicDependency(ent, ca)
		case r.matchesRootAttribute(describe(ca)):
			r.rootMarker(ent, ca)
		}
	}
}

func (r *Resolver) scanGenericParameters(owner metadata.Entity, params []metadata.GenericParameter) {
	for i, gp := range params {
		for _, ca := range gp.Attributes {
			if !ca.IsType(metadata.TypeDynamicallyAccessed) {
				continue
			}
			if dam, ok := r.damValue(owner, ca); ok {
				r.store.SetGenericParamDAM(annotations.GenericParamRef{Owner: owner, Position: i}, dam)
			}
		}
	}
}

func (r *Resolver) scanRootMarkers(ent metadata.Entity, attrs []metadata.CustomAttribute) {
	for _, ca := range attrs {
		if r.matchesRootAttribute(describe(ca)) {
			r.rootMarker(ent, ca)
		}
	}
}

// damValue reads the member kinds of a DynamicallyAccessedMembers attribute.
func (r *Resolver) damValue(owner metadata.Entity, ca metadata.CustomAttribute) (annotations.DAMTypes, bool) {
	if len(ca.Args) != 1 || ca.Args[0].Kind != metadata.ArgInt {
		r.warn(diagnostic.CodeDescriptorInvalidValue, r.ctx.Origin(owner), "DynamicallyAccessedMembers expects one member kinds argument")
		return annotations.DAMNone, false
	}
	return annotations.DAMTypes(int32(ca.Args[0].Int)), true
}

// rootMarker roots an entity carrying a root marker attribute. On a type an
// optional string argument selects what else to keep: fields, methods or all.
func (r *Resolver) rootMarker(ent metadata.Entity, ca metadata.CustomAttribute) {
	origin := r.ctx.Origin(ent)
	if len(ca.Args) > 1 {
		r.warn(diagnostic.CodeRootAttributeMalformed, origin, "%s takes at most one argument", describe(ca))
		return
	}
	if len(ca.Args) == 1 {
		arg := ca.Args[0]
		if arg.Kind != metadata.ArgString || ent.Kind != metadata.KindType {
			r.warn(diagnostic.CodeRootAttributeMalformed, origin, "%s argument must be a preserve kind on a type", describe(ca))
			return
		}
		kind, err := annotations.ParsePreserveKind(arg.Str)
		if err != nil {
			r.warn(diagnostic.CodeRootAttributeMalformed, origin, "%v", err)
			return
		}
		r.store.SetPreserve(metadata.TypeID(ent.ID), kind)
	}
	r.ctx.AddRoot(ent, linker.External(linker.ReasonRootAttribute, describe(ca)))
}

// dynamicDependency records the targets of a DynamicDependency attribute as
// dependencies of its owner. The accepted forms are
//
//	(string memberSignature)
//	(string memberSignature, Type type)
//	(string memberSignature, string typeName, string assemblyName)
//	(DynamicallyAccessedMemberTypes kinds, Type type)
//	(DynamicallyAccessedMemberTypes kinds, string typeName, string assemblyName)
func (r *Resolver) dynamicDependency(owner metadata.Entity, ca metadata.CustomAttribute) {
	origin := r.ctx.Origin(owner)
	args := ca.Args
	if len(args) == 0 || (args[0].Kind != metadata.ArgString && args[0].Kind != metadata.ArgInt) {
		r.warn(diagnostic.CodeDynamicDependencyMalformed, origin, "DynamicDependency needs a member signature or member kinds")
		return
	}

	var target metadata.TypeID
	var ok bool
	switch {
	case len(args) == 1 && args[0].Kind == metadata.ArgString:
		target, ok = r.model.DeclaringTypeOf(owner), true
	case len(args) == 2 && args[1].Kind == metadata.ArgType:
		target, ok = r.model.ResolveType(*args[1].Typ)
	case len(args) == 3 && args[1].Kind == metadata.ArgString && args[2].Kind == metadata.ArgString:
		target, ok = reflection.ResolveTypeName(r.model, args[1].Str, args[2].Str)
	default:
		r.warn(diagnostic.CodeDynamicDependencyMalformed, origin, "unsupported DynamicDependency argument shape")
		return
	}
	if !ok {
		r.warn(diagnostic.CodeDynamicDependencyUnresolved, origin, "DynamicDependency target type could not be resolved")
		return
	}

	var members []metadata.Entity
	if args[0].Kind == metadata.ArgInt {
		members = reflection.Members(r.model, target, annotations.DAMTypes(int32(args[0].Int)))
	} else {
		sig, err := parseSignature(args[0].Str)
		if err != nil {
			r.warn(diagnostic.CodeDynamicDependencyMalformed, origin, "%v", err)
			return
		}
		members = sig.members(r.model, target)
		if len(members) == 0 {
			r.warn(diagnostic.CodeDynamicDependencyUnresolved, origin, "no member %s on %s", args[0].Str, r.model.Type(target).FullName)
			return
		}
	}
	r.store.AddDependency(owner, metadata.TypeEntity(target))
	for _, m := range members {
		r.store.AddDependency(owner, m)
	}
}
