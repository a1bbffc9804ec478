package reflection

import "github.com/panbanda/iltrim/pkg/metadata"

// intrinsic identifies a reflection entry point the recognizer understands.
type intrinsic uint8

const (
	intrinsicNone intrinsic = iota
	intrinsicTypeGetType
	intrinsicGetTypeFromHandle
	intrinsicObjectGetType
	intrinsicCreateInstance
	intrinsicCreateInstanceArgs
	intrinsicCreateInstanceGeneric
	intrinsicCreateInstanceByName
	intrinsicGetMethod
	intrinsicGetField
	intrinsicGetProperty
	intrinsicGetEvent
	intrinsicGetNestedType
	intrinsicGetConstructor
	intrinsicGetConstructors
	intrinsicGetMethods
	intrinsicGetFields
	intrinsicGetProperties
	intrinsicGetEvents
	intrinsicRunClassConstructor
	intrinsicExpressionCall
	intrinsicExpressionProperty
	intrinsicExpressionField
)

var intrinsicNames = map[intrinsic]string{
	intrinsicTypeGetType:           "Type.GetType",
	intrinsicGetTypeFromHandle:     "Type.GetTypeFromHandle",
	intrinsicObjectGetType:         "Object.GetType",
	intrinsicCreateInstance:        "Activator.CreateInstance",
	intrinsicCreateInstanceArgs:    "Activator.CreateInstance",
	intrinsicCreateInstanceGeneric: "Activator.CreateInstance<T>",
	intrinsicCreateInstanceByName:  "Activator.CreateInstance",
	intrinsicGetMethod:             "Type.GetMethod",
	intrinsicGetField:              "Type.GetField",
	intrinsicGetProperty:           "Type.GetProperty",
	intrinsicGetEvent:              "Type.GetEvent",
	intrinsicGetNestedType:         "Type.GetNestedType",
	intrinsicGetConstructor:        "Type.GetConstructor",
	intrinsicGetConstructors:       "Type.GetConstructors",
	intrinsicGetMethods:            "Type.GetMethods",
	intrinsicGetFields:             "Type.GetFields",
	intrinsicGetProperties:         "Type.GetProperties",
	intrinsicGetEvents:             "Type.GetEvents",
	intrinsicRunClassConstructor:   "RuntimeHelpers.RunClassConstructor",
	intrinsicExpressionCall:        "Expression.Call",
	intrinsicExpressionProperty:    "Expression.Property",
	intrinsicExpressionField:       "Expression.Field",
}

func (i intrinsic) String() string { return intrinsicNames[i] }

type shape func(ref metadata.MethodRef) bool

type entry struct {
	declaring string
	name      string
	match     shape
	id        intrinsic
}

// catalogue lists the recognized entry points. Entries with the same declaring
// type and name are tried in order; the first matching shape wins.
var catalogue = []entry{
	{metadata.TypeType, "GetType", typeNameLookup, intrinsicTypeGetType},
	{metadata.TypeType, "GetTypeFromHandle", params(metadata.TypeRuntimeTypeHandle), intrinsicGetTypeFromHandle},
	{metadata.TypeObject, "GetType", params(), intrinsicObjectGetType},
	{metadata.TypeActivator, "CreateInstance", genericNoArgs, intrinsicCreateInstanceGeneric},
	{metadata.TypeActivator, "CreateInstance", params(metadata.TypeType), intrinsicCreateInstance},
	{metadata.TypeActivator, "CreateInstance", params(metadata.TypeType, metadata.TypeBoolean), intrinsicCreateInstance},
	{metadata.TypeActivator, "CreateInstance", params(metadata.TypeString, metadata.TypeString), intrinsicCreateInstanceByName},
	{metadata.TypeActivator, "CreateInstance", firstParam(metadata.TypeType), intrinsicCreateInstanceArgs},
	{metadata.TypeType, "GetMethod", firstParam(metadata.TypeString), intrinsicGetMethod},
	{metadata.TypeType, "GetField", firstParam(metadata.TypeString), intrinsicGetField},
	{metadata.TypeType, "GetProperty", firstParam(metadata.TypeString), intrinsicGetProperty},
	{metadata.TypeType, "GetEvent", firstParam(metadata.TypeString), intrinsicGetEvent},
	{metadata.TypeType, "GetNestedType", firstParam(metadata.TypeString), intrinsicGetNestedType},
	{metadata.TypeType, "GetConstructor", anyShape, intrinsicGetConstructor},
	{metadata.TypeType, "GetConstructors", anyShape, intrinsicGetConstructors},
	{metadata.TypeType, "GetMethods", anyShape, intrinsicGetMethods},
	{metadata.TypeType, "GetFields", anyShape, intrinsicGetFields},
	{metadata.TypeType, "GetProperties", anyShape, intrinsicGetProperties},
	{metadata.TypeType, "GetEvents", anyShape, intrinsicGetEvents},
	{metadata.TypeRuntimeHelpers, "RunClassConstructor", params(metadata.TypeRuntimeTypeHandle), intrinsicRunClassConstructor},
	{metadata.TypeExpression, "Call", paramsPrefix(metadata.TypeType, metadata.TypeString), intrinsicExpressionCall},
	{metadata.TypeExpression, "Property", paramsPrefix(metadata.TypeExpression, metadata.TypeType, metadata.TypeString), intrinsicExpressionProperty},
	{metadata.TypeExpression, "Field", paramsPrefix(metadata.TypeExpression, metadata.TypeType, metadata.TypeString), intrinsicExpressionField},
}

// lookupIntrinsic classifies a call target.
func lookupIntrinsic(ref metadata.MethodRef) intrinsic {
	def, ok := ref.DeclaringType.Definition()
	if !ok {
		return intrinsicNone
	}
	for _, e := range catalogue {
		if e.declaring == def.Name && e.name == ref.Name && e.match(ref) {
			return e.id
		}
	}
	return intrinsicNone
}

func anyShape(metadata.MethodRef) bool { return true }

func params(names ...string) shape {
	return func(ref metadata.MethodRef) bool {
		return ref.GenericArity == 0 && len(ref.Parameters) == len(names) && prefixMatches(ref, names)
	}
}

func paramsPrefix(names ...string) shape {
	return func(ref metadata.MethodRef) bool {
		return ref.GenericArity == 0 && len(ref.Parameters) >= len(names) && prefixMatches(ref, names)
	}
}

func firstParam(name string) shape {
	return paramsPrefix(name)
}

func prefixMatches(ref metadata.MethodRef, names []string) bool {
	for i, n := range names {
		if !ref.Parameters[i].Is(n) {
			return false
		}
	}
	return true
}

// typeNameLookup matches GetType(string), GetType(string, bool) and
// GetType(string, bool, bool).
func typeNameLookup(ref metadata.MethodRef) bool {
	if ref.GenericArity != 0 || len(ref.Parameters) < 1 || len(ref.Parameters) > 3 {
		return false
	}
	if !ref.Parameters[0].Is(metadata.TypeString) {
		return false
	}
	for _, p := range ref.Parameters[1:] {
		if !p.Is(metadata.TypeBoolean) {
			return false
		}
	}
	return true
}

func genericNoArgs(ref metadata.MethodRef) bool {
	return ref.GenericArity == 1 && len(ref.Parameters) == 0
}
