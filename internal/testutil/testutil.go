// Package testutil has file helpers and a minimal core library for tests that
// build models in code.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/panbanda/iltrim/pkg/metadata"
)

// WriteFile writes content to a file in the real filesystem.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// ReadFile reads content from a file.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return string(data)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CreateFileTree creates multiple files from a map of path -> content.
func CreateFileTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		WriteFile(t, path, content)
	}
}

// Core is a small System.Private.CoreLib with the types and reflection entry
// points scenario tests call into.
type Core struct {
	Assembly *metadata.AssemblyBuilder

	Object      *metadata.TypeBuilder
	ObjectCtor  *metadata.MethodBuilder
	ToString    *metadata.MethodBuilder
	GetTypeCall *metadata.MethodBuilder
	ValueType   *metadata.TypeBuilder
	Enum        *metadata.TypeBuilder

	Type              *metadata.TypeBuilder
	GetType           *metadata.MethodBuilder
	GetTypeFromHandle *metadata.MethodBuilder
	GetMethod         *metadata.MethodBuilder
	GetMethods        *metadata.MethodBuilder
	GetField          *metadata.MethodBuilder
	GetProperty       *metadata.MethodBuilder
	GetEvent          *metadata.MethodBuilder
	GetNestedType     *metadata.MethodBuilder
	GetConstructor    *metadata.MethodBuilder
	GetConstructors   *metadata.MethodBuilder

	Activator           *metadata.TypeBuilder
	CreateInstance      *metadata.MethodBuilder
	CreateInstanceArgs  *metadata.MethodBuilder
	CreateInstanceOfT   *metadata.MethodBuilder
	RunClassConstructor *metadata.MethodBuilder

	NotSupportedCtor *metadata.MethodBuilder
	ExceptionCtor    *metadata.MethodBuilder

	EventSource     *metadata.TypeBuilder
	EventSourceCtor *metadata.MethodBuilder
	ISerializable   *metadata.TypeBuilder
	Marshaler       *metadata.TypeBuilder

	DAMKinds              *metadata.TypeBuilder
	DAMAttribute          *metadata.TypeBuilder
	DynamicDependency     *metadata.TypeBuilder
	RequiresUnreferenced  *metadata.TypeBuilder
	RuntimeTypeHandleType *metadata.TypeBuilder
}

// CoreLibrary adds the core library to b. It must be the first assembly so that
// unscoped references to System types resolve against it.
func CoreLibrary(b *metadata.Builder) *Core {
	c := &Core{Assembly: b.Assembly(metadata.CoreLibrary)}
	asm := c.Assembly
	obj := metadata.ObjectRef()

	c.Object = asm.Class("System", "Object").NoBase()
	c.ObjectCtor = c.Object.Ctor().Body(metadata.Op(metadata.Ret))
	c.ToString = c.Object.Method("ToString", metadata.StringRef()).NewSlot().
		Body(metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret))
	c.ValueType = asm.Class("System", "ValueType").WithFlags(metadata.TypeAbstract)
	c.Enum = asm.Class("System", "Enum").Extends(c.ValueType.Ref()).WithFlags(metadata.TypeAbstract)
	for _, name := range []string{"Void", "Boolean", "Int32", "Int64", "Single", "Double"} {
		asm.Struct("System", name)
	}
	asm.Class("System", "String").WithFlags(metadata.TypeSealed)

	c.RuntimeTypeHandleType = asm.Struct("System", "RuntimeTypeHandle")
	handle := c.RuntimeTypeHandleType.Ref()

	c.Type = asm.Class("System", "Type").WithFlags(metadata.TypeAbstract)
	typ := c.Type.Ref()
	c.GetTypeCall = c.Object.Method("GetType", typ).Body(metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret))
	c.GetType = c.Type.Method("GetType", typ, metadata.StringRef()).Static().Body(metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret))
	c.GetTypeFromHandle = c.Type.Method("GetTypeFromHandle", typ, handle).Static().Body(metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret))

	methodInfo := asm.Class("System.Reflection", "MethodInfo").Ref()
	fieldInfo := asm.Class("System.Reflection", "FieldInfo").Ref()
	propertyInfo := asm.Class("System.Reflection", "PropertyInfo").Ref()
	eventInfo := asm.Class("System.Reflection", "EventInfo").Ref()
	ctorInfo := asm.Class("System.Reflection", "ConstructorInfo").Ref()
	asm.Struct("System.Reflection", "BindingFlags").WithFlags(metadata.TypeEnumFlag)

	lookup := func(name string, ret metadata.TypeRef, params ...metadata.TypeRef) *metadata.MethodBuilder {
		return c.Type.Method(name, ret, params...).Body(metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret))
	}
	c.GetMethod = lookup("GetMethod", methodInfo, metadata.StringRef())
	c.GetMethods = lookup("GetMethods", metadata.ArrayOf(methodInfo, 1))
	c.GetField = lookup("GetField", fieldInfo, metadata.StringRef())
	c.GetProperty = lookup("GetProperty", propertyInfo, metadata.StringRef())
	c.GetEvent = lookup("GetEvent", eventInfo, metadata.StringRef())
	c.GetNestedType = lookup("GetNestedType", typ, metadata.StringRef())
	c.GetConstructor = lookup("GetConstructor", ctorInfo, metadata.ArrayOf(typ, 1))
	c.GetConstructors = lookup("GetConstructors", metadata.ArrayOf(ctorInfo, 1))

	c.Activator = asm.Class("System", "Activator").WithFlags(metadata.TypeAbstract | metadata.TypeSealed)
	c.CreateInstance = c.Activator.Method("CreateInstance", obj, typ).Static().
		Body(metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret))
	c.CreateInstanceArgs = c.Activator.Method("CreateInstance", obj, typ, metadata.ArrayOf(obj, 1)).Static().
		Body(metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret))
	c.CreateInstanceOfT = c.Activator.Method("CreateInstance", metadata.MethodParam(0)).Static().Generic("T").
		Body(metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret))

	helpers := asm.Class("System.Runtime.CompilerServices", "RuntimeHelpers").WithFlags(metadata.TypeAbstract | metadata.TypeSealed)
	c.RunClassConstructor = helpers.Method("RunClassConstructor", metadata.VoidRef(), handle).Static().
		Body(metadata.Op(metadata.Ret))

	exception := asm.Class("System", "Exception")
	c.ExceptionCtor = exception.Ctor(metadata.StringRef()).Body(
		metadata.OpInt(metadata.Ldarg, 0),
		metadata.OpMethod(metadata.Call, c.ObjectCtor.Ref()),
		metadata.Op(metadata.Ret),
	)
	notSupported := asm.Class("System", "NotSupportedException").Extends(exception.Ref())
	c.NotSupportedCtor = notSupported.Ctor(metadata.StringRef()).Body(
		metadata.OpInt(metadata.Ldarg, 0),
		metadata.OpInt(metadata.Ldarg, 1),
		metadata.OpMethod(metadata.Call, c.ExceptionCtor.Ref()),
		metadata.Op(metadata.Ret),
	)

	c.EventSource = asm.Class("System.Diagnostics.Tracing", "EventSource")
	c.EventSourceCtor = c.EventSource.Ctor().Body(
		metadata.OpInt(metadata.Ldarg, 0),
		metadata.OpMethod(metadata.Call, c.ObjectCtor.Ref()),
		metadata.Op(metadata.Ret),
	)
	asm.Struct("System.Runtime.Serialization", "SerializationInfo")
	asm.Struct("System.Runtime.Serialization", "StreamingContext")
	c.ISerializable = asm.Interface("System.Runtime.Serialization", "ISerializable")
	c.Marshaler = asm.Interface("System.Runtime.InteropServices", "ICustomMarshaler")

	attribute := asm.Class("System", "Attribute").WithFlags(metadata.TypeAbstract)
	attrCtor := attribute.Ctor().Body(
		metadata.OpInt(metadata.Ldarg, 0),
		metadata.OpMethod(metadata.Call, c.ObjectCtor.Ref()),
		metadata.Op(metadata.Ret),
	)
	attrClass := func(ns, name string, params ...metadata.TypeRef) *metadata.TypeBuilder {
		tb := asm.Class(ns, name).Extends(attribute.Ref()).WithFlags(metadata.TypeSealed)
		tb.Ctor(params...).Body(
			metadata.OpInt(metadata.Ldarg, 0),
			metadata.OpMethod(metadata.Call, attrCtor.Ref()),
			metadata.Op(metadata.Ret),
		)
		return tb
	}
	c.DAMKinds = asm.Struct("System.Diagnostics.CodeAnalysis", "DynamicallyAccessedMemberTypes").WithFlags(metadata.TypeEnumFlag)
	c.DAMAttribute = attrClass("System.Diagnostics.CodeAnalysis", "DynamicallyAccessedMembersAttribute", c.DAMKinds.Ref())
	c.DynamicDependency = attrClass("System.Diagnostics.CodeAnalysis", "DynamicDependencyAttribute", metadata.StringRef())
	c.DynamicDependency.Ctor(metadata.StringRef(), typ)
	c.DynamicDependency.Ctor(metadata.StringRef(), metadata.StringRef(), metadata.StringRef())
	c.DynamicDependency.Ctor(c.DAMKinds.Ref(), typ)
	c.RequiresUnreferenced = attrClass("System.Diagnostics.CodeAnalysis", "RequiresUnreferencedCodeAttribute", metadata.StringRef())
	return c
}

// DAM builds a DynamicallyAccessedMembers attribute with the given member kinds.
func DAM(kinds int64) metadata.CustomAttribute {
	return metadata.NewAttribute(
		metadata.Named(metadata.CoreLibrary, metadata.TypeDynamicallyAccessed),
		metadata.IntArg(metadata.Named(metadata.CoreLibrary, metadata.TypeDynamicallyAccessedKind), kinds),
	)
}

// RequiresUnreferencedCode builds the attribute with message.
func RequiresUnreferencedCode(message string) metadata.CustomAttribute {
	return metadata.NewAttribute(
		metadata.Named(metadata.CoreLibrary, metadata.TypeRequiresUnreferenced),
		metadata.StringArg(message),
	)
}

// BuildModel builds b and fails the test on error.
func BuildModel(t *testing.T, b *metadata.Builder) *metadata.Model {
	t.Helper()
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return m
}
