package metadata

// Full names of core library types the linker treats specially.
const (
	TypeObject                  = "System.Object"
	TypeValueType               = "System.ValueType"
	TypeEnum                    = "System.Enum"
	TypeVoid                    = "System.Void"
	TypeBoolean                 = "System.Boolean"
	TypeString                  = "System.String"
	TypeInt32                   = "System.Int32"
	TypeInt64                   = "System.Int64"
	TypeSingle                  = "System.Single"
	TypeDouble                  = "System.Double"
	TypeType                    = "System.Type"
	TypeDelegate                = "System.Delegate"
	TypeMulticastDelegate       = "System.MulticastDelegate"
	TypeRuntimeTypeHandle       = "System.RuntimeTypeHandle"
	TypeActivator               = "System.Activator"
	TypeNotSupportedException   = "System.NotSupportedException"
	TypeRuntimeHelpers          = "System.Runtime.CompilerServices.RuntimeHelpers"
	TypeExpression              = "System.Linq.Expressions.Expression"
	TypeEventSource             = "System.Diagnostics.Tracing.EventSource"
	TypeISerializable           = "System.Runtime.Serialization.ISerializable"
	TypeSerializationInfo       = "System.Runtime.Serialization.SerializationInfo"
	TypeStreamingContext        = "System.Runtime.Serialization.StreamingContext"
	TypeICustomMarshaler        = "System.Runtime.InteropServices.ICustomMarshaler"
	TypeBindingFlags            = "System.Reflection.BindingFlags"
	TypeDynamicDependency       = "System.Diagnostics.CodeAnalysis.DynamicDependencyAttribute"
	TypeDynamicallyAccessed     = "System.Diagnostics.CodeAnalysis.DynamicallyAccessedMembersAttribute"
	TypeDynamicallyAccessedKind = "System.Diagnostics.CodeAnalysis.DynamicallyAccessedMemberTypes"
	TypeRequiresUnreferenced    = "System.Diagnostics.CodeAnalysis.RequiresUnreferencedCodeAttribute"
)

// Special method names.
const (
	CtorName       = ".ctor"
	StaticCtorName = ".cctor"
)

// CoreLibrary is the default scope for core types synthesized by the linker.
const CoreLibrary = "System.Private.CoreLib"

// ObjectRef is the universal base type.
func ObjectRef() TypeRef { return Named(CoreLibrary, TypeObject) }

// VoidRef is the void return type.
func VoidRef() TypeRef { return Named(CoreLibrary, TypeVoid) }

// BoolRef is System.Boolean.
func BoolRef() TypeRef { return Named(CoreLibrary, TypeBoolean) }

// StringRef is System.String.
func StringRef() TypeRef { return Named(CoreLibrary, TypeString) }

// Int32Ref is System.Int32.
func Int32Ref() TypeRef { return Named(CoreLibrary, TypeInt32) }

// TypeTypeRef is System.Type.
func TypeTypeRef() TypeRef { return Named(CoreLibrary, TypeType) }
