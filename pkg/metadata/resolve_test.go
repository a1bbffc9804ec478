package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCore(b *Builder) *AssemblyBuilder {
	core := b.Assembly(CoreLibrary)
	core.Class("System", "Object").NoBase().Ctor()
	core.Class("System", "ValueType")
	core.Struct("System", "Int32")
	core.Struct("System", "Single")
	core.Struct("System", "Boolean")
	core.Type("System", "Void").WithFlags(TypeValueTypeFlag)
	core.Class("System", "String")
	return core
}

func TestResolveTypeAcrossForwarders(t *testing.T) {
	b := NewBuilder()
	newCore(b)
	facade := b.Assembly("Facade").Forward("Lib.Widget", "Impl")
	impl := b.Assembly("Impl")
	widget := impl.Class("Lib", "Widget")
	inner := widget.Nested("Part")
	m, err := b.Build()
	require.NoError(t, err)

	id, used, ok := m.ResolveTypeVia(Named("Facade", "Lib.Widget"))
	require.True(t, ok)
	assert.Equal(t, widget.ID(), id)
	require.Len(t, used, 1)
	assert.Equal(t, facade.ID(), used[0].Assembly)

	id, ok = m.ResolveType(Named("Facade", "Lib.Widget/Part"))
	require.True(t, ok)
	assert.Equal(t, inner.ID(), id)

	_, ok = m.ResolveType(Named("Facade", "Lib.Missing"))
	assert.False(t, ok)
	_, ok = m.ResolveType(Named("Nowhere", "Lib.Widget"))
	assert.False(t, ok)
}

func TestResolveTypeForwarderCycle(t *testing.T) {
	b := NewBuilder()
	b.Assembly("A").Forward("X.T", "B")
	b.Assembly("B").Forward("X.T", "A")
	m, err := b.Build()
	require.NoError(t, err)

	_, used, ok := m.ResolveTypeVia(Named("A", "X.T"))
	assert.False(t, ok)
	assert.NotEmpty(t, used)
}

func TestResolveMethodMatchesByPosition(t *testing.T) {
	b := NewBuilder()
	newCore(b)
	app := b.Assembly("App")
	base := app.Class("App", "Base").Generic("T")
	byT := base.Method("Overloaded", VoidRef(), TypeParam(0))
	byInt := base.Method("Overloaded", VoidRef(), Int32Ref())
	gen := base.Method("Make", VoidRef(), MethodParam(0)).Generic("U")
	m, err := b.Build()
	require.NoError(t, err)

	tests := []struct {
		name string
		ref  MethodRef
		want MethodID
		ok   bool
	}{
		{"generic parameter", byT.Ref(), byT.ID(), true},
		{"int overload", byInt.Ref(), byInt.ID(), true},
		{
			"through generic instance",
			byInt.RefOn(GenericInst(base.Ref(), Named(CoreLibrary, TypeSingle))),
			byInt.ID(),
			true,
		},
		{"generic method", gen.Ref(), gen.ID(), true},
		{
			"arity mismatch",
			MethodRef{DeclaringType: base.Ref(), Name: "Make", Parameters: []TypeRef{MethodParam(0)}, ReturnType: VoidRef()},
			NoMethod,
			false,
		},
		{
			"parameter type mismatch",
			MethodRef{DeclaringType: base.Ref(), Name: "Overloaded", Parameters: []TypeRef{StringRef()}, ReturnType: VoidRef()},
			NoMethod,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.ResolveMethod(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMethodDistinguishesArityAndReturnType(t *testing.T) {
	b := NewBuilder()
	newCore(b)
	app := b.Assembly("App")
	conv := app.Class("App", "Conv")
	pick := conv.Method("Pick", VoidRef())
	pickT := conv.Method("Pick", VoidRef()).Generic("T")
	toString := conv.Method("op_Implicit", StringRef(), Int32Ref()).Static()
	toBool := conv.Method("op_Implicit", BoolRef(), Int32Ref()).Static()
	m, err := b.Build()
	require.NoError(t, err)

	got, ok := m.ResolveMethod(pick.Ref())
	require.True(t, ok)
	assert.Equal(t, pick.ID(), got)

	got, ok = m.ResolveMethod(pickT.Ref())
	require.True(t, ok)
	assert.Equal(t, pickT.ID(), got, "generic arity is part of the identity")
	assert.False(t, m.MatchesRef(pick.ID(), pickT.Ref()))

	got, ok = m.ResolveMethod(toString.Ref())
	require.True(t, ok)
	assert.Equal(t, toString.ID(), got)
	got, ok = m.ResolveMethod(toBool.Ref())
	require.True(t, ok)
	assert.Equal(t, toBool.ID(), got, "return type is part of the identity")
}

func TestResolveMethodWalksBaseTypesExceptCtors(t *testing.T) {
	b := NewBuilder()
	newCore(b)
	app := b.Assembly("App")
	base := app.Class("App", "Base")
	run := base.Method("Run", VoidRef())
	derived := app.Class("App", "Derived").Extends(base.Ref())
	m, err := b.Build()
	require.NoError(t, err)

	got, ok := m.ResolveMethod(run.RefOn(derived.Ref()))
	require.True(t, ok)
	assert.Equal(t, run.ID(), got)

	_, ok = m.ResolveMethod(MethodRef{DeclaringType: derived.Ref(), Name: CtorName, ReturnType: VoidRef()})
	assert.False(t, ok)
}

func TestResolveField(t *testing.T) {
	b := NewBuilder()
	newCore(b)
	app := b.Assembly("App")
	base := app.Class("App", "Base")
	f := base.Field("count", Int32Ref()).Static()
	derived := app.Class("App", "Derived").Extends(base.Ref())
	m, err := b.Build()
	require.NoError(t, err)

	got, ok := m.ResolveField(FieldRef{DeclaringType: derived.Ref(), Name: "count", Type: Int32Ref()})
	require.True(t, ok)
	assert.Equal(t, f.ID(), got)

	_, ok = m.ResolveField(FieldRef{DeclaringType: derived.Ref(), Name: "count", Type: StringRef()})
	assert.False(t, ok)
}

func TestBuildRejectsHierarchyCycle(t *testing.T) {
	b := NewBuilder()
	app := b.Assembly("App")
	a := app.Type("App", "A")
	c := app.Type("App", "C").Extends(a.Ref())
	a.Extends(c.Ref())

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildRejectsDuplicateTypes(t *testing.T) {
	b := NewBuilder()
	app := b.Assembly("App")
	app.Class("App", "A")
	app.Class("App", "A")

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate type App.A")
}

func TestInflate(t *testing.T) {
	list := Named("", "System.Collections.Generic.List`1")
	sig := GenericInst(list, ArrayOf(TypeParam(0), 1))
	got := Inflate(sig, []TypeRef{Int32Ref()}, nil)
	assert.Equal(t, "System.Collections.Generic.List`1<System.Int32[]>", got.String())

	m := Inflate(ByRefTo(MethodParam(1)), nil, []TypeRef{Int32Ref()})
	assert.Equal(t, "!!1&", m.String(), "out-of-range parameters stay open")
}

func TestSignatureEqualIgnoresScope(t *testing.T) {
	assert.True(t, SignatureEqual(Named("A", "X.T"), Named("B", "X.T")))
	assert.False(t, SignatureEqual(TypeParam(0), MethodParam(0)))
	assert.False(t, SignatureEqual(ArrayOf(Int32Ref(), 1), ArrayOf(Int32Ref(), 2)))
	assert.Equal(t, SignatureKey("M", []TypeRef{Named("A", "X.T")}), SignatureKey("M", []TypeRef{Named("B", "X.T")}))
	assert.NotEqual(t, SignatureKey("M", []TypeRef{Int32Ref()}), SignatureKey("M", []TypeRef{StringRef()}))
}

func TestEntityNames(t *testing.T) {
	b := NewBuilder()
	newCore(b)
	app := b.Assembly("App")
	foo := app.Class("App", "Foo")
	bar := foo.Method("Bar", VoidRef(), Int32Ref(), StringRef())
	fld := foo.Field("x", Int32Ref())
	m, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "MethodDef:System.Void App.Foo::Bar(System.Int32,System.String)", m.Token(MethodEntity(bar.ID())))
	assert.Equal(t, "FieldDef:System.Int32 App.Foo::x", m.Token(FieldEntity(fld.ID())))
	assert.Equal(t, "TypeDef:App.Foo", m.Token(TypeEntity(foo.ID())))
}

func TestParseOpCode(t *testing.T) {
	for op := Nop; op < opCodeCount; op++ {
		got, ok := ParseOpCode(op.String())
		require.True(t, ok, op.String())
		assert.Equal(t, op, got)
	}
	_, ok := ParseOpCode("calli")
	assert.False(t, ok)
}
