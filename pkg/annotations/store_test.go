package annotations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/iltrim/pkg/metadata"
)

type hierarchy struct {
	m                       *metadata.Model
	object, base, mid, leaf metadata.TypeID
	iface, derivedIface     metadata.TypeID
}

func newHierarchy(t *testing.T) hierarchy {
	t.Helper()
	b := metadata.NewBuilder()
	core := b.Assembly(metadata.CoreLibrary)
	object := core.Class("System", "Object").NoBase()
	app := b.Assembly("App")
	iface := app.Interface("App", "IShape")
	derived := app.Interface("App", "ISquare").Implements(iface.Ref())
	base := app.Class("App", "Base")
	mid := app.Class("App", "Mid").Extends(base.Ref())
	leaf := app.Class("App", "Leaf").Extends(mid.Ref())
	m, err := b.Build()
	require.NoError(t, err)
	return hierarchy{
		m: m, object: object.ID(), base: base.ID(), mid: mid.ID(), leaf: leaf.ID(),
		iface: iface.ID(), derivedIface: derived.ID(),
	}
}

func TestMarkIsIdempotent(t *testing.T) {
	h := newHierarchy(t)
	s := NewStore(h.m)
	e := metadata.TypeEntity(h.leaf)

	assert.False(t, s.IsMarked(e))
	assert.True(t, s.Mark(e))
	assert.False(t, s.Mark(e))
	assert.True(t, s.IsMarked(e))
	assert.Equal(t, 1, s.MarkedCount(metadata.KindType))
	assert.Equal(t, []uint32{uint32(h.leaf)}, s.Marked(metadata.KindType))

	assert.False(t, s.IsMarked(metadata.MethodEntity(metadata.MethodID(h.leaf))), "kinds are independent")

	assert.True(t, s.MarkProcessed(e))
	assert.False(t, s.MarkProcessed(e))
	assert.True(t, s.IsProcessed(e))
}

func TestAssemblyActionFirstWins(t *testing.T) {
	s := NewStore(newHierarchy(t).m)

	assert.False(t, s.HasAction(1))
	assert.Equal(t, ActionUnset, s.GetAction(1))
	assert.False(t, s.SetAction(1, ActionUnset))

	assert.True(t, s.SetAction(1, ActionCopy))
	assert.False(t, s.SetAction(1, ActionLink))
	assert.Equal(t, ActionCopy, s.GetAction(1))

	s.OverrideAction(1, ActionDelete)
	assert.Equal(t, ActionDelete, s.GetAction(1))
}

func TestPreserveJoin(t *testing.T) {
	tests := []struct {
		a, b, want PreserveKind
	}{
		{PreserveNothing, PreserveNothing, PreserveNothing},
		{PreserveNothing, PreserveFields, PreserveFields},
		{PreserveFields, PreserveFields, PreserveFields},
		{PreserveFields, PreserveMethods, PreserveAll},
		{PreserveMethods, PreserveFields, PreserveAll},
		{PreserveAll, PreserveNothing, PreserveAll},
		{PreserveMethods, PreserveAll, PreserveAll},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"+"+tt.b.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ChoosePreserveActionWhichPreservesTheMost(tt.a, tt.b))
			assert.Equal(t, tt.want, ChoosePreserveActionWhichPreservesTheMost(tt.b, tt.a))
		})
	}
}

func TestSetPreserveIsMonotone(t *testing.T) {
	h := newHierarchy(t)
	s := NewStore(h.m)

	_, ok := s.GetPreserve(h.base)
	assert.False(t, ok)

	s.SetPreserve(h.base, PreserveFields)
	s.SetPreserve(h.base, PreserveNothing)
	p, ok := s.GetPreserve(h.base)
	require.True(t, ok)
	assert.Equal(t, PreserveFields, p)

	s.SetPreserve(h.base, PreserveMethods)
	p, _ = s.GetPreserve(h.base)
	assert.Equal(t, PreserveAll, p)
	assert.True(t, p.Fields())
	assert.True(t, p.Methods())
}

func TestOverridesAreDeduplicated(t *testing.T) {
	s := NewStore(newHierarchy(t).m)
	impl := &InterfaceImplRef{Type: 3, Index: 0}

	s.AddOverride(1, 2, nil)
	s.AddOverride(1, 2, nil)
	s.AddOverride(1, 2, impl)
	s.AddOverride(1, 2, &InterfaceImplRef{Type: 3, Index: 0})
	s.AddOverride(1, 4, nil)

	overrides := s.GetOverrides(1)
	require.Len(t, overrides, 3)
	assert.False(t, overrides[0].IsInterfaceSlot())
	assert.True(t, overrides[1].IsInterfaceSlot())
	assert.Equal(t, metadata.MethodID(4), overrides[2].Override)

	s.AddBaseMethod(2, 1)
	s.AddBaseMethod(2, 1)
	assert.Equal(t, []metadata.MethodID{1}, s.GetBaseMethods(2))
	assert.Empty(t, s.GetBaseMethods(1))
}

func TestHierarchyIndexes(t *testing.T) {
	h := newHierarchy(t)
	s := NewStore(h.m)

	assert.Equal(t, []metadata.TypeID{h.mid, h.base, h.object}, s.GetClassHierarchy(h.leaf))
	assert.Empty(t, s.GetClassHierarchy(h.object))
	assert.Equal(t, []metadata.TypeID{h.mid, h.leaf}, s.DerivedTypes(h.base))
	assert.Equal(t, []metadata.TypeID{h.derivedIface}, s.DerivedInterfaces(h.iface))
	assert.Empty(t, s.DerivedInterfaces(h.derivedIface))
}

func TestInheritedTypeDAM(t *testing.T) {
	h := newHierarchy(t)
	s := NewStore(h.m)

	s.SetTypeDAM(h.base, DAMPublicMethods)
	s.SetTypeDAM(h.mid, DAMPublicFields)

	assert.Equal(t, DAMPublicMethods|DAMPublicFields, s.InheritedTypeDAM(h.leaf))
	assert.Equal(t, DAMPublicMethods, s.InheritedTypeDAM(h.base))
	assert.Equal(t, DAMNone, s.TypeDAM(h.leaf))
}

func TestDAMTypes(t *testing.T) {
	tests := []struct {
		name   string
		have   DAMTypes
		req    DAMTypes
		covers bool
	}{
		{"ctors cover parameterless", DAMPublicConstructors, DAMPublicParameterlessConstructor, true},
		{"parameterless misses ctors", DAMPublicParameterlessConstructor, DAMPublicConstructors, false},
		{"all covers everything", DAMAll, DAMInterfaces | DAMNonPublicEvents, true},
		{"none covers none", DAMNone, DAMNone, true},
		{"fields miss methods", DAMPublicFields, DAMPublicMethods, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.covers, tt.have.Covers(tt.req))
		})
	}

	assert.Equal(t, DAMPublicMethods, DAMPublicFields.Missing(DAMPublicMethods|DAMPublicFields))
	assert.Equal(t, "PublicConstructors|PublicMethods", (DAMPublicConstructors | DAMPublicMethods).String())
	assert.Equal(t, "All", DAMAll.String())
}

func TestParseDAMTypes(t *testing.T) {
	d, err := ParseDAMTypes("PublicMethods | nonpublicfields")
	require.NoError(t, err)
	assert.Equal(t, DAMPublicMethods|DAMNonPublicFields, d)

	d, err = ParseDAMTypes("All")
	require.NoError(t, err)
	assert.Equal(t, DAMAll, d)

	_, err = ParseDAMTypes("PublicWidgets")
	assert.Error(t, err)
}

func TestParseActions(t *testing.T) {
	a, err := ParseAssemblyAction("CopyUsed")
	require.NoError(t, err)
	assert.Equal(t, ActionCopyUsed, a)
	assert.True(t, a.KeepsWholeWhenUsed())
	assert.True(t, ActionSave.KeepsWhole())

	_, err = ParseAssemblyAction("shrink")
	assert.Error(t, err)

	ma, err := ParseMethodAction("throw")
	require.NoError(t, err)
	assert.Equal(t, MethodConvertToThrow, ma)
	assert.True(t, ma.RewritesBody())
	assert.False(t, MethodDelete.RewritesBody())
}

func TestMethodActionsAndValues(t *testing.T) {
	s := NewStore(newHierarchy(t).m)

	s.SetMethodAction(5, MethodConvertToReturn)
	s.SetMethodAction(2, MethodConvertToThrow)
	s.SetStubValue(5, metadata.BoolArg(true))
	assert.Equal(t, []metadata.MethodID{2, 5}, s.MethodsWithAction())

	v, ok := s.GetStubValue(5)
	require.True(t, ok)
	assert.True(t, v.Bool)

	s.SetMethodAction(2, MethodNone)
	assert.Equal(t, MethodNone, s.GetMethodAction(2))
	assert.Equal(t, []metadata.MethodID{5}, s.MethodsWithAction())

	s.SetFieldValue(7, metadata.IntArg(metadata.Int32Ref(), 42))
	assert.Equal(t, []metadata.FieldID{7}, s.FieldsWithValue())
}

func TestCustomAnnotations(t *testing.T) {
	s := NewStore(newHierarchy(t).m)
	type stageKey struct{}

	_, ok := s.GetCustomAnnotation(stageKey{}, metadata.TypeEntity(1))
	assert.False(t, ok)

	s.SetCustomAnnotation(stageKey{}, metadata.TypeEntity(1), "seen")
	v, ok := s.GetCustomAnnotation(stageKey{}, metadata.TypeEntity(1))
	require.True(t, ok)
	assert.Equal(t, "seen", v)

	_, ok = s.GetCustomAnnotation("other", metadata.TypeEntity(1))
	assert.False(t, ok)
}

func TestDependenciesAndMarksOnEdges(t *testing.T) {
	s := NewStore(newHierarchy(t).m)
	owner := metadata.MethodEntity(1)

	s.AddDependency(owner, metadata.FieldEntity(3))
	s.AddDependency(owner, metadata.FieldEntity(3))
	assert.Equal(t, []metadata.Entity{metadata.FieldEntity(3)}, s.GetDependencies(owner))

	ref := InterfaceImplRef{Type: 2, Index: 1}
	assert.True(t, s.MarkInterfaceImpl(ref))
	assert.False(t, s.MarkInterfaceImpl(ref))
	assert.True(t, s.IsInterfaceImplMarked(ref))

	fw := metadata.ForwarderUse{Assembly: 1, Index: 0}
	assert.True(t, s.MarkExportedType(fw))
	assert.True(t, s.IsExportedTypeMarked(fw))

	s.SetRequiresUnreferencedCode(4, "first")
	s.SetRequiresUnreferencedCode(4, "second")
	msg, ok := s.RequiresUnreferencedCode(4)
	require.True(t, ok)
	assert.Equal(t, "first", msg)
}
