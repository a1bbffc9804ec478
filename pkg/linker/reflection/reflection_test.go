package reflection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/iltrim/internal/testutil"
	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/metadata"
)

type recordingMarker struct {
	marked []metadata.Entity
}

func (m *recordingMarker) MarkEntity(e metadata.Entity, _ linker.Reason) {
	m.marked = append(m.marked, e)
}

func (m *recordingMarker) has(e metadata.Entity) bool {
	for _, x := range m.marked {
		if x == e {
			return true
		}
	}
	return false
}

type event struct {
	site       Site
	recognized bool
	code       diagnostic.Code
	targets    []metadata.Entity
}

type recordingRecorder struct {
	events []event
}

func (r *recordingRecorder) Recognized(site Site, targets []metadata.Entity) {
	r.events = append(r.events, event{site: site, recognized: true, targets: targets})
}

func (r *recordingRecorder) Unrecognized(site Site, code diagnostic.Code, _ string) {
	r.events = append(r.events, event{site: site, code: code})
}

type fixture struct {
	core  *testutil.Core
	app   *metadata.AssemblyBuilder
	model *metadata.Model
	store *annotations.Store
}

func newFixture() (*metadata.Builder, *fixture) {
	b := metadata.NewBuilder()
	f := &fixture{core: testutil.CoreLibrary(b)}
	f.app = b.Assembly("App")
	return b, f
}

func (f *fixture) build(t *testing.T, b *metadata.Builder) {
	t.Helper()
	f.model = testutil.BuildModel(t, b)
	f.store = annotations.NewStore(f.model)
}

func (f *fixture) analyze(id metadata.MethodID) (*recordingMarker, *recordingRecorder) {
	marker := &recordingMarker{}
	rec := &recordingRecorder{}
	New(f.model, f.store, marker, rec).AnalyzeMethod(id)
	return marker, rec
}

func call(mb *metadata.MethodBuilder) metadata.Instruction {
	return metadata.OpMethod(metadata.Call, mb.Ref())
}

func callvirt(mb *metadata.MethodBuilder) metadata.Instruction {
	return metadata.OpMethod(metadata.Callvirt, mb.Ref())
}

func typeOf(f *fixture, ref metadata.TypeRef) []metadata.Instruction {
	return []metadata.Instruction{
		metadata.OpType(metadata.Ldtoken, ref),
		call(f.core.GetTypeFromHandle),
	}
}

func body(parts ...[]metadata.Instruction) []metadata.Instruction {
	var out []metadata.Instruction
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func ops(in ...metadata.Instruction) []metadata.Instruction { return in }

func ptr[T any](v T) *T { return &v }

func TestGetTypeWithLiteralMarksType(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().Body(
		metadata.OpString("App.Target"),
		call(f.core.GetType),
		metadata.Op(metadata.Pop),
		metadata.Op(metadata.Ret),
	)
	f.build(t, b)

	marker, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].recognized)
	assert.Equal(t, 1, rec.events[0].site.Offset)
	assert.True(t, marker.has(metadata.TypeEntity(target.ID())))
}

func TestGetTypeUnresolvedReportsOnce(t *testing.T) {
	b, f := newFixture()
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef(), metadata.BoolRef()).Static().Body(
		metadata.OpInt(metadata.Ldarg, 0),
		metadata.OpBranch(metadata.Brtrue, 4),
		metadata.OpString("App.Missing"),
		metadata.OpBranch(metadata.Br, 5),
		metadata.OpString("App.AlsoMissing"),
		call(f.core.GetType),
		metadata.Op(metadata.Pop),
		metadata.Op(metadata.Ret),
	)
	f.build(t, b)

	marker, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].recognized)
	assert.Equal(t, diagnostic.CodeUnresolvedTypeName, rec.events[0].code)
	assert.Empty(t, marker.marked)
}

func TestGetTypeUnknownArgument(t *testing.T) {
	b, f := newFixture()
	caller := f.app.Class("App", "Program").Method("Load", metadata.VoidRef(), metadata.StringRef()).Static().Body(
		metadata.OpInt(metadata.Ldarg, 0),
		call(f.core.GetType),
		metadata.Op(metadata.Pop),
		metadata.Op(metadata.Ret),
	)
	f.build(t, b)

	_, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 1)
	assert.Equal(t, diagnostic.CodeUnrecognizedReflectionPattern, rec.events[0].code)
}

func TestCreateInstanceNoDefaultCtorAndCastToSameType(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	withArg := target.Ctor(metadata.Int32Ref()).Body(metadata.Op(metadata.Ret))
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().Body(body(
		typeOf(f, target.Ref()),
		ops(
			call(f.core.CreateInstance),
			metadata.OpType(metadata.Castclass, target.Ref()),
			metadata.Op(metadata.Pop),
			metadata.Op(metadata.Ret),
		),
	)...)
	f.build(t, b)

	marker, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].recognized)
	assert.True(t, marker.has(metadata.TypeEntity(target.ID())))
	assert.False(t, marker.has(metadata.MethodEntity(withArg.ID())))
}

func TestCreateInstanceMarksDefaultCtor(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	ctor := target.Ctor().Body(metadata.Op(metadata.Ret))
	other := target.Ctor(metadata.Int32Ref()).Body(metadata.Op(metadata.Ret))
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().Body(body(
		typeOf(f, target.Ref()),
		ops(call(f.core.CreateInstance), metadata.Op(metadata.Pop), metadata.Op(metadata.Ret)),
	)...)
	f.build(t, b)

	marker, _ := f.analyze(caller.ID())

	assert.True(t, marker.has(metadata.MethodEntity(ctor.ID())))
	assert.False(t, marker.has(metadata.MethodEntity(other.ID())))
}

func TestCreateInstanceUnknownMarksCastCandidates(t *testing.T) {
	b, f := newFixture()
	iface := f.app.Interface("App", "IPlugin")
	impl := f.app.Class("App", "Plugin").Implements(iface.Ref())
	implCtor := impl.Ctor().Body(metadata.Op(metadata.Ret))
	implCtor2 := impl.Ctor(metadata.StringRef()).Body(metadata.Op(metadata.Ret))
	unrelated := f.app.Class("App", "Unrelated")
	unrelatedCtor := unrelated.Ctor().Body(metadata.Op(metadata.Ret))
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().
		Locals(f.core.Type.Ref()).
		Body(
			metadata.OpInt(metadata.Ldloc, 0),
			call(f.core.CreateInstance),
			metadata.OpType(metadata.Castclass, iface.Ref()),
			metadata.Op(metadata.Pop),
			metadata.Op(metadata.Ret),
		)
	f.build(t, b)

	marker, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].recognized)
	assert.Equal(t, diagnostic.CodeUnrecognizedReflectionPattern, rec.events[0].code)
	assert.True(t, marker.has(metadata.MethodEntity(implCtor.ID())))
	assert.True(t, marker.has(metadata.MethodEntity(implCtor2.ID())))
	assert.False(t, marker.has(metadata.MethodEntity(unrelatedCtor.ID())))
}

func TestCreateInstanceUnannotatedParameterMarksCastCandidates(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	ctor := target.Ctor(metadata.Int32Ref()).Body(metadata.Op(metadata.Ret))
	maker := f.app.Class("App", "Factory").Method("Make", target.Ref(), f.core.Type.Ref()).Static().Body(
		metadata.OpInt(metadata.Ldarg, 0),
		call(f.core.CreateInstance),
		metadata.OpType(metadata.Castclass, target.Ref()),
		metadata.Op(metadata.Ret),
	)
	f.build(t, b)

	marker, rec := f.analyze(maker.ID())

	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].recognized)
	assert.Equal(t, diagnostic.CodeDynamicallyAccessedMismatch, rec.events[0].code)
	assert.True(t, marker.has(metadata.MethodEntity(ctor.ID())))
}

func TestCatchSeesValuesOverwrittenInsideTry(t *testing.T) {
	b, f := newFixture()
	ctorOf := func(name string) (*metadata.TypeBuilder, *metadata.MethodBuilder) {
		tb := f.app.Class("App", name)
		return tb, tb.Ctor().Body(metadata.Op(metadata.Ret))
	}
	a, aCtor := ctorOf("A")
	bt, bCtor := ctorOf("B")
	c, cCtor := ctorOf("C")
	program := f.app.Class("App", "Program")
	mayThrow := program.Method("MayThrow", metadata.VoidRef()).Static().Body(metadata.Op(metadata.Ret))
	caller := program.Method("Main", metadata.VoidRef()).Static().
		Locals(f.core.Type.Ref()).
		Handler(metadata.ExceptionHandler{
			Kind: metadata.HandlerCatch, TryStart: 3, TryEnd: 11, HandlerStart: 11, HandlerEnd: 16,
			CatchType: ptr(metadata.ObjectRef()),
		}).
		Body(body(
			typeOf(f, c.Ref()),
			ops(metadata.OpInt(metadata.Stloc, 0)),
			typeOf(f, a.Ref()), // try
			ops(metadata.OpInt(metadata.Stloc, 0), call(mayThrow)),
			typeOf(f, bt.Ref()),
			ops(
				metadata.OpInt(metadata.Stloc, 0),
				metadata.OpBranch(metadata.Leave, 16),
				metadata.Op(metadata.Pop), // catch
				metadata.OpInt(metadata.Ldloc, 0),
				call(f.core.CreateInstance),
				metadata.Op(metadata.Pop),
				metadata.OpBranch(metadata.Leave, 16),
				metadata.Op(metadata.Ret),
			),
		)...)
	f.build(t, b)

	marker, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 1)
	assert.Equal(t, 13, rec.events[0].site.Offset)
	assert.True(t, rec.events[0].recognized)
	assert.True(t, marker.has(metadata.MethodEntity(aCtor.ID())), "value stored mid-try reaches the catch")
	assert.True(t, marker.has(metadata.MethodEntity(bCtor.ID())))
	assert.True(t, marker.has(metadata.MethodEntity(cCtor.ID())))
}

func TestCreateInstanceGenericArgument(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	ctor := target.Ctor().Body(metadata.Op(metadata.Ret))
	ref := f.core.CreateInstanceOfT.Ref()
	ref.Instantiation = []metadata.TypeRef{target.Ref()}
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().Body(
		metadata.OpMethod(metadata.Call, ref),
		metadata.Op(metadata.Pop),
		metadata.Op(metadata.Ret),
	)
	f.build(t, b)

	marker, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].recognized)
	assert.True(t, marker.has(metadata.MethodEntity(ctor.ID())))
}

func TestGetMethodByName(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	run := target.Method("Run", metadata.VoidRef()).Body(metadata.Op(metadata.Ret))
	runWithArg := target.Method("Run", metadata.VoidRef(), metadata.Int32Ref()).Body(metadata.Op(metadata.Ret))
	other := target.Method("Other", metadata.VoidRef()).Body(metadata.Op(metadata.Ret))
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().Body(body(
		typeOf(f, target.Ref()),
		ops(
			metadata.OpString("Run"),
			callvirt(f.core.GetMethod),
			metadata.Op(metadata.Pop),
			metadata.Op(metadata.Ret),
		),
	)...)
	f.build(t, b)

	marker, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].recognized)
	assert.True(t, marker.has(metadata.MethodEntity(run.ID())))
	assert.True(t, marker.has(metadata.MethodEntity(runWithArg.ID())))
	assert.False(t, marker.has(metadata.MethodEntity(other.ID())))
}

func TestGetTypeResultFlowsToGetField(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	field := target.Field("count", metadata.Int32Ref())
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().
		Locals(f.core.Type.Ref()).
		Body(
			metadata.OpString("App.Target"),
			call(f.core.GetType),
			metadata.OpInt(metadata.Stloc, 0),
			metadata.OpInt(metadata.Ldloc, 0),
			metadata.OpString("count"),
			callvirt(f.core.GetField),
			metadata.Op(metadata.Pop),
			metadata.Op(metadata.Ret),
		)
	f.build(t, b)

	marker, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 2)
	assert.Equal(t, 1, rec.events[0].site.Offset)
	assert.Equal(t, 5, rec.events[1].site.Offset)
	assert.True(t, rec.events[1].recognized)
	assert.True(t, marker.has(metadata.FieldEntity(field.ID())))
}

func TestAnnotatedParameterRequirements(t *testing.T) {
	tests := []struct {
		name       string
		dam        annotations.DAMTypes
		recognized bool
	}{
		{name: "covers", dam: annotations.DAMPublicMethods, recognized: true},
		{name: "all", dam: annotations.DAMAll, recognized: true},
		{name: "missing", dam: annotations.DAMPublicFields, recognized: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, f := newFixture()
			caller := f.app.Class("App", "Program").Method("Inspect", metadata.VoidRef(), f.core.Type.Ref()).Static().Body(
				metadata.OpInt(metadata.Ldarg, 0),
				callvirt(f.core.GetMethods),
				metadata.Op(metadata.Pop),
				metadata.Op(metadata.Ret),
			)
			f.build(t, b)
			f.store.SetParamDAM(annotations.ParamRef{Method: caller.ID(), Index: 0}, tt.dam)

			_, rec := f.analyze(caller.ID())

			require.Len(t, rec.events, 1)
			assert.Equal(t, tt.recognized, rec.events[0].recognized)
			if !tt.recognized {
				assert.Equal(t, diagnostic.CodeDynamicallyAccessedMismatch, rec.events[0].code)
			}
		})
	}
}

func TestAnnotatedCalleeMarksMembers(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	public := target.Field("Visible", metadata.Int32Ref())
	private := target.Field("hidden", metadata.Int32Ref()).WithVisibility(metadata.VisibilityPrivate)
	program := f.app.Class("App", "Program")
	use := program.Method("Use", metadata.VoidRef(), f.core.Type.Ref()).Static().Body(metadata.Op(metadata.Ret))
	caller := program.Method("Main", metadata.VoidRef()).Static().Body(body(
		typeOf(f, target.Ref()),
		ops(call(use), metadata.Op(metadata.Ret)),
	)...)
	f.build(t, b)
	f.store.SetParamDAM(annotations.ParamRef{Method: use.ID(), Index: 0}, annotations.DAMPublicFields)

	marker, rec := f.analyze(caller.ID())

	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].recognized)
	assert.True(t, marker.has(metadata.FieldEntity(public.ID())))
	assert.False(t, marker.has(metadata.FieldEntity(private.ID())))
}

func TestRunClassConstructor(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	cctor := target.StaticCtor().Body(metadata.Op(metadata.Ret))
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().Body(
		metadata.OpType(metadata.Ldtoken, target.Ref()),
		call(f.core.RunClassConstructor),
		metadata.Op(metadata.Ret),
	)
	f.build(t, b)

	marker, _ := f.analyze(caller.ID())

	assert.True(t, marker.has(metadata.MethodEntity(cctor.ID())))
}

func TestMethodsWithoutReflectionAreSkipped(t *testing.T) {
	b, f := newFixture()
	caller := f.app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().Body(
		metadata.OpString("App.Target"),
		metadata.Op(metadata.Pop),
		metadata.Op(metadata.Ret),
	)
	f.build(t, b)

	marker, rec := f.analyze(caller.ID())

	assert.Empty(t, rec.events)
	assert.Empty(t, marker.marked)
}

func TestValueSetUnion(t *testing.T) {
	a := Single(Value{Kind: ValueInt, Int: 1})
	c := Single(Value{Kind: ValueInt, Int: 2})

	ab := a.Union(c)
	ba := c.Union(a)
	assert.True(t, ab.Equal(ba))
	assert.Len(t, ab.Values(), 2)
	assert.True(t, ab.Union(a).Equal(ab))
	assert.True(t, a.Union(Unknown()).IsUnknown())
	assert.True(t, ValueSet{}.Union(a).Equal(a))
}

func TestValueSetCollapsesAboveCap(t *testing.T) {
	var s ValueSet
	for i := 0; i < MaxValues; i++ {
		s = s.Union(Single(Value{Kind: ValueInt, Int: int64(i)}))
	}
	require.False(t, s.IsUnknown())
	assert.Len(t, s.Values(), MaxValues)

	s = s.Union(Single(Value{Kind: ValueInt, Int: MaxValues}))
	assert.True(t, s.IsUnknown())
	assert.Nil(t, s.Values())
}

func TestMembers(t *testing.T) {
	b, f := newFixture()
	base := f.app.Class("App", "Base")
	inherited := base.Method("Inherited", metadata.VoidRef())
	basePrivate := base.Method("BasePrivate", metadata.VoidRef()).WithVisibility(metadata.VisibilityPrivate)
	derived := f.app.Class("App", "Derived").Extends(base.Ref())
	own := derived.Method("Own", metadata.VoidRef())
	ownPrivate := derived.Method("OwnPrivate", metadata.VoidRef()).WithVisibility(metadata.VisibilityPrivate)
	ctor := derived.Ctor()
	f.build(t, b)

	tests := []struct {
		name    string
		dam     annotations.DAMTypes
		want    []metadata.Entity
		notWant []metadata.Entity
	}{
		{
			name:    "public methods include inherited",
			dam:     annotations.DAMPublicMethods,
			want:    []metadata.Entity{metadata.MethodEntity(own.ID()), metadata.MethodEntity(inherited.ID())},
			notWant: []metadata.Entity{metadata.MethodEntity(ownPrivate.ID()), metadata.MethodEntity(ctor.ID())},
		},
		{
			name:    "non-public methods are declared only",
			dam:     annotations.DAMNonPublicMethods,
			want:    []metadata.Entity{metadata.MethodEntity(ownPrivate.ID())},
			notWant: []metadata.Entity{metadata.MethodEntity(basePrivate.ID()), metadata.MethodEntity(own.ID())},
		},
		{
			name:    "parameterless constructor",
			dam:     annotations.DAMPublicParameterlessConstructor,
			want:    []metadata.Entity{metadata.MethodEntity(ctor.ID())},
			notWant: []metadata.Entity{metadata.MethodEntity(own.ID())},
		},
		{
			name: "none",
			dam:  annotations.DAMNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Members(f.model, derived.ID(), tt.dam)
			for _, e := range tt.want {
				assert.Contains(t, got, e)
			}
			for _, e := range tt.notWant {
				assert.NotContains(t, got, e)
			}
			if tt.dam == annotations.DAMNone {
				assert.Empty(t, got)
			}
		})
	}
}

func TestResolveTypeName(t *testing.T) {
	b, f := newFixture()
	target := f.app.Class("App", "Target")
	nested := target.Nested("Inner")
	f.build(t, b)

	tests := []struct {
		name   string
		input  string
		scopes []string
		want   metadata.TypeID
		ok     bool
	}{
		{name: "scoped", input: "App.Target", scopes: []string{"App"}, want: target.ID(), ok: true},
		{name: "qualified", input: "App.Target, App", scopes: []string{metadata.CoreLibrary}, want: target.ID(), ok: true},
		{name: "nested", input: "App.Target+Inner", scopes: []string{"App"}, want: nested.ID(), ok: true},
		{name: "array element", input: "App.Target[]", scopes: []string{"App"}, want: target.ID(), ok: true},
		{name: "core fallback", input: "System.String", scopes: []string{"App", metadata.CoreLibrary}, ok: true},
		{name: "missing", input: "App.Missing", scopes: []string{"App"}, ok: false},
		{name: "malformed", input: "App.Target[", scopes: []string{"App"}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveTypeName(f.model, tt.input, tt.scopes...)
			assert.Equal(t, tt.ok, ok)
			if tt.ok && tt.want != 0 {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFrameworkPatterns(t *testing.T) {
	b, f := newFixture()
	source := f.app.Class("App", "Log").Extends(f.core.EventSource.Ref())
	keywords := source.Nested("Keywords")
	flag := keywords.Field("Startup", metadata.Int32Ref()).Static().Literal()
	serializable := f.app.Class("App", "Payload").Implements(f.core.ISerializable.Ref())
	serCtor := serializable.Ctor(
		metadata.Named(metadata.CoreLibrary, metadata.TypeSerializationInfo),
		metadata.Named(metadata.CoreLibrary, metadata.TypeStreamingContext),
	)
	marshaler := f.app.Class("App", "Marshaler").Implements(f.core.Marshaler.Ref())
	factory := marshaler.Method("GetInstance", metadata.ObjectRef(), metadata.StringRef()).Static()
	plain := f.app.Class("App", "Plain")
	f.build(t, b)

	members := EventSourceMembers(f.model, source.ID())
	assert.Contains(t, members, metadata.TypeEntity(keywords.ID()))
	assert.Contains(t, members, metadata.FieldEntity(flag.ID()))
	assert.Empty(t, EventSourceMembers(f.model, plain.ID()))

	got, ok := SerializationConstructor(f.model, serializable.ID())
	require.True(t, ok)
	assert.Equal(t, serCtor.ID(), got)
	_, ok = SerializationConstructor(f.model, plain.ID())
	assert.False(t, ok)

	got, ok = MarshalerGetInstance(f.model, marshaler.ID())
	require.True(t, ok)
	assert.Equal(t, factory.ID(), got)

	assert.True(t, Implements(f.model, serializable.ID(), f.core.ISerializable.ID()))
	assert.False(t, Implements(f.model, plain.ID(), f.core.ISerializable.ID()))
}
