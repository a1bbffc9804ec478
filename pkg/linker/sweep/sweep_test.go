package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/iltrim/internal/testutil"
	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/linker/descriptor"
	"github.com/panbanda/iltrim/pkg/linker/mark"
	"github.com/panbanda/iltrim/pkg/metadata"
)

type program struct {
	b       *metadata.Builder
	core    *testutil.Core
	widget  *metadata.TypeBuilder
	run     *metadata.MethodBuilder
	unused  *metadata.MethodBuilder
	ping    *metadata.MethodBuilder
	count   *metadata.FieldBuilder
	spare   *metadata.FieldBuilder
	iface   *metadata.TypeBuilder
	base    *metadata.TypeBuilder
	derived *metadata.TypeBuilder
	orphan  *metadata.TypeBuilder
	note    *metadata.TypeBuilder
	spareLn *metadata.TypeBuilder
}

func newProgram() *program {
	b := metadata.NewBuilder()
	p := &program{b: b, core: testutil.CoreLibrary(b)}
	objCtor := p.core.ObjectCtor.Ref()
	chain := func(tb *metadata.TypeBuilder, base metadata.MethodRef) *metadata.MethodBuilder {
		return tb.Ctor().Body(
			metadata.OpInt(metadata.Ldarg, 0),
			metadata.OpMethod(metadata.Call, base),
			metadata.Op(metadata.Ret),
		)
	}

	plugins := b.Assembly("plugins")
	entry := plugins.Class("Plugins", "Entry")
	goMethod := entry.Method("Go", metadata.VoidRef()).Static().Body(metadata.Op(metadata.Ret))
	p.spareLn = plugins.Class("Plugins", "Spare")

	b.Assembly("extras").Class("Extras", "Never")
	b.Assembly("unused").Class("Unused", "Nothing")
	b.Assembly("skipped").Class("Skipped", "Untouched")

	app := b.Assembly("app")
	app.Forward("Moved.Thing", "plugins")
	p.note = app.Class("App", "NoteAttribute")
	chain(p.note, objCtor)

	p.iface = app.Interface("App", "IUnused")
	ifacePing := p.iface.Method("Ping", metadata.VoidRef()).Abstract()

	p.widget = app.Class("App", "Widget").Implements(p.iface.Ref()).Attr(metadata.NewAttribute(p.note.Ref()))
	widgetCtor := chain(p.widget, objCtor)
	p.count = p.widget.Field("Count", metadata.Int32Ref()).Static()
	p.spare = p.widget.Field("spare", metadata.Int32Ref())
	p.run = p.widget.Method("Run", metadata.VoidRef()).Body(
		metadata.OpField(metadata.Ldsfld, p.count.Ref()),
		metadata.Op(metadata.Pop),
		metadata.Op(metadata.Ret),
	)
	p.unused = p.widget.Method("Unused", metadata.VoidRef()).Body(metadata.Op(metadata.Ret))
	p.ping = p.widget.Method("Ping", metadata.VoidRef()).Virtual().NewSlot().Final().
		Overrides(ifacePing.Ref()).Body(metadata.Op(metadata.Ret))
	getter := p.widget.Method("get_Name", metadata.StringRef()).Body(metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret))
	p.widget.Property("Name", metadata.StringRef(), getter, nil)

	p.base = app.Class("App", "Base")
	baseCtor := chain(p.base, objCtor)
	p.derived = app.Class("App", "Derived").Extends(p.base.Ref())
	chain(p.derived, baseCtor.Ref())
	util := p.derived.Method("Util", metadata.VoidRef()).Static().Body(metadata.Op(metadata.Ret))

	p.orphan = app.Class("App", "Orphan")

	main := app.Class("App", "Program").Method("Main", metadata.VoidRef()).Static().Body(
		metadata.OpMethod(metadata.Newobj, widgetCtor.Ref()),
		metadata.OpMethod(metadata.Callvirt, p.run.Ref()),
		metadata.OpMethod(metadata.Call, util.Ref()),
		metadata.OpMethod(metadata.Call, goMethod.Ref()),
		metadata.Op(metadata.Ret),
	)
	app.EntryPoint(main.Ref())
	return p
}

func (p *program) link(t *testing.T, policies linker.Policies) *linker.Context {
	t.Helper()
	m := testutil.BuildModel(t, p.b)
	ctx := linker.NewContext(m, linker.Options{
		Roots:    []linker.RootAssembly{{Assembly: "app", Mode: linker.RootEntry}},
		Policies: policies,
		Actions: map[string]annotations.AssemblyAction{
			"plugins": annotations.ActionCopyUsed,
			"extras":  annotations.ActionCopyUsed,
			"skipped": annotations.ActionSkip,
		},
	}, nil, nil)
	require.NoError(t, descriptor.New(ctx).Run())
	require.NoError(t, mark.New(ctx).Run())
	require.NoError(t, New(ctx).Run())
	return ctx
}

func TestAssemblyActionsSettle(t *testing.T) {
	p := newProgram()
	ctx := p.link(t, linker.DefaultPolicies())

	actions := make(map[string]string)
	for _, a := range ctx.Report.Assemblies {
		actions[a.Name] = a.Action
	}
	assert.Equal(t, map[string]string{
		metadata.CoreLibrary: "link",
		"plugins":            "copy",
		"extras":             "delete",
		"unused":             "delete",
		"skipped":            "skip",
		"app":                "link",
	}, actions)

	unused, _ := ctx.Model.AssemblyByName("unused")
	assert.Empty(t, ctx.Model.Assembly(unused).Types)
	assert.Equal(t, annotations.ActionDelete, ctx.Store.GetAction(unused))
	assert.Contains(t, ctx.Report.Removed, ctx.Model.Token(metadata.AssemblyEntity(unused)))

	skipped, _ := ctx.Model.AssemblyByName("skipped")
	assert.Len(t, ctx.Model.Assembly(skipped).Types, 1, "skipped assemblies are left alone")

	plugins, _ := ctx.Model.AssemblyByName("plugins")
	assert.Len(t, ctx.Model.Assembly(plugins).Types, 2)
	assert.Equal(t, 2, ctx.Report.Assembly("plugins").Kept.Types)
}

func TestLinkedAssemblyLosesUnmarkedMembers(t *testing.T) {
	p := newProgram()
	ctx := p.link(t, linker.DefaultPolicies())
	m := ctx.Model

	widget := m.Type(p.widget.ID())
	assert.NotContains(t, widget.Methods, p.unused.ID())
	assert.NotContains(t, widget.Methods, p.ping.ID(), "interface slot never used")
	assert.Contains(t, widget.Methods, p.run.ID())
	assert.Equal(t, []metadata.FieldID{p.count.ID()}, widget.Fields)
	assert.Empty(t, widget.Properties)
	assert.Empty(t, widget.Interfaces)
	assert.Len(t, widget.Attributes, 1, "attributes are kept by default")

	app, _ := m.AssemblyByName("app")
	asm := m.Assembly(app)
	assert.NotContains(t, asm.Types, p.orphan.ID())
	assert.NotContains(t, asm.Types, p.iface.ID())
	assert.Empty(t, asm.Exported, "unused forwarder")
	require.NotNil(t, asm.EntryPoint)

	_, found := m.TypeByName(app, "App.Orphan")
	assert.False(t, found)
	assert.Contains(t, ctx.Report.Removed, m.Token(metadata.TypeEntity(p.orphan.ID())))

	rep := ctx.Report.Assembly("app")
	assert.Equal(t, 3, rep.Removed.Types, "IUnused, Base and Orphan")
	assert.Equal(t, 4, rep.Kept.Types)
	assert.Equal(t, 1, rep.Removed.Properties)
	assert.Equal(t, 1, rep.Removed.Fields)
}

func TestDroppedBaseEdgeBecomesObject(t *testing.T) {
	p := newProgram()
	ctx := p.link(t, linker.DefaultPolicies())
	m := ctx.Model

	derived := m.Type(p.derived.ID())
	require.NotNil(t, derived.BaseType)
	assert.True(t, derived.BaseType.Is(metadata.TypeObject))
	app, _ := m.AssemblyByName("app")
	assert.NotContains(t, m.Assembly(app).Types, p.base.ID())
}

func TestBaseEdgeKeptWithoutElision(t *testing.T) {
	p := newProgram()
	policies := linker.DefaultPolicies()
	policies.BaseTypeElision = false
	ctx := p.link(t, policies)

	derived := ctx.Model.Type(p.derived.ID())
	assert.True(t, derived.BaseType.Is("App.Base"))
	app, _ := ctx.Model.AssemblyByName("app")
	assert.Contains(t, ctx.Model.Assembly(app).Types, p.base.ID())
}

func TestUnusedAttributesDropped(t *testing.T) {
	p := newProgram()
	policies := linker.DefaultPolicies()
	policies.UsedAttributesOnly = true
	ctx := p.link(t, policies)

	assert.Empty(t, ctx.Model.Type(p.widget.ID()).Attributes)
	app, _ := ctx.Model.AssemblyByName("app")
	assert.NotContains(t, ctx.Model.Assembly(app).Types, p.note.ID())
}

func TestUnusedInterfacesKeptWithoutPolicy(t *testing.T) {
	p := newProgram()
	policies := linker.DefaultPolicies()
	policies.UnusedInterfaces = false
	ctx := p.link(t, policies)

	widget := ctx.Model.Type(p.widget.ID())
	require.Len(t, widget.Interfaces, 1)
	assert.True(t, widget.Interfaces[0].Interface.Is("App.IUnused"))
}

func TestStageName(t *testing.T) {
	assert.Equal(t, "sweep", Stage().Name())
}
