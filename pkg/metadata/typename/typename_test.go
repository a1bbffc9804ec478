package typename

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/iltrim/pkg/metadata"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		wantRef  string
		wantAsm  string
		wantKind Kind
	}{
		{"System.Int32", "System.Int32", "", Simple},
		{"App.Outer+Inner", "App.Outer/Inner", "", Simple},
		{"App.Outer/Inner", "App.Outer/Inner", "", Simple},
		{"App.Foo, App", "App.Foo", "App", Simple},
		{"App.Foo, App, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null", "App.Foo", "App", Simple},
		{"App.Foo[]", "App.Foo[]", "", Array},
		{"App.Foo[,,]", "App.Foo[,,]", "", Array},
		{"App.Foo[*]", "App.Foo[]", "", Array},
		{"App.Foo*", "App.Foo*", "", Pointer},
		{"App.Foo&", "App.Foo&", "", ByRef},
		{"App.Foo[][,]", "App.Foo[][,]", "", Array},
		{"System.Collections.Generic.List`1[System.Int32]", "System.Collections.Generic.List`1<System.Int32>", "", Generic},
		{
			"System.Collections.Generic.Dictionary`2[[System.String, mscorlib],[App.Foo, App]], mscorlib",
			"System.Collections.Generic.Dictionary`2<System.String,App.Foo>",
			"mscorlib",
			Generic,
		},
		{"App.Outer`1+Inner`1[System.Int32,System.String]", "App.Outer`1/Inner`1<System.Int32,System.String>", "", Generic},
		{"!0", "!0", "", TypeParam},
		{"!!1[]", "!!1[]", "", Array},
		{`App.Weird\+Name`, "App.Weird+Name", "", Simple},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, n.Kind)
			assert.Equal(t, tt.wantAsm, n.Assembly)
			assert.Equal(t, tt.wantRef, n.ToTypeRef("").String())
		})
	}
}

func TestParseScopes(t *testing.T) {
	n, err := Parse("System.Collections.Generic.List`1[[App.Foo, App]], System.Private.CoreLib")
	require.NoError(t, err)

	ref := n.ToTypeRef("Caller")
	require.Equal(t, metadata.RefGenericInstance, ref.Kind)
	assert.Equal(t, "System.Private.CoreLib", ref.Element.Scope)
	assert.Equal(t, "App", ref.Args[0].Scope)

	plain, err := Parse("App.Foo")
	require.NoError(t, err)
	assert.Equal(t, "Caller", plain.ToTypeRef("Caller").Scope)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{"", "expected type name"},
		{"App.Foo, ", "empty assembly name"},
		{"List`1[System.Int32,System.String]", "expects 1 type arguments, got 2"},
		{"App.Foo[System.Int32]", "expects 0 type arguments, got 1"},
		{"App.Foo[", "unterminated array rank"},
		{"App.Foo&[]", "decoration after by-ref"},
		{"List`1[[System.Int32", "expected ']'"},
		{"!x", "expected generic parameter position"},
		{`App.Foo\`, "dangling escape"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Contains(t, pe.Msg, tt.msg)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, in := range []string{
		"App.Outer+Inner",
		"App.Foo[,]",
		"System.Collections.Generic.List`1[[App.Foo, App]]",
	} {
		n, err := Parse(in)
		require.NoError(t, err)
		again, err := Parse(n.String())
		require.NoError(t, err)
		assert.Equal(t, n, again)
	}
}

func TestDefinition(t *testing.T) {
	n, err := Parse("System.Collections.Generic.List`1[System.Int32][]")
	require.NoError(t, err)
	assert.Equal(t, "System.Collections.Generic.List`1", n.Definition().FullName)
}

func TestFormatParsesBack(t *testing.T) {
	refs := []metadata.TypeRef{
		metadata.Named("App", "App.Outer/Inner"),
		metadata.ArrayOf(metadata.Named("App", "App.Foo"), 2),
		metadata.ByRefTo(metadata.PointerTo(metadata.Named("", "App.Foo"))),
		metadata.GenericInst(metadata.Named("System.Private.CoreLib", "System.Collections.Generic.List`1"), metadata.Named("App", "App.Foo")),
		metadata.ArrayOf(metadata.MethodParam(0), 1),
		metadata.Named("App", "App.Weird+Name"),
	}
	for _, ref := range refs {
		t.Run(ref.String(), func(t *testing.T) {
			n, err := Parse(Format(ref))
			require.NoError(t, err)
			got := n.ToTypeRef("")
			assert.True(t, metadata.SignatureEqual(ref, got), "%s != %s", ref, got)
			assert.Equal(t, Format(ref), Format(got))
		})
	}
}
