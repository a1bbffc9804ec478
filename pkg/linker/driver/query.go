package driver

import (
	"strings"

	"github.com/panbanda/iltrim/pkg/metadata"
)

// FindEntities returns the entities a user query names. A query matches an
// entity's dump token ("MethodDef:System.Void App.Widget::Run()"), its display name,
// or "Decl::Member" for any member of the declaring type with that name.
func FindEntities(m *metadata.Model, query string) []metadata.Entity {
	var out []metadata.Entity
	match := func(e metadata.Entity, decl metadata.TypeID, member string) {
		if m.Token(e) == query || m.Name(e) == query ||
			(member != "" && m.Type(decl).FullName+"::"+member == query) {
			out = append(out, e)
		}
	}
	for i := range m.Assemblies {
		match(metadata.AssemblyEntity(metadata.AssemblyID(i)), metadata.NoType, "")
	}
	for i := range m.Types {
		match(metadata.TypeEntity(metadata.TypeID(i)), metadata.NoType, "")
	}
	for i, md := range m.Methods {
		match(metadata.MethodEntity(metadata.MethodID(i)), md.DeclaringType, md.Name)
	}
	for i, fd := range m.Fields {
		match(metadata.FieldEntity(metadata.FieldID(i)), fd.DeclaringType, fd.Name)
	}
	for i, p := range m.Properties {
		match(metadata.PropertyEntity(metadata.PropertyID(i)), p.DeclaringType, p.Name)
	}
	for i, ev := range m.Events {
		match(metadata.EventEntity(metadata.EventID(i)), ev.DeclaringType, ev.Name)
	}
	return out
}

// Explanation is the recorded chain that kept one entity, origin first.
type Explanation struct {
	Target string   `json:"target" toon:"target"`
	Kept   bool     `json:"kept" toon:"kept"`
	Chain  []string `json:"chain" toon:"chain"`
}

// Explain renders the why-kept chain of e from a recording link.
func Explain(res *Result, e metadata.Entity) Explanation {
	ex := Explanation{
		Target: res.Context.Model.Token(e),
		Kept:   res.Context.Store.IsMarked(e),
	}
	if res.Recorder == nil {
		return ex
	}
	for _, step := range res.Recorder.WhyKept(e) {
		ex.Chain = append(ex.Chain, res.Recorder.Token(step))
	}
	return ex
}

// String renders the chain as "a -> b -> c".
func (ex Explanation) String() string {
	if len(ex.Chain) == 0 {
		if ex.Kept {
			return ex.Target + " (no recorded chain)"
		}
		return ex.Target + " (removed)"
	}
	return strings.Join(ex.Chain, " -> ")
}
