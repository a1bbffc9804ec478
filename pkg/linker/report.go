package linker

import "github.com/panbanda/iltrim/pkg/metadata"

// KindCounts counts entities per member kind.
type KindCounts struct {
	Types      int `json:"types" toon:"types"`
	Methods    int `json:"methods" toon:"methods"`
	Fields     int `json:"fields" toon:"fields"`
	Properties int `json:"properties" toon:"properties"`
	Events     int `json:"events" toon:"events"`
}

// Add increments the counter for kind k.
func (c *KindCounts) Add(k metadata.Kind, n int) {
	switch k {
	case metadata.KindType:
		c.Types += n
	case metadata.KindMethod:
		c.Methods += n
	case metadata.KindField:
		c.Fields += n
	case metadata.KindProperty:
		c.Properties += n
	case metadata.KindEvent:
		c.Events += n
	}
}

// Total sums every counter.
func (c KindCounts) Total() int {
	return c.Types + c.Methods + c.Fields + c.Properties + c.Events
}

// AssemblyReport summarizes what happened to one assembly.
type AssemblyReport struct {
	Name    string     `json:"name" toon:"name"`
	Action  string     `json:"action" toon:"action"`
	Kept    KindCounts `json:"kept" toon:"kept"`
	Removed KindCounts `json:"removed" toon:"removed"`
	Output  string     `json:"output,omitempty" toon:"output"`
}

// RewriteRecord is one rewritten method body.
type RewriteRecord struct {
	Method string `json:"method" toon:"method"`
	Action string `json:"action" toon:"action"`
}

// Report is the user-facing result of a link.
type Report struct {
	Assemblies []AssemblyReport `json:"assemblies" toon:"assemblies"`
	Rewritten  []RewriteRecord  `json:"rewritten,omitempty" toon:"rewritten"`
	Removed    []string         `json:"removed,omitempty" toon:"removed"`
}

// Assembly returns the report entry for name, creating it on first use.
func (r *Report) Assembly(name string) *AssemblyReport {
	for i := range r.Assemblies {
		if r.Assemblies[i].Name == name {
			return &r.Assemblies[i]
		}
	}
	r.Assemblies = append(r.Assemblies, AssemblyReport{Name: name})
	return &r.Assemblies[len(r.Assemblies)-1]
}
