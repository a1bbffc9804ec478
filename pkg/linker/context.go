// Package linker holds the state shared by the stages of a link and the ordered
// pipeline that runs them.
package linker

import (
	"go.uber.org/zap"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/metadata"
	"github.com/panbanda/iltrim/pkg/metadata/document"
)

// RootMode selects which entities of a root assembly start the walk.
type RootMode string

const (
	// RootEntry roots the entry point only.
	RootEntry RootMode = "entry"
	// RootVisible roots every externally visible type and member.
	RootVisible RootMode = "visible"
	// RootAll roots everything in the assembly.
	RootAll RootMode = "all"
)

// RootAssembly is an assembly named as a root together with its mode.
type RootAssembly struct {
	Assembly string
	Mode     RootMode
}

// Policies are the optimization switches of the mark engine.
type Policies struct {
	// OverrideRemoval elides overrides on types that are never instantiated.
	OverrideRemoval bool
	// UnusedInterfaces drops interface implementations nothing needs.
	UnusedInterfaces bool
	// UnreachableBodies turns instance methods of never-instantiated types into throws.
	UnreachableBodies bool
	// UsedAttributesOnly keeps an attribute only when its type is otherwise used.
	UsedAttributesOnly bool
	// BaseTypeElision drops base type edges of uninstantiated types when allowed.
	BaseTypeElision bool
}

// DefaultPolicies enables every optimization except unreachable body rewriting.
func DefaultPolicies() Policies {
	return Policies{
		OverrideRemoval:  true,
		UnusedInterfaces: true,
		BaseTypeElision:  true,
	}
}

// StagePlacement inserts a registered stage relative to an existing one.
type StagePlacement struct {
	Name   string
	Before string
	After  string
}

// Options configure one link.
type Options struct {
	Roots            []RootAssembly
	Descriptors      []string
	RootAttributes   []string
	DefaultAction    annotations.AssemblyAction
	Actions          map[string]annotations.AssemblyAction
	IgnoreUnresolved bool
	Policies         Policies
	OutputDir        string
	OutputFormat     document.Format
	DependencyFile   string
	ExtraStages      []StagePlacement
}

// Root is an entity the walk starts from.
type Root struct {
	Entity metadata.Entity
	Reason Reason
}

// Context is the state of one link, handed to every stage.
type Context struct {
	Model       *metadata.Model
	Store       *annotations.Store
	Diagnostics *diagnostic.Collector
	Logger      *zap.Logger
	Recorder    DependencyRecorder
	Options     Options
	Roots       []Root
	Report      *Report
}

// NewContext creates a context with a fresh store over m.
func NewContext(m *metadata.Model, opts Options, logger *zap.Logger, diags *diagnostic.Collector) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	if diags == nil {
		diags = diagnostic.NewCollector(diagnostic.WithLogger(logger))
	}
	return &Context{
		Model:       m,
		Store:       annotations.NewStore(m),
		Diagnostics: diags,
		Logger:      logger,
		Recorder:    NopRecorder{},
		Options:     opts,
		Report:      &Report{},
	}
}

// AddRoot appends a root. Duplicates are harmless; marking is idempotent.
func (c *Context) AddRoot(e metadata.Entity, reason Reason) {
	c.Roots = append(c.Roots, Root{Entity: e, Reason: reason})
}

// Origin renders e for diagnostics.
func (c *Context) Origin(e metadata.Entity) string {
	return c.Model.Token(e)
}
