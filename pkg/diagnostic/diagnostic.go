// Package diagnostic collects the classified messages a link produces. Every
// diagnosable condition has a stable numeric code; the collector emits each
// (code, origin, message) triple exactly once.
package diagnostic

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Severity is the level of a diagnostic.
type Severity uint8

const (
	// Info is an informational message.
	Info Severity = iota
	// Warning never stops the pipeline.
	Warning
	// Error aborts the link before anything is swept.
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Code is a stable diagnostic number.
type Code int

const (
	// Loading and resolution.
	CodeUnresolvedType     Code = 1001
	CodeUnresolvedMember   Code = 1002
	CodeUnresolvedAssembly Code = 1003
	CodeMissingEntryPoint  Code = 1004
	CodeInvalidOption      Code = 1005

	// Rewriting.
	CodeUnsupportedStub     Code = 1040
	CodeMissingThrowHelper  Code = 1041
	CodeMissingBaseCtorStub Code = 1042

	// Preservation rules.
	CodeDescriptorMalformed          Code = 2001
	CodeDescriptorUnresolvedAssembly Code = 2002
	CodeDescriptorUnresolvedType     Code = 2003
	CodeDescriptorUnresolvedMember   Code = 2004
	CodeDescriptorInvalidValue       Code = 2005
	CodeDynamicDependencyMalformed   Code = 2010
	CodeDynamicDependencyUnresolved  Code = 2011
	CodeRootAttributeMalformed       Code = 2012

	// Reflection.
	CodeRequiresUnreferencedCode      Code = 2026
	CodeUnrecognizedReflectionPattern Code = 2057
	CodeDynamicallyAccessedMismatch   Code = 2067
	CodeUnresolvedTypeName            Code = 2072
)

type codeInfo struct {
	severity Severity
	title    string
}

var codes = map[Code]codeInfo{
	CodeUnresolvedType:                {Error, "unresolved type"},
	CodeUnresolvedMember:              {Error, "unresolved member"},
	CodeUnresolvedAssembly:            {Error, "unresolved assembly"},
	CodeMissingEntryPoint:             {Error, "root assembly has no entry point"},
	CodeInvalidOption:                 {Error, "invalid option"},
	CodeUnsupportedStub:               {Error, "unsupported stub shape"},
	CodeMissingThrowHelper:            {Error, "throw helper unavailable"},
	CodeMissingBaseCtorStub:           {Error, "base constructor unavailable for stub"},
	CodeDescriptorMalformed:           {Warning, "malformed descriptor"},
	CodeDescriptorUnresolvedAssembly:  {Warning, "descriptor assembly not found"},
	CodeDescriptorUnresolvedType:      {Warning, "descriptor type not found"},
	CodeDescriptorUnresolvedMember:    {Warning, "descriptor member not found"},
	CodeDescriptorInvalidValue:        {Warning, "invalid descriptor value"},
	CodeDynamicDependencyMalformed:    {Warning, "malformed dynamic dependency"},
	CodeDynamicDependencyUnresolved:   {Warning, "dynamic dependency not found"},
	CodeRootAttributeMalformed:        {Warning, "malformed root attribute"},
	CodeRequiresUnreferencedCode:      {Warning, "requires unreferenced code"},
	CodeUnrecognizedReflectionPattern: {Warning, "unrecognized reflection pattern"},
	CodeDynamicallyAccessedMismatch:   {Warning, "dynamically accessed members mismatch"},
	CodeUnresolvedTypeName:            {Warning, "type name not resolved"},
}

// DefaultSeverity returns the severity a code is reported with before overrides.
func (c Code) DefaultSeverity() Severity {
	if info, ok := codes[c]; ok {
		return info.severity
	}
	return Warning
}

// Title is a short description of the condition.
func (c Code) Title() string {
	if info, ok := codes[c]; ok {
		return info.title
	}
	return "diagnostic"
}

func (c Code) String() string {
	return fmt.Sprintf("IL%04d", int(c))
}

// Diagnostic is one classified message.
type Diagnostic struct {
	Code     Code
	Severity Severity
	Origin   string // entity token, descriptor location or file
	Message  string
}

func (d Diagnostic) String() string {
	if d.Origin == "" {
		return fmt.Sprintf("%s %s: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s %s: %s", d.Origin, d.Severity, d.Code, d.Message)
}

// Sentinel errors wrapped by fatal diagnostics.
var (
	ErrUnresolved      = errors.New("unresolved reference")
	ErrUnsupportedStub = errors.New("unsupported stub shape")
	ErrErrorsReported  = errors.New("errors reported")
)

// FatalError aborts a link. It carries the diagnostic that caused it.
type FatalError struct {
	Diagnostic Diagnostic
	Err        error
}

func (e *FatalError) Error() string {
	return e.Diagnostic.String()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal builds a FatalError for code wrapping err.
func Fatal(code Code, origin string, err error, format string, args ...any) *FatalError {
	return &FatalError{
		Diagnostic: Diagnostic{
			Code:     code,
			Severity: Error,
			Origin:   origin,
			Message:  fmt.Sprintf(format, args...),
		},
		Err: err,
	}
}

type key struct {
	code    Code
	origin  string
	message string
}

// Collector accumulates diagnostics for one link. It is not safe for concurrent use.
type Collector struct {
	logger      *zap.Logger
	noWarn      map[Code]bool
	warnAsError map[Code]bool
	allAsError  bool
	seen        map[key]bool
	items       []Diagnostic
	suppressed  int
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger mirrors every diagnostic to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNoWarn suppresses warnings and infos with the given codes.
func WithNoWarn(codes ...Code) Option {
	return func(c *Collector) {
		for _, code := range codes {
			c.noWarn[code] = true
		}
	}
}

// WithWarnAsError promotes the given warning codes to errors.
func WithWarnAsError(codes ...Code) Option {
	return func(c *Collector) {
		for _, code := range codes {
			c.warnAsError[code] = true
		}
	}
}

// WithAllWarningsAsErrors promotes every warning.
func WithAllWarningsAsErrors() Option {
	return func(c *Collector) {
		c.allAsError = true
	}
}

// NewCollector creates an empty collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		logger:      zap.NewNop(),
		noWarn:      make(map[Code]bool),
		warnAsError: make(map[Code]bool),
		seen:        make(map[key]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Report records a diagnostic with the default severity of code. It returns the
// recorded diagnostic and false when it was a duplicate or suppressed.
func (c *Collector) Report(code Code, origin, format string, args ...any) (Diagnostic, bool) {
	return c.ReportSeverity(code, code.DefaultSeverity(), origin, format, args...)
}

// ReportSeverity records a diagnostic with an explicit base severity.
func (c *Collector) ReportSeverity(code Code, sev Severity, origin, format string, args ...any) (Diagnostic, bool) {
	d := Diagnostic{Code: code, Severity: sev, Origin: origin, Message: fmt.Sprintf(format, args...)}
	k := key{code: code, origin: origin, message: d.Message}
	if c.seen[k] {
		return d, false
	}
	c.seen[k] = true

	if d.Severity == Warning && (c.allAsError || c.warnAsError[code]) {
		d.Severity = Error
	}
	if d.Severity != Error && c.noWarn[code] {
		c.suppressed++
		return d, false
	}
	c.items = append(c.items, d)
	c.log(d)
	return d, true
}

func (c *Collector) log(d Diagnostic) {
	fields := []zap.Field{
		zap.String("code", d.Code.String()),
		zap.String("origin", d.Origin),
	}
	switch d.Severity {
	case Error:
		c.logger.Error(d.Message, fields...)
	case Warning:
		c.logger.Warn(d.Message, fields...)
	default:
		c.logger.Info(d.Message, fields...)
	}
}

// Diagnostics returns recorded diagnostics in report order.
func (c *Collector) Diagnostics() []Diagnostic {
	return c.items
}

// ByCode returns the recorded diagnostics with the given code.
func (c *Collector) ByCode(code Code) []Diagnostic {
	var out []Diagnostic
	for _, d := range c.items {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Count returns how many diagnostics of severity were recorded.
func (c *Collector) Count(sev Severity) int {
	n := 0
	for _, d := range c.items {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// HasErrors reports whether any error was recorded.
func (c *Collector) HasErrors() bool {
	return c.Count(Error) > 0
}

// Suppressed returns how many diagnostics no_warn dropped.
func (c *Collector) Suppressed() int {
	return c.suppressed
}

// Err returns nil when no error was recorded, otherwise an error listing the first one.
func (c *Collector) Err() error {
	for _, d := range c.items {
		if d.Severity == Error {
			return &FatalError{Diagnostic: d, Err: ErrErrorsReported}
		}
	}
	return nil
}

// Summary counts recorded diagnostics per code, ordered by code.
func (c *Collector) Summary() []CodeCount {
	counts := make(map[Code]int)
	for _, d := range c.items {
		counts[d.Code]++
	}
	out := make([]CodeCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, CodeCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// CodeCount is one row of Summary.
type CodeCount struct {
	Code  Code
	Count int
}

// ParseCodes converts numbers or "IL"-prefixed strings to codes.
func ParseCodes(values []string) ([]Code, error) {
	out := make([]Code, 0, len(values))
	for _, v := range values {
		var n int
		if _, err := fmt.Sscanf(v, "IL%d", &n); err != nil {
			if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
				return nil, fmt.Errorf("invalid diagnostic code %q", v)
			}
		}
		out = append(out, Code(n))
	}
	return out, nil
}
