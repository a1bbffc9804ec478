// Package typename parses the CLR type-name grammar used by reflection strings
// (Type.GetType, DynamicDependency type names) and by assembly documents.
//
// Supported forms:
//
//	Namespace.Name                      simple name
//	Namespace.Outer+Inner               nested types ('/' is accepted too)
//	Namespace.List`1[System.Int32]      generic instance, arguments bare or [[qualified]]
//	Name[]  Name[,]  Name[*]  Name*  Name&   decorations, applied left to right
//	Name, AssemblyName, Version=...     assembly-qualified
//	!0  !!0                             type and method generic parameters
//
// Special characters can be escaped with a backslash.
package typename

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/panbanda/iltrim/pkg/metadata"
)

// Kind is the shape of a parsed name.
type Kind uint8

const (
	Simple Kind = iota
	Generic
	Array
	Pointer
	ByRef
	TypeParam
	MethodParam
)

// Name is a parsed type name.
type Name struct {
	Kind Kind
	// FullName is the namespace-qualified name of a Simple type; nested types are
	// joined with '/'.
	FullName string
	Element  *Name
	Args     []*Name
	Rank     int
	Position int
	// Assembly is the simple assembly name, when qualified.
	Assembly string
}

// ParseError reports a malformed type name.
type ParseError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("type name %q: %s at offset %d", e.Input, e.Msg, e.Offset)
}

// Parse parses an optionally assembly-qualified type name.
func Parse(s string) (*Name, error) {
	p := &parser{in: s}
	n, err := p.qualified(true)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.peek())
	}
	return n, nil
}

// ToTypeRef converts n to a metadata reference. Names without an assembly use scope.
func (n *Name) ToTypeRef(scope string) metadata.TypeRef {
	if n.Assembly != "" {
		scope = n.Assembly
	}
	switch n.Kind {
	case Generic:
		args := make([]metadata.TypeRef, len(n.Args))
		for i, a := range n.Args {
			args[i] = a.ToTypeRef(scope)
		}
		return metadata.GenericInst(n.Element.ToTypeRef(scope), args...)
	case Array:
		return metadata.ArrayOf(n.Element.ToTypeRef(scope), n.Rank)
	case Pointer:
		return metadata.PointerTo(n.Element.ToTypeRef(scope))
	case ByRef:
		return metadata.ByRefTo(n.Element.ToTypeRef(scope))
	case TypeParam:
		return metadata.TypeParam(n.Position)
	case MethodParam:
		return metadata.MethodParam(n.Position)
	default:
		return metadata.Named(scope, n.FullName)
	}
}

// Definition returns the innermost simple name, the type definition n is built on.
func (n *Name) Definition() *Name {
	cur := n
	for cur.Element != nil {
		cur = cur.Element
	}
	return cur
}

// String renders n in reflection syntax, nested types with '+'.
func (n *Name) String() string {
	var sb strings.Builder
	n.write(&sb)
	if n.Assembly != "" {
		sb.WriteString(", ")
		sb.WriteString(n.Assembly)
	}
	return sb.String()
}

func (n *Name) write(sb *strings.Builder) {
	switch n.Kind {
	case Simple:
		sb.WriteString(strings.ReplaceAll(n.FullName, "/", "+"))
	case Generic:
		n.Element.write(sb)
		sb.WriteByte('[')
		for i, a := range n.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('[')
			sb.WriteString(a.String())
			sb.WriteByte(']')
		}
		sb.WriteByte(']')
	case Array:
		n.Element.write(sb)
		sb.WriteByte('[')
		sb.WriteString(strings.Repeat(",", n.Rank-1))
		sb.WriteByte(']')
	case Pointer:
		n.Element.write(sb)
		sb.WriteByte('*')
	case ByRef:
		n.Element.write(sb)
		sb.WriteByte('&')
	case TypeParam:
		sb.WriteString("!" + strconv.Itoa(n.Position))
	case MethodParam:
		sb.WriteString("!!" + strconv.Itoa(n.Position))
	}
}

type parser struct {
	in  string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.in) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.in[p.pos]
}

func (p *parser) peekAt(off int) byte {
	if p.pos+off >= len(p.in) {
		return 0
	}
	return p.in[p.pos+off]
}

func (p *parser) skipSpace() {
	for !p.eof() && p.in[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Input: p.in, Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

// qualified parses a type name followed by an optional ", assembly" suffix. At the
// top level the assembly name runs to the end of input; inside brackets it stops at ']'.
func (p *parser) qualified(top bool) (*Name, error) {
	n, err := p.typeName()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != ',' {
		return n, nil
	}
	p.pos++
	start := p.pos
	for !p.eof() && (top || p.peek() != ']') {
		p.pos++
	}
	asm := strings.TrimSpace(p.in[start:p.pos])
	if i := strings.IndexByte(asm, ','); i >= 0 {
		asm = strings.TrimSpace(asm[:i])
	}
	if asm == "" {
		return nil, p.errorf("empty assembly name")
	}
	n.Assembly = asm
	return n, nil
}

func (p *parser) typeName() (*Name, error) {
	p.skipSpace()
	var n *Name
	if p.peek() == '!' {
		gp, err := p.genericParam()
		if err != nil {
			return nil, err
		}
		n = gp
	} else {
		simple, arity, err := p.nestedName()
		if err != nil {
			return nil, err
		}
		n = simple
		if p.peek() == '[' && p.isGenericOpen() {
			args, err := p.genericArgs()
			if err != nil {
				return nil, err
			}
			if arity != len(args) {
				return nil, p.errorf("%s expects %d type arguments, got %d", simple.FullName, arity, len(args))
			}
			n = &Name{Kind: Generic, Element: simple, Args: args}
		}
	}
	return p.decorations(n)
}

func (p *parser) genericParam() (*Name, error) {
	p.pos++
	kind := TypeParam
	if p.peek() == '!' {
		kind = MethodParam
		p.pos++
	}
	start := p.pos
	for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
		p.pos++
	}
	if start == p.pos {
		return nil, p.errorf("expected generic parameter position")
	}
	pos, err := strconv.Atoi(p.in[start:p.pos])
	if err != nil {
		return nil, p.errorf("bad generic parameter position: %v", err)
	}
	return &Name{Kind: kind, Position: pos}, nil
}

// nestedName reads identifiers joined by '+' or '/' and sums their backtick arities.
func (p *parser) nestedName() (*Name, int, error) {
	var parts []string
	arity := 0
	for {
		id, err := p.identifier()
		if err != nil {
			return nil, 0, err
		}
		if i := strings.LastIndexByte(id, '`'); i >= 0 {
			n, err := strconv.Atoi(id[i+1:])
			if err != nil || n < 0 {
				return nil, 0, p.errorf("bad generic arity in %q", id)
			}
			arity += n
		}
		parts = append(parts, id)
		if c := p.peek(); c != '+' && c != '/' {
			break
		}
		p.pos++
	}
	return &Name{Kind: Simple, FullName: strings.Join(parts, "/")}, arity, nil
}

func isSpecial(c byte) bool {
	switch c {
	case ',', '+', '/', '&', '*', '[', ']':
		return true
	}
	return false
}

func (p *parser) identifier() (string, error) {
	var sb strings.Builder
	for !p.eof() {
		c := p.peek()
		if c == '\\' {
			if p.pos+1 >= len(p.in) {
				return "", p.errorf("dangling escape")
			}
			sb.WriteByte(p.in[p.pos+1])
			p.pos += 2
			continue
		}
		if isSpecial(c) {
			break
		}
		sb.WriteByte(c)
		p.pos++
	}
	id := strings.TrimSpace(sb.String())
	if id == "" {
		return "", p.errorf("expected type name")
	}
	return id, nil
}

// isGenericOpen distinguishes "[[" / "[Name" (generic arguments) from "[]", "[,]"
// and "[*]" (array decorations).
func (p *parser) isGenericOpen() bool {
	next := p.peekAt(1)
	return next != ']' && next != ',' && next != '*' && next != 0
}

func (p *parser) genericArgs() ([]*Name, error) {
	p.pos++ // '['
	var args []*Name
	for {
		p.skipSpace()
		var arg *Name
		var err error
		if p.peek() == '[' {
			p.pos++
			arg, err = p.qualified(false)
			if err != nil {
				return nil, err
			}
			if p.peek() != ']' {
				return nil, p.errorf("expected ']' after qualified type argument")
			}
			p.pos++
		} else {
			arg, err = p.typeName()
			if err != nil {
				return nil, err
			}
		}
		args = append(args, arg)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return args, nil
		default:
			return nil, p.errorf("expected ',' or ']' in type argument list")
		}
	}
}

func (p *parser) decorations(n *Name) (*Name, error) {
	for {
		c := p.peek()
		if n.Kind == ByRef && (c == '*' || c == '&' || c == '[') {
			return nil, p.errorf("decoration after by-ref")
		}
		switch c {
		case '*':
			p.pos++
			n = &Name{Kind: Pointer, Element: n}
		case '&':
			p.pos++
			n = &Name{Kind: ByRef, Element: n}
		case '[':
			if p.isGenericOpen() {
				return nil, p.errorf("unexpected type argument list")
			}
			p.pos++
			rank := 1
			if p.peek() == '*' {
				p.pos++
			} else {
				for p.peek() == ',' {
					rank++
					p.pos++
				}
			}
			if p.peek() != ']' {
				return nil, p.errorf("unterminated array rank")
			}
			p.pos++
			n = &Name{Kind: Array, Element: n, Rank: rank}
		default:
			return n, nil
		}
	}
}

// Format renders ref in the grammar Parse accepts. The scope of the underlying
// definition qualifies the whole name; generic arguments carry their own scopes.
func Format(ref metadata.TypeRef) string {
	var sb strings.Builder
	formatBody(&sb, ref)
	if scope := definitionScope(ref); scope != "" {
		sb.WriteString(", ")
		sb.WriteString(scope)
	}
	return sb.String()
}

func definitionScope(ref metadata.TypeRef) string {
	cur := ref
	for cur.Element != nil {
		cur = *cur.Element
	}
	if cur.Kind == metadata.RefNamed {
		return cur.Scope
	}
	return ""
}

func formatBody(sb *strings.Builder, ref metadata.TypeRef) {
	switch ref.Kind {
	case metadata.RefNamed:
		sb.WriteString(escape(ref.Name))
	case metadata.RefGenericInstance:
		formatBody(sb, *ref.Element)
		sb.WriteByte('[')
		for i, a := range ref.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('[')
			sb.WriteString(Format(a))
			sb.WriteByte(']')
		}
		sb.WriteByte(']')
	case metadata.RefArray:
		formatBody(sb, *ref.Element)
		sb.WriteByte('[')
		sb.WriteString(strings.Repeat(",", ref.Rank-1))
		sb.WriteByte(']')
	case metadata.RefPointer:
		formatBody(sb, *ref.Element)
		sb.WriteByte('*')
	case metadata.RefByRef:
		formatBody(sb, *ref.Element)
		sb.WriteByte('&')
	case metadata.RefTypeParam:
		sb.WriteString("!" + strconv.Itoa(ref.Position))
	case metadata.RefMethodParam:
		sb.WriteString("!!" + strconv.Itoa(ref.Position))
	}
}

// escape backslash-escapes grammar characters; '/' stays the nesting separator.
func escape(name string) string {
	if !strings.ContainsAny(name, ",+&*[]\\") {
		return name
	}
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '\\' || (c != '/' && isSpecial(c)) {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
