// Package rewrite replaces the bodies of kept methods whose implementation is
// discarded and folds substituted static field values into the code that reads
// them. Every pending rewrite is validated before anything is modified.
package rewrite

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/diagnostic"
	"github.com/panbanda/iltrim/pkg/linker"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// ThrowMessage is the message of the exception a converted body throws.
const ThrowMessage = "Linked away"

// Rewriter plans and applies body rewrites over one link context.
type Rewriter struct {
	ctx    *linker.Context
	model  *metadata.Model
	store  *annotations.Store
	logger *zap.Logger
}

// New creates a rewriter over ctx.
func New(ctx *linker.Context) *Rewriter {
	return &Rewriter{
		ctx:    ctx,
		model:  ctx.Model,
		store:  ctx.Store,
		logger: ctx.Logger.Named("rewrite"),
	}
}

// ValidateStage returns the stage that checks every pending rewrite. It runs
// before the sweep so an unsupported shape aborts with nothing modified.
func ValidateStage() linker.Stage {
	return linker.NewStage("validate-rewrites", func(ctx *linker.Context) error {
		_, err := New(ctx).Plan()
		return err
	})
}

// Stage returns the stage applying the rewrites.
func Stage() linker.Stage {
	return linker.NewStage("rewrite", func(ctx *linker.Context) error {
		return New(ctx).Run()
	})
}

// Edit is one planned body replacement.
type Edit struct {
	Method metadata.MethodID
	Action annotations.MethodAction
	Body   []metadata.Instruction
}

// Plan builds the replacement body of every marked method with a pending
// action. The first unsupported shape is reported and returned as a
// *diagnostic.FatalError.
func (r *Rewriter) Plan() ([]Edit, error) {
	var edits []Edit
	for _, id := range r.store.MethodsWithAction() {
		action := r.store.GetMethodAction(id)
		if !action.RewritesBody() || !r.pending(id) {
			continue
		}
		body, err := r.body(id, action)
		if err != nil {
			return nil, err
		}
		edits = append(edits, Edit{Method: id, Action: action, Body: body})
	}
	return edits, nil
}

// pending reports whether a rewrite of id reaches the output: the method is
// kept, has a body and lives in an assembly that is rewritten.
func (r *Rewriter) pending(id metadata.MethodID) bool {
	ent := metadata.MethodEntity(id)
	if !r.store.IsMarked(ent) || r.model.Method(id).Body == nil {
		return false
	}
	return r.rewritable(r.model.AssemblyOf(ent))
}

// rewritable reports whether bodies in asm may change. Copied and skipped
// assemblies are written as they were read.
func (r *Rewriter) rewritable(asm metadata.AssemblyID) bool {
	switch r.store.GetAction(asm) {
	case annotations.ActionSkip, annotations.ActionDelete, annotations.ActionCopy, annotations.ActionCopyUsed,
		annotations.ActionAddBypassNGen, annotations.ActionAddBypassNGenUsed:
		return false
	}
	return true
}

// Run applies every planned rewrite and folds field substitutions.
func (r *Rewriter) Run() error {
	edits, err := r.Plan()
	if err != nil {
		return err
	}
	for _, e := range edits {
		r.apply(e)
	}
	folded := r.foldFieldValues()

	r.logger.Info("rewrite complete",
		zap.Int("bodies", len(edits)),
		zap.Int("folded_loads", folded),
	)
	return nil
}

func (r *Rewriter) apply(e Edit) {
	md := r.model.Method(e.Method)
	md.Body = &metadata.MethodBody{Instructions: e.Body}
	md.Impl &^= metadata.ImplAggressiveInlining | metadata.ImplNoInlining
	r.ctx.Report.Rewritten = append(r.ctx.Report.Rewritten, linker.RewriteRecord{
		Method: r.model.MethodName(e.Method),
		Action: e.Action.String(),
	})
	r.logger.Debug("body rewritten",
		zap.String("method", r.model.MethodName(e.Method)),
		zap.Stringer("action", e.Action),
	)
}

func (r *Rewriter) body(id metadata.MethodID, action annotations.MethodAction) ([]metadata.Instruction, error) {
	switch action {
	case annotations.MethodConvertToThrow:
		return r.throwBody(id)
	case annotations.MethodConvertToThrowNull:
		return []metadata.Instruction{metadata.Op(metadata.Ldnull), metadata.Op(metadata.Throw)}, nil
	case annotations.MethodConvertToStub:
		return r.stubBody(id)
	case annotations.MethodConvertToReturn:
		return r.returnBody(id)
	default:
		panic(fmt.Sprintf("rewrite: %s does not rewrite a body", action))
	}
}

func (r *Rewriter) throwBody(id metadata.MethodID) ([]metadata.Instruction, error) {
	t, ok := r.model.ResolveType(metadata.Named("", metadata.TypeNotSupportedException))
	if ok {
		for _, ctor := range r.model.Constructors(t) {
			params := r.model.Method(ctor).Parameters
			if len(params) == 1 && params[0].Type.Is(metadata.TypeString) {
				return []metadata.Instruction{
					metadata.OpString(ThrowMessage),
					metadata.OpMethod(metadata.Newobj, r.model.MethodRefOf(ctor)),
					metadata.Op(metadata.Throw),
				}, nil
			}
		}
	}
	return nil, r.fail(diagnostic.CodeMissingThrowHelper, id, nil,
		"%s(string) is needed to convert %s to a throwing body", metadata.TypeNotSupportedException, r.model.MethodName(id))
}

// stubBody chains instance constructors to the base default constructor and
// returns false from boolean methods.
func (r *Rewriter) stubBody(id metadata.MethodID) ([]metadata.Instruction, error) {
	md := r.model.Method(id)
	var out []metadata.Instruction
	if md.IsConstructor() {
		td := r.model.Type(md.DeclaringType)
		if td.BaseType != nil && !td.IsValueType() {
			call, err := r.baseConstructorCall(id, *td.BaseType)
			if err != nil {
				return nil, err
			}
			out = append(out, metadata.OpInt(metadata.Ldarg, 0), call)
		}
	}
	switch {
	case md.ReturnType.Is(metadata.TypeVoid):
	case md.ReturnType.Is(metadata.TypeBoolean):
		out = append(out, metadata.OpInt(metadata.LdcI4, 0))
	default:
		return nil, r.unsupported(id, "stub", md.ReturnType)
	}
	return append(out, metadata.Op(metadata.Ret)), nil
}

func (r *Rewriter) baseConstructorCall(id metadata.MethodID, base metadata.TypeRef) (metadata.Instruction, error) {
	bt, ok := r.model.ResolveType(base)
	if ok {
		if ctor, ok := r.model.DefaultConstructor(bt); ok && r.store.IsMarked(metadata.MethodEntity(ctor)) {
			ref := r.model.MethodRefOf(ctor)
			ref.DeclaringType = base
			return metadata.OpMethod(metadata.Call, ref), nil
		}
	}
	return metadata.Instruction{}, r.fail(diagnostic.CodeMissingBaseCtorStub, id, nil,
		"base type %s of %s has no kept default constructor", base, r.model.MethodName(id))
}

// returnBody returns the recorded value, or the default of a reference or
// boolean return type.
func (r *Rewriter) returnBody(id metadata.MethodID) ([]metadata.Instruction, error) {
	md := r.model.Method(id)
	ret := md.ReturnType
	if v, ok := r.store.GetStubValue(id); ok {
		load, err := constantLoad(v)
		if err != nil {
			return nil, r.fail(diagnostic.CodeUnsupportedStub, id, diagnostic.ErrUnsupportedStub,
				"return value for %s: %v", r.model.MethodName(id), err)
		}
		return []metadata.Instruction{load, metadata.Op(metadata.Ret)}, nil
	}
	switch {
	case ret.Is(metadata.TypeVoid):
		return []metadata.Instruction{metadata.Op(metadata.Ret)}, nil
	case ret.Is(metadata.TypeBoolean):
		return []metadata.Instruction{metadata.OpInt(metadata.LdcI4, 0), metadata.Op(metadata.Ret)}, nil
	case r.isReference(ret):
		return []metadata.Instruction{metadata.Op(metadata.Ldnull), metadata.Op(metadata.Ret)}, nil
	default:
		return nil, r.unsupported(id, "return", ret)
	}
}

// isReference reports whether values of ref are object references. Generic
// parameters are not, since they may be bound to value types.
func (r *Rewriter) isReference(ref metadata.TypeRef) bool {
	switch ref.Kind {
	case metadata.RefArray:
		return true
	case metadata.RefNamed, metadata.RefGenericInstance:
		t, ok := r.model.ResolveType(ref)
		return ok && !r.model.Type(t).IsValueType()
	default:
		return false
	}
}

// constantLoad is the instruction pushing a substituted constant.
func constantLoad(v metadata.AttributeArg) (metadata.Instruction, error) {
	switch v.Kind {
	case metadata.ArgNull:
		return metadata.Op(metadata.Ldnull), nil
	case metadata.ArgString:
		return metadata.OpString(v.Str), nil
	case metadata.ArgBool:
		if v.Bool {
			return metadata.OpInt(metadata.LdcI4, 1), nil
		}
		return metadata.OpInt(metadata.LdcI4, 0), nil
	case metadata.ArgInt:
		if v.Type.Is(metadata.TypeInt64) {
			return metadata.OpInt(metadata.LdcI8, v.Int), nil
		}
		return metadata.OpInt(metadata.LdcI4, v.Int), nil
	default:
		return metadata.Instruction{}, fmt.Errorf("%s values cannot be loaded as constants", v.Type)
	}
}

func (r *Rewriter) unsupported(id metadata.MethodID, action string, ret metadata.TypeRef) error {
	return r.fail(diagnostic.CodeUnsupportedStub, id, diagnostic.ErrUnsupportedStub,
		"cannot synthesize a %s body returning %s for %s", action, ret, r.model.MethodName(id))
}

func (r *Rewriter) fail(code diagnostic.Code, id metadata.MethodID, err error, format string, args ...any) error {
	origin := r.ctx.Origin(metadata.MethodEntity(id))
	r.ctx.Diagnostics.Report(code, origin, format, args...)
	return diagnostic.Fatal(code, origin, err, format, args...)
}

// foldFieldValues replaces loads of substituted static fields with the
// substituted constant in every kept body. It returns how many loads changed.
func (r *Rewriter) foldFieldValues() int {
	values := make(map[metadata.FieldID]metadata.Instruction)
	for _, f := range r.store.FieldsWithValue() {
		v, _ := r.store.GetFieldValue(f)
		load, err := constantLoad(v)
		if err != nil {
			r.logger.Warn("field value not foldable",
				zap.String("field", r.model.Token(metadata.FieldEntity(f))),
				zap.Error(err),
			)
			continue
		}
		values[f] = load
	}
	if len(values) == 0 {
		return 0
	}

	folded := 0
	for i, md := range r.model.Methods {
		if md.Body == nil || !r.pending(metadata.MethodID(i)) {
			continue
		}
		for j, in := range md.Body.Instructions {
			if in.OpCode != metadata.Ldsfld || in.Field == nil {
				continue
			}
			f, ok := r.model.ResolveField(*in.Field)
			if !ok {
				continue
			}
			if load, ok := values[f]; ok {
				md.Body.Instructions[j] = load
				folded++
			}
		}
	}
	return folded
}
