// Package patch compiles a single patch function against a base module and
// links it with everything it needs into new bytecode.
//
// A patch goes through the stages parse, reanalyze, generate_ir,
// rewire_entry, merge, closure_resolve and assemble. The base module is
// never modified: its IR is shared read-only, and internal functions the
// patch needs but the base lacks are compiled once per base context with
// fresh ids.
package patch

import (
	stderrors "errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/artifact"
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/irexec"
	"github.com/wippyai/hotpatch/toolchain"
	"github.com/wippyai/hotpatch/wrapper"
)

// Artifact is the result of one patch. It is never cached.
type Artifact struct {
	Tree toolchain.AST
	Func *toolchain.FuncSymbol
	// IR is the final linked IR the bytecode was assembled from.
	IR *ir.Node
	// Interpreter evaluates IR directly; nil when the base module uses the
	// alternate lowering path.
	Interpreter *irexec.Interpreter
	Bytecode    []byte
	SourceMap   *toolchain.SourceMap
	ReturnType  string
	// Compiled lists the internal functions this patch had to compile.
	Compiled []string
	States   []State
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger; the package logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// Compiler runs patches against one base context.
type Compiler struct {
	base   *artifact.Context
	logger *zap.Logger
}

// NewCompiler creates a compiler over base.
func NewCompiler(base *artifact.Context, opts ...Option) *Compiler {
	c := &Compiler{base: base}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = Logger()
	}
	return c
}

func (c *Compiler) Base() *artifact.Context { return c.base }

// Eval wraps free-form text and compiles it.
func (c *Compiler) Eval(text string) (*Artifact, error) {
	return c.Request(wrapper.Request{Kind: wrapper.ArbitraryStatement, Text: text})
}

// Call compiles a patch invoking an internal function. name is either a
// function of the base module or a module-qualified key.
func (c *Compiler) Call(name string) (*Artifact, error) {
	ns := c.base.Namespace()
	var fn *toolchain.FuncSymbol
	if strings.Contains(name, ".") {
		fn, _ = ns.Lookup(name)
	} else {
		fn = ns.Funcs[name]
	}
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseAnalyze, "function", name)
	}
	if fn.Visibility != toolchain.Internal {
		return nil, errors.InvalidInput(errors.PhaseAnalyze, name+" is external; call it through the dispatcher")
	}
	return c.Request(wrapper.Request{Kind: wrapper.InternalCall, Target: fn})
}

// Request generates the wrapper source for req and compiles it.
func (c *Compiler) Request(req wrapper.Request) (*Artifact, error) {
	w, err := wrapper.Generate(req, c.base.Namespace(), c.base.Toolchain())
	if err != nil {
		return nil, err
	}
	return c.compile(w.Source, w.Header)
}

// Compile runs the full pipeline on the source of a single external
// function.
func (c *Compiler) Compile(source string) (*Artifact, error) {
	return c.compile(source, 0)
}

// compile runs the pipeline on source whose first header lines were
// generated rather than written by the caller.
func (c *Compiler) compile(source string, header int) (*Artifact, error) {
	r := &run{
		c:      c,
		tc:     c.base.Toolchain(),
		ns:     c.base.Namespace(),
		src:    source,
		header: header,
		art:    &Artifact{},
	}
	steps := []struct {
		state State
		fn    func() error
	}{
		{StateParse, r.parse},
		{StateReanalyze, r.reanalyze},
		{StateGenerateIR, r.generate},
		{StateRewireEntry, r.rewire},
		{StateMerge, r.merge},
		{StateClosureResolve, r.resolve},
		{StateAssemble, r.assemble},
	}
	for _, s := range steps {
		r.art.States = append(r.art.States, s.state)
		c.logger.Debug("patch stage", zap.Stringer("state", s.state))
		if err := s.fn(); err != nil {
			r.art.States = append(r.art.States, StateFailed)
			c.logger.Debug("patch failed", zap.Stringer("state", s.state), zap.Error(err))
			return nil, &Failed{State: s.state, Err: err}
		}
	}
	r.art.States = append(r.art.States, StateDone)
	return r.art, nil
}

// run holds the intermediate values of one Compile call.
type run struct {
	c   *Compiler
	tc  toolchain.Toolchain
	ns  *toolchain.Namespace
	src    string
	header int
	art    *Artifact

	frag   ir.Fragment
	entry  *ir.Node
	linked *ir.Node
}

func (r *run) parse() error {
	tree, err := r.tc.Parse(r.src)
	if err != nil {
		return r.relocate(err)
	}
	r.art.Tree = tree
	return nil
}

// relocate makes the line of a syntax error relative to the caller's text
// rather than to the generated wrapper.
func (r *run) relocate(err error) error {
	var e *errors.Error
	if r.header == 0 || !stderrors.As(err, &e) || e.Kind != errors.KindSyntax || e.Line <= 0 {
		return err
	}
	moved := *e
	moved.Line = max(e.Line-r.header, 1)
	return &moved
}

// reanalyze re-applies the base module's constants to the new tree, then
// resolves it against the borrowed base namespace.
func (r *run) reanalyze() error {
	folded, err := r.tc.FoldConstants(r.ns, r.art.Tree)
	if err != nil {
		return err
	}
	ann, err := r.tc.Analyze(folded, r.ns)
	if err != nil {
		return err
	}
	if ann.Func.Visibility != toolchain.External {
		return errors.Semantic(ann.Func.Line, "patch function %s must be external", ann.Func.Name)
	}
	r.art.Tree = ann.Tree
	r.art.Func = ann.Func
	r.art.ReturnType = ann.Func.ReturnType
	return nil
}

func (r *run) generate() error {
	frag, err := r.tc.GenerateExternalIR(r.art.Func, r.ns)
	if err != nil {
		return err
	}
	r.frag = frag
	return nil
}

func (r *run) rewire() error {
	r.entry = ir.RewireEntry(r.frag)
	return nil
}

func (r *run) merge() error {
	r.linked = ir.Merge(r.entry, r.c.base.Module().RuntimeIR, r.c.base.Extra()...)
	return nil
}

func (r *run) resolve() error {
	compiled, bodies, err := resolveClosure(r.c.base, r.art.Func, r.linked, r.c.logger)
	if err != nil {
		return err
	}
	r.linked.Args = append(r.linked.Args, bodies...)
	r.art.Compiled = compiled
	return nil
}

func (r *run) assemble() error {
	var (
		code []byte
		err  error
	)
	// Patches are optimized on the primary path whatever the base module
	// was compiled with.
	final := r.linked
	settings := r.c.base.Settings()
	if settings.AltCodegen {
		code, r.art.SourceMap, err = r.tc.AssembleAlt(final)
	} else {
		final = r.tc.Optimize(final)
		code, r.art.SourceMap, err = r.tc.Assemble(final)
	}
	if err != nil {
		return err
	}
	r.art.IR = final
	r.art.Bytecode = append(code, r.c.base.Module().Data...)

	if !settings.AltCodegen {
		in, err := irexec.New(final)
		if err != nil {
			return err
		}
		r.art.Interpreter = in
	}
	r.c.logger.Debug("patch assembled",
		zap.String("function", r.art.Func.Name),
		zap.Int("bytes", len(r.art.Bytecode)),
		zap.Strings("compiled", slices.Clone(r.art.Compiled)))
	return nil
}
