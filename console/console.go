// Package console evaluates patches against a base module and keeps the
// module's storage alive between them.
//
// Every Eval and Call compiles a patch, runs it on a fresh instance seeded
// with the current storage values, and copies storage back once the call
// returns. A call that traps leaves storage untouched.
package console

import (
	"context"
	"maps"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/artifact"
	"github.com/wippyai/hotpatch/engine"
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/patch"
	"github.com/wippyai/hotpatch/toolchain"
)

// Result is the outcome of one console call.
type Result struct {
	Value int64
	// Type is the inferred return type, empty for statements.
	Type string
	// Interpreted is true when the patch ran on the IR interpreter.
	Interpreted bool
	// Compiled lists internal functions compiled for this call.
	Compiled []string
}

// Option configures a Console.
type Option func(*Console)

// WithLogger sets the logger; the package logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(c *Console) { c.logger = l }
}

// UseInterpreter runs patches on the IR interpreter when the patch offers
// one. Modules built with the alternate lowering path always run on wazero.
func UseInterpreter(on bool) Option {
	return func(c *Console) { c.interp = on }
}

// WithEngineConfig sets the wazero engine configuration.
func WithEngineConfig(cfg *engine.Config) Option {
	return func(c *Console) { c.engineCfg = cfg }
}

// Console is a development console over one base module. It is not safe
// for concurrent use.
type Console struct {
	base      *artifact.Context
	compiler  *patch.Compiler
	engine    *engine.WazeroEngine
	engineCfg *engine.Config
	module    *engine.WazeroModule
	state     map[string]int64
	interp    bool
	logger    *zap.Logger
}

// New opens a console over base with storage at its initial values.
func New(ctx context.Context, base *artifact.Context, opts ...Option) (*Console, error) {
	c := &Console{base: base, state: initialState(base.Module().RuntimeIR)}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = Logger()
	}
	eng, err := engine.NewWazeroEngine(ctx, c.engineCfg)
	if err != nil {
		return nil, err
	}
	c.engine = eng
	c.compiler = patch.NewCompiler(base, patch.WithLogger(c.logger))
	return c, nil
}

func initialState(root *ir.Node) map[string]int64 {
	state := make(map[string]int64)
	ir.Walk(root, func(n *ir.Node) bool {
		switch n.Op {
		case ir.OpGlobal:
			if n.Name != ir.SelectorVar {
				state[n.Name] = n.Value
			}
		case ir.OpFunc:
			return false
		}
		return true
	})
	return state
}

func (c *Console) Base() *artifact.Context { return c.base }

// State returns a copy of the current storage values.
func (c *Console) State() map[string]int64 { return maps.Clone(c.state) }

// SetState overwrites one storage variable.
func (c *Console) SetState(name string, v int64) error {
	if _, ok := c.state[name]; !ok {
		return errors.NotFound(errors.PhaseRuntime, "storage variable", name)
	}
	c.state[name] = v
	return nil
}

// Eval compiles text as a patch and runs it.
func (c *Console) Eval(ctx context.Context, text string) (*Result, error) {
	art, err := c.compiler.Eval(text)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, art)
}

// Call runs an internal function of the base module. Missing trailing
// arguments take the parameter defaults.
func (c *Console) Call(ctx context.Context, fn string, args ...int64) (*Result, error) {
	art, err := c.compiler.Call(fn)
	if err != nil {
		return nil, err
	}
	full, err := c.bindArgs(ctx, art.Func.Params, args)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, art, full...)
}

// Deploy calls an external function of the base module through its
// dispatcher, as a transaction would.
func (c *Console) Deploy(ctx context.Context, fn string, args ...int64) (*Result, error) {
	sym, ok := c.base.Namespace().Funcs[fn]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", fn)
	}
	if sym.Visibility != toolchain.External {
		return nil, errors.InvalidInput(errors.PhaseRuntime, fn+" is internal; use Call")
	}
	full, err := c.bindArgs(ctx, sym.Params, args)
	if err != nil {
		return nil, err
	}
	if c.module == nil {
		mod, err := c.engine.LoadModule(ctx, c.base.Module().Bytecode)
		if err != nil {
			return nil, err
		}
		c.module = mod
	}
	v, err := c.exec(ctx, c.module, func(inst *engine.WazeroInstance) (int64, error) {
		return inst.Dispatch(ctx, sym.Selector, full...)
	})
	if err != nil {
		return nil, err
	}
	return &Result{Value: v, Type: sym.ReturnType}, nil
}

func (c *Console) bindArgs(ctx context.Context, params []toolchain.Param, args []int64) ([]int64, error) {
	if len(args) > len(params) {
		return nil, errors.InvalidInput(errors.PhaseRuntime,
			"too many arguments: got "+strconv.Itoa(len(args))+", want at most "+strconv.Itoa(len(params)))
	}
	full := append([]int64(nil), args...)
	for _, p := range params[len(args):] {
		if !p.HasDefault {
			return nil, errors.InvalidInput(errors.PhaseRuntime, "missing argument "+p.Name)
		}
		v, err := c.defaultValue(ctx, p.Default)
		if err != nil {
			return nil, err
		}
		full = append(full, v)
	}
	return full, nil
}

// defaultValue evaluates a parameter default. Literals and constants are
// read directly; anything else is evaluated as a patch.
func (c *Console) defaultValue(ctx context.Context, expr string) (int64, error) {
	if v, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return v, nil
	}
	if v, ok := c.base.Namespace().Constants[expr]; ok {
		return v, nil
	}
	res, err := c.Eval(ctx, expr)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

func (c *Console) run(ctx context.Context, art *patch.Artifact, args ...int64) (*Result, error) {
	res := &Result{Type: art.ReturnType, Compiled: art.Compiled}

	if c.interp && art.Interpreter != nil {
		in := art.Interpreter
		for name, v := range c.state {
			if err := in.SetGlobal(name, v); err != nil {
				return nil, err
			}
		}
		v, err := in.Entry(args...)
		if err != nil {
			return nil, err
		}
		for name := range c.state {
			c.state[name], _ = in.Global(name)
		}
		res.Value = v
		res.Interpreted = true
		return res, nil
	}

	mod, err := c.engine.LoadModule(ctx, art.Bytecode)
	if err != nil {
		return nil, err
	}
	v, err := c.exec(ctx, mod, func(inst *engine.WazeroInstance) (int64, error) {
		return inst.Call(ctx, ir.EntryLabel, args...)
	})
	if cerr := mod.Close(ctx); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	if err != nil {
		return nil, err
	}
	res.Value = v
	return res, nil
}

// exec instantiates mod with the current storage, runs call and copies
// storage back on success.
func (c *Console) exec(ctx context.Context, mod *engine.WazeroModule, call func(*engine.WazeroInstance) (int64, error)) (v int64, err error) {
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { err = multierr.Append(err, inst.Close(ctx)) }()

	for name, val := range c.state {
		if err := inst.SetGlobal(name, val); err != nil {
			return 0, err
		}
	}
	v, err = call(inst)
	if err != nil {
		c.logger.Debug("console call trapped", zap.Error(err))
		return 0, err
	}
	for name := range c.state {
		if g, ok := inst.Global(name); ok {
			c.state[name] = g
		}
	}
	return v, nil
}

// Close releases the engine and the cached base module.
func (c *Console) Close(ctx context.Context) error {
	var err error
	if c.module != nil {
		err = multierr.Append(err, c.module.Close(ctx))
		c.module = nil
	}
	return multierr.Append(err, c.engine.Close(ctx))
}
