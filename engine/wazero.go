package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
)

// WazeroEngine compiles and instantiates modules on one wazero runtime.
type WazeroEngine struct {
	runtime wazero.Runtime
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// CloseOnContextDone aborts running calls when their context is done.
	CloseOnContextDone bool
}

// NewWazeroEngine creates a new engine. A nil config uses defaults.
func NewWazeroEngine(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}
	return &WazeroEngine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	Name string
}

// LoadModule compiles bytecode without instantiating it.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile failed", err)
	}
	Logger().Debug("module compiled",
		zap.Int("bytes", len(wasmBytes)),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return &WazeroModule{
		runtime:  e.runtime,
		compiled: compiled,
		rawBytes: wasmBytes,
	}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// WazeroModule is a compiled WASM module
type WazeroModule struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	rawBytes []byte
}

// Bytes returns the bytecode the module was compiled from.
func (m *WazeroModule) Bytes() []byte {
	return m.rawBytes
}

// ExportNames returns the exported function names in sorted order.
func (m *WazeroModule) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate creates an anonymous instance.
func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	return m.InstantiateWithConfig(ctx, nil)
}

// InstantiateWithConfig creates an instance with custom configuration
func (m *WazeroModule) InstantiateWithConfig(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	modConfig := wazero.NewModuleConfig()
	if cfg != nil && cfg.Name != "" {
		modConfig = modConfig.WithName(cfg.Name)
	} else {
		modConfig = modConfig.WithName("") // anonymous for parallel instantiation
	}

	instance, err := m.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Load("instantiate failed", err)
	}
	return &WazeroInstance{
		module:    m,
		instance:  instance,
		funcCache: make(map[string]api.Function),
	}, nil
}

// Close releases the compiled module.
func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// WazeroInstance is a running WASM instance.
// It is NOT safe for concurrent use from multiple goroutines.
type WazeroInstance struct {
	module    *WazeroModule
	instance  api.Module
	funcCache map[string]api.Function
	cacheMu   sync.RWMutex
}

func (i *WazeroInstance) exportedFunction(name string) api.Function {
	i.cacheMu.RLock()
	fn, ok := i.funcCache[name]
	i.cacheMu.RUnlock()
	if ok {
		return fn
	}

	fn = i.instance.ExportedFunction(name)
	if fn != nil {
		i.cacheMu.Lock()
		i.funcCache[name] = fn
		i.cacheMu.Unlock()
	}
	return fn
}

// Has reports whether a function is exported.
func (i *WazeroInstance) Has(name string) bool {
	return i.exportedFunction(name) != nil
}

// Call invokes an exported function. Functions without a result yield zero.
func (i *WazeroInstance) Call(ctx context.Context, name string, args ...int64) (int64, error) {
	fn := i.exportedFunction(name)
	if fn == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "exported function", name)
	}
	if want := len(fn.Definition().ParamTypes()); want != len(args) {
		return 0, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("%s takes %d arguments, got %d", name, want, len(args)))
	}

	params := make([]uint64, len(args))
	for j, a := range args {
		params[j] = api.EncodeI64(a)
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return 0, errors.Trap(name, err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return int64(res[0]), nil
}

// Dispatch routes a call through the module's selector dispatcher.
func (i *WazeroInstance) Dispatch(ctx context.Context, selector int64, args ...int64) (int64, error) {
	if len(args) > ir.MaxDispatchArgs {
		return 0, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("dispatch takes at most %d arguments, got %d", ir.MaxDispatchArgs, len(args)))
	}
	slots := make([]int64, 1+ir.MaxDispatchArgs)
	slots[0] = selector
	copy(slots[1:], args)
	return i.Call(ctx, ir.DispatchLabel, slots...)
}

// Global reads an exported global.
func (i *WazeroInstance) Global(name string) (int64, bool) {
	g := i.instance.ExportedGlobal(name)
	if g == nil {
		return 0, false
	}
	return int64(g.Get()), true
}

// SetGlobal writes an exported mutable global.
func (i *WazeroInstance) SetGlobal(name string, v int64) error {
	g := i.instance.ExportedGlobal(name)
	if g == nil {
		return errors.NotFound(errors.PhaseRuntime, "exported global", name)
	}
	mg, ok := g.(api.MutableGlobal)
	if !ok {
		return errors.Unsupported(errors.PhaseRuntime, "global "+name+" is immutable")
	}
	mg.Set(api.EncodeI64(v))
	return nil
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	if i.instance == nil {
		return nil
	}
	err := i.instance.Close(ctx)
	i.instance = nil
	i.funcCache = nil
	return err
}
