// Package build turns source files into compiled base modules, reusing
// earlier compiles from a cache when neither the file, its imports, the
// settings nor the toolchain changed.
package build

import (
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/artifact"
	"github.com/wippyai/hotpatch/cache"
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/fingerprint"
	"github.com/wippyai/hotpatch/lang"
	"github.com/wippyai/hotpatch/toolchain"
	"github.com/wippyai/hotpatch/versions"
)

// Entry is the cached payload of one module compile.
type Entry struct {
	Output   *toolchain.Output `json:"output"`
	Producer string            `json:"producer"`
}

// checkEntry rejects payloads written before source maps were cached, and
// payloads of another shape altogether.
func checkEntry(e Entry) error {
	if e.Output == nil || len(e.Output.Bytecode) == 0 {
		return errors.SchemaMismatch("", "payload has no compile output")
	}
	if e.Output.SourceMap == nil {
		return errors.SchemaMismatch("", "payload has no source map")
	}
	return nil
}

// Result is a built module.
type Result struct {
	Module      *artifact.CompiledModule
	Key         cache.Key
	Fingerprint string
	Toolchain   toolchain.Toolchain
	// Cached is true when the compile output came from the cache.
	Cached bool
	// Routed is true when a version pragma selected a non-default toolchain.
	Routed bool
}

// Context opens a patch session over the built module.
func (r *Result) Context() (*artifact.Context, error) {
	return artifact.NewContext(r.Module, r.Toolchain)
}

// Builder builds modules under one Config.
type Builder struct {
	cfg    Config
	tc     toolchain.Toolchain
	reg    *versions.Registry
	cache  *cache.Cache[Entry]
	logger *zap.Logger
}

// New creates a builder, filling defaults into cfg.
func New(cfg Config) (*Builder, error) {
	b := &Builder{cfg: cfg, logger: cfg.Logger}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	b.tc = cfg.Toolchain
	if b.tc == nil {
		b.tc = lang.New(lang.WithLogger(b.logger))
	}
	b.reg = cfg.Versions
	if b.reg == nil {
		reg, err := versions.NewRegistry(b.tc)
		if err != nil {
			return nil, err
		}
		b.reg = reg
	}
	b.reg.SetLogger(b.logger)
	if cfg.Cache != nil {
		b.cache = cache.New[Entry](cfg.Cache,
			cache.WithSchemaCheck(checkEntry),
			cache.WithLogger[Entry](b.logger))
	}
	return b, nil
}

func (b *Builder) Toolchain() toolchain.Toolchain { return b.tc }

func (b *Builder) Config() Config { return b.cfg }

// Load builds the module in filename.
func (b *Builder) Load(filename string) (*Result, error) {
	text, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Load("read "+filename, err)
	}
	return b.Loads(string(text), lang.ModuleName(filename), filename)
}

// Loads builds a module from source text. filename may be empty; it is used
// to resolve relative imports and as part of the cache key.
func (b *Builder) Loads(source, name, filename string) (*Result, error) {
	if name == "" {
		name = lang.ModuleName(filename)
	}
	tc, routed, err := b.reg.Route(source, b.tc)
	if err != nil {
		return nil, err
	}

	mod, err := tc.LoadModule(toolchain.Source{Name: name, Filename: filename, Text: source}, b.cfg.SearchPaths)
	if err != nil {
		return nil, err
	}
	fp := fingerprint.Of(fingerprint.Module(mod))
	res := &Result{
		Key: cache.Key{
			Name:        name,
			Filename:    filename,
			Fingerprint: fp,
			Settings:    SettingsKey(b.cfg.Settings),
			Producer:    tc.Identity(),
		},
		Fingerprint: fp,
		Toolchain:   tc,
		Routed:      routed,
	}

	var out *toolchain.Output
	switch {
	case b.cache == nil:
		out, err = tc.CompileModule(mod, b.cfg.Settings)
	case routed:
		out, res.Cached, err = b.pinned(fp, tc, mod)
	default:
		out, res.Cached, err = b.lookup(res.Key.String(), tc, mod)
	}
	if err != nil {
		return nil, err
	}

	res.Module = artifact.New(mod, b.cfg.Settings, out, tc.Identity())
	res.Module.Fingerprint = fp
	b.logger.Debug("module built",
		zap.String("module", name),
		zap.String("fingerprint", fp),
		zap.String("toolchain", tc.Identity()),
		zap.Bool("cached", res.Cached),
		zap.Bool("routed", routed))
	return res, nil
}

func (b *Builder) lookup(key string, tc toolchain.Toolchain, mod *toolchain.Module) (*toolchain.Output, bool, error) {
	computed := false
	e, err := b.cache.CachingLookup(key, func() (Entry, error) {
		computed = true
		out, err := tc.CompileModule(mod, b.cfg.Settings)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Output: out, Producer: tc.Identity()}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return e.Output, !computed, nil
}

// pinned compiles through a toolchain chosen by a version pragma. These
// compiles are keyed by fingerprint and toolchain version; a stored payload
// of the wrong shape is dropped before the lookup.
func (b *Builder) pinned(fp string, tc toolchain.Toolchain, mod *toolchain.Module) (*toolchain.Output, bool, error) {
	key := pinnedKey(fp, tc.Version(), b.cfg.Settings)

	if e, ok, err := b.cache.Get(key); err != nil || (ok && e.Output == nil) {
		b.logger.Debug("dropping malformed pinned entry", zap.String("key", key), zap.Error(err))
		if err := b.cache.Invalidate(key); err != nil {
			return nil, false, err
		}
	}
	return b.lookup(key, tc, mod)
}

// Invalidate drops the cached compile of a previous result.
func (b *Builder) Invalidate(r *Result) error {
	if b.cache == nil {
		return nil
	}
	return b.cache.Invalidate(r.Key.String())
}

func pinnedKey(fp, version string, s toolchain.Settings) string {
	return "pinned:" + fp + ":" + version + ":" + SettingsKey(s)
}
