package hotpatch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/build"
	"github.com/wippyai/hotpatch/console"
	"github.com/wippyai/hotpatch/toolchain"
)

var (
	mu       sync.Mutex
	cacheDir string
	noCache  bool
	search   []string
	settings = toolchain.Settings{Optimize: true}
	logger   = zap.NewNop()
	builder  *build.Builder
)

// SetCacheDir moves the default cache. An empty dir selects the user cache
// directory.
func SetCacheDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	cacheDir = dir
	noCache = false
	builder = nil
}

// DisableCache turns off caching for the default configuration.
func DisableCache() {
	mu.Lock()
	defer mu.Unlock()
	noCache = true
	builder = nil
}

// SetSearchPaths replaces the default import search paths.
func SetSearchPaths(paths ...string) {
	mu.Lock()
	defer mu.Unlock()
	search = slices.Clone(paths)
	builder = nil
}

// SetSettings replaces the default compile settings.
func SetSettings(s toolchain.Settings) {
	mu.Lock()
	defer mu.Unlock()
	settings = s
	builder = nil
}

// SetLogger sets the logger used by the default configuration.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
	builder = nil
}

// DefaultCacheDir is the cache directory used when none was set.
func DefaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hotpatch"), nil
}

// Config returns a copy of the default configuration with the cache opened.
func Config() (build.Config, error) {
	mu.Lock()
	defer mu.Unlock()
	return config()
}

func config() (build.Config, error) {
	cfg := build.Config{
		SearchPaths: slices.Clone(search),
		Settings:    settings,
		Logger:      logger,
	}
	if noCache {
		return cfg, nil
	}
	dir := cacheDir
	if dir == "" {
		d, err := DefaultCacheDir()
		if err != nil {
			return build.Config{}, err
		}
		dir = d
	}
	store, err := build.OpenDirCache(dir, 0)
	if err != nil {
		return build.Config{}, err
	}
	cfg.Cache = store
	return cfg, nil
}

func defaultBuilder() (*build.Builder, error) {
	mu.Lock()
	defer mu.Unlock()
	if builder != nil {
		return builder, nil
	}
	cfg, err := config()
	if err != nil {
		return nil, err
	}
	b, err := build.New(cfg)
	if err != nil {
		return nil, err
	}
	builder = b
	return b, nil
}

// Load builds filename under the default configuration.
func Load(filename string) (*build.Result, error) {
	b, err := defaultBuilder()
	if err != nil {
		return nil, err
	}
	return b.Load(filename)
}

// Loads builds source text under the default configuration. filename is
// used for import resolution and cache keys and may be empty.
func Loads(source, name, filename string) (*build.Result, error) {
	b, err := defaultBuilder()
	if err != nil {
		return nil, err
	}
	return b.Loads(source, name, filename)
}

// Open starts a console over a built module.
func Open(ctx context.Context, res *build.Result, opts ...console.Option) (*console.Console, error) {
	base, err := res.Context()
	if err != nil {
		return nil, err
	}
	return console.New(ctx, base, opts...)
}
