package build

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/cache"
	"github.com/wippyai/hotpatch/toolchain"
	"github.com/wippyai/hotpatch/versions"
)

// Config is everything a build needs. It is passed explicitly; nothing in
// the build step reads process-wide state.
type Config struct {
	// Cache stores compiled modules. Nil disables caching.
	Cache cache.Store
	// SearchPaths are searched for imports after the importing file's
	// directory.
	SearchPaths []string
	Settings    toolchain.Settings
	// Toolchain compiles modules without a version pragma. Defaults to the
	// built-in toolchain.
	Toolchain toolchain.Toolchain
	// Versions routes pinned sources to other toolchains. Defaults to a
	// registry holding only Toolchain.
	Versions *versions.Registry
	Logger   *zap.Logger
}

// CacheTTL is the entry lifetime used for directory caches opened by
// OpenDirCache when no TTL is given.
const CacheTTL = 30 * 24 * time.Hour

// OpenDirCache opens a directory-backed cache store.
func OpenDirCache(dir string, ttl time.Duration) (*cache.DirStore, error) {
	if ttl == 0 {
		ttl = CacheTTL
	}
	return cache.NewDirStore(dir, cache.WithTTL(ttl))
}

// SettingsKey renders settings for use in a cache key.
func SettingsKey(s toolchain.Settings) string {
	return fmt.Sprintf("optimize=%t,alt_codegen=%t", s.Optimize, s.AltCodegen)
}
