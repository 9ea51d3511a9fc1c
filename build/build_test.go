package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/hotpatch/cache"
	"github.com/wippyai/hotpatch/lang"
	"github.com/wippyai/hotpatch/patch"
	"github.com/wippyai/hotpatch/toolchain"
	"github.com/wippyai/hotpatch/versions"
)

const mainSource = `import mathlib

counter: int

@internal
def double(x: int) -> int:
    return mathlib.scale(x)

@external
def bump() -> int:
    self.counter = self.counter + 1
    return self.counter
`

const libSource = `FACTOR: constant(int) = 2

@internal
def scale(x: int) -> int:
    return x * FACTOR
`

func project(t *testing.T) (dir, main string) {
	t.Helper()
	dir = t.TempDir()
	write(t, filepath.Join(dir, "mathlib.hp"), libSource)
	main = filepath.Join(dir, "main.hp")
	write(t, main, mainSource)
	return dir, main
}

func write(t *testing.T, path, text string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newBuilder(t *testing.T, cfg Config) *Builder {
	t.Helper()
	b, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestLoadCaches(t *testing.T) {
	dir, main := project(t)
	store := cache.NewMemoryStore()
	b := newBuilder(t, Config{Cache: store, Settings: toolchain.Settings{Optimize: true}})

	first, err := b.Load(main)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first load must compile")
	}
	if first.Module.Name != "main" || first.Key.Producer != "hp "+lang.DefaultVersion {
		t.Errorf("module = %s, producer = %s", first.Module.Name, first.Key.Producer)
	}

	second, err := b.Load(main)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Fingerprint != first.Fingerprint {
		t.Errorf("second load: cached=%v fingerprint %s vs %s", second.Cached, second.Fingerprint, first.Fingerprint)
	}
	if diff := cmp.Diff(first.Module.Bytecode, second.Module.Bytecode); diff != "" {
		t.Errorf("cached bytecode differs:\n%s", diff)
	}
	if first.Module.RuntimeIR.String() != second.Module.RuntimeIR.String() {
		t.Error("cached IR differs")
	}

	// touching an import changes the fingerprint and forces a compile
	write(t, filepath.Join(dir, "mathlib.hp"), libSource+"\n# changed\n")
	third, err := b.Load(main)
	if err != nil {
		t.Fatal(err)
	}
	if third.Cached || third.Fingerprint == first.Fingerprint {
		t.Errorf("import edit: cached=%v fingerprint unchanged=%v", third.Cached, third.Fingerprint == first.Fingerprint)
	}
}

func TestSettingsAreKeyed(t *testing.T) {
	_, main := project(t)
	store := cache.NewMemoryStore()

	a := newBuilder(t, Config{Cache: store, Settings: toolchain.Settings{Optimize: true}})
	b := newBuilder(t, Config{Cache: store, Settings: toolchain.Settings{AltCodegen: true}})
	if _, err := a.Load(main); err != nil {
		t.Fatal(err)
	}
	res, err := b.Load(main)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("different settings must not share an entry")
	}
	if store.Len() != 2 {
		t.Errorf("store has %d entries, want 2", store.Len())
	}
}

func TestBackfillLegacyEntry(t *testing.T) {
	_, main := project(t)
	store := cache.NewMemoryStore()
	b := newBuilder(t, Config{Cache: store})

	res, err := b.Load(main)
	if err != nil {
		t.Fatal(err)
	}
	legacy := cache.New[Entry](store)
	e, _, _ := legacy.Get(res.Key.String())
	e.Output.SourceMap = nil
	if err := legacy.Put(res.Key.String(), e); err != nil {
		t.Fatal(err)
	}

	again, err := b.Load(main)
	if err != nil {
		t.Fatalf("legacy entry must not fail: %v", err)
	}
	if again.Cached || again.Module.SourceMap == nil {
		t.Errorf("legacy entry not recomputed: cached=%v", again.Cached)
	}
	e, _, _ = legacy.Get(res.Key.String())
	if e.Output.SourceMap == nil {
		t.Error("stored entry not backfilled")
	}
	if third, _ := b.Load(main); !third.Cached {
		t.Error("backfilled entry must be a hit")
	}
}

func TestNoCache(t *testing.T) {
	_, main := project(t)
	b := newBuilder(t, Config{})
	for i := 0; i < 2; i++ {
		res, err := b.Load(main)
		if err != nil {
			t.Fatal(err)
		}
		if res.Cached {
			t.Error("disabled cache reported a hit")
		}
	}
	if err := b.Invalidate(&Result{}); err != nil {
		t.Errorf("Invalidate without cache: %v", err)
	}
}

func TestPinnedVersion(t *testing.T) {
	dir, _ := project(t)
	old := lang.New(lang.WithVersion("0.9.0"))
	reg, err := versions.NewRegistry(lang.New(), old)
	if err != nil {
		t.Fatal(err)
	}
	store := cache.NewMemoryStore()
	b := newBuilder(t, Config{Cache: store, Versions: reg, SearchPaths: []string{dir}})

	src := "# @version ~0.9\n" + mainSource
	res, err := b.Loads(src, "pinned", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Routed || res.Toolchain.Version() != "0.9.0" || res.Key.Producer != "hp 0.9.0" {
		t.Errorf("routing: routed=%v toolchain=%s", res.Routed, res.Toolchain.Identity())
	}

	key := pinnedKey(res.Fingerprint, "0.9.0", toolchain.Settings{})
	if err := store.Put(key, []byte(`{"output":null,"producer":"old"}`)); err != nil {
		t.Fatal(err)
	}
	again, err := b.Loads(src, "pinned", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.Cached {
		t.Error("malformed pinned entry must be recomputed")
	}
	if third, _ := b.Loads(src, "pinned", ""); !third.Cached {
		t.Error("pinned compile must be cached")
	}

	if _, err := b.Loads("# @version >=5\n", "x", ""); err == nil {
		t.Error("unsatisfiable pragma must fail")
	}
}

func TestPatchCachedModule(t *testing.T) {
	_, main := project(t)
	b := newBuilder(t, Config{Cache: cache.NewMemoryStore(), Settings: toolchain.Settings{Optimize: true}})
	if _, err := b.Load(main); err != nil {
		t.Fatal(err)
	}
	res, err := b.Load(main)
	if err != nil || !res.Cached {
		t.Fatalf("cached load: %v, cached=%v", err, res != nil && res.Cached)
	}

	ctx, err := res.Context()
	if err != nil {
		t.Fatal(err)
	}
	art, err := patch.NewCompiler(ctx).Call("double")
	if err != nil {
		t.Fatal(err)
	}
	if v, err := art.Interpreter.Entry(21); err != nil || v != 42 {
		t.Errorf("double(21) = %d, %v", v, err)
	}
	if diff := cmp.Diff([]string{"main.double", "mathlib.scale"}, art.Compiled); diff != "" {
		t.Errorf("Compiled (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	b := newBuilder(t, Config{})
	if _, err := b.Load(filepath.Join(t.TempDir(), "nope.hp")); err == nil {
		t.Error("missing file must fail")
	}
}
