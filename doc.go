// Package hotpatch compiles contract modules and injects code into them from
// a development console without recompiling the whole module.
//
// # Architecture Overview
//
//	hotpatch/            Process-wide defaults: Load, Loads, Open
//	├── build/           Config, fingerprint, cache key, compile or fetch
//	├── patch/           Injection compiler and closure resolver
//	├── console/         Eval and internal calls against live storage
//	├── artifact/        Compiled module snapshot and id registry
//	├── wrapper/         Source wrappers for console requests
//	├── fingerprint/     Dependency fingerprints over import graphs
//	├── cache/           Compilation cache and its stores
//	├── versions/        Version pragmas and toolchain routing
//	├── toolchain/       Contract between pipeline and language toolchain
//	├── lang/            Reference toolchain for the contract language
//	├── ir/              IR tree and IR-to-IR passes
//	├── asm/             IR to wasm lowering
//	├── wasm/            Wasm binary encoding primitives
//	├── irexec/          Direct IR interpreter
//	├── engine/          wazero integration for produced bytecode
//	└── errors/          Structured error types
//
// # Quick Start
//
//	res, err := hotpatch.Load("counter.hp")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := hotpatch.Open(ctx, res)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close(ctx)
//
//	out, err := c.Call(ctx, "double", 21)
//	fmt.Println(out.Value) // 42
//
// # Patches
//
// A patch is compiled against a base module without touching it. Internal
// functions the base compile dropped are compiled on demand and receive ids
// that never collide with the base's ids. Each base module context
// remembers what it compiled, so a function is compiled at most once per
// context.
//
// # Caching
//
// Compiled modules are cached by a key covering the module name, its file,
// the fingerprint of its import graph, the settings and the producer. Editing
// an imported file changes the fingerprint of every module importing it.
//
// # Thread Safety
//
// The default configuration is guarded by a mutex. A console and the base
// context it patches are meant for a single goroutine.
package hotpatch
