package patch

import (
	"context"
	stderrors "errors"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/hotpatch/artifact"
	"github.com/wippyai/hotpatch/engine"
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/lang"
	"github.com/wippyai/hotpatch/toolchain"
)

const baseSource = `SCALE: constant(int) = 2
counter: int

@internal
def double(x: int) -> int:
    return x * SCALE

@internal
def inc(by: int) -> int:
    return by + 1

@internal
def twice_inc(x: int) -> int:
    return self.inc(self.inc(x))

@internal
def chain(x: int) -> int:
    return self.twice_inc(x) * SCALE

@external
def bump() -> int:
    self.counter = self.inc(self.counter)
    return self.counter
`

func newBase(t *testing.T, settings toolchain.Settings) *artifact.Context {
	t.Helper()
	tc := lang.New()
	mod, err := tc.LoadModule(toolchain.Source{Name: "main", Filename: "main.hp", Text: baseSource}, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := tc.CompileModule(mod, settings)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := artifact.NewContext(artifact.New(mod, settings, out, tc.Identity()), tc)
	if err != nil {
		t.Fatal(err)
	}
	return ctx
}

func runEntry(t *testing.T, art *Artifact, args ...int64) (int64, *engine.WazeroInstance) {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.NewWazeroEngine(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close(ctx) })
	mod, err := eng.LoadModule(ctx, art.Bytecode)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	v, err := inst.Call(ctx, ir.EntryLabel, args...)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	return v, inst
}

func TestCallInternalFunction(t *testing.T) {
	base := newBase(t, toolchain.Settings{Optimize: true})
	if base.IsCompiled("main.double") {
		t.Fatal("double must not be part of the base compile")
	}
	c := NewCompiler(base)
	before := base.IDs()

	art, err := c.Call("double")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v, _ := runEntry(t, art, 21); v != 42 {
		t.Errorf("entry(21) = %d, want 42", v)
	}
	if v, err := art.Interpreter.Entry(21); err != nil || v != 42 {
		t.Errorf("interpreter entry(21) = %d, %v", v, err)
	}
	if art.ReturnType != "int" {
		t.Errorf("ReturnType = %q", art.ReturnType)
	}
	if diff := cmp.Diff([]string{"main.double"}, art.Compiled); diff != "" {
		t.Errorf("Compiled (-want +got):\n%s", diff)
	}

	after := base.IDs()
	if len(after) != len(before)+1 {
		t.Fatalf("ids grew from %d to %d, want one more", len(before), len(after))
	}
	id := after["main.double"]
	for key, prev := range before {
		if prev == id || after[key] != prev {
			t.Errorf("id of %s changed or reused: %d -> %d", key, prev, after[key])
		}
	}

	again, err := c.Call("double")
	if err != nil {
		t.Fatalf("second Call: %v", err)
	}
	if len(again.Compiled) != 0 {
		t.Errorf("second call recompiled %v", again.Compiled)
	}
	if diff := cmp.Diff(after, base.IDs()); diff != "" {
		t.Errorf("ids changed on second call (-want +got):\n%s", diff)
	}
	if v, _ := runEntry(t, again, 21); v != 42 {
		t.Errorf("second entry(21) = %d, want 42", v)
	}
}

func TestClosureCompleteness(t *testing.T) {
	base := newBase(t, toolchain.Settings{Optimize: true})
	c := NewCompiler(base)

	art, err := c.Call("chain")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"main.chain", "main.twice_inc"}, art.Compiled); diff != "" {
		t.Errorf("Compiled (-want +got):\n%s", diff)
	}
	if v, _ := runEntry(t, art, 5); v != 14 {
		t.Errorf("chain(5) = %d, want 14", v)
	}

	// every reachable function has exactly one body with a distinct id
	labels := make(map[string]int)
	ids := make(map[int]string)
	for _, f := range ir.Funcs(art.IR) {
		labels[f.Name]++
		if f.ID == 0 {
			continue
		}
		if other, dup := ids[f.ID]; dup {
			t.Errorf("id %d shared by %s and %s", f.ID, other, f.Name)
		}
		ids[f.ID] = f.Name
	}
	for _, key := range art.Func.Reachable {
		fn, _ := base.Namespace().Lookup(key)
		if labels[fn.EntryLabel] != 1 {
			t.Errorf("%s has %d bodies", key, labels[fn.EntryLabel])
		}
	}

	next, err := c.Call("twice_inc")
	if err != nil {
		t.Fatal(err)
	}
	if len(next.Compiled) != 0 {
		t.Errorf("twice_inc recompiled: %v", next.Compiled)
	}
	if v, _ := runEntry(t, next, 5); v != 7 {
		t.Errorf("twice_inc(5) = %d, want 7", v)
	}
}

func TestPatchIsolation(t *testing.T) {
	base := newBase(t, toolchain.Settings{Optimize: true})
	mod := base.Module()
	irBefore := mod.RuntimeIR.Clone()
	dataBefore := slices.Clone(mod.Data)
	idsBefore := maps.Clone(mod.AssignedIDs)

	c := NewCompiler(base)
	for _, name := range []string{"double", "chain"} {
		if _, err := c.Call(name); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Eval("self.counter + self.double(3)"); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(irBefore, mod.RuntimeIR); diff != "" {
		t.Errorf("base IR modified:\n%s", diff)
	}
	if diff := cmp.Diff(dataBefore, mod.Data); diff != "" {
		t.Errorf("base data modified:\n%s", diff)
	}
	if diff := cmp.Diff(idsBefore, mod.AssignedIDs); diff != "" {
		t.Errorf("base ids modified:\n%s", diff)
	}
}

func TestEval(t *testing.T) {
	base := newBase(t, toolchain.Settings{Optimize: true})
	c := NewCompiler(base)

	tests := []struct {
		text       string
		want       int64
		returnType string
		counter    int64
	}{
		{"self.counter + SCALE", 2, "int", 0},
		{"self.counter = 5", 0, "", 5},
		{"msg.selector", 0, "int", 0},
		{"self.bump()", 0, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			art, err := c.Eval(tt.text)
			if tt.text == "self.bump()" {
				// external functions are not callable from a patch
				if !stderrors.Is(err, errors.ErrSemantic) {
					t.Errorf("err = %v, want semantic error", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if art.ReturnType != tt.returnType {
				t.Errorf("ReturnType = %q, want %q", art.ReturnType, tt.returnType)
			}
			v, inst := runEntry(t, art)
			if v != tt.want {
				t.Errorf("entry = %d, want %d", v, tt.want)
			}
			if got, _ := inst.Global("counter"); got != tt.counter {
				t.Errorf("counter = %d, want %d", got, tt.counter)
			}
		})
	}
}

func TestDataSectionAppended(t *testing.T) {
	base := newBase(t, toolchain.Settings{Optimize: true})
	art, err := NewCompiler(base).Eval("self.counter")
	if err != nil {
		t.Fatal(err)
	}
	want, err := lang.Methods(base.Module().Bytecode)
	if err != nil {
		t.Fatal(err)
	}
	got, err := lang.Methods(art.Bytecode)
	if err != nil {
		t.Fatalf("patch bytecode lost the data section: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("method table (-want +got):\n%s", diff)
	}
}

func TestAltCodegen(t *testing.T) {
	base := newBase(t, toolchain.Settings{AltCodegen: true})
	art, err := NewCompiler(base).Call("double")
	if err != nil {
		t.Fatal(err)
	}
	if art.Interpreter != nil {
		t.Error("interpreter handle must not be built on the alternate path")
	}
	if v, _ := runEntry(t, art, 21); v != 42 {
		t.Errorf("entry(21) = %d, want 42", v)
	}
}

func TestStates(t *testing.T) {
	base := newBase(t, toolchain.Settings{Optimize: true})
	c := NewCompiler(base)

	art, err := c.Eval("self.counter")
	if err != nil {
		t.Fatal(err)
	}
	want := []State{StateParse, StateReanalyze, StateGenerateIR, StateRewireEntry,
		StateMerge, StateClosureResolve, StateAssemble, StateDone}
	if diff := cmp.Diff(want, art.States); diff != "" {
		t.Errorf("States (-want +got):\n%s", diff)
	}

	tests := []struct {
		name   string
		source string
		state  State
		target error
	}{
		{"syntax", "@external\ndef f(:\n    pass\n", StateParse, errors.ErrSyntax},
		{"semantic", "@external\ndef f() -> int:\n    return self.nope()\n", StateReanalyze, errors.ErrSemantic},
		{"internal_patch", "@internal\ndef f() -> int:\n    return 1\n", StateReanalyze, errors.ErrSemantic},
		{"redefinition", "@external\ndef double(x: int) -> int:\n    return x\n", StateReanalyze, errors.ErrSemantic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(tt.source)
			var failed *Failed
			if !stderrors.As(err, &failed) {
				t.Fatalf("err = %v, want *Failed", err)
			}
			if failed.State != tt.state {
				t.Errorf("failed in %s, want %s", failed.State, tt.state)
			}
			if !stderrors.Is(err, tt.target) {
				t.Errorf("err = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestSyntaxErrorLineIsRelativeToText(t *testing.T) {
	c := NewCompiler(newBase(t, toolchain.Settings{Optimize: true}))

	tests := []struct {
		name string
		run  func() (*Artifact, error)
		line int
	}{
		{"statement", func() (*Artifact, error) { return c.Eval("1 2") }, 1},
		{"second_line", func() (*Artifact, error) { return c.Eval("self.counter = 1\n1 2") }, 2},
		{"raw_source", func() (*Artifact, error) { return c.Compile("@external\ndef f(:\n    pass\n") }, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != errors.KindSyntax {
				t.Fatalf("err = %v, want syntax error", err)
			}
			if e.Line != tt.line {
				t.Errorf("line = %d, want %d (%v)", e.Line, tt.line, err)
			}
		})
	}
}

func TestPatchOptimizedWithoutBaseOptimize(t *testing.T) {
	base := newBase(t, toolchain.Settings{})
	art, err := NewCompiler(base).Eval("6 * 7")
	if err != nil {
		t.Fatal(err)
	}
	if got := art.IR.String(); strings.Contains(got, "(mul 6 7)") {
		t.Errorf("patch IR not optimized:\n%s", got)
	}
	if v, _ := runEntry(t, art); v != 42 {
		t.Errorf("entry() = %d, want 42", v)
	}
}

func TestMissingDefinition(t *testing.T) {
	base := newBase(t, toolchain.Settings{Optimize: true})
	src := base.Module()

	ns := *src.Namespace
	ns.Funcs = maps.Clone(src.Namespace.Funcs)
	double := *ns.Funcs["double"]
	double.Def = nil
	ns.Funcs["double"] = &double

	mod := *src
	mod.Namespace = &ns
	broken, err := artifact.NewContext(&mod, base.Toolchain())
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewCompiler(broken).Call("double")
	var failed *Failed
	if !stderrors.As(err, &failed) || failed.State != StateClosureResolve {
		t.Fatalf("err = %v, want failure in closure_resolve", err)
	}
	if !stderrors.Is(err, errors.ErrInternalConsistency) {
		t.Errorf("err = %v, want internal consistency error", err)
	}
}

func TestClosureIDCollision(t *testing.T) {
	base := newBase(t, toolchain.Settings{Optimize: true})
	src := base.Module()

	// main.inc keeps id 1 in the runtime IR but the registry forgets it,
	// so the next fresh id lands on it.
	mod := *src
	mod.AssignedIDs = maps.Clone(src.AssignedIDs)
	delete(mod.AssignedIDs, "main.inc")
	stale, err := artifact.NewContext(&mod, base.Toolchain())
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewCompiler(stale).Call("double")
	var failed *Failed
	if !stderrors.As(err, &failed) || failed.State != StateClosureResolve {
		t.Fatalf("err = %v, want failure in closure_resolve", err)
	}
	if !stderrors.Is(err, errors.ErrIDCollision) {
		t.Errorf("err = %v, want id collision", err)
	}
	if !stderrors.Is(err, errors.ErrInternalConsistency) {
		t.Errorf("err = %v, want internal consistency error", err)
	}
	if stale.IsCompiled("main.double") {
		t.Error("colliding function must not be recorded")
	}
}

func TestCallLookup(t *testing.T) {
	c := NewCompiler(newBase(t, toolchain.Settings{Optimize: true}))
	if _, err := c.Call("bump"); err == nil {
		t.Error("external function must be rejected")
	}
	if _, err := c.Call("nope"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown function: %v", err)
	}
	if _, err := c.Call("main.inc"); err != nil {
		t.Errorf("qualified key: %v", err)
	}
}
