package artifact

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/toolchain"
)

func TestIDRegistry(t *testing.T) {
	r, err := NewIDRegistry(map[string]int{"main.a": 1, "main.b": 4})
	if err != nil {
		t.Fatal(err)
	}

	id, fresh := r.Assign("main.c")
	if id != 5 || !fresh {
		t.Errorf("Assign(main.c) = %d, %v; want 5, true", id, fresh)
	}
	id, fresh = r.Assign("main.a")
	if id != 1 || fresh {
		t.Errorf("Assign(main.a) = %d, %v; want 1, false", id, fresh)
	}
	if err := r.Reserve("main.d", 4); !stderrors.Is(err, errors.ErrIDCollision) {
		t.Errorf("Reserve taken id: %v", err)
	}
	if err := r.Reserve("main.a", 9); !stderrors.Is(err, errors.ErrInternalConsistency) {
		t.Errorf("Reserve second id: %v", err)
	}
	if err := r.Reserve("main.z", 0); err == nil {
		t.Error("id zero must be rejected")
	}

	want := map[string]int{"main.a": 1, "main.b": 4, "main.c": 5}
	if diff := cmp.Diff(want, r.Snapshot()); diff != "" {
		t.Errorf("Snapshot (-want +got):\n%s", diff)
	}
	if r.Used().Size() != 3 || !r.Used().Contains(5) {
		t.Errorf("Used = %v", r.Used())
	}
}

func TestIDRegistryNeverReuses(t *testing.T) {
	r, _ := NewIDRegistry(nil)
	seen := make(map[int]bool)
	last := 0
	for _, key := range []string{"a", "b", "a", "c", "b", "d"} {
		id, fresh := r.Assign(key)
		if fresh {
			if seen[id] || id <= last {
				t.Fatalf("Assign(%s) = %d after %d", key, id, last)
			}
			seen[id] = true
			last = id
		}
	}
	if r.Len() != 4 {
		t.Errorf("Len = %d, want 4", r.Len())
	}
}

func baseModule() *CompiledModule {
	ns := toolchain.NewNamespace("main")
	ns.Funcs["double"] = &toolchain.FuncSymbol{Name: "double", Module: "main", EntryLabel: "internal_main_double"}
	double := ir.Func("internal_main_double", []string{"x"}, true, ir.Return(ir.Binary(ir.Mul, ir.Var("x"), ir.Const(2))))
	double.ID = 1
	out := &toolchain.Output{
		RuntimeIR:   ir.Seq(ir.Global("counter", 0), double),
		DataSection: []byte{0, 1, 2},
		AssignedIDs: map[string]int{"main.double": 1},
		Compiled:    []string{"main.double"},
	}
	mod := &toolchain.Module{Source: toolchain.Source{Name: "main", Filename: "main.hp"}, Namespace: ns}
	return New(mod, toolchain.Settings{Optimize: true}, out, "hp 1.2.0")
}

func TestContext(t *testing.T) {
	mod := baseModule()
	ctx, err := NewContext(mod, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ctx.IsCompiled("main.double") || ctx.IsCompiled("main.triple") {
		t.Error("compiled set does not match the module")
	}

	body := ir.Func("internal_main_triple", []string{"x"}, true, ir.Return(ir.Var("x")))
	if err := ctx.Record("main.triple", body); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Record("main.triple", body); !stderrors.Is(err, errors.ErrInternalConsistency) {
		t.Errorf("second Record: %v", err)
	}
	if diff := cmp.Diff([]string{"main.double", "main.triple"}, ctx.Compiled()); diff != "" {
		t.Errorf("Compiled (-want +got):\n%s", diff)
	}
	if got, ok := ctx.Body("main.triple"); !ok || got != body {
		t.Error("Body must return the recorded IR")
	}
	if len(ctx.Extra()) != 1 {
		t.Errorf("Extra = %d, want 1", len(ctx.Extra()))
	}
	if mod.HasCompiled("main.triple") {
		t.Error("session state must not leak into the module")
	}
}

func TestNewContextRejectsCorruptModule(t *testing.T) {
	t.Run("duplicate_assigned_id", func(t *testing.T) {
		mod := baseModule()
		mod.AssignedIDs["main.other"] = 1
		if _, err := NewContext(mod, nil); !stderrors.Is(err, errors.ErrIDCollision) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("duplicate_ir_id", func(t *testing.T) {
		mod := baseModule()
		dup := ir.Func("internal_main_other", nil, true, ir.Return(ir.Const(1)))
		dup.ID = 1
		mod.RuntimeIR = ir.Seq(mod.RuntimeIR, dup)
		if _, err := NewContext(mod, nil); !stderrors.Is(err, errors.ErrIDCollision) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("missing_ir", func(t *testing.T) {
		mod := baseModule()
		mod.RuntimeIR = nil
		if _, err := NewContext(mod, nil); err == nil {
			t.Error("expected error")
		}
	})
}
