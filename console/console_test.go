package console

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/hotpatch/artifact"
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/lang"
	"github.com/wippyai/hotpatch/toolchain"
)

const baseSource = `SCALE: constant(int) = 2
counter: int

@internal
def double(x: int) -> int:
    return x * SCALE

@internal
def add(x: int, y: int = SCALE, z: int = SCALE * 3) -> int:
    return x + y + z

@internal
def inc(by: int) -> int:
    return by + 1

@internal
def ratio(d: int) -> int:
    return 100 / d

@external
def bump() -> int:
    self.counter = self.inc(self.counter)
    return self.counter

@external
def add_to(by: int) -> int:
    self.counter = self.counter + by
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
	base, err := artifact.NewContext(artifact.New(mod, settings, out, tc.Identity()), tc)
	if err != nil {
		t.Fatal(err)
	}
	return base
}

func newConsole(t *testing.T, settings toolchain.Settings, opts ...Option) *Console {
	t.Helper()
	ctx := context.Background()
	c, err := New(ctx, newBase(t, settings), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := c.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return c
}

func TestInitialState(t *testing.T) {
	c := newConsole(t, toolchain.Settings{Optimize: true})
	if diff := cmp.Diff(map[string]int64{"counter": 0}, c.State()); diff != "" {
		t.Errorf("State (-want +got):\n%s", diff)
	}

	if err := c.SetState("counter", 9); err != nil {
		t.Fatal(err)
	}
	if err := c.SetState("missing", 1); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("SetState(missing) = %v, want not found", err)
	}

	s := c.State()
	s["counter"] = 100
	if c.State()["counter"] != 9 {
		t.Error("State must return a copy")
	}
}

func TestStatePersists(t *testing.T) {
	for _, interp := range []bool{false, true} {
		name := "wazero"
		if interp {
			name = "interpreter"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newConsole(t, toolchain.Settings{Optimize: true}, UseInterpreter(interp))

			if _, err := c.Eval(ctx, "self.counter = 5"); err != nil {
				t.Fatalf("Eval: %v", err)
			}
			res, err := c.Eval(ctx, "self.counter + self.double(3)")
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if res.Value != 11 || res.Type != "int" {
				t.Errorf("Eval = %d (%s), want 11 (int)", res.Value, res.Type)
			}
			if res.Interpreted != interp {
				t.Errorf("Interpreted = %v, want %v", res.Interpreted, interp)
			}
			if c.State()["counter"] != 5 {
				t.Errorf("counter = %d, want 5", c.State()["counter"])
			}
		})
	}
}

func TestCall(t *testing.T) {
	ctx := context.Background()
	c := newConsole(t, toolchain.Settings{Optimize: true})

	tests := []struct {
		name string
		fn   string
		args []int64
		want int64
	}{
		{"all_args", "double", []int64{21}, 42},
		{"qualified", "main.double", []int64{4}, 8},
		{"constant_default", "add", []int64{1, 10}, 17},
		{"expression_defaults", "add", []int64{1}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Call(ctx, tt.fn, tt.args...)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if res.Value != tt.want {
				t.Errorf("Call(%s, %v) = %d, want %d", tt.fn, tt.args, res.Value, tt.want)
			}
		})
	}

	if _, err := c.Call(ctx, "add"); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("missing argument: %v, want invalid input", err)
	}
	if _, err := c.Call(ctx, "double", 1, 2); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("too many arguments: %v, want invalid input", err)
	}
	if _, err := c.Call(ctx, "nope"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown function: %v, want not found", err)
	}
}

func TestDeploy(t *testing.T) {
	ctx := context.Background()
	c := newConsole(t, toolchain.Settings{Optimize: true})

	for want := int64(1); want <= 2; want++ {
		res, err := c.Deploy(ctx, "bump")
		if err != nil {
			t.Fatalf("Deploy: %v", err)
		}
		if res.Value != want {
			t.Errorf("bump = %d, want %d", res.Value, want)
		}
	}
	res, err := c.Deploy(ctx, "add_to", 40)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 42 || c.State()["counter"] != 42 {
		t.Errorf("add_to(40) = %d, counter %d", res.Value, c.State()["counter"])
	}

	got, err := c.Eval(ctx, "self.counter")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != 42 {
		t.Errorf("counter seen by patch = %d, want 42", got.Value)
	}

	if _, err := c.Deploy(ctx, "double", 1); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Deploy(internal) = %v, want invalid input", err)
	}
	if _, err := c.Deploy(ctx, "missing"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Deploy(missing) = %v, want not found", err)
	}
}

func TestTrapKeepsState(t *testing.T) {
	for _, interp := range []bool{false, true} {
		name := "wazero"
		if interp {
			name = "interpreter"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newConsole(t, toolchain.Settings{Optimize: true}, UseInterpreter(interp))
			if err := c.SetState("counter", 3); err != nil {
				t.Fatal(err)
			}

			_, err := c.Eval(ctx, "self.counter = 9\nself.counter = self.ratio(0)")
			if err == nil {
				t.Fatal("division by zero should trap")
			}
			if c.State()["counter"] != 3 {
				t.Errorf("counter = %d after trap, want 3", c.State()["counter"])
			}

			res, err := c.Call(ctx, "ratio", 4)
			if err != nil || res.Value != 25 {
				t.Errorf("ratio(4) = %v, %v", res, err)
			}
		})
	}
}

func TestAltCodegenRunsOnWazero(t *testing.T) {
	ctx := context.Background()
	c := newConsole(t, toolchain.Settings{AltCodegen: true}, UseInterpreter(true))

	res, err := c.Call(ctx, "double", 21)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 42 || res.Interpreted {
		t.Errorf("Call = %d (interpreted %v), want 42 on wazero", res.Value, res.Interpreted)
	}
	if diff := cmp.Diff([]string{"main.double"}, res.Compiled); diff != "" {
		t.Errorf("Compiled (-want +got):\n%s", diff)
	}
}

func TestDivisionOverflowTrapsOnBothBackends(t *testing.T) {
	for _, interp := range []bool{false, true} {
		name := "wazero"
		if interp {
			name = "interpreter"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newConsole(t, toolchain.Settings{Optimize: true}, UseInterpreter(interp))
			if err := c.SetState("counter", math.MinInt64); err != nil {
				t.Fatal(err)
			}

			res, err := c.Eval(ctx, "self.counter / -1")
			if !stderrors.Is(err, errors.ErrRuntimeTrap) {
				t.Fatalf("Eval = %v, %v; want runtime trap", res, err)
			}
			if got := c.State()["counter"]; got != math.MinInt64 {
				t.Errorf("counter = %d after trap", got)
			}
		})
	}
}
