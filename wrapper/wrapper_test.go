package wrapper

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/hotpatch/lang"
	"github.com/wippyai/hotpatch/toolchain"
)

const base = `LIMIT: constant(int) = 100
counter: int

@internal
def clamp(v: int, hi: int = LIMIT) -> int:
    if v > hi:
        return hi
    return v

@internal
def touch():
    self.counter = self.counter + 1
`

func namespace(t *testing.T) (*lang.Toolchain, *toolchain.Namespace) {
	t.Helper()
	tc := lang.New()
	mod, err := tc.LoadModule(toolchain.Source{Name: "main", Text: base}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tc, mod.Namespace
}

func TestCall(t *testing.T) {
	tc, ns := namespace(t)

	tests := []struct {
		fn   string
		want Wrapper
	}{
		{
			fn: "clamp",
			want: Wrapper{
				Name:       "__hotpatch_call_clamp__",
				Source:     "@external\ndef __hotpatch_call_clamp__(v: int, hi: int = LIMIT) -> int:\n    return self.clamp(v, hi)\n",
				ReturnType: "int",
			},
		},
		{
			fn: "touch",
			want: Wrapper{
				Name:   "__hotpatch_call_touch__",
				Source: "@external\ndef __hotpatch_call_touch__():\n    self.touch()\n",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			got := Call(ns.Funcs[tt.fn], ns.Module)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Call (-want +got):\n%s", diff)
			}
			tree, err := tc.Parse(got.Source)
			if err != nil {
				t.Fatalf("wrapper does not parse: %v", err)
			}
			if _, err := tc.Analyze(tree, ns); err != nil {
				t.Errorf("wrapper does not analyze: %v", err)
			}
		})
	}
}

func TestCallImportedModule(t *testing.T) {
	fn := &toolchain.FuncSymbol{
		Name:       "square",
		Module:     "mathlib",
		Params:     []toolchain.Param{{Name: "x", Type: "int"}},
		ReturnType: "int",
	}
	got := Call(fn, "main")
	want := "@external\ndef __hotpatch_call_square__(x: int) -> int:\n    return mathlib.square(x)\n"
	if got.Source != want {
		t.Errorf("Source = %q, want %q", got.Source, want)
	}
}

func TestStatement(t *testing.T) {
	tc, ns := namespace(t)

	tests := []struct {
		name       string
		text       string
		body       string
		returnType string
	}{
		{"storage_read", "self.counter", "    return self.counter\n", "int"},
		{"arithmetic", " LIMIT - self.clamp(150) ", "    return LIMIT - self.clamp(150)\n", "int"},
		{"assignment", "self.counter = 5", "    self.counter = 5\n", ""},
		{"void_call", "self.touch()", "    self.touch()\n", ""},
		{"undeclared", "missing + 1", "    missing + 1\n", ""},
		{"malformed", "1 +", "    1 +\n", ""},
		{"empty", "", "    pass\n", ""},
		{"multi_line", "self.touch()\nself.touch()", "    self.touch()\n    self.touch()\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Statement(tt.text, ns, tc)
			header := "@external\ndef __hotpatch_debug__():\n"
			if tt.returnType != "" {
				header = "@external\ndef __hotpatch_debug__() -> " + tt.returnType + ":\n"
			}
			want := Wrapper{Name: DebugName, Source: header + tt.body, ReturnType: tt.returnType, Header: 2}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Statement (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	tc, ns := namespace(t)

	w, err := Generate(Request{Kind: InternalCall, Target: ns.Funcs["clamp"]}, ns, tc)
	if err != nil || w.Name != CallName("clamp") {
		t.Errorf("Generate internal call = %+v, %v", w, err)
	}
	w, err = Generate(Request{Kind: ArbitraryStatement, Text: "self.counter"}, ns, tc)
	if err != nil || w.ReturnType != "int" {
		t.Errorf("Generate statement = %+v, %v", w, err)
	}
	if _, err := Generate(Request{Kind: InternalCall}, ns, tc); err == nil {
		t.Error("internal call without target must fail")
	}
}
