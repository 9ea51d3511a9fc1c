package versions

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/lang"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		src  string
		want string
		ok   bool
	}{
		{"# @version ^1.2\ncounter: int\n", "^1.2", true},
		{"counter: int\n  #  pragma version >=1.0, <2  \n", ">=1.0, <2", true},
		{"counter: int\n", "", false},
		{"# version 1.0\n", "", false},
	}
	for _, tt := range tests {
		got, ok := Detect(tt.src)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Detect(%q) = %q, %v; want %q, %v", tt.src, got, ok, tt.want, tt.ok)
		}
	}
}

func TestConstraint(t *testing.T) {
	tests := []struct {
		constraint string
		version    string
		want       bool
	}{
		{"1.2.0", "1.2.0", true},
		{"=1.2", "1.2.1", false},
		{"^1.2.3", "1.9.0", true},
		{"^1.2.3", "2.0.0", false},
		{"^1.2.3", "1.2.2", false},
		{"^0.2.3", "0.2.9", true},
		{"^0.2.3", "0.3.0", false},
		{"^0.0.3", "0.0.3", true},
		{"^0.0.3", "0.0.4", false},
		{"~1.2.3", "1.2.9", true},
		{"~1.2.3", "1.3.0", false},
		{">1.0", "1.0.1", true},
		{">=1.0, <1.3", "1.2.9", true},
		{">=1.0, <1.3", "1.3.0", false},
		{"<=1.1", "1.1.0", true},
		{"^1.0", "v1.4.0", true},
		{"^1.0", "1.4.0-rc1", true},
		{"^1.0", "not-a-version", false},
	}
	for _, tt := range tests {
		t.Run(tt.constraint+"/"+tt.version, func(t *testing.T) {
			c, err := ParseConstraint(tt.constraint)
			if err != nil {
				t.Fatal(err)
			}
			if got := c.Check(tt.version); got != tt.want {
				t.Errorf("Check = %v, want %v", got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "^", ">=1.0,", "1.x", "!=1.0"} {
		if _, err := ParseConstraint(bad); err == nil {
			t.Errorf("ParseConstraint(%q) must fail", bad)
		}
	}
}

func TestRegistry(t *testing.T) {
	def := lang.New()
	r, err := NewRegistry(def, lang.New(lang.WithVersion("1.3.1")), lang.New(lang.WithVersion("0.9.0")), lang.New(lang.WithVersion("1.3.0")))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"v0.9.0", "v1.2.0", "v1.3.0", "v1.3.1"}, r.Versions()); diff != "" {
		t.Errorf("Versions (-want +got):\n%s", diff)
	}

	tc, err := r.Resolve("^1.0")
	if err != nil || tc.Version() != "1.3.1" {
		t.Errorf("Resolve(^1.0) = %v, %v", tc, err)
	}
	tc, err = r.Resolve("~1.3.0, <1.3.1")
	if err != nil || tc.Version() != "1.3.0" {
		t.Errorf("Resolve(~1.3.0, <1.3.1) = %v, %v", tc, err)
	}
	if _, err := r.Resolve(">=2"); !stderrors.Is(err, &errors.Error{Kind: errors.KindVersionUnsatisfiable}) {
		t.Errorf("unsatisfiable: %v", err)
	}
	if err := r.Register(lang.New(lang.WithVersion("latest"))); err == nil {
		t.Error("invalid version must be rejected")
	}
}

func TestRoute(t *testing.T) {
	def := lang.New()
	r, _ := NewRegistry(def, lang.New(lang.WithVersion("0.9.0")))

	tests := []struct {
		name    string
		src     string
		version string
		routed  bool
	}{
		{"no_pragma", "counter: int\n", "1.2.0", false},
		{"default_satisfies", "# @version ^1.0\n", "1.2.0", false},
		{"pinned_older", "# @version ~0.9\n", "0.9.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, routed, err := r.Route(tt.src, def)
			if err != nil {
				t.Fatal(err)
			}
			if tc.Version() != tt.version || routed != tt.routed {
				t.Errorf("Route = %s, %v; want %s, %v", tc.Version(), routed, tt.version, tt.routed)
			}
		})
	}

	if _, _, err := r.Route("# @version ^3.0\n", def); err == nil {
		t.Error("unsatisfiable pragma must fail")
	}
}
