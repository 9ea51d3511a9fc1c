package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseAnalyze,
				Kind:   KindSemantic,
				Path:   []string{"lib", "token.hp"},
				Line:   12,
				Symbol: "transfer",
				Detail: "unknown name",
			},
			contains: []string{"[analyze]", "semantic", "lib/token.hp", "line 12", "transfer", "unknown name"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseParse,
				Kind:  KindSyntax,
			},
			contains: []string{"[parse]", "syntax"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindRuntimeTrap,
				Detail: "division",
				Cause:  errors.New("integer divide by zero"),
			},
			contains: []string{"[runtime]", "runtime_trap", "division", "caused by", "integer divide by zero"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindNotFound,
		Cause: cause,
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := Semantic(3, "unknown name %q", "x")

	if !errors.Is(err, ErrSemantic) {
		t.Error("expected match on kind-only sentinel")
	}
	if !errors.Is(err, &Error{Phase: PhaseAnalyze, Kind: KindSemantic}) {
		t.Error("expected match on phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseParse, Kind: KindSemantic}) {
		t.Error("unexpected match with different phase")
	}
	if errors.Is(err, ErrSyntax) {
		t.Error("unexpected match with different kind")
	}
}

func TestIDCollision(t *testing.T) {
	err := IDCollision(PhaseLink, 4, "double", "triple")
	if !errors.Is(err, ErrInternalConsistency) {
		t.Error("id collision must be an internal consistency error")
	}
	if !errors.Is(err, ErrIDCollision) {
		t.Error("id collision must match ErrIDCollision")
	}
	if errors.Is(Inconsistent(PhaseLink, "x"), ErrIDCollision) {
		t.Error("a plain inconsistency is not an id collision")
	}
	want := "[link] id_collision symbol triple: id 4 already assigned to double"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestFatal(t *testing.T) {
	if SchemaMismatch("k", "missing source map").Fatal() {
		t.Error("schema mismatch is recoverable")
	}
	if !MissingDefinition("f").Fatal() {
		t.Error("missing definition is fatal")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseCodegen, KindUnsupported).
		Path("main.hp").
		Line(7).
		Symbol("f").
		Value(3).
		Detail("too many arguments: %d", 5).
		Cause(errors.New("limit")).
		Build()

	if err.Phase != PhaseCodegen || err.Kind != KindUnsupported {
		t.Errorf("phase/kind = %s/%s", err.Phase, err.Kind)
	}
	if err.Detail != "too many arguments: 5" {
		t.Errorf("detail = %q", err.Detail)
	}
	if err.Line != 7 || err.Symbol != "f" || err.Value != 3 {
		t.Errorf("unexpected fields: %+v", err)
	}
}
