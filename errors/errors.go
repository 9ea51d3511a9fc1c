package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse    Phase = "parse"    // source text to AST
	PhaseAnalyze  Phase = "analyze"  // namespace resolution and typing
	PhaseCodegen  Phase = "codegen"  // AST to IR
	PhaseLink     Phase = "link"     // merging patch and base IR
	PhaseAssemble Phase = "assemble" // IR to bytecode
	PhaseCache    Phase = "cache"    // compilation cache
	PhaseLoad     Phase = "load"     // module loading and import resolution
	PhaseRuntime  Phase = "runtime"  // executing produced bytecode
	PhaseConfig   Phase = "config"   // configuration and version routing
)

// Kind categorizes the error
type Kind string

const (
	KindSyntax               Kind = "syntax"
	KindSemantic             Kind = "semantic"
	KindInternalConsistency  Kind = "internal_consistency"
	KindIDCollision          Kind = "id_collision"
	KindSchemaMismatch       Kind = "schema_mismatch"
	KindNotFound             Kind = "not_found"
	KindInvalidInput         Kind = "invalid_input"
	KindUnsupported          Kind = "unsupported"
	KindRuntimeTrap          Kind = "runtime_trap"
	KindVersionUnsatisfiable Kind = "version_unsatisfiable"
)

// Sentinels for errors.Is checks that only care about the kind.
var (
	ErrSyntax              = &Error{Kind: KindSyntax}
	ErrSemantic            = &Error{Kind: KindSemantic}
	ErrInternalConsistency = &Error{Kind: KindInternalConsistency}
	ErrIDCollision         = &Error{Kind: KindIDCollision}
	ErrSchemaMismatch      = &Error{Kind: KindSchemaMismatch}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrUnsupported         = &Error{Kind: KindUnsupported}
	ErrRuntimeTrap         = &Error{Kind: KindRuntimeTrap}
	ErrVersion             = &Error{Kind: KindVersionUnsatisfiable}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Symbol string
	Detail string
	Path   []string
	Line   int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" in ")
		b.WriteString(strings.Join(e.Path, "/"))
	}
	if e.Line > 0 {
		b.WriteString(" line ")
		b.WriteString(strconv.Itoa(e.Line))
	}
	if e.Symbol != "" {
		b.WriteString(" symbol ")
		b.WriteString(e.Symbol)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	// an id collision is one kind of internal inconsistency
	return e.Kind == t.Kind ||
		(e.Kind == KindIDCollision && t.Kind == KindInternalConsistency)
}

// Fatal reports whether the error must never be retried.
func (e *Error) Fatal() bool {
	return e.Kind != KindSchemaMismatch
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the module path the error refers to
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Line sets the source line
func (b *Builder) Line(line int) *Builder {
	b.err.Line = line
	return b
}

// Symbol sets the offending symbol name
func (b *Builder) Symbol(s string) *Builder {
	b.err.Symbol = s
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Syntax creates a syntax error for malformed source
func Syntax(line int, format string, args ...any) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindSyntax,
		Line:   line,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Semantic creates a resolution or typing error
func Semantic(line int, format string, args ...any) *Error {
	return &Error{
		Phase:  PhaseAnalyze,
		Kind:   KindSemantic,
		Line:   line,
		Detail: fmt.Sprintf(format, args...),
	}
}

// MissingDefinition reports a reachable function without a recorded definition.
func MissingDefinition(symbol string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindInternalConsistency,
		Symbol: symbol,
		Detail: "reachable function has no recorded definition",
	}
}

// IDCollision reports two symbols sharing one assigned id. It matches
// both ErrIDCollision and ErrInternalConsistency.
func IDCollision(phase Phase, id int, first, second string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIDCollision,
		Symbol: second,
		Value:  id,
		Detail: fmt.Sprintf("id %d already assigned to %s", id, first),
	}
}

// Inconsistent creates an internal consistency error
func Inconsistent(phase Phase, format string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternalConsistency,
		Detail: fmt.Sprintf(format, args...),
	}
}

// SchemaMismatch reports a cached payload written by an older schema
func SchemaMismatch(key, detail string) *Error {
	return &Error{
		Phase:  PhaseCache,
		Kind:   KindSchemaMismatch,
		Value:  key,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Symbol: name,
		Detail: what + " not found",
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Trap wraps a failure raised while executing bytecode or IR
func Trap(symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindRuntimeTrap,
		Symbol: symbol,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindNotFound,
		Detail: detail,
		Cause:  cause,
	}
}
