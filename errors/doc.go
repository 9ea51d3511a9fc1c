// Package errors provides structured error types for the hotpatch module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the module path, source line, offending symbol and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseAnalyze, errors.KindSemantic).
//		Path("token.hp").
//		Line(12).
//		Symbol("transfer").
//		Detail("unknown name %q", "balance").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Syntax(line, "expected ':' after function signature")
//	err := errors.MissingDefinition("internal_main_double")
//
// Kind-only sentinels (ErrSyntax, ErrSemantic, ErrInternalConsistency, ...)
// match any phase with the standard errors.Is.
package errors
