// Package wrapper synthesizes the source of a patch function: a callable
// wrapper around an internal function, or around free-form statement text.
//
// Generated names start with "__", which the language reserves, so they
// never collide with user definitions.
package wrapper

import (
	"strings"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/toolchain"
)

// DebugName is the name of the function wrapping free-form text.
const DebugName = "__hotpatch_debug__"

// CallName returns the name of the function wrapping an internal call.
func CallName(fn string) string {
	return "__hotpatch_call_" + fn + "__"
}

// Kind selects the wrapping mode of a request.
type Kind uint8

const (
	InternalCall Kind = iota
	ArbitraryStatement
)

func (k Kind) String() string {
	if k == ArbitraryStatement {
		return "statement"
	}
	return "internal_call"
}

// Request asks for one patch. Target is required for InternalCall; Text is
// used for ArbitraryStatement.
type Request struct {
	Kind   Kind
	Text   string
	Target *toolchain.FuncSymbol
}

// Wrapper is generated source for a single external function.
type Wrapper struct {
	Name       string
	Source     string
	ReturnType string
	// Header counts the generated lines before the caller's text.
	Header int
}

// TypeInferer reports the type of an expression under a namespace. A
// toolchain.Toolchain satisfies it.
type TypeInferer interface {
	InferType(expr string, ns *toolchain.Namespace) (string, error)
}

// Generate builds the wrapper for req. The only failure is a malformed
// request.
func Generate(req Request, ns *toolchain.Namespace, types TypeInferer) (Wrapper, error) {
	switch req.Kind {
	case InternalCall:
		if req.Target == nil {
			return Wrapper{}, errors.InvalidInput(errors.PhaseParse, "internal call without a target function")
		}
		return Call(req.Target, ns.Module), nil
	case ArbitraryStatement:
		return Statement(req.Text, ns, types), nil
	}
	return Wrapper{}, errors.InvalidInput(errors.PhaseParse, "unknown request kind "+req.Kind.String())
}

// Call wraps an internal function of module (or of a module it imports)
// in an external function with the same parameters. Parameters with a
// default keep it; the wrapper forwards every parameter in order.
func Call(fn *toolchain.FuncSymbol, module string) Wrapper {
	name := CallName(fn.Name)

	params := make([]string, 0, len(fn.Params))
	for _, p := range positionalFirst(fn.Params) {
		decl := p.Name + ": " + p.Type
		if p.HasDefault {
			decl += " = " + p.Default
		}
		params = append(params, decl)
	}

	recv := "self"
	if fn.Module != "" && fn.Module != module {
		recv = fn.Module
	}
	call := recv + "." + fn.Name + "(" + strings.Join(fn.ParamNames(), ", ") + ")"

	var b strings.Builder
	b.WriteString("@external\ndef ")
	b.WriteString(name)
	b.WriteString("(")
	b.WriteString(strings.Join(params, ", "))
	b.WriteString(")")
	if fn.ReturnType != "" {
		b.WriteString(" -> ")
		b.WriteString(fn.ReturnType)
		b.WriteString(":\n    return ")
	} else {
		b.WriteString(":\n    ")
	}
	b.WriteString(call)
	b.WriteString("\n")

	return Wrapper{Name: name, Source: b.String(), ReturnType: fn.ReturnType}
}

// positionalFirst orders parameters without defaults before those with one.
// Declared functions already satisfy this; the relative order is kept.
func positionalFirst(params []toolchain.Param) []toolchain.Param {
	out := make([]toolchain.Param, 0, len(params))
	for _, p := range params {
		if !p.HasDefault {
			out = append(out, p)
		}
	}
	for _, p := range params {
		if p.HasDefault {
			out = append(out, p)
		}
	}
	return out
}

// Statement wraps free-form text. If the text is an expression whose type
// is known under ns the wrapper returns its value; otherwise the text
// becomes the function body as is. An indeterminate type is not an error.
func Statement(text string, ns *toolchain.Namespace, types TypeInferer) Wrapper {
	text = strings.TrimSpace(text)

	var typ string
	if types != nil && text != "" && !strings.Contains(text, "\n") {
		if t, err := types.InferType(text, ns); err == nil {
			typ = t
		}
	}

	var b strings.Builder
	b.WriteString("@external\ndef ")
	b.WriteString(DebugName)
	b.WriteString("()")
	if typ != "" {
		b.WriteString(" -> ")
		b.WriteString(typ)
		b.WriteString(":\n    return ")
		b.WriteString(text)
		b.WriteString("\n")
		return Wrapper{Name: DebugName, Source: b.String(), ReturnType: typ, Header: 2}
	}

	b.WriteString(":\n")
	if text == "" {
		text = "pass"
	}
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return Wrapper{Name: DebugName, Source: b.String(), Header: 2}
}
