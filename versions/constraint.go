// Package versions detects the toolchain version a source file asks for
// and picks a matching toolchain.
//
// A source file pins its toolchain with a comment pragma:
//
//	# @version ^1.2
//	# pragma version >=1.1.0, <2.0.0
//
// Constraints are comma separated conjunctions of terms using the
// operators =, ^, ~, >, >=, < and <=. A bare version means =.
package versions

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/wippyai/hotpatch/errors"
)

var pragmaRegex = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*(?:@version|pragma[ \t]+version)[ \t]+([^\r\n]+?)[ \t]*$`)

var termRegex = regexp.MustCompile(`^([~^]|>=|<=|>|<|=)?\s*v?(\d+(?:\.\d+){0,2}(?:-[0-9A-Za-z\-\.]+)?)$`)

// Detect returns the constraint of the first version pragma in source.
func Detect(source string) (string, bool) {
	m := pragmaRegex.FindStringSubmatch(source)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Canonical normalizes a version to the "vMAJOR.MINOR.PATCH" form used by
// semver, filling missing components with zero.
func Canonical(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", false
	}
	return semver.Canonical(v), true
}

type term struct {
	op      string
	version string
}

// Constraint is a parsed version constraint.
type Constraint struct {
	terms    []term
	original string
}

// ParseConstraint parses a constraint such as "^1.2" or ">=1.0, <1.4".
func ParseConstraint(s string) (*Constraint, error) {
	c := &Constraint{original: strings.TrimSpace(s)}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		m := termRegex.FindStringSubmatch(part)
		if m == nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Value(s).Detail("invalid version constraint %q", part).Build()
		}
		v, ok := Canonical(m[2])
		if !ok {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Value(s).Detail("invalid version %q", m[2]).Build()
		}
		op := m[1]
		if op == "" {
			op = "="
		}
		c.terms = append(c.terms, term{op: op, version: v})
	}
	return c, nil
}

func (c *Constraint) String() string { return c.original }

// Check reports whether version satisfies every term.
func (c *Constraint) Check(version string) bool {
	v, ok := Canonical(version)
	if !ok {
		return false
	}
	for _, t := range c.terms {
		if !t.matches(v) {
			return false
		}
	}
	return true
}

func (t term) matches(v string) bool {
	cmp := semver.Compare(v, t.version)
	switch t.op {
	case "=":
		return cmp == 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case "~":
		// ~1.2.3 := >=1.2.3 <1.3.0
		return cmp >= 0 && semver.MajorMinor(v) == semver.MajorMinor(t.version)
	case "^":
		// ^1.2.3 := >=1.2.3 <2.0.0, ^0.2.3 := >=0.2.3 <0.3.0, ^0.0.3 := =0.0.3
		if cmp < 0 {
			return false
		}
		major, minor, _ := parts(t.version)
		switch {
		case major != 0:
			return semver.Major(v) == semver.Major(t.version)
		case minor != 0:
			return semver.MajorMinor(v) == semver.MajorMinor(t.version)
		}
		return semver.Compare(stripPrerelease(v), stripPrerelease(t.version)) == 0
	}
	return false
}

func stripPrerelease(v string) string {
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		return v[:i]
	}
	return v
}

// parts splits a canonical version into its numeric components.
func parts(v string) (major, minor, patch int) {
	nums := strings.SplitN(strings.TrimPrefix(stripPrerelease(v), "v"), ".", 3)
	vals := make([]int, 3)
	for i, n := range nums {
		vals[i], _ = strconv.Atoi(n)
	}
	return vals[0], vals[1], vals[2]
}
