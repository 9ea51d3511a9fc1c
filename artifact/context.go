package artifact

import (
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/toolchain"
)

// Context is the base module context of a patch session. It is not safe for
// concurrent use; one patch completes before the next starts.
type Context struct {
	module    *CompiledModule
	toolchain toolchain.Toolchain
	ids       *IDRegistry
	compiled  *set.Set[string]
	extra     []*ir.Node
	bodies    map[string]*ir.Node
}

// NewContext opens a session over mod. The module's recorded ids are
// validated up front.
func NewContext(mod *CompiledModule, tc toolchain.Toolchain) (*Context, error) {
	if mod == nil || mod.Namespace == nil || mod.RuntimeIR == nil {
		return nil, errors.InvalidInput(errors.PhaseLink, "base module is incomplete")
	}
	ids, err := NewIDRegistry(mod.AssignedIDs)
	if err != nil {
		return nil, err
	}
	labels := make(map[int]string)
	for _, f := range ir.Funcs(mod.RuntimeIR) {
		if f.ID == 0 {
			continue
		}
		if prev, ok := labels[f.ID]; ok {
			return nil, errors.IDCollision(errors.PhaseLink, f.ID, prev, f.Name)
		}
		labels[f.ID] = f.Name
	}
	return &Context{
		module:    mod,
		toolchain: tc,
		ids:       ids,
		compiled:  set.From(mod.Compiled),
		bodies:    make(map[string]*ir.Node),
	}, nil
}

func (c *Context) Module() *CompiledModule { return c.module }

func (c *Context) Toolchain() toolchain.Toolchain { return c.toolchain }

// Namespace is the base module's resolved namespace. Callers must not
// modify it.
func (c *Context) Namespace() *toolchain.Namespace { return c.module.Namespace }

func (c *Context) Settings() toolchain.Settings { return c.module.Settings }

// IDs returns every id assigned so far, by the module compile or by patches.
func (c *Context) IDs() map[string]int { return c.ids.Snapshot() }

// Registry exposes the session's id allocator.
func (c *Context) Registry() *IDRegistry { return c.ids }

// IsCompiled reports whether code for the internal function is available to
// patches, either from the module compile or from an earlier patch.
func (c *Context) IsCompiled(key string) bool { return c.compiled.Contains(key) }

// Compiled lists the available internal functions in sorted order.
func (c *Context) Compiled() []string {
	out := c.compiled.Slice()
	slices.Sort(out)
	return out
}

// Record adds a function compiled by a patch. Recording the same key twice
// is an internal consistency error.
func (c *Context) Record(key string, body *ir.Node) error {
	if !c.compiled.Insert(key) {
		return errors.Inconsistent(errors.PhaseLink, "%s compiled twice", key)
	}
	c.bodies[key] = body
	c.extra = append(c.extra, body)
	return nil
}

// Extra returns the IR of every function compiled by patches, in the order
// they were recorded.
func (c *Context) Extra() []*ir.Node { return slices.Clone(c.extra) }

// Body returns the patch-compiled IR of key.
func (c *Context) Body(key string) (*ir.Node, bool) {
	b, ok := c.bodies[key]
	return b, ok
}
