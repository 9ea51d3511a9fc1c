// Package fingerprint computes content hashes over a module and everything
// it imports, transitively.
//
// The fingerprint of a module is
//
//	sha256(fingerprint(import_1) || ... || fingerprint(import_n) || sha256(source))
//
// with imports taken in declaration order, all values hex encoded. Each
// import identity is hashed once per traversal: a slot is reserved for it
// before recursing, so a diamond reuses the finished value and a cycle
// resolves to a fixed placeholder derived from the identity.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/wippyai/hotpatch/toolchain"
)

// Node is one module of an import graph.
type Node interface {
	// ID identifies the module; two nodes with the same ID are the same module.
	ID() string
	Source() []byte
	// Imports returns the direct imports in declaration order.
	Imports() []Node
}

type slotState uint8

const (
	pending slotState = iota
	done
)

type slot struct {
	id    string
	state slotState
	sum   string
}

// arena holds one slot per module identity for a single traversal.
type arena struct {
	slots []slot
	index map[string]int
}

// Of returns the fingerprint of n.
func Of(n Node) string {
	a := &arena{index: make(map[string]int)}
	return a.visit(n)
}

// All returns the fingerprint of n and of every module it reaches, keyed by
// ID, as computed in one traversal from n.
func All(n Node) map[string]string {
	a := &arena{index: make(map[string]int)}
	a.visit(n)
	out := make(map[string]string, len(a.slots))
	for _, s := range a.slots {
		out[s.id] = s.sum
	}
	return out
}

// Placeholder is the value a module contributes when it is reached again
// while its own fingerprint is still being computed.
func Placeholder(id string) string {
	sum := sha256.Sum256([]byte("cycle:" + id))
	return hex.EncodeToString(sum[:])
}

func (a *arena) visit(n Node) string {
	id := n.ID()
	if i, ok := a.index[id]; ok {
		if a.slots[i].state == pending {
			return Placeholder(id)
		}
		return a.slots[i].sum
	}

	i := len(a.slots)
	a.index[id] = i
	a.slots = append(a.slots, slot{id: id})

	h := sha256.New()
	for _, imp := range n.Imports() {
		h.Write([]byte(a.visit(imp)))
	}
	own := sha256.Sum256(n.Source())
	h.Write([]byte(hex.EncodeToString(own[:])))

	sum := hex.EncodeToString(h.Sum(nil))
	a.slots[i].state = done
	a.slots[i].sum = sum
	return sum
}

// Module adapts a loaded module graph. The identity of a module is its file
// name when known, otherwise its module name.
func Module(m *toolchain.Module) Node {
	return moduleNode{m}
}

type moduleNode struct {
	m *toolchain.Module
}

func (n moduleNode) ID() string {
	if n.m.Source.Filename != "" {
		return n.m.Source.Filename
	}
	return n.m.Source.Name
}

func (n moduleNode) Source() []byte { return []byte(n.m.Source.Text) }

func (n moduleNode) Imports() []Node {
	out := make([]Node, len(n.m.Imports))
	for i, imp := range n.m.Imports {
		out[i] = moduleNode{imp}
	}
	return out
}
