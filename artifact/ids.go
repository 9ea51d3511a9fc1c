package artifact

import (
	"maps"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/wippyai/hotpatch/errors"
)

// IDRegistry hands out function ids. Ids are never reused: a new id is
// always greater than every id seen so far.
type IDRegistry struct {
	ids   map[string]int
	owner map[int]string
	next  int
}

// NewIDRegistry seeds a registry with ids assigned by a previous compile.
// Two symbols sharing an id means the artifact is corrupt.
func NewIDRegistry(assigned map[string]int) (*IDRegistry, error) {
	r := &IDRegistry{
		ids:   make(map[string]int, len(assigned)),
		owner: make(map[int]string, len(assigned)),
		next:  1,
	}
	for _, key := range sortedKeys(assigned) {
		if err := r.Reserve(key, assigned[key]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Reserve records an id chosen elsewhere.
func (r *IDRegistry) Reserve(key string, id int) error {
	if id <= 0 {
		return errors.Inconsistent(errors.PhaseLink, "%s has invalid id %d", key, id)
	}
	if prev, ok := r.owner[id]; ok && prev != key {
		return errors.IDCollision(errors.PhaseLink, id, prev, key)
	}
	if prev, ok := r.ids[key]; ok && prev != id {
		return errors.Inconsistent(errors.PhaseLink, "%s already has id %d", key, prev)
	}
	r.ids[key] = id
	r.owner[id] = key
	if id >= r.next {
		r.next = id + 1
	}
	return nil
}

// Assign returns the id of key, allocating a fresh one if needed. The bool
// reports whether the id is new.
func (r *IDRegistry) Assign(key string) (int, bool) {
	if id, ok := r.ids[key]; ok {
		return id, false
	}
	id := r.next
	r.next++
	r.ids[key] = id
	r.owner[id] = key
	return id, true
}

// Lookup returns the id assigned to key.
func (r *IDRegistry) Lookup(key string) (int, bool) {
	id, ok := r.ids[key]
	return id, ok
}

func (r *IDRegistry) Len() int { return len(r.ids) }

// Snapshot returns a copy of every assignment.
func (r *IDRegistry) Snapshot() map[string]int {
	return maps.Clone(r.ids)
}

// Used returns the set of ids in use.
func (r *IDRegistry) Used() *set.Set[int] {
	s := set.New[int](len(r.owner))
	for id := range r.owner {
		s.Insert(id)
	}
	return s
}

func sortedKeys(m map[string]int) []string {
	return slices.Sorted(maps.Keys(m))
}
