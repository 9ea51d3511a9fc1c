package patch

import (
	"github.com/hashicorp/go-set/v3"
	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/artifact"
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/toolchain"
)

// resolveClosure compiles every internal function reachable from fn that
// base does not have yet, assigning each a fresh id, and records it in base.
// linked is the IR the new functions will join; their ids must not clash
// with any id in it. It returns the keys compiled, in reachability order,
// and their bodies.
func resolveClosure(base *artifact.Context, fn *toolchain.FuncSymbol, linked *ir.Node, log *zap.Logger) ([]string, []*ir.Node, error) {
	var missing []string
	for _, key := range fn.Reachable {
		if !base.IsCompiled(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil, nil, nil
	}

	taken := set.New[int](16)
	for _, f := range ir.Funcs(linked) {
		if f.ID > 0 {
			taken.Insert(f.ID)
		}
	}

	ns := base.Namespace()
	tc := base.Toolchain()
	bodies := make([]*ir.Node, 0, len(missing))
	for _, key := range missing {
		sym, ok := ns.Lookup(key)
		if !ok || sym.Def == nil {
			return nil, nil, errors.MissingDefinition(key)
		}
		id, _ := base.Registry().Assign(key)
		if taken.Contains(id) {
			return nil, nil, errors.IDCollision(errors.PhaseLink, id, "linked IR", key)
		}
		frag, err := tc.GenerateInternalIR(sym, ns, id)
		if err != nil {
			return nil, nil, err
		}
		if err := base.Record(key, frag.Body); err != nil {
			return nil, nil, err
		}
		bodies = append(bodies, frag.Body)
		taken.Insert(id)
		log.Debug("internal function compiled for patch",
			zap.String("function", key),
			zap.Int("id", id))
	}
	return missing, bodies, nil
}
