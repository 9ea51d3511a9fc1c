package versions

import (
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/toolchain"
)

// Registry holds the toolchains available for routing, by version.
type Registry struct {
	mu         sync.RWMutex
	toolchains map[string]toolchain.Toolchain
	logger     *zap.Logger
}

// NewRegistry creates a registry holding tcs.
func NewRegistry(tcs ...toolchain.Toolchain) (*Registry, error) {
	r := &Registry{toolchains: make(map[string]toolchain.Toolchain), logger: zap.NewNop()}
	for _, tc := range tcs {
		if err := r.Register(tc); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetLogger sets the logger used for routing events.
func (r *Registry) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
}

// Register adds a toolchain under its own version, replacing any toolchain
// of the same version.
func (r *Registry) Register(tc toolchain.Toolchain) error {
	v, ok := Canonical(tc.Version())
	if !ok {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Symbol(tc.Identity()).Detail("invalid toolchain version %q", tc.Version()).Build()
	}
	r.mu.Lock()
	r.toolchains[v] = tc
	r.mu.Unlock()
	return nil
}

// Versions lists the registered versions in ascending order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.toolchains))
	for v := range r.toolchains {
		out = append(out, v)
	}
	semver.Sort(out)
	return out
}

// Resolve returns the highest registered toolchain satisfying constraint.
func (r *Registry) Resolve(constraint string) (toolchain.Toolchain, error) {
	c, err := ParseConstraint(constraint)
	if err != nil {
		return nil, err
	}
	versions := r.Versions()
	slices.Reverse(versions)
	for _, v := range versions {
		if c.Check(v) {
			r.mu.RLock()
			tc := r.toolchains[v]
			r.mu.RUnlock()
			return tc, nil
		}
	}
	return nil, errors.New(errors.PhaseConfig, errors.KindVersionUnsatisfiable).
		Value(constraint).
		Detail("no toolchain satisfies %q (available: %v)", constraint, r.Versions()).
		Build()
}

// Route picks the toolchain for source. Without a pragma, or when def
// satisfies it, def is returned and routed is false.
func (r *Registry) Route(source string, def toolchain.Toolchain) (tc toolchain.Toolchain, routed bool, err error) {
	pragma, ok := Detect(source)
	if !ok {
		return def, false, nil
	}
	c, err := ParseConstraint(pragma)
	if err != nil {
		return nil, false, err
	}
	if def != nil && c.Check(def.Version()) {
		return def, false, nil
	}
	tc, err = r.Resolve(pragma)
	if err != nil {
		return nil, false, err
	}

	r.mu.RLock()
	log := r.logger
	r.mu.RUnlock()
	log.Info("routing compile to pinned toolchain",
		zap.String("constraint", pragma),
		zap.String("toolchain", tc.Identity()))
	return tc, true, nil
}
