package dispatch

import (
	"fmt"
	"sync"

	"github.com/angelmondragon/courier-dispatch/internal/allocation"
	"github.com/angelmondragon/courier-dispatch/pkg/db/models"
	"github.com/angelmondragon/courier-dispatch/pkg/enums"
	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
)

// Factory builds a strategy from a frozen parameter bag.
type Factory func(params map[string]any) (Strategy, error)

// Registry stores strategy factories keyed by allocation method.
type Registry struct {
	mu        sync.RWMutex
	factories map[enums.AllocationMethod]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[enums.AllocationMethod]Factory)}
}

// DefaultRegistry returns a registry with every built-in method.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(enums.AllocationOneByOne, factoryFor(enums.AllocationOneByOne, newOneByOne))
	_ = r.Register(enums.AllocationSendToAll, factoryFor(enums.AllocationSendToAll, newSendToAll))
	_ = r.Register(enums.AllocationRoundRobin, factoryFor(enums.AllocationRoundRobin, newRoundRobin))
	_ = r.Register(enums.AllocationNearestAvailable, factoryFor(enums.AllocationNearestAvailable, newNearestAvailable))
	_ = r.Register(enums.AllocationFIFO, factoryFor(enums.AllocationFIFO, newFIFO))
	_ = r.Register(enums.AllocationPooling, factoryFor(enums.AllocationPooling, newPooling))
	return r
}

// Register adds a factory for method.
func (r *Registry) Register(method enums.AllocationMethod, f Factory) error {
	if f == nil {
		return fmt.Errorf("factory nil for %s", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[method]; ok {
		return fmt.Errorf("factory already registered for %s", method)
	}
	r.factories[method] = f
	return nil
}

// Create instantiates the strategy a snapshot names.
func (r *Registry) Create(snap models.AllocationSnapshot) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[snap.Method]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no strategy for method %q", snap.Method))
	}
	return f(snap.Parameters)
}

func factoryFor[P any](method enums.AllocationMethod, build func(P) Strategy) Factory {
	return func(params map[string]any) (Strategy, error) {
		defaults, err := allocation.DefaultParams(method)
		if err != nil {
			return nil, err
		}
		p, ok := defaults.(*P)
		if !ok {
			return nil, fmt.Errorf("unexpected parameter type %T for %s", defaults, method)
		}
		if err := allocation.Decode(params, p); err != nil {
			return nil, err
		}
		return build(*p), nil
	}
}
