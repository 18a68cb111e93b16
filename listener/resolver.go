package listener

import (
	"context"
	"fmt"
	"sync"
)

// Destination is a resolved physical message destination. Point-to-point
// destinations carry a queue name; publish/subscribe destinations carry an
// exchange, with an empty queue requesting a server-named one.
type Destination struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

// DestinationResolver maps logical destination names to physical
// destinations.
type DestinationResolver interface {
	ResolveDestination(ctx context.Context, name string, pubSub bool) (Destination, error)
}

// PassthroughResolver treats the logical name as the physical one: the queue
// name in point-to-point mode, the exchange name in publish/subscribe mode.
// It is the default resolution behavior of a container factory.
type PassthroughResolver struct{}

// ResolveDestination implements DestinationResolver.
func (PassthroughResolver) ResolveDestination(ctx context.Context, name string, pubSub bool) (Destination, error) {
	if name == "" {
		return Destination{}, ErrNoDestination
	}
	if pubSub {
		return Destination{Exchange: name}, nil
	}
	return Destination{Queue: name}, nil
}

// StaticResolver resolves destinations from a fixed registry. Lookups of
// unregistered names fail rather than falling through.
type StaticResolver struct {
	mu           sync.RWMutex
	destinations map[string]Destination
}

// NewStaticResolver creates a resolver over the given name registry.
func NewStaticResolver(destinations map[string]Destination) *StaticResolver {
	reg := make(map[string]Destination, len(destinations))
	for name, dest := range destinations {
		reg[name] = dest
	}
	return &StaticResolver{destinations: reg}
}

// Register adds or replaces a destination mapping.
func (r *StaticResolver) Register(name string, dest Destination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[name] = dest
}

// ResolveDestination implements DestinationResolver.
func (r *StaticResolver) ResolveDestination(ctx context.Context, name string, pubSub bool) (Destination, error) {
	r.mu.RLock()
	dest, ok := r.destinations[name]
	r.mu.RUnlock()
	if !ok {
		return Destination{}, fmt.Errorf("%w: %s", ErrUnknownDestination, name)
	}
	return dest, nil
}
