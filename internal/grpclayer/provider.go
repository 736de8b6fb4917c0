package grpclayer

import (
	"context"
	"sync"
)

// EndpointProvider returns the endpoints currently serving a schema. It is
// asked on every call, so a discovery-backed implementation can change the
// answer over time. Implementations must be safe for concurrent use.
type EndpointProvider interface {
	Endpoints(ctx context.Context, schema string) ([]string, error)
}

// ProviderFunc adapts a function to EndpointProvider.
type ProviderFunc func(ctx context.Context, schema string) ([]string, error)

func (f ProviderFunc) Endpoints(ctx context.Context, schema string) ([]string, error) {
	return f(ctx, schema)
}

// StaticEndpoints maps schema names to endpoints. Set may be called while
// layers are using it.
type StaticEndpoints struct {
	mu        sync.RWMutex
	endpoints map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	s := &StaticEndpoints{endpoints: make(map[string][]string, len(m))}
	for schema, list := range m {
		s.Set(schema, list...)
	}
	return s
}

func (s *StaticEndpoints) Endpoints(_ context.Context, schema string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.endpoints[schema]
	if len(list) == 0 {
		return nil, ErrNoEndpoints
	}
	return append([]string(nil), list...), nil
}

// Set replaces the endpoints of schema. With no endpoints the schema becomes
// unreachable.
func (s *StaticEndpoints) Set(schema string, endpoints ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(endpoints) == 0 {
		delete(s.endpoints, schema)
		return
	}
	s.endpoints[schema] = append([]string(nil), endpoints...)
}
