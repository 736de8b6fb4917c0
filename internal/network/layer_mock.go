package network

import (
	"context"
	"fmt"
	"sync"

	query "github.com/hanpama/compositegraph/internal/query"
)

// MockHandler answers a single request for MockLayer.
type MockHandler func(ctx context.Context, req *Request) (map[string]any, error)

// NewMockDataHandler returns a MockHandler that always returns data.
func NewMockDataHandler(data map[string]any) MockHandler {
	return func(ctx context.Context, req *Request) (map[string]any, error) {
		return data, nil
	}
}

// NewMockErrorHandler returns a MockHandler that always fails with err.
func NewMockErrorHandler(err error) MockHandler {
	return func(ctx context.Context, req *Request) (map[string]any, error) {
		return nil, err
	}
}

// Call records one request received by a MockLayer.
type Call struct {
	Mutation  bool
	Outline   string
	Variables map[string]any
}

// MockLayer implements Layer by handing every request to a handler on its own
// goroutine and recording each call.
type MockLayer struct {
	mu       sync.Mutex
	query    MockHandler
	mutation MockHandler
	calls    []Call
}

// NewMockLayer creates a MockLayer answering queries with q and mutations
// with m. A nil handler rejects the request.
func NewMockLayer(q, m MockHandler) *MockLayer {
	return &MockLayer{query: q, mutation: m}
}

func (l *MockLayer) SendQueries(ctx context.Context, requests []*Request) error {
	for _, req := range requests {
		l.dispatch(ctx, req, false, l.query)
	}
	return nil
}

func (l *MockLayer) SendMutation(ctx context.Context, request *Request) error {
	l.dispatch(ctx, request, true, l.mutation)
	return nil
}

func (l *MockLayer) dispatch(ctx context.Context, req *Request, mutation bool, h MockHandler) {
	l.mu.Lock()
	l.calls = append(l.calls, Call{Mutation: mutation, Outline: query.Outline(req.Query()), Variables: req.Variables()})
	l.mu.Unlock()
	go func() {
		if h == nil {
			req.Reject(fmt.Errorf("mock: no handler for %s", query.Outline(req.Query())))
			return
		}
		data, err := h(ctx, req)
		if err != nil {
			req.Reject(err)
			return
		}
		req.Resolve(Response{Data: data})
	}()
}

// Calls returns a copy of the recorded calls in the order they were sent.
func (l *MockLayer) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}
