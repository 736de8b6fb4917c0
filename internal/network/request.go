// Package network defines the contract between the composite pipeline and the
// layers that actually talk to a schema: a request future settled exactly
// once, and the Layer interface that accepts batches of such requests.
package network

import (
	"context"
	"sync"

	query "github.com/hanpama/compositegraph/internal/query"
)

// Response is the data a layer produced for one request.
type Response struct {
	Data map[string]any
}

// Request pairs a query tree with its variables and a settle-once result.
// Resolve and Reject are safe to call from any goroutine; only the first call
// has an effect.
type Request struct {
	query     query.Node
	variables map[string]any

	once sync.Once
	done chan struct{}
	resp Response
	err  error
}

// NewRequest creates an unsettled request for root, which must be a
// *query.Root or *query.Mutation.
func NewRequest(root query.Node, variables map[string]any) *Request {
	if variables == nil {
		variables = map[string]any{}
	}
	return &Request{query: root, variables: variables, done: make(chan struct{})}
}

func (r *Request) Query() query.Node { return r.query }

func (r *Request) Variables() map[string]any { return r.variables }

// Resolve settles the request successfully. It reports whether this call
// settled it.
func (r *Request) Resolve(resp Response) bool {
	return r.settle(resp, nil)
}

// Reject settles the request with err. It reports whether this call settled
// it.
func (r *Request) Reject(err error) bool {
	return r.settle(Response{}, err)
}

func (r *Request) settle(resp Response, err error) bool {
	settled := false
	r.once.Do(func() {
		r.resp, r.err = resp, err
		settled = true
		close(r.done)
	})
	return settled
}

// Done is closed once the request is settled.
func (r *Request) Done() <-chan struct{} { return r.done }

// Result returns the settled outcome. It must only be called after Done is
// closed.
func (r *Request) Result() (Response, error) {
	return r.resp, r.err
}

// Wait blocks until the request is settled or ctx is done.
func (r *Request) Wait(ctx context.Context) (Response, error) {
	select {
	case <-r.done:
		return r.resp, r.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
