package network

import (
	"context"
	"fmt"
	"strings"

	language "github.com/hanpama/compositegraph/internal/language"
	query "github.com/hanpama/compositegraph/internal/query"
	response "github.com/hanpama/compositegraph/internal/response"
)

// Layer sends requests to a schema. Implementations must not block on the
// outcome: they return once the requests are handed off and settle each
// request later. A returned error means the hand-off itself failed; the
// affected requests are rejected with it as well.
type Layer interface {
	SendQueries(ctx context.Context, requests []*Request) error
	SendMutation(ctx context.Context, request *Request) error
}

// Error carries the GraphQL errors reported by a backend.
type Error struct {
	Schema string
	Status int
	Errors language.ErrorList
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Message)
	}
	prefix := "network"
	if e.Schema != "" {
		prefix = e.Schema
	}
	if len(msgs) == 0 {
		return fmt.Sprintf("%s: request failed with status %d", prefix, e.Status)
	}
	return prefix + ": " + strings.Join(msgs, "; ")
}

// Execute runs every root of op through layer and deep merges the results
// into one data tree. Query roots are sent as one batch; mutation roots are
// sent one after another in document order. Roots left out by @skip or
// @include are not sent.
func Execute(ctx context.Context, layer Layer, op *query.Operation, variables map[string]any) (map[string]any, error) {
	roots, err := includedRoots(op.Roots, variables)
	if err != nil {
		return nil, err
	}
	if op.Type == language.Mutation {
		var data any = map[string]any{}
		for _, root := range roots {
			req := NewRequest(root, variables)
			if err := layer.SendMutation(ctx, req); err != nil {
				return nil, err
			}
			resp, err := req.Wait(ctx)
			if err != nil {
				return nil, err
			}
			data = response.Merge(data, resp.Data, nil)
		}
		return data.(map[string]any), nil
	}

	if len(roots) == 0 {
		return map[string]any{}, nil
	}
	reqs := make([]*Request, len(roots))
	for i, root := range roots {
		reqs[i] = NewRequest(root, variables)
	}
	if err := layer.SendQueries(ctx, reqs); err != nil {
		return nil, err
	}
	var data any = map[string]any{}
	for _, req := range reqs {
		resp, err := req.Wait(ctx)
		if err != nil {
			return nil, err
		}
		data = response.Merge(data, resp.Data, nil)
	}
	return data.(map[string]any), nil
}

// includedRoots drops the roots @skip or @include leave out of the response.
func includedRoots(roots []query.Node, variables map[string]any) ([]query.Node, error) {
	out := make([]query.Node, 0, len(roots))
	for _, root := range roots {
		ok, err := query.RootIncluded(root, variables)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, root)
		}
	}
	return out, nil
}
