// Package httplayer sends query trees to a GraphQL-over-HTTP backend.
package httplayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc/metadata"

	language "github.com/hanpama/compositegraph/internal/language"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
	reqid "github.com/hanpama/compositegraph/internal/reqid"
)

const maxResponseBytes = 32 << 20

// Option configures a Layer.
type Option func(*Layer)

// WithClient sets the HTTP client. The default client is instrumented with
// otelhttp.
func WithClient(c *http.Client) Option {
	return func(l *Layer) {
		if c != nil {
			l.client = c
		}
	}
}

// WithTimeout bounds each backend request. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(l *Layer) { l.timeout = d } }

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(l *Layer) { l.header.Add(key, value) }
}

// Layer is a network.Layer for one backend schema reachable at endpoint.
type Layer struct {
	name     string
	endpoint string
	client   *http.Client
	timeout  time.Duration
	header   http.Header
}

var _ network.Layer = (*Layer)(nil)

// New returns a layer posting requests of schema name to endpoint.
func New(name, endpoint string, opts ...Option) *Layer {
	l := &Layer{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		header:   http.Header{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type payload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type result struct {
	Data   map[string]any     `json:"data"`
	Errors language.ErrorList `json:"errors,omitempty"`
}

func (l *Layer) SendQueries(ctx context.Context, requests []*network.Request) error {
	for _, req := range requests {
		go l.settle(ctx, req)
	}
	return nil
}

func (l *Layer) SendMutation(ctx context.Context, request *network.Request) error {
	go l.settle(ctx, request)
	return nil
}

func (l *Layer) settle(ctx context.Context, req *network.Request) {
	data, err := l.Do(ctx, req.Query(), req.Variables())
	if err != nil {
		req.Reject(err)
		return
	}
	req.Resolve(network.Response{Data: data})
}

// Do posts root and returns the data of the response. GraphQL errors and
// non-2xx statuses are returned as *network.Error.
func (l *Layer) Do(ctx context.Context, root query.Node, variables map[string]any) (map[string]any, error) {
	text, err := query.Print(root)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload{Query: text, Variables: declared(root, variables)})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", l.name, err)
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", l.name, err)
	}
	for k, vs := range l.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	// Headers the front end chose to forward travel as outgoing metadata,
	// shared with the gRPC layer.
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		for k, vs := range md {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if id, ok := reqid.FromContext(ctx); ok {
		httpReq.Header.Set(reqid.Header, id)
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: send request: %w", l.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", l.name, err)
	}
	var res result
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&res); err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, &network.Error{Schema: l.name, Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("%s: decode response: %w", l.name, err)
	}
	if len(res.Errors) > 0 || resp.StatusCode/100 != 2 {
		return nil, &network.Error{Schema: l.name, Status: resp.StatusCode, Errors: res.Errors}
	}
	if res.Data == nil {
		res.Data = map[string]any{}
	}
	return res.Data, nil
}

// declared keeps the variables the printed document declares.
func declared(root query.Node, variables map[string]any) map[string]any {
	used := query.ReferencedVariables([]query.Node{root})
	if len(used) == 0 {
		return nil
	}
	out := make(map[string]any, len(used))
	for name := range used {
		if v, ok := variables[name]; ok {
			out[name] = v
		}
	}
	return out
}
