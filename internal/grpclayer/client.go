// Package grpclayer carries composite requests to backends over gRPC. A
// backend exposes one unary method, compositegraph.v1.GraphQL/Execute, whose
// request and response are google.protobuf.Struct envelopes of the GraphQL
// over HTTP payloads.
package grpclayer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	eventbus "github.com/hanpama/compositegraph/internal/eventbus"
	events "github.com/hanpama/compositegraph/internal/events"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
	reqid "github.com/hanpama/compositegraph/internal/reqid"
)

// Layer is a network.Layer for one schema served over gRPC, with connection
// pooling and deadline propagation. Each call picks a random endpoint from the
// layer's EndpointProvider.
type Layer struct {
	schema string
	opts   *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	closed atomic.Bool
}

var _ network.Layer = (*Layer)(nil)

func New(schema string, opts ...Option) *Layer {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Provider == nil && len(o.endpoints) > 0 {
		o.Provider = NewStaticEndpoints(map[string][]string{schema: o.endpoints})
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		}
	}
	return &Layer{
		schema: schema,
		opts:   o,
		pools:  make(map[string]*connPool),
	}
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

// Do executes root on one of the schema's endpoints. GraphQL errors in the
// response are returned as *network.Error.
func (l *Layer) Do(ctx context.Context, root query.Node, variables map[string]any) (data map[string]any, err error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if l.opts.Provider == nil {
		return nil, fmt.Errorf("grpclayer: provider not configured")
	}
	text, err := query.Print(root)
	if err != nil {
		return nil, err
	}
	in, err := encodeRequest(text, "", declared(root, variables))
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && l.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.RPCTimeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, SchemaHeader, l.schema)
	if id, ok := reqid.FromContext(ctx); ok {
		ctx = metadata.AppendToOutgoingContext(ctx, reqid.Header, id)
	}

	endpoints, err := l.opts.Provider.Endpoints(ctx, l.schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.schema, err)
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%s: %w", l.schema, ErrNoEndpoints)
	}
	endpoint := endpoints[rand.Intn(len(endpoints))]

	cc, err := l.getConn(endpoint)
	if err != nil {
		return nil, err
	}
	defer l.returnConn(endpoint, cc)

	start := time.Now()
	eventbus.Publish(ctx, events.GRPCCallStart{Schema: l.schema, Endpoint: endpoint, Method: executeMethod})
	out := new(structpb.Struct)
	err = cc.Invoke(ctx, executeMethod, in, out)
	eventbus.Publish(ctx, events.GRPCCallFinish{
		Schema:   l.schema,
		Endpoint: endpoint,
		Method:   executeMethod,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.schema, err)
	}

	data, errs, err := decodeResponse(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.schema, err)
	}
	if len(errs) > 0 {
		return nil, &network.Error{Schema: l.schema, Errors: errs}
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func (l *Layer) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.pools {
		p.close()
	}
	l.pools = map[string]*connPool{}
	return nil
}

// declared keeps the variables the printed document declares.
func declared(root query.Node, variables map[string]any) map[string]any {
	used := query.ReferencedVariables([]query.Node{root})
	out := make(map[string]any, len(used))
	for name := range used {
		if v, ok := variables[name]; ok {
			out[name] = v
		}
	}
	return out
}

// ---------------- internals ----------------

type connPool struct {
	endpoint string
	opts     *Options
	conns    chan *grpc.ClientConn
	mu       sync.Mutex
	closed   bool
}

func newConnPool(endpoint string, opts *Options) *connPool {
	n := opts.MaxConnsPerEndpoint
	if n <= 0 {
		n = 2
	}
	return &connPool{
		endpoint: endpoint,
		opts:     opts,
		conns:    make(chan *grpc.ClientConn, n),
	}
}

func (p *connPool) get() (*grpc.ClientConn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	select {
	case cc, ok := <-p.conns:
		if !ok {
			return nil, ErrClosed
		}
		return cc, nil
	default:
		return grpc.NewClient(p.endpoint, p.opts.DialOptions...)
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = cc.Close()
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (l *Layer) getConn(endpoint string) (*grpc.ClientConn, error) {
	l.mu.RLock()
	pool := l.pools[endpoint]
	l.mu.RUnlock()
	if pool == nil {
		l.mu.Lock()
		pool = l.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, l.opts)
			l.pools[endpoint] = pool
		}
		l.mu.Unlock()
	}
	return pool.get()
}

func (l *Layer) returnConn(endpoint string, cc *grpc.ClientConn) {
	l.mu.RLock()
	pool := l.pools[endpoint]
	l.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
