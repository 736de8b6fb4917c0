package grpclayer

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	eventbus "github.com/hanpama/compositegraph/internal/eventbus"
	events "github.com/hanpama/compositegraph/internal/events"
	language "github.com/hanpama/compositegraph/internal/language"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
	reqid "github.com/hanpama/compositegraph/internal/reqid"
)

// NewServer returns a gRPC server instrumented with otelgrpc.
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	return grpc.NewServer(opts...)
}

// ServerOption configures a registered service.
type ServerOption func(*service)

// WithBus publishes GraphQL events of served requests on b.
func WithBus(b *eventbus.Bus) ServerOption { return func(s *service) { s.bus = b } }

// Register exposes layer on s. Incoming queries are validated against schema
// and executed through the layer.
func Register(s grpc.ServiceRegistrar, schema *language.Schema, layer network.Layer, opts ...ServerOption) {
	svc := &service{schema: schema, layer: layer}
	for _, opt := range opts {
		opt(svc)
	}
	s.RegisterService(&serviceDesc, svc)
}

type executeServer interface {
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*executeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: executeMethodName, Handler: executeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "compositegraph/v1/graphql.proto",
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(executeServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: executeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(executeServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type service struct {
	schema *language.Schema
	layer  network.Layer
	bus    *eventbus.Bus
}

// Execute answers with a response envelope. Request failures are reported
// as GraphQL errors inside the envelope, not as gRPC statuses.
func (s *service) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(reqid.Header); len(ids) > 0 {
			ctx = reqid.WithID(ctx, ids[0])
		}
	}
	if _, ok := reqid.FromContext(ctx); !ok {
		ctx, _ = reqid.NewContext(ctx)
	}
	if s.bus != nil {
		ctx = eventbus.WithBus(ctx, s.bus)
	}

	text, operationName, variables, err := decodeRequest(in)
	if err != nil {
		return encodeResponse(nil, language.ErrorList{{Message: err.Error()}})
	}
	op, err := query.Parse(s.schema, text, operationName)
	if err != nil {
		return encodeResponse(nil, errorList(err))
	}

	rid, _ := reqid.FromContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{
		RequestID: rid,
		Transport: events.TransportGRPC,
		Name:      op.Name,
		Type:      string(op.Type),
		Roots:     op.ResponseKeys(),
	})
	data, err := network.Execute(ctx, s.layer, op, variables)
	eventbus.Publish(ctx, events.GraphQLFinish{
		RequestID: rid,
		Transport: events.TransportGRPC,
		Name:      op.Name,
		Type:      string(op.Type),
		Err:       err,
		Duration:  time.Since(start),
	})
	var errs language.ErrorList
	if err != nil {
		errs = errorList(err)
		data = nil
	}
	return encodeResponse(data, errs)
}

func errorList(err error) language.ErrorList {
	var list language.ErrorList
	if errors.As(err, &list) {
		return list
	}
	var nerr *network.Error
	if errors.As(err, &nerr) && len(nerr.Errors) > 0 {
		return nerr.Errors
	}
	return language.ErrorList{{Message: err.Error()}}
}
