package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	eventbus "github.com/hanpama/compositegraph/internal/eventbus"
	events "github.com/hanpama/compositegraph/internal/events"
	reqid "github.com/hanpama/compositegraph/internal/reqid"
)

// Setup configures OpenTelemetry and attaches subscribers to bus.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string, bus *eventbus.Bus) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Register(bus, otel.Tracer("compositegraph"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Register turns bus events into spans of tracer: http.request and
// graphql.operation per request id, composite.request per split request
// and composite.leg per query sent to a schema.
func Register(bus *eventbus.Bus, tracer trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: tracer}
	return s.register(bus)
}

type subscriber struct {
	tracer         trace.Tracer
	httpSpans      sync.Map // rid -> trace.Span
	gqlSpans       sync.Map // rid -> trace.Span
	compositeSpans sync.Map // composite id -> trace.Span
	legSpans       sync.Map // leg id -> trace.Span
}

// parent returns ctx carrying the innermost open span of its request.
func (s *subscriber) parent(ctx context.Context) context.Context {
	rid, _ := reqid.FromContext(ctx)
	if v, ok := s.gqlSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	if v, ok := s.httpSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func end(m *sync.Map, key any, err error, attrs ...attribute.KeyValue) {
	v, ok := m.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *subscriber) register(bus *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPStart) {
			_, span := s.tracer.Start(ctx, "http.request")
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Method),
				attribute.String("http.target", e.Path),
				attribute.String("graphql.request_id", e.RequestID),
			)
			s.httpSpans.Store(e.RequestID, span)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPFinish) {
			end(&s.httpSpans, e.RequestID, nil,
				semconv.HTTPStatusCodeKey.Int(e.Status),
				attribute.Int("graphql.operations", e.Operations),
			)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.GraphQLStart) {
			_, span := s.tracer.Start(s.parent(ctx), "graphql.operation")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.Name),
				attribute.String("graphql.operation.type", e.Type),
				attribute.String("graphql.transport", e.Transport),
				attribute.StringSlice("graphql.roots", e.Roots),
			)
			s.gqlSpans.Store(e.RequestID, span)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.GraphQLFinish) {
			end(&s.gqlSpans, e.RequestID, e.Err)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.CompositeStart) {
			_, span := s.tracer.Start(s.parent(ctx), "composite.request")
			span.SetAttributes(
				attribute.String("composite.field", e.Field),
				attribute.Bool("composite.mutation", e.Mutation),
				attribute.StringSlice("composite.schemas", e.Schemas),
			)
			s.compositeSpans.Store(e.ID, span)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.CompositeFinish) {
			end(&s.compositeSpans, e.ID, e.Err)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.LegStart) {
			parent := ctx
			if v, ok := s.compositeSpans.Load(e.Composite); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			}
			_, span := s.tracer.Start(parent, "composite.leg")
			span.SetAttributes(
				attribute.String("composite.schema", e.Schema),
				attribute.String("composite.query", e.Query),
				attribute.Bool("composite.dependent", e.Dependent),
			)
			s.legSpans.Store(e.ID, span)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.LegFinish) {
			end(&s.legSpans, e.ID, e.Err)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
