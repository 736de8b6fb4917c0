// Package logging builds the process logger and logs request lifecycles
// published on an event bus.
package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	eventbus "github.com/hanpama/compositegraph/internal/eventbus"
	events "github.com/hanpama/compositegraph/internal/events"
	reqid "github.com/hanpama/compositegraph/internal/reqid"
)

// New builds a logger at level ("debug", "info", "warn", "error"). The
// development config writes console output with stack traces on warnings.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Subscribe logs composite requests, their legs and gRPC calls published on
// bus. Starts are logged at debug, finishes at info, failures at warn.
func Subscribe(bus *eventbus.Bus, logger *zap.Logger) (unsubscribe func()) {
	withID := func(ctx context.Context, fields ...zap.Field) []zap.Field {
		if rid, ok := reqid.FromContext(ctx); ok {
			fields = append(fields, zap.String("request_id", rid))
		}
		return fields
	}
	unsubs := []func(){
		eventbus.Subscribe(bus, func(ctx context.Context, e events.CompositeStart) {
			logger.Debug("composite request started", withID(ctx,
				zap.Uint64("composite", e.ID),
				zap.String("field", e.Field),
				zap.Bool("mutation", e.Mutation),
				zap.Strings("schemas", e.Schemas),
			)...)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.CompositeFinish) {
			fields := withID(ctx,
				zap.Uint64("composite", e.ID),
				zap.String("field", e.Field),
				zap.Duration("duration", e.Duration),
			)
			if e.Err != nil {
				logger.Warn("composite request failed", append(fields, zap.Error(e.Err))...)
				return
			}
			logger.Info("composite request finished", fields...)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.LegStart) {
			logger.Debug("leg started", withID(ctx,
				zap.Uint64("composite", e.Composite),
				zap.Uint64("leg", e.ID),
				zap.String("schema", e.Schema),
				zap.String("query", e.Query),
				zap.Bool("dependent", e.Dependent),
			)...)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.LegFinish) {
			fields := withID(ctx,
				zap.Uint64("composite", e.Composite),
				zap.Uint64("leg", e.ID),
				zap.String("schema", e.Schema),
				zap.Duration("duration", e.Duration),
			)
			if e.Err != nil {
				logger.Warn("leg failed", append(fields, zap.Error(e.Err))...)
				return
			}
			logger.Debug("leg finished", fields...)
		}),
		eventbus.Subscribe(bus, func(ctx context.Context, e events.GRPCCallFinish) {
			if e.Err == nil {
				return
			}
			logger.Warn("grpc call failed", withID(ctx,
				zap.String("schema", e.Schema),
				zap.String("method", e.Method),
				zap.String("endpoint", e.Endpoint),
				zap.Stringer("code", e.Code),
				zap.Error(e.Err),
			)...)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
