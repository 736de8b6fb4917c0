// Package composite is the network layer clients talk to. It accepts
// requests against the composite schema, splits them per owning schema and
// executes the parts on the layers of the individual schemas.
package composite

import (
	"context"
	"errors"

	"go.uber.org/zap"

	executor "github.com/hanpama/compositegraph/internal/executor"
	extensions "github.com/hanpama/compositegraph/internal/extensions"
	network "github.com/hanpama/compositegraph/internal/network"
	split "github.com/hanpama/compositegraph/internal/split"
)

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the logger of the layer and its executor.
func WithLogger(l *zap.Logger) Option {
	return func(c *Layer) {
		if l != nil {
			c.logger = l
		}
	}
}

type Layer struct {
	splitter *split.Splitter
	executor *executor.Executor
	logger   *zap.Logger
}

var _ network.Layer = (*Layer)(nil)

// New returns a Layer routing fields according to cfg. layers maps schema
// names to the layer serving them.
func New(cfg *extensions.Config, layers map[string]network.Layer, opts ...Option) *Layer {
	l := &Layer{splitter: split.New(cfg), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	l.executor = executor.New(layers, executor.WithLogger(l.logger))
	return l
}

// SendQueries splits every request and starts executing it. Requests that
// cannot be split are rejected and their errors returned; the others are
// settled later.
func (l *Layer) SendQueries(ctx context.Context, requests []*network.Request) error {
	var errs []error
	for _, req := range requests {
		if err := l.send(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendMutation splits the mutation and starts executing it.
func (l *Layer) SendMutation(ctx context.Context, request *network.Request) error {
	return l.send(ctx, request)
}

func (l *Layer) send(ctx context.Context, req *network.Request) error {
	cr, err := l.splitter.Split(req)
	if err != nil {
		l.logger.Error("cannot split request", zap.Error(err))
		req.Reject(err)
		return err
	}
	go l.executor.Execute(ctx, cr)
	return nil
}

// Supports reports whether the layer supports the given client options. The
// composite layer supports none.
func (l *Layer) Supports(options ...string) bool {
	return false
}
