package grpclayer

import (
	"time"

	"google.golang.org/grpc"
)

// Options configures a Layer. The zero value of a field keeps its default.
type Options struct {
	// Provider lists the endpoints serving the schema. WithEndpoints installs
	// a static one; without either, every call fails.
	Provider EndpointProvider
	// MaxConnsPerEndpoint bounds the idle connections kept per endpoint.
	// Defaults to 2.
	MaxConnsPerEndpoint int
	// RPCTimeout applies to calls whose context has no deadline. Defaults to 3s.
	RPCTimeout time.Duration
	// DialOptions replace the defaults: insecure credentials, the default
	// backoff and the otelgrpc client handler.
	DialOptions []grpc.DialOption

	endpoints []string
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxConnsPerEndpoint: 2,
		RPCTimeout:          3 * time.Second,
	}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }

// WithEndpoints serves the layer's schema from a fixed list of endpoints.
func WithEndpoints(endpoints ...string) Option {
	return func(o *Options) { o.endpoints = append([]string(nil), endpoints...) }
}

func WithMaxConnsPerEndpoint(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxConnsPerEndpoint = n
		}
	}
}

func WithRPCTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.RPCTimeout = d
		}
	}
}

func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}
