package grpclayer

import "errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints for a schema.
	ErrNoEndpoints = errors.New("grpclayer: no endpoints available")
	// ErrClosed is returned by calls on a closed Layer.
	ErrClosed = errors.New("grpclayer: closed")
	// ErrMalformedEnvelope reports a request or response struct missing
	// required fields.
	ErrMalformedEnvelope = errors.New("grpclayer: malformed envelope")
)
