package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// GRPCCallStart is emitted before a query is sent to a schema's gRPC backend.
type GRPCCallStart struct {
	Schema   string
	Endpoint string
	Method   string
}

// GRPCCallFinish is emitted when the call returns. Code is codes.OK when the
// transport succeeded, even if the backend reported GraphQL errors.
type GRPCCallFinish struct {
	Schema   string
	Endpoint string
	Method   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}
