package events

import "time"

// Front ends that run GraphQL operations.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// GraphQLStart is emitted before an operation is handed to the network layer.
// Roots lists the response keys of its root fields.
type GraphQLStart struct {
	RequestID string
	Transport string
	Name      string
	Type      string
	Roots     []string
}

// GraphQLFinish is emitted once every root of the operation has settled.
type GraphQLFinish struct {
	RequestID string
	Transport string
	Name      string
	Type      string
	Err       error
	Duration  time.Duration
}
