package events

import "time"

// HTTPStart is emitted when the GraphQL endpoint receives a request.
type HTTPStart struct {
	RequestID string
	Method    string
	Path      string
}

// HTTPFinish is emitted after the response is written. Operations counts the
// GraphQL operations executed; a batch runs more than one.
type HTTPFinish struct {
	RequestID  string
	Method     string
	Path       string
	Status     int
	Operations int
	Duration   time.Duration
}
