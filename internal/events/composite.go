package events

import "time"

// CompositeStart is emitted when a split request starts executing.
type CompositeStart struct {
	ID        uint64
	Operation string
	Field     string
	Mutation  bool
	Schemas   []string
}

// CompositeFinish is emitted once the request is settled.
type CompositeFinish struct {
	ID       uint64
	Field    string
	Err      error
	Duration time.Duration
}

// LegStart is emitted before a query is sent to one schema. Composite is the
// ID of the request the leg belongs to.
type LegStart struct {
	ID        uint64
	Composite uint64
	Schema    string
	Query     string
	Mutation  bool
	Dependent bool
}

// LegFinish is emitted when a leg's response or error arrives.
type LegFinish struct {
	ID        uint64
	Composite uint64
	Schema    string
	Err       error
	Duration  time.Duration
}
