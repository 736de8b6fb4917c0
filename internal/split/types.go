// Package split decomposes a client request into schema-homogeneous queries
// connected by dependent edges.
//
// Every field is owned by the schema the extension table names for its
// parent type, or inherits the owner of its parent. Children owned by another
// schema are cut out of the query and recorded as a DependentSpec: once the
// parent query has answered, each object found at the dependent's path is
// refetched from the other schema through a node(id) query.
package split

import (
	"errors"

	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
	response "github.com/hanpama/compositegraph/internal/response"
)

var (
	// ErrUnresolvedSchema is returned when no schema owns a root or mutation
	// field.
	ErrUnresolvedSchema = errors.New("split: unresolved schema")
	// ErrUnsupportedNode is returned for node kinds the splitter cannot place.
	ErrUnsupportedNode = errors.New("split: unsupported node kind")
)

// SchemaFragment is a selection on Type to be fetched from Schema.
// Dependents are relative to the object the fragment applies to.
type SchemaFragment struct {
	Type       string
	Schema     string
	Children   []query.Node
	Dependents []DependentSpec
}

// DependentSpec is a fragment to fetch for every identifiable object found at
// Path in the response of the query it belongs to.
type DependentSpec struct {
	Path     response.Path
	Fragment SchemaFragment
	// IDKey is the response key holding the object's id. Empty means "id".
	IDKey string
}

// Key returns the response key the object's id is read from.
func (d DependentSpec) Key() string {
	if d.IDKey == "" {
		return "id"
	}
	return d.IDKey
}

// WithPrefix returns a copy of d whose path is prefixed with segs.
func (d DependentSpec) WithPrefix(segs ...response.Segment) DependentSpec {
	d.Path = d.Path.WithPrefix(segs...)
	return d
}

// CompositeQuery is a query sent to a single schema together with the
// dependents to resolve against its response.
type CompositeQuery struct {
	Query      query.Node
	Schema     string
	Dependents []DependentSpec
}

// CompositeMutation is the mutation leg of a request. Query holds a
// *query.Mutation.
type CompositeMutation struct {
	Query      query.Node
	Schema     string
	Dependents []DependentSpec
}

// CompositeRequest is the split form of one client request. Exactly one of
// Queries and Mutation is set.
type CompositeRequest struct {
	Queries  []CompositeQuery
	Mutation *CompositeMutation
	Request  *network.Request
}

func prefixAll(deps []DependentSpec, segs ...response.Segment) []DependentSpec {
	if len(deps) == 0 {
		return nil
	}
	out := make([]DependentSpec, len(deps))
	for i, d := range deps {
		out[i] = d.WithPrefix(segs...)
	}
	return out
}
