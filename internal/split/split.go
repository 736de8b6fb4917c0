package split

import (
	"fmt"

	extensions "github.com/hanpama/compositegraph/internal/extensions"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
	response "github.com/hanpama/compositegraph/internal/response"
)

// NodeField is the generic node lookup field of the query type.
const NodeField = "node"

// Splitter splits requests using one extension configuration. It holds no
// per-request state and is safe for concurrent use.
type Splitter struct {
	cfg *extensions.Config
}

func New(cfg *extensions.Config) *Splitter {
	return &Splitter{cfg: cfg}
}

// Split decomposes req. The result depends only on the request's query tree
// and the configuration, so splitting the same request twice yields equal
// results.
func (s *Splitter) Split(req *network.Request) (*CompositeRequest, error) {
	switch n := req.Query().(type) {
	case *query.Root:
		queries, err := s.splitRoot(n)
		if err != nil {
			return nil, err
		}
		return &CompositeRequest{Queries: queries, Request: req}, nil
	case *query.Mutation:
		m, err := s.splitMutation(n)
		if err != nil {
			return nil, err
		}
		return &CompositeRequest{Mutation: m, Request: req}, nil
	case nil:
		return nil, fmt.Errorf("%w: request without query", ErrUnsupportedNode)
	default:
		return nil, fmt.Errorf("%w: %s at the root of a request", ErrUnsupportedNode, n.Kind())
	}
}

func (s *Splitter) splitRoot(root *query.Root) ([]CompositeQuery, error) {
	if root.FieldName == NodeField {
		return s.splitNodeLookup(root)
	}
	schema, ok := s.cfg.RootSchema(root.FieldName)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnresolvedSchema, s.cfg.QueryType, root.FieldName)
	}
	q, err := s.single(root, schema)
	if err != nil {
		return nil, err
	}
	return []CompositeQuery{q}, nil
}

func (s *Splitter) splitMutation(m *query.Mutation) (*CompositeMutation, error) {
	schema, ok := s.cfg.MutationSchema(m.FieldName)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnresolvedSchema, s.cfg.MutationType, m.FieldName)
	}
	c, err := collect(m.Selections, scope{parentType: m.DeclaredType(), schema: schema, cfg: s.cfg})
	if err != nil {
		return nil, err
	}
	return &CompositeMutation{
		Query:      m.WithChildren(c.children),
		Schema:     schema,
		Dependents: prefixAll(c.dependents, response.Key(m.ResponseKey())),
	}, nil
}

func (s *Splitter) single(root *query.Root, schema string) (CompositeQuery, error) {
	c, err := collect(root.Selections, scope{parentType: root.DeclaredType(), schema: schema, cfg: s.cfg})
	if err != nil {
		return CompositeQuery{}, err
	}
	return CompositeQuery{
		Query:      root.WithChildren(c.children),
		Schema:     schema,
		Dependents: prefixAll(c.dependents, response.Key(root.ResponseKey())),
	}, nil
}

// nodeSelection is one child of a node lookup with its children classified
// against the type condition without an active schema.
type nodeSelection struct {
	node     query.Node
	fragment *query.Fragment
	children []classified
}

// splitNodeLookup handles node(id). The node field has no owner: each type
// condition's children are classified directly and one query is produced per
// owning schema. Children no schema owns, such as id and __typename, are kept
// in every query.
func (s *Splitter) splitNodeLookup(root *query.Root) ([]CompositeQuery, error) {
	var (
		selections []nodeSelection
		schemas    []string
		seen       = map[string]bool{}
		shared     []DependentSpec
	)
	for _, child := range root.Selections {
		frag, ok := child.(*query.Fragment)
		if !ok {
			c, err := classify(child, scope{parentType: root.DeclaredType(), cfg: s.cfg})
			if err != nil {
				return nil, err
			}
			if c.schema != "" {
				return s.nodeFallback(root)
			}
			selections = append(selections, nodeSelection{node: c.node})
			shared = append(shared, c.dependents...)
			continue
		}
		sel := nodeSelection{fragment: frag}
		for _, n := range frag.Selections {
			c, err := classify(n, scope{parentType: frag.TypeCondition, cfg: s.cfg})
			if err != nil {
				return nil, err
			}
			sel.children = append(sel.children, c)
			if c.schema == "" {
				shared = append(shared, c.dependents...)
				continue
			}
			if !seen[c.schema] {
				seen[c.schema] = true
				schemas = append(schemas, c.schema)
			}
		}
		selections = append(selections, sel)
	}
	if len(schemas) == 0 {
		return s.nodeFallback(root)
	}

	key := response.Key(root.ResponseKey())
	queries := make([]CompositeQuery, 0, len(schemas))
	for i, schema := range schemas {
		var children []query.Node
		var deps []DependentSpec
		if i == 0 {
			deps = append(deps, shared...)
		}
		for _, sel := range selections {
			if sel.fragment == nil {
				children = append(children, sel.node)
				continue
			}
			var kept []query.Node
			owned, mine := false, false
			for _, c := range sel.children {
				switch c.schema {
				case "":
					kept = append(kept, c.node)
				case schema:
					kept = append(kept, c.node)
					deps = append(deps, c.dependents...)
					mine = true
				default:
					owned = true
				}
			}
			if mine || !owned {
				children = append(children, sel.fragment.WithChildren(kept))
			}
		}
		queries = append(queries, CompositeQuery{
			Query:      root.WithChildren(children),
			Schema:     schema,
			Dependents: prefixAll(deps, key),
		})
	}
	return queries, nil
}

// nodeFallback sends a node lookup whose selection no schema claims to the
// schema registered for the node field itself.
func (s *Splitter) nodeFallback(root *query.Root) ([]CompositeQuery, error) {
	schema, ok := s.cfg.RootSchema(NodeField)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s selects no owned field", ErrUnresolvedSchema, s.cfg.QueryType, NodeField)
	}
	q, err := s.single(root, schema)
	if err != nil {
		return nil, err
	}
	return []CompositeQuery{q}, nil
}
