package split

import (
	"fmt"

	extensions "github.com/hanpama/compositegraph/internal/extensions"
	query "github.com/hanpama/compositegraph/internal/query"
	response "github.com/hanpama/compositegraph/internal/response"
)

// scope is the position a node is classified at.
type scope struct {
	parentType string
	schema     string
	cfg        *extensions.Config
}

func (s scope) owner(field string) string {
	if schema, ok := s.cfg.Extensions.Lookup(s.parentType, field); ok {
		return schema
	}
	return s.schema
}

// classified is a node rebuilt with only the children of its own schema.
type classified struct {
	node       query.Node
	schema     string
	dependents []DependentSpec
}

func classify(n query.Node, sc scope) (classified, error) {
	switch n := n.(type) {
	case *query.Field:
		schema := sc.owner(n.Name)
		if n.IsLeaf() {
			return classified{node: n, schema: schema}, nil
		}
		c, err := collect(n.Selections, scope{parentType: n.DeclaredType(), schema: schema, cfg: sc.cfg})
		if err != nil {
			return classified{}, err
		}
		return classified{
			node:       n.WithChildren(c.children),
			schema:     schema,
			dependents: prefixAll(c.dependents, response.Key(n.ResponseKey())),
		}, nil
	case *query.Fragment:
		c, err := collect(n.Selections, scope{parentType: n.TypeCondition, schema: sc.schema, cfg: sc.cfg})
		if err != nil {
			return classified{}, err
		}
		return classified{node: n.WithChildren(c.children), schema: sc.schema, dependents: c.dependents}, nil
	case nil:
		return classified{}, fmt.Errorf("%w: nil node", ErrUnsupportedNode)
	default:
		return classified{}, fmt.Errorf("%w: %s below %s", ErrUnsupportedNode, n.Kind(), sc.parentType)
	}
}
