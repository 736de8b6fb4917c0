package response

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPath_WithPrefixReturnsFreshSlice(t *testing.T) {
	base := Keys("author")
	a := base.WithPrefix(Key("node"))
	b := base.WithPrefix(Key("edges"))

	require.Equal(t, "node.author", a.String())
	require.Equal(t, "edges.author", b.String())
	require.Equal(t, "author", base.String())
}

func TestPath_AppendDoesNotAlias(t *testing.T) {
	base := make(Path, 1, 8)
	base[0] = Key("viewer")
	a := base.Append(Key("a"))
	b := base.Append(Key("b"))

	require.Equal(t, "viewer.a", a.String())
	require.Equal(t, "viewer.b", b.String())
}

func TestPath_RenderAndSlice(t *testing.T) {
	p := Path{Key("viewer"), Key("edges"), Index(3), Key("node")}

	require.Equal(t, "viewer.edges[3].node", p.String())
	require.Equal(t, []any{"viewer", "edges", 3, "node"}, p.Slice())
	require.True(t, p.Equal(Keys("viewer", "edges").Append(Index(3), Key("node"))))
	require.False(t, p.Equal(Keys("viewer")))
}
