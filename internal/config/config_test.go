package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	demo "github.com/hanpama/compositegraph/internal/demo"
	extensions "github.com/hanpama/compositegraph/internal/extensions"
)

const sample = `
schemas:
  - name: server
    sdl: [server.graphql]
    endpoint: http://localhost:4001/graphql
    timeout: 3s
    headers:
      Authorization: Bearer token
  - name: local
    sdl: [local.graphql]
    transport: grpc
    endpoint: localhost:9091
    maxConns: 4
server:
  addr: ":9000"
  cors: ["*"]
log:
  level: debug
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	want := &Config{
		Graph: extensions.Config{QueryType: "Query", MutationType: "Mutation"},
		Schemas: []Schema{
			{
				Name:      "server",
				SDL:       []string{"server.graphql"},
				Transport: TransportHTTP,
				Endpoint:  "http://localhost:4001/graphql",
				Timeout:   3 * time.Second,
				Headers:   map[string]string{"Authorization": "Bearer token"},
			},
			{Name: "local", SDL: []string{"local.graphql"}, Transport: TransportGRPC, Endpoint: "localhost:9091", MaxConns: 4},
		},
		Server: Server{Addr: ":9000", Path: "/graphql", Timeout: 10 * time.Second, CORS: []string{"*"}, GraphiQL: true, Introspection: true},
		Otel:   Otel{Service: "compositegraph"},
		Log:    Log{Level: "debug"},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no schemas", `log: {level: info}`, "at least one schema is required"},
		{"missing fields", `schemas: [{transport: http}]`, "schemas[0]: name is required"},
		{"duplicate", "schemas:\n  - {name: a, sdl: [a], endpoint: x}\n  - {name: a, sdl: [a], endpoint: y}", "a: duplicate schema name"},
		{"transport", `schemas: [{name: a, sdl: [a], endpoint: x, transport: smtp}]`, `a: unknown transport "smtp"`},
		{"unknown extension schema", "graph: {queryType: Query, extensions: {Query: {viewer: nowhere}}}\nschemas: [{name: a, sdl: [a], endpoint: x}]", `unknown schema "nowhere"`},
		{"empty query type", "graph: {queryType: \"\"}\nschemas: [{name: a, sdl: [a], endpoint: x}]", "graph.queryType is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	_, err := Parse([]byte(`schemas: [{name: a, sdl: [a], endpoint: x, retries: 3}]`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidConfig)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoad_DerivesComposite(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"server.graphql": demo.ServerSDL,
		"local.graphql":  demo.LocalSDL,
		"gateway.yaml":   sample,
	})
	cfg, err := Load(filepath.Join(dir, "gateway.yaml"))
	require.NoError(t, err)

	comp, err := cfg.Composite()
	require.NoError(t, err)
	schema, ok := comp.Config.Extensions.Lookup("User", "draftCount")
	require.True(t, ok)
	require.Equal(t, "local", schema)
	require.NotNil(t, comp.Schema.Types["Draft"])
}

func TestLoad_SDLDirectory(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"server.graphql":        demo.ServerSDL,
		"local/a-types.graphql": demo.LocalSDL,
		"local/b-extra.graphql": "extend type Query { drafts: [Draft] }\n",
		"local/notes.txt":       "not a schema",
		"gateway.yaml": `
schemas:
  - name: server
    sdl: [server.graphql]
    endpoint: http://localhost:4001/graphql
  - name: local
    sdl: [local]
    endpoint: http://localhost:4002/graphql
`,
	})
	cfg, err := Load(filepath.Join(dir, "gateway.yaml"))
	require.NoError(t, err)

	comp, err := cfg.Composite()
	require.NoError(t, err)
	schema, ok := comp.Config.RootSchema("drafts")
	require.True(t, ok)
	require.Equal(t, "local", schema)

	empty := writeFiles(t, map[string]string{"gateway.yaml": `
schemas:
  - name: local
    sdl: [nothing]
    endpoint: http://localhost:4002/graphql
`, "nothing/notes.txt": "x"})
	cfg, err = Load(filepath.Join(empty, "gateway.yaml"))
	require.NoError(t, err)
	_, err = cfg.Sources()
	require.ErrorContains(t, err, "no .graphql files")
}

func TestLoad_ExplicitExtensionsOverride(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"server.graphql": demo.ServerSDL,
		"local.graphql":  demo.LocalSDL,
		"gateway.yaml": sample + `
graph:
  queryType: Query
  mutationType: Mutation
  extensions:
    Query: {viewer: server}
`,
	})
	cfg, err := Load(filepath.Join(dir, "gateway.yaml"))
	require.NoError(t, err)

	comp, err := cfg.Composite()
	require.NoError(t, err)
	require.Equal(t, extensions.Table{"Query": {"viewer": "server"}}, comp.Config.Extensions)
}

func TestLoad_ExplicitExtensionsNeedIDs(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.graphql": "type Query { origin: Point } type Point { x: Int y: Int }",
		"b.graphql": "type Query { hello: String }",
		"gateway.yaml": `
graph:
  queryType: Query
  extensions:
    Query: {origin: a, hello: b}
    Point: {x: a, y: b}
schemas:
  - name: a
    sdl: [a.graphql]
    endpoint: http://localhost:4001/graphql
  - name: b
    sdl: [b.graphql]
    endpoint: http://localhost:4002/graphql
`,
	})
	cfg, err := Load(filepath.Join(dir, "gateway.yaml"))
	require.NoError(t, err)
	_, err = cfg.Composite()
	require.ErrorIs(t, err, extensions.ErrInvalidExtension)
	require.ErrorContains(t, err, "type Point is extended but has no id field")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	dir := writeFiles(t, map[string]string{"gateway.yaml": sample})
	cfg, err := Load(filepath.Join(dir, "gateway.yaml"))
	require.NoError(t, err)
	_, err = cfg.Sources()
	require.ErrorIs(t, err, os.ErrNotExist)
}
