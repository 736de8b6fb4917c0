package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	composite "github.com/hanpama/compositegraph/internal/composite"
	config "github.com/hanpama/compositegraph/internal/config"
	demo "github.com/hanpama/compositegraph/internal/demo"
	eventbus "github.com/hanpama/compositegraph/internal/eventbus"
	extensions "github.com/hanpama/compositegraph/internal/extensions"
	grpclayer "github.com/hanpama/compositegraph/internal/grpclayer"
	httplayer "github.com/hanpama/compositegraph/internal/httplayer"
	language "github.com/hanpama/compositegraph/internal/language"
	logging "github.com/hanpama/compositegraph/internal/logging"
	network "github.com/hanpama/compositegraph/internal/network"
	otel "github.com/hanpama/compositegraph/internal/otel"
	server "github.com/hanpama/compositegraph/internal/server"
)

const rootUsage = `compositegraph: one GraphQL endpoint over several schemas

USAGE:
  compositegraph <command> [flags]

COMMANDS:
  serve            Run the composite gateway described by a config file
  extensions       Print the extension table derived from schema SDL files
  demo             Run the gateway over the in-memory demo schemas
  backend          Serve one demo schema as a remote backend
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>           Gateway configuration (default: compositegraph.yaml)
  -server.addr <addr>      Override server.addr from the config file
`

const extensionsUsage = `extensions FLAGS:
  -schema <name=file>      Schema SDL file. Repeatable; order decides type order
  -query-type <name>       Composite query type (default: Query)
  -mutation-type <name>    Composite mutation type (default: Mutation)
  -sdl                     Also print the composite SDL
`

const demoUsage = `demo FLAGS:
  -addr <addr>             HTTP listen address (default: :8080)
  -log.level <level>       Log level (default: info)
`

const backendUsage = `backend FLAGS:
  -schema <server|local>   Demo schema to serve (required)
  -http <addr>             Serve GraphQL over HTTP on addr
  -grpc <addr>             Serve the GraphQL gRPC service on addr
  (exactly one of -http or -grpc)
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("compositegraph", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "extensions":
		return cmdExtensions(cmdArgs, stdout)
	case "demo":
		return cmdDemo(cmdArgs)
	case "backend":
		return cmdBackend(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "extensions":
		fmt.Fprint(stdout, extensionsUsage)
	case "demo":
		fmt.Fprint(stdout, demoUsage)
	case "backend":
		fmt.Fprint(stdout, backendUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type schemaFlag struct {
	names []string
	files map[string]string
}

func (s *schemaFlag) String() string { return "" }

func (s *schemaFlag) Set(v string) error {
	name, file, ok := strings.Cut(v, "=")
	name, file = strings.TrimSpace(name), strings.TrimSpace(file)
	if !ok || name == "" || file == "" {
		return fmt.Errorf("invalid schema %q, want name=file", v)
	}
	if s.files == nil {
		s.files = map[string]string{}
	}
	if _, dup := s.files[name]; dup {
		return fmt.Errorf("schema %q given twice", name)
	}
	s.names = append(s.names, name)
	s.files[name] = file
	return nil
}

func cmdServe(args []string) error {
	path := "compositegraph.yaml"
	addr := ""
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&path, "config", path, "Gateway configuration")
	fs.StringVar(&addr, "server.addr", addr, "Override server.addr")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	bus := eventbus.New()
	defer logging.Subscribe(bus, logger)()
	shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service, bus)
	if err != nil {
		logger.Fatal("otel setup", zap.Error(err))
	}
	defer func() { _ = shutdown(context.Background()) }()

	h, closeLayers, err := newGateway(cfg, logger, bus)
	if err != nil {
		logger.Fatal("gateway init", zap.Error(err))
	}
	defer closeLayers()

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, otelhttp.NewHandler(h, "graphql"))
	return listenAndServe(cfg.Server.Addr, mux, logger)
}

// newGateway builds the composite layer and HTTP handler described by cfg.
// The returned func closes the backend connections.
func newGateway(cfg *config.Config, logger *zap.Logger, bus *eventbus.Bus) (http.Handler, func(), error) {
	comp, err := cfg.Composite()
	if err != nil {
		return nil, nil, fmt.Errorf("composite schema: %w", err)
	}

	layers := map[string]network.Layer{}
	var closers []func() error
	for _, s := range cfg.Schemas {
		switch s.Transport {
		case config.TransportGRPC:
			l := grpclayer.New(s.Name,
				grpclayer.WithEndpoints(s.Endpoint),
				grpclayer.WithRPCTimeout(s.Timeout),
				grpclayer.WithMaxConnsPerEndpoint(s.MaxConns),
			)
			closers = append(closers, l.Close)
			layers[s.Name] = l
		default:
			opts := []httplayer.Option{httplayer.WithTimeout(s.Timeout)}
			for k, v := range s.Headers {
				opts = append(opts, httplayer.WithHeader(k, v))
			}
			layers[s.Name] = httplayer.New(s.Name, s.Endpoint, opts...)
		}
		logger.Info("schema registered",
			zap.String("schema", s.Name),
			zap.String("transport", s.Transport),
			zap.String("endpoint", s.Endpoint),
		)
	}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	layer := composite.New(&comp.Config, layers, composite.WithLogger(logger))
	sopts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithIntrospection(cfg.Server.Introspection),
		server.WithBus(bus),
		server.WithLogger(logger),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.CORS) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORS...))
	}
	if cfg.Server.MaxBodyBytes > 0 {
		sopts = append(sopts, server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
	}
	if len(cfg.Server.ForwardHeaders) > 0 {
		sopts = append(sopts, server.WithForwardHeaders(cfg.Server.ForwardHeaders...))
	}
	h, err := server.New(layer, comp.Schema, sopts...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return h, closeAll, nil
}

type extensionsOutput struct {
	Graph extensions.Config `yaml:"graph"`
}

func cmdExtensions(args []string, stdout io.Writer) error {
	var schemas schemaFlag
	opts := extensions.Options{QueryType: "Query", MutationType: "Mutation"}
	printSDL := false
	fs := flag.NewFlagSet("extensions", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemas, "schema", "Schema SDL file")
	fs.StringVar(&opts.QueryType, "query-type", opts.QueryType, "Composite query type")
	fs.StringVar(&opts.MutationType, "mutation-type", opts.MutationType, "Composite mutation type")
	fs.BoolVar(&printSDL, "sdl", printSDL, "Also print the composite SDL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, extensionsUsage)
		return err
	}
	if len(schemas.names) == 0 {
		fmt.Fprint(os.Stderr, extensionsUsage)
		return fmt.Errorf("at least one -schema is required")
	}

	sources := make([]extensions.Source, 0, len(schemas.names))
	for _, name := range schemas.names {
		b, err := os.ReadFile(schemas.files[name])
		if err != nil {
			return fmt.Errorf("schema %s: %w", name, err)
		}
		sources = append(sources, extensions.Source{Name: name, SDL: string(b)})
	}
	comp, err := extensions.Merge(sources, opts)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(extensionsOutput{Graph: comp.Config})
	if err != nil {
		return err
	}
	if _, err := stdout.Write(out); err != nil {
		return err
	}
	if printSDL {
		fmt.Fprintf(stdout, "---\n%s", comp.SDL)
	}
	return nil
}

func cmdDemo(args []string) error {
	addr := ":8080"
	level := "info"
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&addr, "addr", addr, "HTTP listen address")
	fs.StringVar(&level, "log.level", level, "Log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, demoUsage)
		return err
	}
	logger, err := logging.New(level, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	bus := eventbus.New()
	defer logging.Subscribe(bus, logger)()

	h, err := newDemo(demo.NewStore(), logger, bus)
	if err != nil {
		logger.Fatal("demo init", zap.Error(err))
	}
	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	return listenAndServe(addr, mux, logger)
}

// newDemo serves the composite of the demo schemas evaluated in process.
func newDemo(store *demo.Store, logger *zap.Logger, bus *eventbus.Bus) (http.Handler, error) {
	comp, err := demo.Composite()
	if err != nil {
		return nil, err
	}
	layer := composite.New(&comp.Config, demo.Layers(store), composite.WithLogger(logger))
	return server.New(layer, comp.Schema, server.WithBus(bus), server.WithLogger(logger), server.WithPretty())
}

func cmdBackend(args []string) error {
	name, httpAddr, grpcAddr := "", "", ""
	fs := flag.NewFlagSet("backend", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&name, "schema", name, "Demo schema to serve")
	fs.StringVar(&httpAddr, "http", httpAddr, "HTTP listen address")
	fs.StringVar(&grpcAddr, "grpc", grpcAddr, "gRPC listen address")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, backendUsage)
		return err
	}
	if (httpAddr == "") == (grpcAddr == "") {
		fmt.Fprint(os.Stderr, backendUsage)
		return fmt.Errorf("exactly one of -http or -grpc is required")
	}
	schema, layer, err := backend(name, demo.NewStore())
	if err != nil {
		return err
	}
	logger, err := logging.New("info", true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		s := grpclayer.NewServer()
		grpclayer.Register(s, schema, layer)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			s.GracefulStop()
		}()
		logger.Info("gRPC backend listening", zap.String("schema", name), zap.String("addr", grpcAddr))
		return s.Serve(lis)
	}

	h, err := server.New(layer, schema, server.WithLogger(logger))
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/graphql", otelhttp.NewHandler(h, "graphql"))
	return listenAndServe(httpAddr, mux, logger)
}

// backend returns the schema and in-memory layer of one demo schema. Stores
// are not shared between processes; each backend seeds its own.
func backend(name string, store *demo.Store) (*language.Schema, network.Layer, error) {
	var sdl string
	switch name {
	case "server":
		sdl = demo.ServerSDL
	case "local":
		sdl = demo.LocalSDL
	default:
		return nil, nil, fmt.Errorf("unknown demo schema %q, want server or local", name)
	}
	schema, err := language.LoadSchema(&language.Source{Name: name + ".graphql", Input: sdl})
	if err != nil {
		return nil, nil, err
	}
	return schema, demo.Layers(store)[name], nil
}

func listenAndServe(addr string, h http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("GraphQL server listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
