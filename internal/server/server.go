package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"

	eventbus "github.com/hanpama/compositegraph/internal/eventbus"
	events "github.com/hanpama/compositegraph/internal/events"
	introspection "github.com/hanpama/compositegraph/internal/introspection"
	language "github.com/hanpama/compositegraph/internal/language"
	network "github.com/hanpama/compositegraph/internal/network"
	query "github.com/hanpama/compositegraph/internal/query"
	reqid "github.com/hanpama/compositegraph/internal/reqid"
)

// Handler serves the composite schema over GraphQL-over-HTTP. Each operation
// is validated against the schema and its root fields are sent through the
// network layer.
type Handler struct {
	layer   network.Layer
	schema  *language.Schema
	opt     Options
	forward map[string]struct{} // lower-cased ForwardHeaders
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// ForwardHeaders lists HTTP headers passed on to backends as outgoing
	// metadata. Header names are case-insensitive. Default is none.
	ForwardHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// Introspection answers __schema, __type and root __typename from the
	// schema instead of the layer. Enabled by default.
	Introspection bool

	// Bus receives HTTP and GraphQL events. Nil disables publication.
	Bus *eventbus.Bus

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithForwardHeaders(headers ...string) Option {
	return func(o *Options) { o.ForwardHeaders = headers }
}
func WithBus(b *eventbus.Bus) Option { return func(o *Options) { o.Bus = b } }
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func WithGraphiQL(enable bool) Option { return func(o *Options) { o.GraphiQL = enable } }

func WithIntrospection(enable bool) Option { return func(o *Options) { o.Introspection = enable } }

// New creates a GraphQL HTTP handler answering queries against schema with
// layer.
func New(layer network.Layer, schema *language.Schema, opts ...Option) (*Handler, error) {
	if layer == nil {
		return nil, errors.New("server: nil network layer")
	}
	if schema == nil {
		return nil, errors.New("server: nil schema")
	}
	op := Options{Timeout: 10 * time.Second, GraphiQL: true, Introspection: true, Logger: zap.NewNop()}
	for _, f := range opts {
		f(&op)
	}
	if op.Introspection {
		layer = introspection.Wrap(layer, schema)
	}
	h := &Handler{layer: layer, schema: schema, opt: op}
	if len(op.ForwardHeaders) > 0 {
		h.forward = make(map[string]struct{}, len(op.ForwardHeaders))
		for _, hdr := range op.ForwardHeaders {
			h.forward[strings.ToLower(hdr)] = struct{}{}
		}
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	if h.opt.Bus != nil {
		ctx = eventbus.WithBus(ctx, h.opt.Bus)
	}

	rid := r.Header.Get(reqid.Header)
	if rid == "" {
		ctx, rid = reqid.NewContext(ctx)
	} else {
		ctx = reqid.WithID(ctx, rid)
	}
	w.Header().Set(reqid.Header, rid)

	status, operations := http.StatusOK, 0
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{RequestID: rid, Method: r.Method, Path: r.URL.Path})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{
			RequestID:  rid,
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     status,
			Operations: operations,
			Duration:   time.Since(start),
		})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(nil, &language.Error{Message: "method not allowed"}), h.opt.Pretty)
		return
	}

	// Serve GraphiQL IDE when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	if md := h.forwarded(r.Header); len(md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(nil, berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		// Batched requests
		op := make([]any, len(batch))
		for i := range batch {
			op[i] = h.executeOne(ctx, batch[i])
		}
		operations = len(batch)
		writeJSON(w, status, op, h.opt.Pretty)
		return
	}

	operations = 1
	res := h.executeOne(ctx, req)
	writeJSON(w, status, res, h.opt.Pretty)
}

// forwarded picks the configured headers out of header. Both layers read
// them from the outgoing metadata of the context.
func (h *Handler) forwarded(header http.Header) metadata.MD {
	if len(h.forward) == 0 {
		return nil
	}
	md := metadata.MD{}
	for k, v := range header {
		k = strings.ToLower(k)
		if _, ok := h.forward[k]; ok {
			md[k] = append(md[k], v...)
		}
	}
	return md
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) specResult {
	doc, err := language.LoadQuery(h.schema, req.Query)
	if err != nil {
		return toSpecResult(nil, err)
	}
	opDef := doc.Operations.ForName(req.OperationName)
	if opDef == nil && req.OperationName == "" && len(doc.Operations) == 1 {
		opDef = doc.Operations[0]
	}
	if opDef == nil {
		return errorResponse(nil, &language.Error{Message: fmt.Sprintf("operation %q not found", req.OperationName)})
	}
	vars, err := language.CoerceVariables(h.schema, opDef, req.Variables)
	if err != nil {
		return toSpecResult(nil, err)
	}
	op, err := query.FromDocument(doc, req.OperationName)
	if err != nil {
		return toSpecResult(nil, err)
	}

	rid, _ := reqid.FromContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{
		RequestID: rid,
		Transport: events.TransportHTTP,
		Name:      op.Name,
		Type:      string(op.Type),
		Roots:     op.ResponseKeys(),
	})
	data, err := network.Execute(ctx, h.layer, op, vars)
	eventbus.Publish(ctx, events.GraphQLFinish{
		RequestID: rid,
		Transport: events.TransportHTTP,
		Name:      op.Name,
		Type:      string(op.Type),
		Err:       err,
		Duration:  time.Since(start),
	})
	res := specResult{Data: data}
	if err != nil {
		res = toSpecResult(nil, err)
		h.opt.Logger.Warn("graphql operation failed",
			zap.String("request_id", rid),
			zap.String("operation", op.Name),
			zap.Error(err),
		)
	}
	return res
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid 'variables' JSON"}
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;") {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "failed to read body"}
		}
		defer r.Body.Close()
		if maxBody > 0 && int64(len(body)) > maxBody {
			return GraphQLRequest{}, nil, &language.Error{Message: errBodyTooLargeMessage}
		}

		// Try array (batch)
		var arr []GraphQLRequest
		if len(body) > 0 && body[0] == '[' {
			if err := json.Unmarshal(body, &arr); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
			}
			if len(arr) == 0 {
				return GraphQLRequest{}, nil, &language.Error{Message: "empty batch"}
			}
			return GraphQLRequest{}, arr, nil
		}
		// Single
		var req GraphQLRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
		}
		if req.Query == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		if req.Variables == nil {
			req.Variables = map[string]any{}
		}
		return req, nil, nil
	}

	return GraphQLRequest{}, nil, &language.Error{Message: "unsupported Content-Type"}
}

// ------------------ Response formatting ------------------

type specLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type specError struct {
	Message    string         `json:"message"`
	Locations  []specLocation `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type specResult struct {
	Data   any         `json:"data"`
	Errors []specError `json:"errors,omitempty"`
}

func errorResponse(data any, err *language.Error) specResult {
	se := specError{Message: err.Message}
	return specResult{Data: data, Errors: []specError{se}}
}

// toSpecResult renders err as the errors of a result. Validation and backend
// errors keep their locations, paths and extensions.
func toSpecResult(data any, err error) specResult {
	var list language.ErrorList
	var single *language.Error
	var nerr *network.Error
	switch {
	case errors.As(err, &list):
	case errors.As(err, &nerr) && len(nerr.Errors) > 0:
		list = nerr.Errors
	case errors.As(err, &single):
		list = language.ErrorList{single}
	default:
		list = language.ErrorList{{Message: err.Error()}}
	}
	out := specResult{Data: data, Errors: make([]specError, len(list))}
	for i, e := range list {
		se := specError{Message: e.Message, Extensions: e.Extensions}
		for _, loc := range e.Locations {
			se.Locations = append(se.Locations, specLocation{Line: loc.Line, Column: loc.Column})
		}
		if len(e.Path) > 0 {
			se.Path = make([]any, len(e.Path))
			for j, pe := range e.Path {
				se.Path[j] = pe
			}
		}
		out.Errors[i] = se
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	if accept == "" {
		return false
	}
	parts := strings.Split(accept, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
