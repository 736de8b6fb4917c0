// Package config loads the gateway configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	extensions "github.com/hanpama/compositegraph/internal/extensions"
)

// ErrInvalidConfig reports a configuration that fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

type Config struct {
	// Graph names the composite root types. A non-empty Extensions table
	// replaces the one derived from the schemas' SDL.
	Graph   extensions.Config `yaml:"graph"`
	Schemas []Schema          `yaml:"schemas"`
	Server  Server            `yaml:"server"`
	Otel    Otel              `yaml:"otel"`
	Log     Log               `yaml:"log"`

	dir string
}

// Schema is one backend taking part in the composite schema.
type Schema struct {
	Name      string            `yaml:"name"`
	SDL       []string          `yaml:"sdl"`
	Transport string            `yaml:"transport"`
	Endpoint  string            `yaml:"endpoint"`
	Timeout   time.Duration     `yaml:"timeout"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	// MaxConns bounds the pooled connections per endpoint of a grpc schema.
	MaxConns int `yaml:"maxConns,omitempty"`
}

type Server struct {
	Addr           string        `yaml:"addr"`
	Path           string        `yaml:"path"`
	Timeout        time.Duration `yaml:"timeout"`
	Pretty         bool          `yaml:"pretty"`
	CORS           []string      `yaml:"cors"`
	GraphiQL       bool          `yaml:"graphiql"`
	Introspection  bool          `yaml:"introspection"`
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
	ForwardHeaders []string      `yaml:"forwardHeaders"`
}

type Otel struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		Graph: extensions.Config{QueryType: "Query", MutationType: "Mutation"},
		Server: Server{
			Addr:     ":8080",
			Path:     "/graphql",
			Timeout:  10 * time.Second,
			GraphiQL:      true,
			Introspection: true,
		},
		Otel: Otel{Service: "compositegraph"},
		Log:  Log{Level: "info"},
	}
}

// Load reads and validates the file at path. Relative SDL paths are resolved
// against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes and validates a YAML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	for i := range cfg.Schemas {
		if cfg.Schemas[i].Transport == "" {
			cfg.Schemas[i].Transport = TransportHTTP
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Graph.QueryType == "" {
		problems = append(problems, "graph.queryType is required")
	}
	if len(c.Schemas) == 0 {
		problems = append(problems, "at least one schema is required")
	}
	seen := map[string]bool{}
	for i, s := range c.Schemas {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("schemas[%d]", i)
			problems = append(problems, name+": name is required")
		} else if seen[name] {
			problems = append(problems, name+": duplicate schema name")
		}
		seen[s.Name] = true
		if len(s.SDL) == 0 {
			problems = append(problems, name+": sdl is required")
		}
		if s.Endpoint == "" {
			problems = append(problems, name+": endpoint is required")
		}
		switch s.Transport {
		case TransportHTTP, TransportGRPC:
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown transport %q", name, s.Transport))
		}
		if s.Timeout < 0 {
			problems = append(problems, name+": timeout must not be negative")
		}
		if s.MaxConns < 0 {
			problems = append(problems, name+": maxConns must not be negative")
		}
	}
	for typeName, fields := range c.Graph.Extensions {
		for field, schema := range fields {
			if !seen[schema] {
				problems = append(problems, fmt.Sprintf("graph.extensions.%s.%s: unknown schema %q", typeName, field, schema))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Sources reads the SDL files of every schema.
func (c *Config) Sources() ([]extensions.Source, error) {
	out := make([]extensions.Source, 0, len(c.Schemas))
	for _, s := range c.Schemas {
		var sdl strings.Builder
		for _, p := range s.SDL {
			if !filepath.IsAbs(p) && c.dir != "" {
				p = filepath.Join(c.dir, p)
			}
			files, err := sdlFiles(p)
			if err != nil {
				return nil, fmt.Errorf("schema %s: %w", s.Name, err)
			}
			for _, f := range files {
				b, err := os.ReadFile(f)
				if err != nil {
					return nil, fmt.Errorf("schema %s: %w", s.Name, err)
				}
				sdl.Write(b)
				sdl.WriteByte('\n')
			}
		}
		out = append(out, extensions.Source{Name: s.Name, SDL: sdl.String()})
	}
	return out, nil
}

// sdlFiles expands a directory into the .graphql files below it, in lexical
// order. Any other path is returned as is.
func sdlFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(d.Name()) == ".graphql" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .graphql files in %s", path)
	}
	return files, nil
}

// Composite merges the schemas. An explicit graph.extensions table replaces
// the derived one.
func (c *Config) Composite() (*extensions.Composite, error) {
	sources, err := c.Sources()
	if err != nil {
		return nil, err
	}
	comp, err := extensions.Merge(sources, extensions.Options{
		QueryType:    c.Graph.QueryType,
		MutationType: c.Graph.MutationType,
	})
	if err != nil {
		return nil, err
	}
	if len(c.Graph.Extensions) > 0 {
		comp.Config.Extensions = c.Graph.Extensions
		if err := comp.Config.Check(comp.Schema); err != nil {
			return nil, err
		}
	}
	return comp, nil
}
