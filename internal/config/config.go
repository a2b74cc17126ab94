// Package config loads the endpoint configuration from defaults, an optional
// YAML file, the environment and command-line flags, in increasing order of
// precedence.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hanpama/gqlendpoint/internal/apperr"
	"github.com/hanpama/gqlendpoint/internal/schemacache"
)

// EnvPrefix prefixes every environment variable mapped to a key, with dots
// replaced by underscores: server.addr is GQLENDPOINT_SERVER_ADDR.
const EnvPrefix = "GQLENDPOINT"

type Config struct {
	Server  Server  `mapstructure:"server"`
	GraphQL GraphQL `mapstructure:"graphql"`
	Cache   Cache   `mapstructure:"cache"`
	Log     Log     `mapstructure:"log"`
	Otel    Otel    `mapstructure:"otel"`
	// Debug exposes internal error messages and stack traces in responses.
	Debug bool `mapstructure:"debug"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	Lenient         bool          `mapstructure:"lenient"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Pretty          bool          `mapstructure:"pretty"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MetadataHeaders []string      `mapstructure:"metadata_headers"`
	GraphiQL        bool          `mapstructure:"graphiql"`
}

type GraphQL struct {
	// Schema is the SDL file the schema is built from.
	Schema string `mapstructure:"schema"`
	// MaxTokens bounds the size of query documents; 0 disables the limit.
	MaxTokens int `mapstructure:"max_tokens"`
}

type Cache struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
	// Path is the artifact file for the file backend and the database
	// directory for badger.
	Path string `mapstructure:"path"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Otel struct {
	Endpoint string `mapstructure:"endpoint"`
	Service  string `mapstructure:"service"`
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "simple")
	v.SetDefault("server.lenient", false)
	v.SetDefault("server.timeout", 10*time.Second)
	v.SetDefault("server.pretty", false)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.metadata_headers", []string{})
	v.SetDefault("server.graphiql", true)
	v.SetDefault("graphql.schema", "res/graphql/schema.graphql")
	v.SetDefault("graphql.max_tokens", 0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.backend", schemacache.BackendFile)
	v.SetDefault("cache.path", "var/cache/schema.ast.zst")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service", "gqlendpoint")
	v.SetDefault("debug", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed variables kept for deployments configured before the prefix.
	_ = v.BindEnv("cache.enabled", EnvPrefix+"_CACHE_ENABLED", "ENABLE_GRAPHQL_SCHEMA_CACHE")
	_ = v.BindEnv("debug", EnvPrefix+"_DEBUG", "APP_DEBUG")
	return v
}

// RegisterFlags defines flags for the most common keys on fs and binds them
// to v.
func RegisterFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("config", "", "YAML configuration file")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("mode", "simple", "resolver execution mode: simple or batching")
	fs.Bool("lenient", false, "accept GET query strings and form bodies")
	fs.String("schema", "res/graphql/schema.graphql", "GraphQL SDL file")
	fs.Bool("schema-cache", false, "cache the parsed schema document")
	fs.String("cache-backend", schemacache.BackendFile, "schema cache backend: file, memory or badger")
	fs.String("cache-path", "var/cache/schema.ast.zst", "schema cache file or badger directory")
	fs.String("log-level", "info", "log level")
	fs.Bool("debug", false, "expose internal error details in responses")

	for key, flag := range map[string]string{
		"config":         "config",
		"server.addr":    "addr",
		"server.mode":    "mode",
		"server.lenient": "lenient",
		"graphql.schema": "schema",
		"cache.enabled":  "schema-cache",
		"cache.backend":  "cache-backend",
		"cache.path":     "cache-path",
		"log.level":      "log-level",
		"debug":          "debug",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "bind flag %s", flag)
		}
	}
	return nil
}

// Load reads the file named by the "config" key, if any, and decodes v.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports the first invalid setting as a ConfigurationError.
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "simple", "batching":
	default:
		return apperr.Configuration("server.mode must be simple or batching, got %q", c.Server.Mode)
	}
	switch c.Cache.Backend {
	case schemacache.BackendFile, schemacache.BackendMemory, schemacache.BackendBadger:
	default:
		return apperr.Configuration("unknown cache.backend %q", c.Cache.Backend)
	}
	if c.Cache.Enabled && c.Cache.Backend == schemacache.BackendFile && c.Cache.Path == "" {
		return apperr.Configuration("cache.path is required for the file backend")
	}
	if c.GraphQL.Schema == "" {
		return apperr.Configuration("graphql.schema must not be empty")
	}
	if c.GraphQL.MaxTokens < 0 || c.Server.MaxBodyBytes < 0 {
		return apperr.Configuration("limits must not be negative")
	}
	return nil
}

// DebugFlags returns the error formatting flags selected by Debug.
func (c *Config) DebugFlags() apperr.DebugFlag {
	if c.Debug {
		return apperr.DebugAll
	}
	return apperr.DebugNone
}
