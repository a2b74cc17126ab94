package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/hanpama/gqlendpoint/internal/bookstore"
	"github.com/hanpama/gqlendpoint/internal/config"
	"github.com/hanpama/gqlendpoint/internal/logging"
	"github.com/hanpama/gqlendpoint/internal/provider"
	"github.com/hanpama/gqlendpoint/internal/schemacache"
)

func newCompileCmd(v *viper.Viper) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Validate the schema, print it normalized and warm the cache",
		Long: `
compile parses and validates the SDL file exactly as the server does and
prints the resulting schema. With the schema cache enabled, the parsed
document is stored so the next server start skips parsing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			cache, closeCache, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer closeCache()

			opts := []provider.Option{provider.WithLogger(log)}
			if cache != nil {
				opts = append(opts, provider.WithCache(cache))
			}
			p := provider.New(provider.FileSource{Path: cfg.GraphQL.Schema}, bookstore.Resolvers(), opts...)
			exe, err := p.BuildSchema(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return errors.Wrap(err, "create output")
				}
				defer f.Close()
				w = f
			}
			formatter.NewFormatter(w, formatter.WithIndent("  ")).FormatSchema(exe.AST)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the schema to this file instead of stdout")
	return cmd
}

func newClearCacheCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove the cached schema document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			// Clearing works whether or not the cache is currently enabled.
			cache, err := schemacache.Open(cfg.Cache.Backend, cfg.Cache.Path)
			if err != nil {
				return err
			}
			defer closeQuietly(cache)
			if err := cache.Clear(cmd.Context()); err != nil {
				return errors.Wrap(err, "clear schema cache")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s schema cache\n", cache.Name())
			return nil
		},
	}
}

// openCache opens the configured backend, or returns a nil cache when
// caching is disabled.
func openCache(cfg *config.Config) (schemacache.Cache, func(), error) {
	if !cfg.Cache.Enabled {
		return nil, func() {}, nil
	}
	cache, err := schemacache.Open(cfg.Cache.Backend, cfg.Cache.Path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open schema cache")
	}
	return cache, func() { closeQuietly(cache) }, nil
}

func closeQuietly(c schemacache.Cache) {
	if closer, ok := c.(io.Closer); ok {
		_ = closer.Close()
	}
}
