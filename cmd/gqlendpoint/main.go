// Command gqlendpoint serves the bookstore GraphQL endpoint and manages its
// schema cache.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hanpama/gqlendpoint/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:   "gqlendpoint",
		Short: "GraphQL HTTP endpoint",
		Long: `
gqlendpoint serves a GraphQL schema over HTTP. The schema is read from an SDL
file, optionally cached after parsing, and executed by registered resolvers.

Configuration is read from defaults, the file given by --config, environment
variables prefixed with ` + config.EnvPrefix + `_ and flags, in increasing order
of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if err := config.RegisterFlags(root.PersistentFlags(), v); err != nil {
		panic(err)
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and cache the GraphQL schema",
	}
	schemaCmd.AddCommand(newCompileCmd(v), newClearCacheCmd(v))
	root.AddCommand(newServeCmd(v), schemaCmd)
	return root
}
