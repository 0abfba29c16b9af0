package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/typegraph/cmd/typegraph/commands"
	"github.com/teranos/typegraph/config"
	"github.com/teranos/typegraph/logger"
)

var rootCmd = &cobra.Command{
	Use:   "typegraph",
	Short: "typegraph - typed knowledge graphs",
	Long: `typegraph - typed knowledge graphs with isa inheritance.

Nodes and relations live in a model organized by multi-parent isa
inheritance: attributes resolve through the type hierarchy, and relation
types can carry reflexive, symmetric, and transitive behaviors that extend
reachability queries.

Available commands:
  new     - Create an empty graph document
  stats   - Show counts and the type inventory of a document
  query   - Run isa and relation reachability queries
  convert - Convert a document between XML and sqlite formats
  watch   - Reload and re-validate a document when it changes

Examples:
  typegraph new world.tgxml
  typegraph stats world.tgxml
  typegraph query isa world.tgxml alice person
  typegraph query related world.tgxml friend alice
  typegraph convert world.tgxml world.tgdb
  typegraph watch world.tgxml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Initialize(cfg.Log.JSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.NewCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.QueryCmd)
	rootCmd.AddCommand(commands.ConvertCmd)
	rootCmd.AddCommand(commands.WatchCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
