package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createSendCommand(globalFlags),
		createTypesCommand(),
		createHealthCommand(globalFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "usagelog",
		Short: "Usage event logger and collector",
		Long: `usagelog records client usage events, batches them and ships them to a
collector, which stores them in SQLite, PostgreSQL, ClickHouse or OpenSearch.

Examples:
  usagelog serve --config=usagelog.toml
  usagelog send --type="Zoom image" --payload='{"scale":2}'
  usagelog send --type="Save job" --durable=1.5s --close='{"outcome":"ok"}'
  usagelog health --collector=http://localhost:8080/api
  usagelog types`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}
