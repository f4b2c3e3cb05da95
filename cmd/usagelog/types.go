package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loykin/usagelog"
)

func createTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List known event types and their payload rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "TYPE\tRULE")
			for _, t := range usagelog.Types() {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", t, usagelog.Rule(t))
			}
			return w.Flush()
		},
	}
}
