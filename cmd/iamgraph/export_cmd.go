package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [flags]",
		Short: "Emit graph nodes and edges for an external renderer",
	}

	flags := graphFlags{}
	flags.register(cmd)
	format := cmd.Flags().String("format", "json", "output format (json, dot)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		graph, err := flags.buildGraph(cmd.Context())
		if err != nil {
			return err
		}
		nodes, edges := graph.Export()

		switch *format {
		case "json":
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
				"nodes": nodes,
				"edges": edges,
			})
		case "dot":
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "digraph iamgraph {")
			for _, n := range nodes {
				fmt.Fprintf(out, "  %q [label=%q];\n", n.ID, n.Kind+": "+n.ID)
			}
			for _, e := range edges {
				fmt.Fprintf(out, "  %q -> %q [label=%q];\n", e.Source, e.Target, e.Kind)
			}
			fmt.Fprintln(out, "}")
			return nil
		default:
			return fmt.Errorf("unknown format %q", *format)
		}
	}

	return cmd
}
