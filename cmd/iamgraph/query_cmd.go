package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iamgraph/iamgraph"
)

func newWhoCanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "who-can [flags] action [resource]",
		Short: "List identities allowed to perform an action",
		Args:  cobra.RangeArgs(1, 2),
	}

	flags := graphFlags{}
	flags.register(cmd)
	asJSON := cmd.Flags().Bool("json", false, "emit JSON instead of a table")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		graph, err := flags.buildGraph(ctx)
		if err != nil {
			return err
		}
		resource := "*"
		if len(args) > 1 {
			resource = args[1]
		}
		matches, err := iamgraph.NewEngine(graph).WhoCanDo(ctx, args[0], resource)
		if err != nil {
			return err
		}
		if *asJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(matches)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IDENTITY\tKIND\tACTIONS\tRESOURCES\tVIA")
		for _, m := range matches {
			via := m.Via
			if via == "" {
				via = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				m.Name, m.Kind, strings.Join(m.Actions, ","), strings.Join(m.Resources, ","), via)
		}
		return w.Flush()
	}

	return cmd
}

func newWhatCanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "what-can [flags] identity",
		Short: "List everything an identity is granted or denied",
		Args:  cobra.ExactArgs(1),
	}

	flags := graphFlags{}
	flags.register(cmd)
	asJSON := cmd.Flags().Bool("json", false, "emit JSON instead of a table")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		graph, err := flags.buildGraph(ctx)
		if err != nil {
			return err
		}
		grants, err := iamgraph.NewEngine(graph).WhatCanDo(ctx, args[0])
		if err != nil {
			return err
		}
		if *asJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(grants)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EFFECT\tACTION\tRESOURCE\tPATH\tSOURCE")
		for _, g := range grants {
			effect := string(g.Effect)
			if g.Conditional {
				effect += " (conditional)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", effect, g.Action, g.Resource, g.Path, g.Source)
		}
		return w.Flush()
	}

	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags] identity action resource",
		Short: "Decide allow/deny for one identity, action and resource",
		Args:  cobra.ExactArgs(3),
	}

	flags := graphFlags{}
	flags.register(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		graph, err := flags.buildGraph(ctx)
		if err != nil {
			return err
		}
		v, err := iamgraph.NewEngine(graph).Check(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v.Decision.String())
		for _, ig := range v.Ignored {
			fmt.Fprintf(cmd.OutOrStderr(), "warning: condition ignored on %s statement %d\n", ig.Policy, ig.Statement)
		}
		return nil
	}

	return cmd
}
