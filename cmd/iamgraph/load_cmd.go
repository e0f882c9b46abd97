package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iamgraph/iamgraph"
)

func newLoadCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [flags] snapshot-file",
		Short: "Validate a snapshot and cache it in the snapshot store",
		Args:  cobra.ExactArgs(1),
	}

	flags := storeFlags{}
	flags.register(cmd)
	name := cmd.Flags().String("name", "default", "name to store the snapshot under")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		snap, err := iamgraph.LoadSnapshotFile(args[0])
		if err != nil {
			return err
		}
		// Building rejects malformed or inconsistent snapshots before
		// anything reaches the store.
		if _, err := iamgraph.Build(snap); err != nil {
			return err
		}

		store, err := flags.open()
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.Put(ctx, *name, snap)
		if err != nil {
			return err
		}
		log.Info("stored snapshot",
			slog.String("name", *name),
			slog.String("id", id.String()),
			slog.Int("users", len(snap.Users)),
			slog.Int("groups", len(snap.Groups)),
			slog.Int("roles", len(snap.Roles)),
			slog.Int("policies", len(snap.Policies)))
		return nil
	}

	return cmd
}
