package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func snapshotCmd() *cobra.Command {
	var reason string
	var list bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Take a snapshot of the world, or list stored ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return runSnapshotList()
			}
			return runSnapshot(reason)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual snapshot", "Why the snapshot is being taken")
	cmd.Flags().BoolVar(&list, "list", false, "List stored snapshots instead")
	return cmd
}

func runSnapshot(reason string) error {
	ctx := context.Background()

	cfg, schema, err := loadProject()
	if err != nil {
		return err
	}

	canon, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer canon.Close(ctx)

	_, _, backups, err := buildComponents(cfg, schema, canon, newLogger())
	if err != nil {
		return err
	}

	snap, err := backups.Take(ctx, reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Snapshot %s stored (%d entities, %d relationships).\n",
		snap.ID, len(snap.Entities), len(snap.Relationships))
	return nil
}

func runSnapshotList() error {
	ctx := context.Background()

	cfg, schema, err := loadProject()
	if err != nil {
		return err
	}

	canon, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer canon.Close(ctx)

	_, _, backups, err := buildComponents(cfg, schema, canon, newLogger())
	if err != nil {
		return err
	}

	infos, err := backups.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(os.Stdout, "No snapshots stored.")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(os.Stdout, "%s  %s  %d entities  %s\n", info.ID, info.Timestamp, info.Entities, info.Reason)
	}
	return nil
}
