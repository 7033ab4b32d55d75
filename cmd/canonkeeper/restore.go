package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func restoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Replace the world with a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(args[0])
		},
	}
	return cmd
}

func runRestore(snapshotID string) error {
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

	if err := backups.Restore(ctx, snapshotID); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Restored snapshot %s.\n", snapshotID)
	return nil
}
