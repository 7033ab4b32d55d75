package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func queryRelationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relations <id>",
		Short: "Show an entity's relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryRelations(args[0])
		},
	}
	return cmd
}

func runQueryRelations(id string) error {
	ctx := context.Background()

	cfg, _, err := loadProject()
	if err != nil {
		return err
	}

	canon, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer canon.Close(ctx)

	rels, err := canon.RelationshipsFor(ctx, id)
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		fmt.Fprintln(os.Stdout, "No relationships.")
		return nil
	}
	for _, rel := range rels {
		arrow := "--"
		if rel.Directed {
			arrow = "->"
		}
		fmt.Fprintf(os.Stdout, "%s %s[%s]%s %s\n", rel.SourceID, arrow, rel.Type, arrow, rel.TargetID)
	}
	return nil
}
