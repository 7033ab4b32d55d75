package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func queryListCmd() *cobra.Command {
	var entityType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryList(entityType)
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "", "Entity type filter")
	return cmd
}

func runQueryList(entityType string) error {
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

	entities, err := canon.ListEntities(ctx, entityType)
	if err != nil {
		return err
	}
	for _, e := range entities {
		if e.Tombstoned {
			continue
		}
		fmt.Fprintf(os.Stdout, "%s  %s  (%s) v%d\n", e.ID, e.Name, e.Type, e.Version)
	}
	return nil
}
