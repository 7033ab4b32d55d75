package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func queryEntityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity <id>",
		Short: "Show one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryEntity(args[0])
		},
	}
	return cmd
}

func runQueryEntity(id string) error {
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

	entity, err := canon.GetEntity(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s (%s) v%d", entity.Name, entity.Type, entity.Version)
	if entity.Tombstoned {
		fmt.Fprint(os.Stdout, "  [deleted]")
	}
	fmt.Fprintln(os.Stdout, "")

	names := make([]string, 0, len(entity.Attributes))
	for name := range entity.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stdout, "  %s: %v\n", name, entity.Attributes[name])
	}
	return nil
}
