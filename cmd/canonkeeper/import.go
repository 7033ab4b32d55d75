package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"canonkeeper/internal/ingest"
)

func importCmd() *cobra.Command {
	var step string
	var confirmWarnings bool
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Bulk-import lore files through the validation pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0], step, confirmWarnings)
		},
	}
	cmd.Flags().StringVar(&step, "step", "import", "World-building step to record on imported entities")
	cmd.Flags().BoolVar(&confirmWarnings, "allow-warnings", false, "Commit entities whose validation warned")
	return cmd
}

func runImport(dir, step string, confirmWarnings bool) error {
	ctx := context.Background()
	log := newLogger()

	cfg, schema, err := loadProject()
	if err != nil {
		return err
	}

	canon, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer canon.Close(ctx)

	pipe, _, backups, err := buildComponents(cfg, schema, canon, log)
	if err != nil {
		return err
	}

	result, err := ingest.Run(ctx, dir, schema, pipe, canon, backups, ingest.Options{
		Step:            step,
		ConfirmWarnings: confirmWarnings,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Imported %d entities and %d relationships from %d files.\n",
		result.EntitiesCommitted, result.RelationshipsCommitted, result.FilesSeen)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(os.Stdout, "Skipped (%d):\n", len(result.Skipped))
		for _, issue := range result.Skipped {
			if issue.Err != nil {
				fmt.Fprintf(os.Stdout, "  - %s: %v\n", issue.File, issue.Err)
				continue
			}
			fmt.Fprintf(os.Stdout, "  - %s:\n", issue.File)
			for _, msg := range issue.Messages {
				fmt.Fprintf(os.Stdout, "      %s (%s)\n", msg.Text, msg.Code)
			}
		}
		return fmt.Errorf("some files were not imported")
	}
	return nil
}
