package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"canonkeeper/internal/ledger"
)

func decisionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "List the decision ledger in order",
		RunE:  runDecisions,
	}
	return cmd
}

func runDecisions(cmd *cobra.Command, args []string) error {
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

	decisions, err := ledger.New(canon).List(ctx)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		fmt.Fprintln(os.Stdout, "No decisions recorded.")
		return nil
	}

	for _, d := range decisions {
		fmt.Fprintf(os.Stdout, "%s  [%s]  chose %s of %d options", d.Timestamp.Format(time.RFC3339), d.Step, d.ChosenID, len(d.Options))
		if d.EntityID != "" {
			fmt.Fprintf(os.Stdout, "  -> %s v%d", d.EntityID, d.EntityVersion)
		}
		fmt.Fprintln(os.Stdout, "")
		if d.Rationale != "" {
			fmt.Fprintf(os.Stdout, "    %s\n", d.Rationale)
		}
	}
	return nil
}
