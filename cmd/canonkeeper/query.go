package main

import (
	"github.com/spf13/cobra"
)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read from the world's canon",
	}
	cmd.AddCommand(queryEntityCmd())
	cmd.AddCommand(queryListCmd())
	cmd.AddCommand(queryRelationsCmd())
	return cmd
}
