package main

import (
	"context"

	"github.com/spf13/cobra"

	"canonkeeper/internal/mcp"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		RunE:  runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
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

	pipe, led, backups, err := buildComponents(cfg, schema, canon, log)
	if err != nil {
		return err
	}

	server := mcp.NewServer(schema, canon, pipe, led, backups, log, version)
	return server.Run(ctx, &sdk.StdioTransport{})
}
