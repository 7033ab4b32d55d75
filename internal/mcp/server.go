package mcp

import (
	"context"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"canonkeeper/internal/backup"
	"canonkeeper/internal/config"
	"canonkeeper/internal/ledger"
	"canonkeeper/internal/store"
	"canonkeeper/internal/validate"
)

// Server exposes the pipeline, store, ledger, and backups to the
// session tooling over MCP. It is the only write path the session layer
// gets: every mutation goes through validation.
type Server struct {
	schema  *config.WorldSchema
	canon   store.Store
	pipe    *validate.Pipeline
	ledger  *ledger.Ledger
	backups *backup.Manager
	log     *slog.Logger
	mcp     *sdk.Server
}

func NewServer(schema *config.WorldSchema, canon store.Store, pipe *validate.Pipeline, led *ledger.Ledger, backups *backup.Manager, log *slog.Logger, version string) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		schema:  schema,
		canon:   canon,
		pipe:    pipe,
		ledger:  led,
		backups: backups,
		log:     log,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "canonkeeper",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
