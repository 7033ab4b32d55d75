package main

import (
	"log/slog"
	"os"

	"canonkeeper/internal/backup"
	"canonkeeper/internal/config"
	"canonkeeper/internal/ledger"
	"canonkeeper/internal/oracle"
	"canonkeeper/internal/store"
	"canonkeeper/internal/validate"
)

func buildComponents(cfg *config.ProjectConfig, schema *config.WorldSchema, canon store.Store, log *slog.Logger) (*validate.Pipeline, *ledger.Ledger, *backup.Manager, error) {
	var semantic validate.Oracle
	if cfg.Oracle.Enabled && cfg.Oracle.APIKey != "" {
		client, err := oracle.New(cfg.Oracle, log)
		if err != nil {
			return nil, nil, nil, err
		}
		semantic = client
	}

	pipe := validate.NewPipeline(schema, canon, semantic, cfg.Oracle.Timeout())
	led := ledger.New(canon)

	storage, err := backup.NewFileStorage(cfg.Backups.Dir)
	if err != nil {
		return nil, nil, nil, err
	}
	backups := backup.NewManager(canon, storage)

	return pipe, led, backups, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
