package main

import (
	"context"
	"fmt"
	"strings"

	"canonkeeper/internal/config"
	"canonkeeper/internal/store"
	"canonkeeper/internal/store/memory"
	"canonkeeper/internal/store/postgres"
	"canonkeeper/internal/store/sqlite"
)

func openStore(ctx context.Context, cfg *config.ProjectConfig) (store.Store, error) {
	dsn := cfg.Database.DSN
	var (
		canon store.Store
		err   error
	)
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		canon, err = sqlite.New(ctx, dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		canon, err = postgres.New(ctx, dsn)
	case dsn == "memory://":
		canon = memory.New()
	default:
		return nil, fmt.Errorf("unsupported database DSN: %s", dsn)
	}
	if err != nil {
		return nil, err
	}

	if err := canon.EnsureSchema(ctx); err != nil {
		canon.Close(ctx)
		return nil, err
	}
	return canon, nil
}

func loadProject() (*config.ProjectConfig, *config.WorldSchema, error) {
	cfg, err := config.LoadProjectConfig("canonkeeper.yaml")
	if err != nil {
		return nil, nil, err
	}
	schema, err := config.LoadWorldSchema("schema.yaml")
	if err != nil {
		return nil, nil, err
	}
	return cfg, schema, nil
}
