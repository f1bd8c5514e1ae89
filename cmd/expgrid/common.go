package main

import (
	"context"
	"fmt"

	"github.com/expgrid/expgrid/internal/config"
	"github.com/expgrid/expgrid/internal/credentials"
	"github.com/expgrid/expgrid/internal/engine"
)

var credentialsPath string

func openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var creds *credentials.Credentials
	if cfg.Database.Provider == "mysql" {
		if credentialsPath == "" {
			return nil, fmt.Errorf("expgrid: --credentials is required for the mysql provider")
		}
		creds, err = credentials.Load(credentialsPath)
		if err != nil {
			return nil, err
		}
	}

	return engine.New(ctx, cfg, creds)
}
