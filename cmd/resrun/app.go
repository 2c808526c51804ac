package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kalambet/resrun/internal/auth"
	"github.com/kalambet/resrun/internal/backend"
	"github.com/kalambet/resrun/internal/config"
	"github.com/kalambet/resrun/internal/export"
	"github.com/kalambet/resrun/internal/runstore"
)

// app bundles the wired client stack shared by most commands.
type app struct {
	cfg     config.Config
	runs    *runstore.Store
	client  *backend.Client
	gateway *export.Gateway
	close   func()
}

var newApp = func() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.Log.Level)

	db, err := runstore.OpenSQLite(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening run registry: %w", err)
	}

	userID, err := config.EnsureUserID()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("resolving user id: %w", err)
	}

	tokens := auth.FromConfig(cfg.Auth)
	return &app{
		cfg:     cfg,
		runs:    runstore.New(db),
		client:  backend.New(cfg.API.BaseURL, tokens, cfg.API.Audience, userID),
		gateway: export.New(cfg.API.BaseURL, tokens, cfg.API.Audience),
		close:   func() { db.Close() },
	}, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
