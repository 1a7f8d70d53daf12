// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cloudvault/cloudvault/internal/auth"
	"github.com/cloudvault/cloudvault/internal/catalog"
	"github.com/cloudvault/cloudvault/internal/config"
	"github.com/cloudvault/cloudvault/internal/logging"
	"github.com/cloudvault/cloudvault/internal/reactor"
	"github.com/cloudvault/cloudvault/internal/storage"
	"github.com/cloudvault/cloudvault/internal/token"
	"github.com/cloudvault/cloudvault/internal/workerpool"
	"github.com/cloudvault/cloudvault/lib/process"
	"github.com/cloudvault/cloudvault/lib/sqlitepool"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a cloudvault-server config file")
	flag.Parse()
	if configPath == "" {
		configPath = flag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrapLogger := logging.New("")
	cfg, err := config.Load(configPath, bootstrapLogger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}
	logger := logging.MustNew(cfg.LogFile)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabaseFile), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: cfg.DatabaseFile, Logger: logger})
	if err != nil {
		return fmt.Errorf("opening catalog database: %w", err)
	}
	defer pool.Close()

	authService, err := auth.Open(pool)
	if err != nil {
		return fmt.Errorf("opening auth service: %w", err)
	}
	fileCatalog, err := catalog.Open(pool)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	store, err := storage.NewStore(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("opening storage root: %w", err)
	}
	tokens := token.New(cfg.JWTSecret, cfg.JWTIssuer, time.Duration(cfg.TokenTTLSeconds)*time.Second)
	workers := workerpool.New(cfg.LongTaskThreads, cfg.MaxClients, logger)
	defer workers.Shutdown()

	server := reactor.New(reactor.Config{
		Auth:          authService,
		Catalog:       fileCatalog,
		Storage:       store,
		Tokens:        tokens,
		Workers:       workers,
		MaxChunkBytes: cfg.MaxChunkBytes,
		MaxClients:    cfg.MaxClients,
		Logger:        logger,
	})

	address := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}

	logger.Info("cloudvault-server listening", "address", address, "storage_root", cfg.StorageRoot)
	err = server.Serve(ctx, ln)
	logger.Info("cloudvault-server stopped")
	return err
}
