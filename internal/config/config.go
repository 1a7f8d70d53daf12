// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the server's key=value configuration file.
//
// The file is a single explicit path passed on the command line. There
// is no implicit discovery and no per-key environment variable
// overrides: whatever is on disk (or the built-in defaults, if the file
// cannot be opened) is what runs.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config is the server's runtime configuration.
type Config struct {
	ListenAddress   string
	ListenPort      uint16
	StorageRoot     string
	DatabaseFile    string
	LogFile         string
	MaxClients      int
	LongTaskThreads int
	MaxChunkBytes   int64
	JWTSecret       string
	JWTIssuer       string
	TokenTTLSeconds int
}

// Default returns the configuration used when no file is supplied or
// the file cannot be opened.
func Default() Config {
	return Config{
		ListenAddress:   "0.0.0.0",
		ListenPort:      6000,
		StorageRoot:     "./server/storage",
		DatabaseFile:    "./data/cloud_drive.db",
		LogFile:         "./data/server.log",
		MaxClients:      512,
		LongTaskThreads: 4,
		MaxChunkBytes:   1 * 1024 * 1024,
		JWTSecret:       "change-me",
		JWTIssuer:       "enterprise-cloud-drive",
		TokenTTLSeconds: 3600,
	}
}

// Load reads the key=value file at path and overlays it onto Default.
// Blank lines and lines beginning with '#' are ignored. If the file
// cannot be opened, Load logs a warning via logger (if non-nil) and
// returns Default() rather than failing.
func Load(path string, logger *slog.Logger) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		if logger != nil {
			logger.Warn("unable to open config file, falling back to defaults", "path", path, "error", err)
		}
		return cfg, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if err := cfg.set(key, value); err != nil {
			return Config{}, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "listen_address":
		c.ListenAddress = value
	case "listen_port":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("listen_port: %w", err)
		}
		c.ListenPort = uint16(n)
	case "storage_root":
		c.StorageRoot = value
	case "database_file":
		c.DatabaseFile = value
	case "log_file":
		c.LogFile = value
	case "max_clients":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_clients: %w", err)
		}
		c.MaxClients = n
	case "long_task_threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("long_task_threads: %w", err)
		}
		c.LongTaskThreads = n
	case "max_chunk_bytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("max_chunk_bytes: %w", err)
		}
		c.MaxChunkBytes = n
	case "jwt_secret":
		c.JWTSecret = value
	case "jwt_issuer":
		c.JWTIssuer = value
	case "token_ttl_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("token_ttl_seconds: %w", err)
		}
		c.TokenTTLSeconds = n
	case "thread_pool_size":
		// Recognized for compatibility with the original config format;
		// the Go reactor has no fixed-size accept thread pool to size.
	default:
		// Unknown keys are ignored, matching the original loader's
		// silent skip of unrecognized fields.
	}
	return nil
}
