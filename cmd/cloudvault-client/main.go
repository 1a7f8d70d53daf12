// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cloudvault/cloudvault/internal/client"
	"github.com/cloudvault/cloudvault/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var address string
	flag.StringVar(&address, "server", "127.0.0.1:6000", "cloudvault-server address")
	flag.Parse()

	conn, err := client.Dial(address)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", address, err)
	}
	defer conn.Close()

	fmt.Fprintf(os.Stdout, "connected to %s\n", address)
	client.Run(conn, os.Stdin, os.Stdout)
	return nil
}
