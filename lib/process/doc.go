// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for CloudVault's
// server and client binaries: process exit after an unrecoverable error
// in main(), reported before the structured logger may be initialized.
package process
