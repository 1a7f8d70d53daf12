// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"os"
	"path/filepath"
)

// isDirectory reports whether absolutePath exists and is a directory.
func isDirectory(absolutePath string) (bool, error) {
	info, err := os.Stat(absolutePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// pathExists reports whether absolutePath exists, treating "not
// found" as a plain false rather than an error.
func pathExists(absolutePath string) (bool, error) {
	_, err := os.Stat(absolutePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// relativeTo expresses target as a path relative to root, used to
// recompute a session's displayed working directory after a
// successful DIR_CHANGE.
func relativeTo(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
