// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import "github.com/cloudvault/cloudvault/internal/storage"

// session holds the per-connection state that would have lived in the
// original server's ConnectionContext: authentication, current
// working directory, and (if one is active) the in-progress upload's
// checkpoint. A session is owned exclusively by the goroutine running
// that connection's read loop — nothing else ever mutates it — so it
// needs no locking of its own.
type session struct {
	peer     string
	username string
	token    string
	cwd      string

	uploadActive  bool
	uploadCheck   storage.Checkpoint
	uploadExpect  uint64
	uploadMD5     string
	uploadLogical string
}

func newSession(peer string) *session {
	return &session{peer: peer, cwd: "."}
}

func (s *session) authenticated() bool {
	return s.username != ""
}
