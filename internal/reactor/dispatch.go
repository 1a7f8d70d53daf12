// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/cloudvault/cloudvault/internal/catalog"
	"github.com/cloudvault/cloudvault/internal/storage"
	"github.com/cloudvault/cloudvault/internal/wire"
)

// replyResolveError maps a Resolve failure to a wire status. A path
// that escapes the user's root is reported the same as a path that
// doesn't exist, so a client probing with ".." learns nothing about
// what lies outside its root.
func replyResolveError(err error, reply func(map[string]string)) {
	if errors.Is(err, storage.ErrPathTraversal) {
		reply(map[string]string{"status": "notfound"})
		return
	}
	reply(map[string]string{"status": "error", "reason": err.Error()})
}

// dispatch handles one decoded command for sess, sending its response
// (or responses) onto outbox. Most commands reply synchronously,
// before dispatch returns; FILE_UPLOAD_COMMIT instead submits its
// work to the worker pool and replies later from that worker's
// goroutine, so that a large file's rename-and-verify step never
// blocks this connection's read loop — or any other connection's.
func (s *Server) dispatch(ctx context.Context, sess *session, msg wire.Message, outbox chan<- wire.Message) {
	cmd := msg.Header("cmd", "")
	if cmd == "" {
		send(outbox, wire.NewMessage(map[string]string{"cmd": "ERROR", "reason": "MissingCommand"}))
		return
	}

	reply := func(headers map[string]string) {
		headers["cmd"] = cmd
		send(outbox, wire.NewMessage(headers))
	}
	replyBody := func(headers map[string]string, body []byte) {
		headers["cmd"] = cmd
		send(outbox, wire.Message{Headers: headers, Body: body})
	}

	defer func() {
		if r := recover(); r != nil {
			reply(map[string]string{"status": "error", "reason": fmt.Sprintf("%v", r)})
		}
	}()

	switch cmd {
	case "REGISTER":
		s.handleRegister(ctx, msg, reply)
		return
	case "LOGIN":
		s.handleLogin(ctx, sess, msg, reply)
		return
	case "TOKEN_AUTH":
		s.handleTokenAuth(sess, msg, reply)
		return
	}

	// Every other command requires a bearer token.
	tok := msg.Header("token", "")
	if tok == "" {
		reply(map[string]string{"status": "auth_required"})
		return
	}
	subject, err := s.cfg.Tokens.Verify(tok)
	if err != nil {
		reply(map[string]string{"status": "token_invalid"})
		return
	}
	sess.username = subject
	sess.token = tok

	switch cmd {
	case "DIR_PWD":
		reply(map[string]string{"status": "ok", "path": sess.cwd})
	case "DIR_CHANGE":
		s.handleDirChange(sess, msg, reply)
	case "DIR_MKDIR":
		s.handleDirMkdir(sess, msg, reply)
	case "DIR_LIST":
		s.handleDirList(sess, msg, reply, replyBody)
	case "FILE_DELETE":
		s.handleFileDelete(ctx, sess, msg, reply)
	case "FILE_UPLOAD_INIT":
		s.handleUploadInit(ctx, sess, msg, reply)
	case "FILE_UPLOAD_CHUNK":
		s.handleUploadChunk(sess, msg, reply)
	case "FILE_UPLOAD_COMMIT":
		s.handleUploadCommit(sess, outbox)
	case "FILE_DOWNLOAD_INIT":
		s.handleDownloadInit(ctx, sess, msg, reply)
	case "FILE_DOWNLOAD_FETCH":
		s.handleDownloadFetch(sess, msg, replyBody)
	default:
		reply(map[string]string{"status": "unknown"})
	}
}

func send(outbox chan<- wire.Message, msg wire.Message) {
	outbox <- msg
}

func (s *Server) handleRegister(ctx context.Context, msg wire.Message, reply func(map[string]string)) {
	username := msg.Header("username", "")
	password := msg.Header("password", "")
	if username == "" || password == "" {
		reply(map[string]string{"status": "invalid"})
		return
	}
	ok, err := s.cfg.Auth.Register(ctx, username, password)
	if err != nil {
		reply(map[string]string{"status": "error", "reason": err.Error()})
		return
	}
	if ok {
		reply(map[string]string{"status": "ok"})
	} else {
		reply(map[string]string{"status": "exists"})
	}
}

func (s *Server) handleLogin(ctx context.Context, sess *session, msg wire.Message, reply func(map[string]string)) {
	username := msg.Header("username", "")
	password := msg.Header("password", "")
	if username == "" || password == "" {
		reply(map[string]string{"status": "invalid"})
		return
	}
	valid, err := s.cfg.Auth.Validate(ctx, username, password)
	if err != nil {
		reply(map[string]string{"status": "error", "reason": err.Error()})
		return
	}
	if !valid {
		reply(map[string]string{"status": "denied"})
		return
	}
	tok, err := s.cfg.Tokens.Issue(username)
	if err != nil {
		reply(map[string]string{"status": "error", "reason": err.Error()})
		return
	}
	sess.username = username
	sess.token = tok
	sess.cwd = "."
	s.cfg.Logger.Info("user logged in", "username", username, "peer", sess.peer)
	reply(map[string]string{"status": "ok", "token": tok, "home": "."})
}

func (s *Server) handleTokenAuth(sess *session, msg wire.Message, reply func(map[string]string)) {
	tok := msg.Header("token", "")
	if tok == "" {
		reply(map[string]string{"status": "missing"})
		return
	}
	subject, err := s.cfg.Tokens.Verify(tok)
	if err != nil {
		reply(map[string]string{"status": "invalid"})
		return
	}
	sess.username = subject
	sess.token = tok
	reply(map[string]string{"status": "ok"})
}

func (s *Server) handleDirChange(sess *session, msg wire.Message, reply func(map[string]string)) {
	relPath := msg.Header("path", "")
	if relPath == "" {
		reply(map[string]string{"status": "invalid"})
		return
	}
	resolved, err := s.cfg.Storage.Resolve(sess.username, path.Join(sess.cwd, relPath))
	if err != nil {
		replyResolveError(err, reply)
		return
	}
	isDir, err := isDirectory(resolved)
	if err != nil {
		reply(map[string]string{"status": "error", "reason": err.Error()})
		return
	}
	if !isDir {
		reply(map[string]string{"status": "notfound"})
		return
	}
	userRoot, err := s.cfg.Storage.UserRoot(sess.username)
	if err != nil {
		reply(map[string]string{"status": "error", "reason": err.Error()})
		return
	}
	rel, err := relativeTo(userRoot, resolved)
	if err != nil {
		reply(map[string]string{"status": "error", "reason": err.Error()})
		return
	}
	sess.cwd = rel
	reply(map[string]string{"status": "ok", "path": sess.cwd})
}

func (s *Server) handleDirMkdir(sess *session, msg wire.Message, reply func(map[string]string)) {
	relPath := msg.Header("path", "")
	if relPath == "" {
		reply(map[string]string{"status": "invalid"})
		return
	}
	ok, err := s.cfg.Storage.EnsureDirectory(sess.username, path.Join(sess.cwd, relPath))
	if err != nil {
		replyResolveError(err, reply)
		return
	}
	if ok {
		reply(map[string]string{"status": "ok"})
	} else {
		reply(map[string]string{"status": "failed"})
	}
}

func (s *Server) handleDirList(sess *session, msg wire.Message, reply func(map[string]string), replyBody func(map[string]string, []byte)) {
	relPath := msg.Header("path", "")
	target := sess.cwd
	if relPath != "" {
		target = path.Join(sess.cwd, relPath)
	}
	entries, err := s.cfg.Storage.List(sess.username, target)
	if err != nil {
		replyResolveError(err, reply)
		return
	}
	var body strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Fprintf(&body, "%s|%s|%d|%d\n", e.Name, kind, e.Size, e.ModifiedUnix)
	}
	replyBody(map[string]string{"status": "ok", "count": strconv.Itoa(len(entries))}, []byte(body.String()))
}

func (s *Server) handleFileDelete(ctx context.Context, sess *session, msg wire.Message, reply func(map[string]string)) {
	relPath := msg.Header("path", "")
	if relPath == "" {
		reply(map[string]string{"status": "invalid"})
		return
	}
	target := path.Join(sess.cwd, relPath)
	removed, err := s.cfg.Storage.Remove(sess.username, target)
	if err != nil {
		replyResolveError(err, reply)
		return
	}
	if !removed {
		reply(map[string]string{"status": "notfound"})
		return
	}
	logical := storage.NormalizeRelative(target)
	if err := s.cfg.Catalog.Remove(ctx, sess.username, logical); err != nil {
		s.cfg.Logger.Warn("catalog remove failed", "username", sess.username, "path", logical, "error", err)
	}
	reply(map[string]string{"status": "ok"})
}

func (s *Server) handleUploadInit(ctx context.Context, sess *session, msg wire.Message, reply func(map[string]string)) {
	relPath := msg.Header("path", "")
	md5 := msg.Header("md5", "")
	sizeHeader := msg.Header("size", "")
	if relPath == "" || md5 == "" || sizeHeader == "" {
		reply(map[string]string{"status": "invalid"})
		return
	}
	total, err := strconv.ParseUint(sizeHeader, 10, 64)
	if err != nil {
		reply(map[string]string{"status": "invalid"})
		return
	}

	logical := storage.NormalizeRelative(path.Join(sess.cwd, relPath))
	absolute, err := s.cfg.Storage.Resolve(sess.username, logical)
	if err != nil {
		replyResolveError(err, reply)
		return
	}

	if instant, found, err := s.cfg.Catalog.FindByMD5(ctx, md5); err == nil && found {
		if size, sizeErr := s.cfg.Storage.FileSize(instant.StoragePath); sizeErr == nil && size > 0 {
			if err := s.cfg.Storage.CopyFile(instant.StoragePath, absolute); err == nil {
				if err := s.cfg.Catalog.Upsert(ctx, catalog.Entry{
					Owner: sess.username, LogicalPath: logical, MD5: md5,
					StoragePath: absolute, Size: size,
				}); err != nil {
					s.cfg.Logger.Warn("catalog upsert failed after instant transfer", "error", err)
				}
				reply(map[string]string{"status": "instant", "path": logical})
				return
			}
		}
	}

	checkpoint, err := s.cfg.Storage.PrepareUpload(sess.username, md5, logical, total)
	if err != nil {
		reply(map[string]string{"status": "error", "reason": err.Error()})
		return
	}
	sess.uploadActive = true
	sess.uploadCheck = checkpoint
	sess.uploadExpect = checkpoint.Total
	sess.uploadMD5 = md5
	sess.uploadLogical = logical

	reply(map[string]string{"status": "ready", "offset": strconv.FormatUint(checkpoint.Received, 10)})
}

func (s *Server) handleUploadChunk(sess *session, msg wire.Message, reply func(map[string]string)) {
	if !sess.uploadActive {
		reply(map[string]string{"status": "no_session"})
		return
	}
	offsetHeader := msg.Header("offset", "")
	if offsetHeader == "" {
		reply(map[string]string{"status": "invalid"})
		return
	}
	offset, err := strconv.ParseUint(offsetHeader, 10, 64)
	if err != nil {
		reply(map[string]string{"status": "invalid"})
		return
	}
	if offset != sess.uploadCheck.Received {
		reply(map[string]string{"status": "offset"})
		return
	}
	if err := s.cfg.Storage.WriteChunk(sess.uploadCheck, offset, msg.Body); err != nil {
		reply(map[string]string{"status": "io_error"})
		return
	}
	sess.uploadCheck.Received += uint64(len(msg.Body))
	if err := s.cfg.Storage.UpdateProgress(sess.uploadCheck, sess.uploadCheck.Received); err != nil {
		reply(map[string]string{"status": "io_error"})
		return
	}
	reply(map[string]string{"status": "ok", "received": strconv.FormatUint(sess.uploadCheck.Received, 10)})
}

// handleUploadCommit finalizes the active upload on the worker pool:
// renaming the checkpoint's temp file into place and recomputing its
// digest is disk- and CPU-bound work that must not stall this
// connection's read loop, let alone any other connection's.
func (s *Server) handleUploadCommit(sess *session, outbox chan<- wire.Message) {
	if !sess.uploadActive || sess.uploadCheck.Received != sess.uploadExpect {
		outbox <- wire.NewMessage(map[string]string{"cmd": "FILE_UPLOAD_COMMIT", "status": "incomplete"})
		return
	}
	sess.uploadActive = false

	checkpoint := sess.uploadCheck
	expectedMD5 := sess.uploadMD5
	logical := sess.uploadLogical
	username := sess.username
	ctx := context.Background()

	s.cfg.Workers.Submit(func() {
		headers := map[string]string{"cmd": "FILE_UPLOAD_COMMIT"}

		// The digest is checked against the still-temporary file so a
		// mismatch can be discarded as an ordinary abandoned
		// checkpoint, rather than having to unwind a rename that
		// already landed bad bytes at the final path.
		actualMD5, err := s.cfg.Storage.ComputeMD5(checkpoint.TempPath)
		if err != nil {
			headers["status"] = "error"
			headers["reason"] = err.Error()
			outbox <- wire.NewMessage(headers)
			return
		}
		if actualMD5 != expectedMD5 {
			if discardErr := s.cfg.Storage.DiscardCheckpoint(checkpoint); discardErr != nil {
				s.cfg.Logger.Warn("discarding mismatched upload failed", "error", discardErr)
			}
			headers["status"] = "md5_mismatch"
			outbox <- wire.NewMessage(headers)
			return
		}

		finalPath, err := s.cfg.Storage.FinalizeUpload(checkpoint)
		if err != nil {
			headers["status"] = "error"
			headers["reason"] = err.Error()
			outbox <- wire.NewMessage(headers)
			return
		}
		size, _ := s.cfg.Storage.FileSize(finalPath)
		if err := s.cfg.Catalog.Upsert(ctx, catalog.Entry{
			Owner: username, LogicalPath: logical, MD5: actualMD5, StoragePath: finalPath, Size: size,
		}); err != nil {
			headers["status"] = "error"
			headers["reason"] = err.Error()
			outbox <- wire.NewMessage(headers)
			return
		}
		headers["status"] = "ok"
		headers["path"] = logical
		outbox <- wire.NewMessage(headers)
	})
}

func (s *Server) handleDownloadInit(ctx context.Context, sess *session, msg wire.Message, reply func(map[string]string)) {
	relPath := msg.Header("path", "")
	if relPath == "" {
		reply(map[string]string{"status": "invalid"})
		return
	}
	logical := storage.NormalizeRelative(path.Join(sess.cwd, relPath))
	absolute, err := s.cfg.Storage.Resolve(sess.username, logical)
	if err != nil {
		replyResolveError(err, reply)
		return
	}
	size, err := s.cfg.Storage.FileSize(absolute)
	if err != nil || size == 0 {
		if exists, _ := pathExists(absolute); !exists {
			reply(map[string]string{"status": "notfound"})
			return
		}
	}

	md5 := ""
	if entry, found, err := s.cfg.Catalog.FindByPath(ctx, sess.username, logical); err == nil && found {
		md5 = entry.MD5
	} else {
		md5, _ = s.cfg.Storage.ComputeMD5(absolute)
	}

	reply(map[string]string{
		"status": "ok",
		"size":   strconv.FormatInt(size, 10),
		"md5":    md5,
		"path":   logical,
	})
}

func (s *Server) handleDownloadFetch(sess *session, msg wire.Message, replyBody func(map[string]string, []byte)) {
	relPath := msg.Header("path", "")
	offsetHeader := msg.Header("offset", "")
	lengthHeader := msg.Header("length", "")
	if relPath == "" || offsetHeader == "" || lengthHeader == "" {
		replyBody(map[string]string{"status": "invalid"}, nil)
		return
	}
	offset, err := strconv.ParseUint(offsetHeader, 10, 64)
	if err != nil {
		replyBody(map[string]string{"status": "invalid"}, nil)
		return
	}
	requested, err := strconv.Atoi(lengthHeader)
	if err != nil || requested < 0 {
		replyBody(map[string]string{"status": "invalid"}, nil)
		return
	}

	logical := storage.NormalizeRelative(path.Join(sess.cwd, relPath))
	absolute, err := s.cfg.Storage.Resolve(sess.username, logical)
	if err != nil {
		if errors.Is(err, storage.ErrPathTraversal) {
			replyBody(map[string]string{"status": "notfound"}, nil)
			return
		}
		replyBody(map[string]string{"status": "error", "reason": err.Error()}, nil)
		return
	}
	if exists, _ := pathExists(absolute); !exists {
		replyBody(map[string]string{"status": "notfound"}, nil)
		return
	}

	chunkSize := requested
	if s.cfg.MaxChunkBytes > 0 && int64(chunkSize) > s.cfg.MaxChunkBytes {
		chunkSize = int(s.cfg.MaxChunkBytes)
	}
	chunk, err := s.cfg.Storage.ReadChunk(absolute, offset, chunkSize)
	if err != nil {
		replyBody(map[string]string{"status": "error", "reason": err.Error()}, nil)
		return
	}
	status := "ok"
	if len(chunk) == 0 {
		status = "done"
	}
	replyBody(map[string]string{"status": status, "chunk": strconv.Itoa(len(chunk))}, chunk)
}
