// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

// Package reactor is the server's connection core: it accepts
// clients, decodes the wire protocol, dispatches commands, and
// delivers each response on the connection that issued its command —
// even when a command's work finishes asynchronously on the worker
// pool. Responses leave a connection in the order they reach its
// outbox, so a FILE_UPLOAD_COMMIT reply can follow the replies to
// commands sent after it. Go's runtime-integrated netpoller already does what the
// original server used epoll and an eventfd for, so this is an
// idiomatic goroutines-and-channels translation rather than a literal
// epoll port: one goroutine per connection plays the role of that
// connection's single-threaded reactor, and a small per-connection
// outbox channel plays the role of the original's async response
// queue plus wakeup fd.
package reactor

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/cloudvault/cloudvault/internal/auth"
	"github.com/cloudvault/cloudvault/internal/catalog"
	"github.com/cloudvault/cloudvault/internal/storage"
	"github.com/cloudvault/cloudvault/internal/token"
	"github.com/cloudvault/cloudvault/internal/wire"
	"github.com/cloudvault/cloudvault/internal/workerpool"
)

// outboxDepth bounds how many responses may be queued for a
// connection's writer before dispatch (or a worker's completion
// callback) blocks trying to send another.
const outboxDepth = 64

// readBufferSize is the size of each recv(2)-equivalent read from a
// connection, matching the original reactor's 64 KiB socket buffer.
const readBufferSize = 64 * 1024

// Config bundles everything a Server needs beyond the listener
// itself.
type Config struct {
	Auth          *auth.Service
	Catalog       *catalog.Catalog
	Storage       *storage.Store
	Tokens        *token.Service
	Workers       *workerpool.Pool
	MaxChunkBytes int64
	MaxClients    int
	Logger        *slog.Logger
}

// Server accepts connections and runs the reactor loop for each.
type Server struct {
	cfg   Config
	slots chan struct{}
}

// New returns a Server ready to Serve. If cfg.MaxClients is positive,
// at most that many connections are handled concurrently; additional
// connections are accepted and immediately closed, matching a
// fixed-capacity listener rather than an unbounded one.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	var slots chan struct{}
	if cfg.MaxClients > 0 {
		slots = make(chan struct{}, cfg.MaxClients)
	}
	return &Server{cfg: cfg, slots: slots}
}

// Serve accepts connections on ln until ctx is cancelled or Accept
// fails. It blocks until every in-flight connection has been closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if s.slots != nil {
			select {
			case s.slots <- struct{}{}:
			default:
				s.cfg.Logger.Warn("rejecting connection: at capacity", "peer", conn.RemoteAddr())
				conn.Close()
				continue
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.slots != nil {
				defer func() { <-s.slots }()
			}
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection runs the read loop and writer loop for one
// connection until either side closes it.
func (s *Server) handleConnection(ctx context.Context, netConn net.Conn) {
	defer netConn.Close()

	peer := netConn.RemoteAddr().String()
	sess := newSession(peer)
	outbox := make(chan wire.Message, outboxDepth)

	var writerDone sync.WaitGroup
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		writeLoop(netConn, outbox)
	}()

	s.cfg.Logger.Info("connection accepted", "peer", peer)
	s.readLoop(ctx, netConn, sess, outbox)

	close(outbox)
	writerDone.Wait()
	s.cfg.Logger.Info("connection closed", "peer", peer)
}

func writeLoop(netConn net.Conn, outbox <-chan wire.Message) {
	for msg := range outbox {
		if _, err := netConn.Write(wire.Encode(msg)); err != nil {
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, netConn net.Conn, sess *session, outbox chan<- wire.Message) {
	var decoder wire.Decoder
	buf := make([]byte, readBufferSize)

	for {
		n, err := netConn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
		}
		if err != nil {
			return
		}

		for {
			msg, ok, decodeErr := decoder.Decode()
			if decodeErr != nil {
				s.cfg.Logger.Warn("closing connection on protocol error", "peer", sess.peer, "error", decodeErr)
				return
			}
			if !ok {
				break
			}
			s.dispatch(ctx, sess, msg, outbox)
		}
	}
}
