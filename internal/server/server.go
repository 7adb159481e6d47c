// Package server owns the TCP listener and per-connection lifecycle for
// the wire front end.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/euanmacinnes/clarium-sub003/internal/auth"
	"github.com/euanmacinnes/clarium-sub003/internal/engine"
	"github.com/euanmacinnes/clarium-sub003/internal/pgwire"
	"github.com/euanmacinnes/clarium-sub003/internal/session"
	"github.com/euanmacinnes/clarium-sub003/pkg/logger"
)

// Config holds the listener settings.
type Config struct {
	ListenAddr      string
	Trust           bool
	DefaultDatabase string
	DefaultSchema   string
	WireTrace       bool
	MaxConnections  int
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:5432",
		DefaultDatabase: "clarium",
		DefaultSchema:   "public",
		MaxConnections:  100,
	}
}

// Server accepts client connections and runs one session goroutine per
// connection. The engine and auth provider are shared across all of them.
type Server struct {
	cfg   *Config
	eng   engine.Engine
	authp auth.Provider

	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connCount atomic.Int64

	mu      sync.Mutex
	started bool
	conns   map[net.Conn]struct{}
}

func New(cfg *Config, eng engine.Engine, authp auth.Provider) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		eng:    eng,
		authp:  authp,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and launches the accept loop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln
	s.started = true
	logger.Info("server listening", "addr", ln.Addr().String(), "trust", s.cfg.Trust)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every live client connection, then waits
// for the connection goroutines to drain. Sessions parked in a blocking
// read only wake when their socket closes, so closing the listener alone
// is not enough.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	ln := s.listener
	s.mu.Unlock()

	s.cancel()
	err := ln.Close()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("server stopped")
	return err
}

// track registers a client connection for shutdown. It refuses once Stop
// has begun, so connections accepted during the race are closed instead
// of leaking past the final sweep.
func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("accept failed", "error", err)
			continue
		}
		if max := int64(s.cfg.MaxConnections); max > 0 && s.connCount.Load() >= max {
			logger.Warn("connection limit reached, refusing client", "remote", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}
		s.connCount.Add(1)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs handshake plus session for one client. A panic in
// one session must not take down the rest of the server, so it is caught
// and logged here.
func (s *Server) handleConnection(raw net.Conn) {
	defer s.wg.Done()
	defer s.connCount.Add(-1)

	if !s.track(raw) {
		_ = raw.Close()
		return
	}
	defer s.untrack(raw)

	conn := pgwire.NewConn(raw, s.cfg.WireTrace)
	defer func() { _ = conn.Close() }()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panicked", "conn", conn.ID(), "panic", r)
		}
	}()

	log := logger.With("conn", conn.ID(), "remote", raw.RemoteAddr().String())
	log.Debug("client connected")

	state, err := conn.Handshake(s.ctx, pgwire.HandshakeConfig{
		Trust:           s.cfg.Trust,
		Auth:            s.authp,
		DefaultDatabase: s.cfg.DefaultDatabase,
		DefaultSchema:   s.cfg.DefaultSchema,
	})
	if err != nil {
		if errors.Is(err, pgwire.ErrCancelRequest) {
			log.Debug("cancel request received, closing")
			return
		}
		log.Warn("handshake failed", "error", err)
		return
	}
	log.Info("client authenticated", "user", state.User, "database", state.Database)

	if err := session.New(conn, s.eng, state).Run(s.ctx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
		log.Warn("session ended with error", "error", err)
	}
	log.Debug("client disconnected")
}
