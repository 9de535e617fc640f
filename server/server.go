// Package server implements the USB/IP TCP acceptor: one listener binds
// the configured address and spawns an independent session per
// connection, all sharing a single device registry.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/go-usbip/usbipd/registry"
	"github.com/go-usbip/usbipd/session"
)

// Server accepts USB/IP connections and runs one session goroutine per
// client, supervised by an errgroup so a panic or fatal session error
// never silently vanishes.
type Server struct {
	addr string
	reg  *registry.Registry
	log  *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	ready    chan struct{}
	readyOne sync.Once
}

// New returns a Server that will listen on addr (host:port, or ":3240"
// for any interface on the well-known USB/IP port) and dispatch against
// reg. log is used for connection lifecycle events; pass nil for
// slog.Default().
func New(addr string, reg *registry.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:  addr,
		reg:   reg,
		log:   log,
		ready: make(chan struct{}),
	}
}

// Registry returns the server's device pool, for administrative add and
// remove calls made while the server is running.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Addr returns the address the server is (or will be) listening on. Once
// Ready is closed it reflects the actual bound address, which matters
// when addr was given with an ephemeral port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Ready returns a channel that closes once the listener is bound and
// accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// ListenAndServe binds the listener and runs until Close is called; any
// other accept error is logged and accepting continues. Every session runs
// under an errgroup.Group, and once Close has stopped the listener,
// ListenAndServe waits for in-flight sessions to unwind before returning.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.readyOne.Do(func() { close(s.ready) })
	s.log.Info("usbip server listening", "addr", ln.Addr().String())

	var g errgroup.Group
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Info("usbip server stopped")
				return g.Wait()
			}
			s.log.Error("accept error", "error", err)
			continue
		}

		g.Go(func() error {
			s.serveConn(conn)
			return nil
		})
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()
	s.log.Info("client connected", "remote", remote)

	sess := session.New(conn, s.reg, s.log.With("remote", remote))
	if err := sess.Serve(); err != nil {
		s.log.Warn("session ended with error", "remote", remote, "error", err)
		return
	}
	s.log.Info("client disconnected", "remote", remote)
}

// Close stops accepting new connections. In-flight sessions are not
// interrupted; ListenAndServe returns once they finish.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
