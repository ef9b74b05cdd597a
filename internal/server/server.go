package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stikjit/jitstub/internal/jit"
	"github.com/stikjit/jitstub/internal/logging"
	"go.uber.org/zap"
)

// DefaultPushInterval is used when Config.PushInterval is zero.
const DefaultPushInterval = time.Second

// SnapshotSource is anything that can report the current session state.
// *jit.Session satisfies it.
type SnapshotSource interface {
	Snapshot() jit.Snapshot
}

// Config holds the monitor configuration
type Config struct {
	Listen       string        // host:port; port 0 picks a free port
	PushInterval time.Duration // How often websocket clients are checked for changes
}

// Server is the read-only session monitor
type Server struct {
	config   Config
	source   SnapshotSource
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
	done        chan struct{}
}

// New creates a monitor for source. It does not listen until Start.
func New(config Config, source SnapshotSource) (*Server, error) {
	if source == nil {
		return nil, errors.New("monitor requires a snapshot source")
	}
	if config.PushInterval <= 0 {
		config.PushInterval = DefaultPushInterval
	}

	s := &Server{
		config:      config,
		source:      source,
		logger:      logging.Named("monitor"),
		activeConns: make(map[string]*websocket.Conn),
		done:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP routes served by the monitor.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return logRequests(mux)
}

// Start binds the listener and serves in the background. It returns once
// the monitor is accepting connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.listener = listener

	s.logger.Info("Monitor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("push_interval", s.config.PushInterval),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Monitor stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 before Start.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Shutdown stops the listener, closes websocket clients and waits for the
// handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down monitor...")

	select {
	case <-s.done:
	default:
		close(s.done)
	}

	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	for addr, conn := range s.activeConns {
		s.logger.Debug("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info("All connections closed gracefully")
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout, forcing close")
	}
	return err
}

// GetActiveConnections returns the number of websocket clients
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

func (s *Server) track(addr string, conn *websocket.Conn) {
	s.mu.Lock()
	s.activeConns[addr] = conn
	s.mu.Unlock()
}

func (s *Server) untrack(addr string) {
	s.mu.Lock()
	delete(s.activeConns, addr)
	s.mu.Unlock()
}
