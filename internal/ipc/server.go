package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyRunning is returned by Start when another daemon is listening on
// the socket.
var ErrAlreadyRunning = errors.New("another daemon is listening on the control socket")

// ErrPeerRejected is reported for connections from another user.
var ErrPeerRejected = errors.New("control peer is not the daemon owner")

// Handler processes IPC messages
type Handler interface {
	// HandleMessage processes a message and returns a response
	HandleMessage(ctx context.Context, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	return f(ctx, msg)
}

// ServerConfig configures the IPC server
type ServerConfig struct {
	SocketPath     string        // Unix socket path
	ReadTimeout    time.Duration // Idle connections are closed after this
	WriteTimeout   time.Duration
	MaxConnections int
	Logger         *slog.Logger
}

// DefaultServerConfig returns sensible defaults
func DefaultServerConfig(socketPath string) ServerConfig {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}
	return ServerConfig{
		SocketPath:     socketPath,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxConnections: 8,
	}
}

// DefaultSocketPath returns $XDG_RUNTIME_DIR/macrotoggle.sock, or a per-user
// path in the temp directory when XDG_RUNTIME_DIR is unset.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "macrotoggle.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("macrotoggle-%d.sock", os.Getuid()))
}

// Server is the IPC server that manages client connections
type Server struct {
	cfg     ServerConfig
	handler Handler
	log     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	// Shutdown coordination
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig, handler Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 8
	}

	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     log,
		conns:   make(map[net.Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins listening for connections
func (s *Server) Start() error {
	path := s.cfg.SocketPath
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if IsSocketListening(path) {
		return fmt.Errorf("%s: %w", path, ErrAlreadyRunning)
	}
	if err := CleanupSocket(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}

	// Owner only
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every connection, then removes the socket.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	err := s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	if rmErr := os.Remove(s.cfg.SocketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.Join(err, rmErr)
	}
	return err
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			conn.Close()
			return
		}
		if len(s.conns) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			s.log.Warn("too many control connections")
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	if err := authorizePeer(conn); err != nil {
		s.log.Warn("rejected control connection", "error", err)
		s.send(conn, NewErrorMessage(0, ErrPermissionDenied, "peer is not the daemon owner"))
		return
	}

	for {
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		msg, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && s.ctx.Err() == nil {
				s.log.Debug("control connection closed", "error", err)
			}
			return
		}

		response, err := s.processMessage(msg)
		if err != nil {
			response = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if response == nil {
			continue
		}
		if err := s.send(conn, response); err != nil {
			return
		}
	}
}

func (s *Server) processMessage(msg *Message) (*Message, error) {
	s.log.Debug("control request", "type", msg.Header.Type.String(), "request_id", msg.Header.RequestID)

	if msg.Header.Type == MsgPing {
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
	}
	if s.handler == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "no handler"), nil
	}
	return s.handler.HandleMessage(s.ctx, msg)
}

func (s *Server) send(conn net.Conn, msg *Message) error {
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return msg.Write(conn)
}

// CleanupSocket removes a stale socket file. Anything other than a socket
// at path is left alone and reported.
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}

	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening checks if a socket is already listening
func IsSocketListening(path string) bool {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
