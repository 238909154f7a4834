package uds

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

type HandlerFunc func(req *Request) *Response

// Server answers one-shot CLI requests on a Unix domain socket: one
// framed request per connection, one framed response back.
type Server struct {
	sockPath    string
	connTimeout time.Duration
	logf        func(format string, args ...any)

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	listener net.Listener
	wg       sync.WaitGroup
}

func NewServer(socketPath string) *Server {
	return &Server{
		sockPath:    socketPath,
		connTimeout: defaultTimeout,
		logf:        log.Printf,
		handlers:    map[string]HandlerFunc{},
	}
}

func (s *Server) SetConnTimeout(d time.Duration) {
	s.connTimeout = d
}

// SetLogf redirects server diagnostics, normally into the daemon log.
func (s *Server) SetLogf(logf func(format string, args ...any)) {
	s.logf = logf
}

// Handle registers the handler for one command name.
func (s *Server) Handle(command string, h HandlerFunc) {
	s.mu.Lock()
	s.handlers[command] = h
	s.mu.Unlock()
}

// Start binds the socket and begins accepting connections. A stale socket
// file from an earlier run is removed first.
func (s *Server) Start() error {
	_ = os.Remove(s.sockPath)

	ln, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("bind unix socket %s: %w", s.sockPath, err)
	}

	// Only the owning user may drive the daemon.
	if err := os.Chmod(s.sockPath, 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod %s: %w", s.sockPath, err)
	}

	s.listener = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, waits for in-flight connections to finish and
// removes the socket file.
func (s *Server) Stop() error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.sockPath)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logf("accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn handles exactly one request/response exchange.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()
	defer func() {
		if r := recover(); r != nil {
			s.logf("panic serving connection: %v\n%s", r, debug.Stack())
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(s.connTimeout))

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.logf("read request error: %v", err)
		return
	}

	if err := WriteFrame(conn, s.route(&req)); err != nil {
		s.logf("write response error: %v", err)
	}
}

// route checks the protocol version and dispatches to the registered
// handler.
func (s *Server) route(req *Request) *Response {
	if req.ProtocolVersion != ProtocolVersion {
		msg := fmt.Sprintf("unsupported protocol version %d (daemon speaks %d)", req.ProtocolVersion, ProtocolVersion)
		return ErrorResponse(ErrCodeProtocolMismatch, msg)
	}

	s.mu.RLock()
	h := s.handlers[req.Command]
	s.mu.RUnlock()

	if h == nil {
		return ErrorResponse(ErrCodeUnknownCommand, fmt.Sprintf("unrecognized command %q", req.Command))
	}
	return h(req)
}
