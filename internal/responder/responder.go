// Package responder implements the minimal HTTP answering machine used for
// LAN sharing: a raw TCP listener, a request-line parser, a fixed route
// table, and hand-built HTTP/1.1 responses. It is not a general server:
// no keep-alive, no chunked encoding, no header parsing. Requests here are
// always short GETs from the peer device.
package responder

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/MikeYan01/List-memories/internal/apperr"
)

// maxRequestBytes bounds the single read taken from each connection. A
// request that does not fit a complete request line in one read of this
// size is malformed and the connection is closed without a response.
const maxRequestBytes = 64 << 10

// connDeadline cuts off a peer that connects but never completes the
// exchange.
const connDeadline = 10 * time.Second

// Response is one fully-formed reply.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Text builds a plaintext response.
func Text(status int, body string) Response {
	return Response{Status: status, ContentType: "text/plain", Body: []byte(body)}
}

// JSON builds an application/json response from pre-encoded bytes.
func JSON(status int, body []byte) Response {
	return Response{Status: status, ContentType: "application/json", Body: body}
}

// HandlerFunc produces the response for one matched GET path.
type HandlerFunc func(path string) Response

// Route pairs a literal path prefix with its handler. The first matching
// prefix wins.
type Route struct {
	Prefix  string
	Handler HandlerFunc
}

// Server accepts connections and answers each with exactly one response
// before closing it. Connections are independent; the only state they share
// is the route table, which is read-only after Start.
type Server struct {
	logger *slog.Logger
	routes []Route

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	running  bool
}

// New creates a server answering the given routes.
func New(logger *slog.Logger, routes []Route) *Server {
	return &Server{
		logger: logger,
		routes: routes,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds the port and begins accepting. It returns once the listener
// is bound; accepting happens on a background goroutine. Bind failure wraps
// ErrPortUnavailable. Go's TCP listeners allow address reuse, so a port
// freed by Stop can be rebound immediately.
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("responder: bind port %d: %w: %w", port, apperr.ErrPortUnavailable, err)
	}
	s.listener = ln
	s.running = true

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.logger.Info("responder: listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits until all
// connection goroutines have finished. No accepted socket survives Stop.
// Idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	_ = s.listener.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("responder: stopped")
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("responder: accept", slog.String("error", err.Error()))
			}
			return
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	_ = conn.SetDeadline(time.Now().Add(connDeadline))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		return
	}

	method, path, ok := parseRequestLine(buf[:n])
	if !ok {
		s.logger.Debug("responder: malformed request", slog.String("remote", conn.RemoteAddr().String()))
		return
	}

	resp := s.dispatch(method, path)
	s.logger.Debug("responder: request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.Status))

	if err := writeResponse(conn, resp); err != nil {
		s.logger.Warn("responder: write response",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("error", err.Error()))
	}
}

func (s *Server) dispatch(method, path string) Response {
	if method != "GET" {
		return Text(404, "Not Found")
	}
	for _, r := range s.routes {
		if strings.HasPrefix(path, r.Prefix) {
			return r.Handler(path)
		}
	}
	return Text(404, "Not Found")
}

// parseRequestLine extracts method and path from the first line of a raw
// request. The line must hold "METHOD SP PATH SP VERSION" before the first
// line break.
func parseRequestLine(raw []byte) (method, path string, ok bool) {
	end := bytes.IndexByte(raw, '\n')
	if end < 0 {
		return "", "", false
	}
	line := bytes.TrimRight(raw[:end], "\r")

	parts := bytes.Split(line, []byte(" "))
	if len(parts) != 3 || len(parts[0]) == 0 || len(parts[1]) == 0 {
		return "", "", false
	}
	if !bytes.HasPrefix(parts[2], []byte("HTTP/")) {
		return "", "", false
	}
	return string(parts[0]), string(parts[1]), true
}

var statusText = map[int]string{
	200: "OK",
	401: "Unauthorized",
	404: "Not Found",
	500: "Internal Server Error",
}

// writeResponse emits a complete HTTP/1.1 response. Content-Length is the
// exact body size and every response carries the permissive CORS header.
func writeResponse(conn net.Conn, resp Response) error {
	text, ok := statusText[resp.Status]
	if !ok {
		text = "Internal Server Error"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", resp.Status, text)
	fmt.Fprintf(&b, "Content-Type: %s\r\n", resp.ContentType)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(resp.Body))
	b.WriteString("Access-Control-Allow-Origin: *\r\n")
	b.WriteString("\r\n")
	b.Write(resp.Body)

	_, err := conn.Write(b.Bytes())
	return err
}
