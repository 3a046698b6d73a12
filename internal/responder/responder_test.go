package responder

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MikeYan01/List-memories/internal/apperr"
	"github.com/MikeYan01/List-memories/internal/testutil"
)

func startServer(t *testing.T, routes []Route) *Server {
	t.Helper()
	s := New(testutil.Logger(), routes)
	if err := s.Start(0); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

// rawExchange writes raw bytes to the server and returns everything read
// until the server closes the connection.
func rawExchange(t *testing.T, addr net.Addr, request string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	raw, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return string(raw)
}

func splitResponse(t *testing.T, raw string) (status string, headers map[string]string, body string) {
	t.Helper()
	head, body, found := strings.Cut(raw, "\r\n\r\n")
	if !found {
		t.Fatalf("response has no header/body separator: %q", raw)
	}
	lines := strings.Split(head, "\r\n")
	headers = make(map[string]string)
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ": ")
		if !ok {
			t.Fatalf("malformed header line: %q", line)
		}
		headers[k] = v
	}
	return lines[0], headers, body
}

func TestServesRegisteredRoute(t *testing.T) {
	s := startServer(t, []Route{
		{Prefix: "/ping", Handler: func(string) Response { return JSON(200, []byte(`{"ok":true}`)) }},
	})

	raw := rawExchange(t, s.Addr(), "GET /ping HTTP/1.1\r\nHost: peer\r\n\r\n")
	status, headers, body := splitResponse(t, raw)

	if status != "HTTP/1.1 200 OK" {
		t.Errorf("status line = %q, want 200 OK", status)
	}
	if headers["Content-Type"] != "application/json" {
		t.Errorf("content type = %q, want application/json", headers["Content-Type"])
	}
	if headers["Access-Control-Allow-Origin"] != "*" {
		t.Errorf("CORS header = %q, want *", headers["Access-Control-Allow-Origin"])
	}
	if got, want := headers["Content-Length"], strconv.Itoa(len(body)); got != want {
		t.Errorf("content length = %q, want %q", got, want)
	}
	if body != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestPrefixRouteSeesFullPath(t *testing.T) {
	var gotPath string
	s := startServer(t, []Route{
		{Prefix: "/verify/", Handler: func(p string) Response {
			gotPath = p
			return Text(200, "ok")
		}},
	})

	rawExchange(t, s.Addr(), "GET /verify/4821 HTTP/1.1\r\n\r\n")
	if gotPath != "/verify/4821" {
		t.Errorf("handler saw path %q, want /verify/4821", gotPath)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	s := startServer(t, nil)

	raw := rawExchange(t, s.Addr(), "GET /nope HTTP/1.1\r\n\r\n")
	status, _, body := splitResponse(t, raw)

	if status != "HTTP/1.1 404 Not Found" {
		t.Errorf("status line = %q, want 404", status)
	}
	if body != "Not Found" {
		t.Errorf("body = %q, want Not Found", body)
	}
}

func TestNonGETIs404(t *testing.T) {
	s := startServer(t, []Route{
		{Prefix: "/sync", Handler: func(string) Response { return Text(200, "data") }},
	})

	raw := rawExchange(t, s.Addr(), "POST /sync HTTP/1.1\r\n\r\n")
	status, _, _ := splitResponse(t, raw)
	if status != "HTTP/1.1 404 Not Found" {
		t.Errorf("status line = %q, want 404", status)
	}
}

func TestMalformedRequestGetsNoResponse(t *testing.T) {
	s := startServer(t, nil)

	if raw := rawExchange(t, s.Addr(), "complete nonsense\r\n"); raw != "" {
		t.Errorf("malformed request got a response: %q", raw)
	}
	if raw := rawExchange(t, s.Addr(), "GET /x\r\n"); raw != "" {
		t.Errorf("two-field request line got a response: %q", raw)
	}
}

func TestOneResponseThenClose(t *testing.T) {
	s := startServer(t, []Route{
		{Prefix: "/ping", Handler: func(string) Response { return Text(200, "pong") }},
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /ping HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.ReadAll(conn); err != nil {
		t.Fatalf("read: %v", err)
	}

	// The server hung up after one response; a second read yields EOF
	// immediately.
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("second read error = %v, want EOF", err)
	}
}

func TestPortUnavailable(t *testing.T) {
	holder, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer holder.Close()
	port := holder.Addr().(*net.TCPAddr).Port

	s := New(testutil.Logger(), nil)
	err = s.Start(port)
	if err == nil {
		s.Stop()
		t.Fatal("start succeeded on an occupied port")
	}
	if !errors.Is(err, apperr.ErrPortUnavailable) {
		t.Errorf("error = %v, want ErrPortUnavailable", err)
	}
}

func TestRestartRebindsSamePort(t *testing.T) {
	s := New(testutil.Logger(), nil)
	if err := s.Start(0); err != nil {
		t.Fatalf("first start: %v", err)
	}
	port := s.Addr().(*net.TCPAddr).Port
	s.Stop()

	if err := s.Start(port); err != nil {
		t.Fatalf("restart on port %d: %v", port, err)
	}
	s.Stop()
}

func TestStopClosesOpenConnections(t *testing.T) {
	s := startServer(t, nil)

	// Connect but never send; the connection goroutine sits in its read.
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stop did not return while a connection was open")
	}

	// The server side is gone; our read fails rather than hanging.
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("read succeeded on a connection the server should have closed")
	}
}

func TestConcurrentConnectionsAreIndependent(t *testing.T) {
	s := startServer(t, []Route{
		{Prefix: "/ping", Handler: func(string) Response { return Text(200, "pong") }},
	})

	results := make(chan string, 8)
	for i := 0; i < 8; i++ {
		go func() {
			conn, err := net.Dial("tcp", s.Addr().String())
			if err != nil {
				results <- fmt.Sprintf("dial: %v", err)
				return
			}
			defer conn.Close()
			if _, err := conn.Write([]byte("GET /ping HTTP/1.1\r\n\r\n")); err != nil {
				results <- fmt.Sprintf("write: %v", err)
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			raw, err := io.ReadAll(conn)
			if err != nil {
				results <- fmt.Sprintf("read: %v", err)
				return
			}
			results <- string(raw)
		}()
	}

	for i := 0; i < 8; i++ {
		raw := <-results
		if !strings.HasSuffix(raw, "pong") {
			t.Errorf("connection %d got %q", i, raw)
		}
	}
}
