package pairing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MikeYan01/List-memories/internal/codec"
	"github.com/MikeYan01/List-memories/internal/events"
	"github.com/MikeYan01/List-memories/internal/models"
	"github.com/MikeYan01/List-memories/internal/responder"
	"github.com/MikeYan01/List-memories/internal/store"
	"github.com/MikeYan01/List-memories/internal/testutil"
)

var codeRe = regexp.MustCompile(`^\d{4}$`)

func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// fakeServer drives session transitions without touching a socket.
type fakeServer struct {
	mu         sync.Mutex
	routes     []responder.Route
	startCalls int
	startErr   error
	blockStart chan struct{}
	stopped    atomic.Bool
}

func (f *fakeServer) Start(int) error {
	f.mu.Lock()
	f.startCalls++
	block := f.blockStart
	err := f.startErr
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeServer) Stop()          { f.stopped.Store(true) }
func (f *fakeServer) Addr() net.Addr { return nil }

func (f *fakeServer) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

// fakeSession wires a session to a fake server.
func fakeSession(t *testing.T, bus *events.Bus, fake *fakeServer) *Session {
	t.Helper()
	s := NewSession(testutil.Logger(), bus, testutil.TestDB(t), 0)
	s.newServer = func(_ *slog.Logger, routes []responder.Route) shareServer {
		fake.mu.Lock()
		fake.routes = routes
		fake.mu.Unlock()
		return fake
	}
	return s
}

func TestStartBecomesReadyWithCode(t *testing.T) {
	s := fakeSession(t, nil, &fakeServer{})

	if got := s.State(); got != StateIdle {
		t.Fatalf("initial state = %q, want idle", got)
	}
	s.Start()

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return s.State() == StateReady
	}, "session never became ready")

	if code := s.Code(); !codeRe.MatchString(code) {
		t.Errorf("code = %q, want 4 digits", code)
	}
}

func TestStartTwiceKeepsCodeAndListener(t *testing.T) {
	fake := &fakeServer{}
	s := fakeSession(t, nil, fake)

	s.Start()
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return s.State() == StateReady
	}, "session never became ready")
	first := s.Code()

	s.Start()

	if got := s.Code(); got != first {
		t.Errorf("second start changed code from %q to %q", first, got)
	}
	if n := fake.starts(); n != 1 {
		t.Errorf("listener started %d times, want 1", n)
	}
	if got := s.State(); got != StateReady {
		t.Errorf("state = %q, want ready", got)
	}
}

func TestStopClearsCodeAndCloses(t *testing.T) {
	fake := &fakeServer{}
	s := fakeSession(t, nil, fake)

	s.Start()
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return s.State() == StateReady
	}, "session never became ready")

	s.Stop()

	if got := s.State(); got != StateStopped {
		t.Errorf("state = %q, want stopped", got)
	}
	if got := s.Code(); got != "" {
		t.Errorf("code = %q after stop, want cleared", got)
	}
	if !fake.stopped.Load() {
		t.Error("listener not stopped")
	}

	// Idempotent.
	s.Stop()
	if got := s.State(); got != StateStopped {
		t.Errorf("state after second stop = %q, want stopped", got)
	}
}

func TestStartAfterStopStaysStopped(t *testing.T) {
	fake := &fakeServer{}
	s := fakeSession(t, nil, fake)

	s.Start()
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return s.State() == StateReady
	}, "session never became ready")
	s.Stop()

	s.Start()

	if got := s.State(); got != StateStopped {
		t.Errorf("state = %q, want stopped (sessions are not restarted)", got)
	}
	if got := s.Code(); got != "" {
		t.Errorf("code = %q after start-on-stopped, want none", got)
	}
}

func TestBindFailureEntersFailed(t *testing.T) {
	fake := &fakeServer{startErr: errors.New("address in use")}
	s := fakeSession(t, nil, fake)

	s.Start()

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return s.State() == StateFailed
	}, "session never entered failed")

	if s.Err() == nil {
		t.Error("failed state carries no error")
	}
	if got := s.Code(); got != "" {
		t.Errorf("code = %q in failed state, want cleared", got)
	}
}

func TestStopDuringBindClosesListener(t *testing.T) {
	fake := &fakeServer{blockStart: make(chan struct{})}
	s := fakeSession(t, nil, fake)

	s.Start()
	s.Stop()

	// Bind completes after the session is already stopped; the listener
	// must still end up closed.
	close(fake.blockStart)

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return fake.stopped.Load()
	}, "listener left bound after stop raced bind")

	if got := s.State(); got != StateStopped {
		t.Errorf("state = %q, want stopped", got)
	}
}

func TestStateEventsPublished(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ch := bus.Subscribe()

	s := fakeSession(t, bus, &fakeServer{})
	s.Start()

	var seen []State
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case e := <-ch:
			change, ok := e.Data.(StateChange)
			if !ok {
				t.Fatalf("event data = %T, want StateChange", e.Data)
			}
			seen = append(seen, change.State)
			if change.State == StateReady && !codeRe.MatchString(change.Code) {
				t.Errorf("ready event code = %q, want 4 digits", change.Code)
			}
		case <-deadline:
			t.Fatalf("saw %v, want listening then ready", seen)
		}
	}

	if seen[0] != StateListening || seen[1] != StateReady {
		t.Errorf("transitions = %v, want [listening ready]", seen)
	}
}

// rawGet sends one GET over a fresh connection and returns the raw
// response.
func rawGet(t *testing.T, addr net.Addr, path string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET " + path + " HTTP/1.1\r\nHost: peer\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	raw, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(raw)
}

func body(raw string) string {
	_, b, _ := strings.Cut(raw, "\r\n\r\n")
	return b
}

// liveSession starts a session on a real loopback listener.
func liveSession(t *testing.T, db *store.DB) *Session {
	t.Helper()
	s := NewSession(testutil.Logger(), nil, db, 0)
	s.selfIP = func() (string, error) { return "192.168.1.77", nil }
	s.Start()
	t.Cleanup(s.Stop)
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return s.State() == StateReady
	}, "session never became ready")
	return s
}

func TestVerifyRouteExactMatch(t *testing.T) {
	s := liveSession(t, testutil.TestDB(t))
	code := s.Code()

	raw := rawGet(t, s.Addr(), "/verify/"+code)
	if !strings.HasPrefix(raw, "HTTP/1.1 200 OK") {
		t.Fatalf("matching code got %q", raw)
	}
	if got := body(raw); got != `{"ip":"192.168.1.77"}` {
		t.Errorf("verify body = %q", got)
	}

	wrong := "0000"
	if code == wrong {
		wrong = "0001"
	}
	raw = rawGet(t, s.Addr(), "/verify/"+wrong)
	if !strings.HasPrefix(raw, "HTTP/1.1 401 Unauthorized") {
		t.Errorf("mismatched code got %q", raw)
	}
	if got := body(raw); got != "Invalid pairing code" {
		t.Errorf("mismatch body = %q", got)
	}

	raw = rawGet(t, s.Addr(), "/verify/")
	if !strings.HasPrefix(raw, "HTTP/1.1 401 Unauthorized") {
		t.Errorf("empty code got %q", raw)
	}
}

func TestDataRoutesServeBundle(t *testing.T) {
	db := testutil.TestDB(t)
	batch, err := db.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	at := time.Date(2024, 6, 6, 12, 0, 0, 0, time.UTC)
	if err := batch.InsertRestaurant(models.RestaurantRecord{ID: "r-1", Title: "shared", OccurredAt: at}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := batch.InsertTravel(models.TravelRecord{ID: "t-1", OccurredAt: at}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	s := liveSession(t, db)

	for _, path := range []string{"/sync", "/data"} {
		raw := rawGet(t, s.Addr(), path)
		if !strings.HasPrefix(raw, "HTTP/1.1 200 OK") {
			t.Fatalf("GET %s got %q", path, raw)
		}
		bundle, err := codec.Decode([]byte(body(raw)))
		if err != nil {
			t.Fatalf("GET %s body does not decode: %v", path, err)
		}
		if len(bundle.Restaurants) != 1 || len(bundle.Travels) != 1 {
			t.Errorf("GET %s bundle = %d restaurants, %d travels, want 1 and 1",
				path, len(bundle.Restaurants), len(bundle.Travels))
		}
	}
}

func TestStoppedSessionRefusesConnections(t *testing.T) {
	s := liveSession(t, testutil.TestDB(t))
	addr := s.Addr()

	s.Stop()

	conn, err := net.Dial("tcp", addr.String())
	if err == nil {
		conn.Close()
		t.Error("dial succeeded against a stopped session")
	}
}

func TestGenerateCodeShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !codeRe.MatchString(code) {
			t.Fatalf("code = %q, want 4 digits", code)
		}
	}
}
