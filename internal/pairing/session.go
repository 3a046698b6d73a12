// Package pairing implements the server side of LAN sync: a short-lived
// session that owns the share listener, generates the 4-digit pairing code,
// and answers the verify and data routes.
package pairing

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/MikeYan01/List-memories/internal/checksum"
	"github.com/MikeYan01/List-memories/internal/codec"
	"github.com/MikeYan01/List-memories/internal/events"
	"github.com/MikeYan01/List-memories/internal/lanip"
	"github.com/MikeYan01/List-memories/internal/responder"
	"github.com/MikeYan01/List-memories/internal/store"
)

// State is the session lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateReady     State = "ready"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// StateChange is the payload published on the event bus at every
// transition. Code is present once generated, Error only in the failed
// state.
type StateChange struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
	State State  `json:"state"`
}

// shareServer is the listener surface the session drives. *responder.Server
// satisfies it; tests substitute a fake to exercise transitions without a
// socket.
type shareServer interface {
	Start(port int) error
	Stop()
	Addr() net.Addr
}

// Session is one "share" activation. Start moves it from Idle through
// Listening to Ready; Stop is terminal, clearing the code and closing every
// open connection before it returns. A stopped session is not restarted;
// the next share activation creates a new one.
type Session struct {
	logger *slog.Logger
	bus    *events.Bus
	store  store.Store
	port   int

	newServer func(*slog.Logger, []responder.Route) shareServer
	selfIP    func() (string, error)

	mu        sync.Mutex
	state     State
	code      string
	err       error
	server    shareServer
	advertise string
}

// NewSession creates an idle session serving records from st on the given
// port. The bus may be nil when no UI is attached.
func NewSession(logger *slog.Logger, bus *events.Bus, st store.Store, port int) *Session {
	return &Session{
		logger: logger,
		bus:    bus,
		store:  st,
		port:   port,
		newServer: func(l *slog.Logger, routes []responder.Route) shareServer {
			return responder.New(l, routes)
		},
		selfIP: lanip.SelfIPv4,
		state:  StateIdle,
	}
}

// Advertise pins the address reported to a verified peer instead of
// autodetecting the LAN address. Useful on multi-homed hosts.
func (s *Session) Advertise(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertise = addr
}

// Start generates a pairing code and begins listening. It returns
// immediately; readiness is reported asynchronously through the state (and
// the bus) once the listener is actually bound. Calling Start on a session
// that is already Listening or Ready changes nothing: no second code, no
// rebind. A stopped session stays stopped.
func (s *Session) Start() {
	s.mu.Lock()
	switch s.state {
	case StateListening, StateReady, StateStopped:
		s.mu.Unlock()
		return
	}

	code, err := generateCode()
	if err != nil {
		s.err = err
		s.setStateLocked(StateFailed)
		s.mu.Unlock()
		return
	}
	s.code = code
	s.err = nil
	srv := s.newServer(s.logger, s.routes())
	s.server = srv
	s.setStateLocked(StateListening)
	s.mu.Unlock()

	go func() {
		err := srv.Start(s.port)

		s.mu.Lock()
		if s.state != StateListening || s.server != srv {
			// Stopped while binding; make sure nothing stays bound.
			s.mu.Unlock()
			if err == nil {
				srv.Stop()
			}
			return
		}
		if err != nil {
			s.err = err
			s.code = ""
			s.server = nil
			s.setStateLocked(StateFailed)
			s.mu.Unlock()
			return
		}
		s.setStateLocked(StateReady)
		s.mu.Unlock()
	}()
}

// Stop tears the session down: the code is cleared before the listener and
// every open connection are closed, and all of that completes before Stop
// returns. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	srv := s.server
	s.server = nil
	s.code = ""
	s.err = nil
	s.setStateLocked(StateStopped)
	s.mu.Unlock()

	if srv != nil {
		srv.Stop()
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Code returns the active pairing code, or "" when none is held.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Err returns the failure recorded in the failed state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Addr returns the bound listener address, or nil while not listening.
func (s *Session) Addr() net.Addr {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Addr()
}

// setStateLocked records the transition and publishes it. Callers hold mu.
func (s *Session) setStateLocked(next State) {
	s.state = next
	s.logger.Info("pairing: state",
		slog.String("state", string(next)))
	if s.bus != nil {
		change := StateChange{Code: s.code, State: next}
		if s.err != nil {
			change.Error = s.err.Error()
		}
		s.bus.Publish(events.Event{Type: events.TypePairingState, Data: change})
	}
}

// routes builds the session's route table. The verify route compares the
// trailing path segment against the current code with exact string
// equality; the data routes serve the full export bundle.
func (s *Session) routes() []responder.Route {
	return []responder.Route{
		{Prefix: "/verify/", Handler: s.handleVerify},
		{Prefix: "/sync", Handler: s.handleData},
		{Prefix: "/data", Handler: s.handleData},
	}
}

func (s *Session) handleVerify(path string) responder.Response {
	supplied := strings.TrimPrefix(path, "/verify/")

	s.mu.Lock()
	code := s.code
	advertise := s.advertise
	s.mu.Unlock()

	if code == "" || supplied != code {
		return responder.Text(401, "Invalid pairing code")
	}

	ip := advertise
	var err error
	if ip == "" {
		ip, err = s.selfIP()
	}
	if err != nil {
		s.logger.Error("pairing: resolve own address", slog.String("error", err.Error()))
		return responder.Text(500, err.Error())
	}
	body, _ := json.Marshal(struct {
		IP string `json:"ip"`
	}{IP: ip})
	return responder.JSON(200, body)
}

func (s *Session) handleData(string) responder.Response {
	bundle, err := codec.Build(context.Background(), s.store, time.Now())
	if err != nil {
		s.logger.Error("pairing: build export", slog.String("error", err.Error()))
		return responder.Text(500, err.Error())
	}
	body, err := codec.Encode(bundle)
	if err != nil {
		s.logger.Error("pairing: encode export", slog.String("error", err.Error()))
		return responder.Text(500, err.Error())
	}
	// The same digest shows up on the downloading side, which makes a
	// transfer traceable across both devices' logs.
	s.logger.Debug("pairing: served records",
		slog.Int("bytes", len(body)),
		slog.String("checksum", checksum.Sum(body)))
	return responder.JSON(200, body)
}

// generateCode draws a uniformly random 4-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("pairing: generate code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
