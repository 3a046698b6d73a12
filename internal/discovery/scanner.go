// Package discovery implements the client side of pairing: a concurrent
// subnet scanner that finds the device sharing under a given 4-digit code.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeYan01/List-memories/internal/apperr"
	"github.com/MikeYan01/List-memories/internal/lanip"
)

const (
	// DefaultBatchSize bounds concurrent outbound probes.
	DefaultBatchSize = 20
	// DefaultProbeTimeout is the per-candidate deadline. LAN round trips
	// are a few milliseconds; anything slower is not the peer.
	DefaultProbeTimeout = 500 * time.Millisecond
	// maxVerifyBody bounds the verify reply read.
	maxVerifyBody = 4096
)

// priorityOctets are probed before the ascending sweep: router and
// DHCP-pool openers where phones and laptops usually sit.
var priorityOctets = []int{1, 2, 100, 101, 102, 254}

// errFound aborts a batch as soon as one probe matches.
var errFound = errors.New("discovery: match found")

// Config carries the scanner knobs. Zero values fall back to the package
// defaults and to deriving candidates from the device's own /24.
type Config struct {
	Port         int
	BatchSize    int
	ProbeTimeout time.Duration
	// Candidates overrides subnet enumeration, for tests and for callers
	// that already know the neighbourhood to sweep.
	Candidates func() ([]string, error)
}

// Scanner probes candidate addresses for a pairing peer.
type Scanner struct {
	logger       *slog.Logger
	client       *http.Client
	port         int
	batchSize    int
	probeTimeout time.Duration
	candidates   func() ([]string, error)
}

// New creates a scanner.
func New(logger *slog.Logger, cfg Config) *Scanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Candidates == nil {
		cfg.Candidates = subnetCandidates
	}
	return &Scanner{
		logger: logger,
		client: &http.Client{
			// Peers close after one response; pooled connections would
			// only go stale.
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		port:         cfg.Port,
		batchSize:    cfg.BatchSize,
		probeTimeout: cfg.ProbeTimeout,
		candidates:   cfg.Candidates,
	}
}

// Scan sweeps the candidate space for a peer whose pairing code equals
// code and returns the LAN address that peer reports for itself. Probe
// failures of any kind count as non-matches; only full exhaustion is an
// error, wrapping ErrServerNotFound.
func (s *Scanner) Scan(ctx context.Context, code string) (string, error) {
	addrs, err := s.candidates()
	if err != nil {
		return "", err
	}

	s.logger.Info("discovery: scanning",
		slog.Int("candidates", len(addrs)),
		slog.Int("batch_size", s.batchSize))

	for start := 0; start < len(addrs); start += s.batchSize {
		batch := addrs[start:min(start+s.batchSize, len(addrs))]
		s.logger.Debug("discovery: batch",
			slog.String("first", batch[0]),
			slog.Int("size", len(batch)))

		addr, found, err := s.scanBatch(ctx, code, batch)
		if err != nil {
			return "", err
		}
		if found {
			s.logger.Info("discovery: matched", slog.String("addr", addr))
			return addr, nil
		}
	}

	s.logger.Info("discovery: exhausted without match")
	return "", fmt.Errorf("discovery: scan: %w", apperr.ErrServerNotFound)
}

// scanBatch probes one batch concurrently and stops the moment any probe
// matches; remaining probes in the batch are cancelled, later batches are
// never issued.
func (s *Scanner) scanBatch(ctx context.Context, code string, batch []string) (string, bool, error) {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var matched string

	for _, addr := range batch {
		addr := addr
		g.Go(func() error {
			ip, probeErr := s.probe(gctx, code, addr)
			if probeErr != nil {
				// Absorbed: an unreachable or mismatching candidate is
				// simply not the peer.
				s.logger.Debug("discovery: probe",
					slog.String("addr", addr),
					slog.String("outcome", probeErr.Error()))
				return nil
			}
			mu.Lock()
			if matched == "" {
				matched = ip
			}
			mu.Unlock()
			return errFound
		})
	}

	err := g.Wait()
	if errors.Is(err, errFound) {
		return matched, true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", false, ctxErr
	}
	return "", false, nil
}

// probe issues one verify request and classifies the outcome: the peer's
// reported address on a match, ErrUnreachable when no usable response
// arrived in time, ErrCodeMismatch when a responder answered without
// confirming the code (including a 200 whose body does not decode to an
// ip field).
func (s *Scanner) probe(ctx context.Context, code, addr string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	url := "http://" + net.JoinHostPort(addr, strconv.Itoa(s.port)) + "/verify/" + code
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperr.ErrUnreachable
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", apperr.ErrUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.ErrCodeMismatch
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyBody))
	if err != nil {
		return "", apperr.ErrUnreachable
	}

	var reply struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(body, &reply); err != nil || reply.IP == "" {
		return "", apperr.ErrCodeMismatch
	}
	return reply.IP, nil
}

// subnetCandidates derives the device's /24 and orders its 254 host
// addresses for probing.
func subnetCandidates() ([]string, error) {
	self, err := lanip.SelfIPv4()
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve own address: %w", err)
	}
	prefix, selfOctet, err := lanip.Split(self)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve own address: %w", err)
	}
	return orderCandidates(prefix, selfOctet), nil
}

// orderCandidates lists every host in the /24 once: the device's own octet
// and the priority octets first, then the rest ascending.
func orderCandidates(prefix string, selfOctet int) []string {
	seen := make(map[int]bool, 254)
	order := make([]int, 0, 254)
	add := func(o int) {
		if o >= 1 && o <= 254 && !seen[o] {
			seen[o] = true
			order = append(order, o)
		}
	}

	add(selfOctet)
	for _, o := range priorityOctets {
		add(o)
	}
	for o := 1; o <= 254; o++ {
		add(o)
	}

	out := make([]string, len(order))
	for i, o := range order {
		out[i] = prefix + strconv.Itoa(o)
	}
	return out
}
