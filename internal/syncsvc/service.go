// Package syncsvc orchestrates a full sync: discovery, verified fetch,
// decode, and store import, with progress states for UI consumption.
package syncsvc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MikeYan01/List-memories/internal/apperr"
	"github.com/MikeYan01/List-memories/internal/checksum"
	"github.com/MikeYan01/List-memories/internal/codec"
	"github.com/MikeYan01/List-memories/internal/discovery"
	"github.com/MikeYan01/List-memories/internal/events"
	"github.com/MikeYan01/List-memories/internal/lanip"
	"github.com/MikeYan01/List-memories/internal/store"
)

// DefaultFetchTimeout caps one bundle download. Bundles carry photo blobs,
// so this is far longer than a discovery probe.
const DefaultFetchTimeout = 30 * time.Second

// Progress is the user-facing stage of an operation.
type Progress string

const (
	ProgressIdle        Progress = "idle"
	ProgressConnecting  Progress = "connecting"
	ProgressDownloading Progress = "downloading"
	ProgressImporting   Progress = "importing"
	ProgressComplete    Progress = "complete"
	ProgressFailed      Progress = "failed"
)

// ProgressEvent is published on the bus at each stage change. Reason is set
// only for the failed stage, Result only for complete.
type ProgressEvent struct {
	Reason string              `json:"reason,omitempty"`
	Result *codec.ImportResult `json:"result,omitempty"`
	Stage  Progress            `json:"stage"`
}

// Config carries the orchestrator knobs.
type Config struct {
	Port         int
	FetchTimeout time.Duration
}

// Service runs sync operations one at a time. A second operation started
// while one is in flight fails immediately with ErrSyncInProgress; the
// store is never mutated by two imports at once.
type Service struct {
	logger  *slog.Logger
	bus     *events.Bus
	store   store.Store
	scanner *discovery.Scanner
	client  *http.Client

	port         int
	fetchTimeout time.Duration

	inFlight atomic.Bool
	mu       sync.Mutex
	progress Progress
}

// New creates the orchestrator. The bus may be nil when no UI is attached.
func New(logger *slog.Logger, bus *events.Bus, st store.Store, scanner *discovery.Scanner, cfg Config) *Service {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Service{
		logger:  logger,
		bus:     bus,
		store:   st,
		scanner: scanner,
		client: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		port:         cfg.Port,
		fetchTimeout: cfg.FetchTimeout,
		progress:     ProgressIdle,
	}
}

// Progress returns the current stage.
func (s *Service) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// SyncWithCode discovers the peer sharing under code, fetches its bundle
// over the paired route, and imports it.
func (s *Service) SyncWithCode(ctx context.Context, code string, replaceExisting bool) (codec.ImportResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return codec.ImportResult{}, fmt.Errorf("syncsvc: %w", apperr.ErrSyncInProgress)
	}
	defer s.inFlight.Store(false)

	s.setProgress(ProgressConnecting, "", nil)
	s.logger.Info("sync: discovering peer", slog.String("code", code))

	addr, err := s.scanner.Scan(ctx, code)
	if err != nil {
		return s.fail(err)
	}
	return s.fetchAndImport(ctx, addr, "/sync", replaceExisting)
}

// FetchFromAddress skips discovery and pulls the bundle straight from a
// caller-supplied IPv4 address over the direct route. The address is
// validated before any network traffic.
func (s *Service) FetchFromAddress(ctx context.Context, addr string, replaceExisting bool) (codec.ImportResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return codec.ImportResult{}, fmt.Errorf("syncsvc: %w", apperr.ErrSyncInProgress)
	}
	defer s.inFlight.Store(false)

	if _, _, err := lanip.Split(addr); err != nil {
		return s.fail(fmt.Errorf("syncsvc: address %q: %w", addr, apperr.ErrInvalidAddress))
	}

	s.setProgress(ProgressConnecting, "", nil)
	s.logger.Info("sync: direct fetch", slog.String("addr", addr))

	return s.fetchAndImport(ctx, addr, "/data", replaceExisting)
}

// ImportFile imports a bundle document from disk.
func (s *Service) ImportFile(ctx context.Context, path string, replaceExisting bool) (codec.ImportResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return codec.ImportResult{}, fmt.Errorf("syncsvc: %w", apperr.ErrSyncInProgress)
	}
	defer s.inFlight.Store(false)

	s.setProgress(ProgressImporting, "", nil)
	s.logger.Info("sync: importing file", slog.String("path", path))

	bundle, err := codec.ReadFile(path)
	if err != nil {
		return s.fail(err)
	}
	return s.importBundle(ctx, bundle, replaceExisting)
}

// ExportFile writes the full record snapshot to a bundle file.
func (s *Service) ExportFile(ctx context.Context, path string) error {
	bundle, err := codec.Build(ctx, s.store, time.Now())
	if err != nil {
		return err
	}
	if err := codec.WriteFile(path, bundle); err != nil {
		return err
	}
	s.logger.Info("sync: exported file", slog.String("path", path))
	return nil
}

// fetchAndImport downloads the bundle from addr, spools it to a temporary
// file, and imports it. The temporary file is deleted no matter how the
// import ends.
func (s *Service) fetchAndImport(ctx context.Context, addr, path string, replaceExisting bool) (codec.ImportResult, error) {
	url := "http://" + net.JoinHostPort(addr, strconv.Itoa(s.port)) + path

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return s.fail(fmt.Errorf("syncsvc: fetch %s: %w: %w", url, apperr.ErrTransport, err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return s.fail(fmt.Errorf("syncsvc: fetch %s: %w: %w", url, apperr.ErrTransport, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.fail(fmt.Errorf("syncsvc: fetch %s: %w: status %d", url, apperr.ErrTransport, resp.StatusCode))
	}

	s.setProgress(ProgressDownloading, "", nil)

	tmpPath, size, sum, err := spool(resp.Body)
	if err != nil {
		return s.fail(fmt.Errorf("syncsvc: download %s: %w: %w", url, apperr.ErrTransport, err))
	}
	defer os.Remove(tmpPath)
	s.logger.Debug("sync: bundle downloaded",
		slog.Int64("bytes", size),
		slog.String("checksum", sum))

	s.setProgress(ProgressImporting, "", nil)

	bundle, err := codec.ReadFile(tmpPath)
	if err != nil {
		return s.fail(err)
	}
	return s.importBundle(ctx, bundle, replaceExisting)
}

func (s *Service) importBundle(ctx context.Context, bundle *codec.ExportBundle, replaceExisting bool) (codec.ImportResult, error) {
	res, err := codec.Import(ctx, s.store, bundle, replaceExisting)
	if err != nil {
		return s.fail(err)
	}

	s.setProgress(ProgressComplete, "", &res)
	s.logger.Info("sync: complete",
		slog.Int("total", res.TotalImported),
		slog.Int("restaurants", res.Restaurants),
		slog.Int("beverages", res.Beverages),
		slog.Int("travels", res.Travels),
		slog.Int("recreations", res.Recreations))
	return res, nil
}

// fail records the terminal failure stage with its human-readable reason
// and passes the error through.
func (s *Service) fail(err error) (codec.ImportResult, error) {
	reason := apperr.Reason(err)
	s.setProgress(ProgressFailed, reason, nil)
	s.logger.Error("sync: failed",
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	return codec.ImportResult{}, err
}

func (s *Service) setProgress(p Progress, reason string, result *codec.ImportResult) {
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type: events.TypeSyncProgress,
			Data: ProgressEvent{Reason: reason, Result: result, Stage: p},
		})
	}
}

// spool copies the response body to a scoped temporary file and returns its
// path along with the byte count and digest of what was written.
func spool(r io.Reader) (string, int64, string, error) {
	tmp, err := os.CreateTemp("", "memories-sync-*.json")
	if err != nil {
		return "", 0, "", err
	}
	tee, sum := checksum.Tee(r)
	n, err := io.Copy(tmp, tee)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", 0, "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, "", err
	}
	return tmp.Name(), n, sum(), nil
}
