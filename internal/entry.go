// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/MikeYan01/List-memories/internal/codec"
	"github.com/MikeYan01/List-memories/internal/discovery"
	"github.com/MikeYan01/List-memories/internal/events"
	"github.com/MikeYan01/List-memories/internal/pairing"
	"github.com/MikeYan01/List-memories/internal/store"
	"github.com/MikeYan01/List-memories/internal/syncsvc"
)

// newApplication applies options and sets up the structured JSON logger.
// Logs go to stderr so that stdout stays clean for user-facing output.
func newApplication(opts []Option) (*application, *slog.Logger, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("store_path", app.config.Store.Path),
		slog.Int("sharing_port", app.config.Sharing.Port),
		slog.String("log_level", app.config.App.LogLevel.String()))

	return app, logger, nil
}

// openStore ensures the data directory exists and opens the record database.
func openStore(cfg *Config) (*store.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

// RunShare starts a pairing session and serves records to verified peers
// until the context is cancelled or an interrupt arrives.
func RunShare(ctx context.Context, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	sub := bus.Subscribe()

	session := pairing.NewSession(logger, bus, db, cfg.Sharing.Port)
	if cfg.Sharing.AdvertiseAddr != "" {
		session.Advertise(cfg.Sharing.AdvertiseAddr)
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the database file so external writers surface as change events.
	g.Go(func() error {
		return store.Watch(gCtx, cfg.Store.Path, logger, func() {
			bus.Publish(events.Event{Type: events.TypeStoreChanged})
		})
	})

	// Relay session state to the terminal.
	g.Go(func() error {
		for e := range sub {
			switch e.Type {
			case events.TypePairingState:
				change, ok := e.Data.(pairing.StateChange)
				if !ok {
					continue
				}
				switch change.State {
				case pairing.StateReady:
					fmt.Fprintf(app.out, "Pairing code: %s (listening on port %d)\n", change.Code, cfg.Sharing.Port)
					fmt.Fprintln(app.out, "Enter this code on your other device. Press Ctrl-C to stop sharing.")
				case pairing.StateFailed:
					return fmt.Errorf("sharing failed: %s", change.Error)
				}
			case events.TypeStoreChanged:
				logger.Info("records changed on disk")
			}
		}
		return nil
	})

	// Tear down in order: the session publishes its final state before the
	// bus closes the relay's channel.
	g.Go(func() error {
		<-gCtx.Done()
		session.Stop()
		bus.Close()
		return nil
	})

	session.Start()

	if err := g.Wait(); err != nil {
		logger.Error("share stopped with error", slog.String("error", err.Error()))
		return err
	}
	fmt.Fprintln(app.out, "Stopped sharing.")
	return nil
}

// RunSync discovers the device showing code on the local network and imports
// its records.
func RunSync(ctx context.Context, code string, replaceExisting bool, opts ...Option) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runTransfer(ctx, opts, func(ctx context.Context, svc *syncsvc.Service) (codec.ImportResult, error) {
		return svc.SyncWithCode(ctx, code, replaceExisting)
	})
}

// RunFetch imports records directly from a known device address, skipping
// discovery and code verification.
func RunFetch(ctx context.Context, addr string, replaceExisting bool, opts ...Option) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runTransfer(ctx, opts, func(ctx context.Context, svc *syncsvc.Service) (codec.ImportResult, error) {
		return svc.FetchFromAddress(ctx, addr, replaceExisting)
	})
}

// RunImport loads an exported bundle file into the record database.
func RunImport(ctx context.Context, path string, replaceExisting bool, opts ...Option) error {
	return runTransfer(ctx, opts, func(ctx context.Context, svc *syncsvc.Service) (codec.ImportResult, error) {
		return svc.ImportFile(ctx, path, replaceExisting)
	})
}

// RunExport writes all records to a bundle file at path.
func RunExport(ctx context.Context, path string, opts ...Option) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}

	db, err := openStore(app.config)
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := db.Counts(ctx)
	if err != nil {
		return err
	}

	svc := newSyncService(logger, nil, db, app.config)
	if err := svc.ExportFile(ctx, path); err != nil {
		return err
	}

	fmt.Fprintf(app.out, "Exported %d records to %s\n", counts.Total(), path)
	return nil
}

// runTransfer runs one import-producing operation with progress relayed to
// the terminal.
func runTransfer(ctx context.Context, opts []Option, run func(context.Context, *syncsvc.Service) (codec.ImportResult, error)) error {
	app, logger, err := newApplication(opts)
	if err != nil {
		return err
	}

	db, err := openStore(app.config)
	if err != nil {
		return err
	}
	defer db.Close()

	bus := events.NewBus()
	sub := bus.Subscribe()
	relayDone := make(chan struct{})
	go relayProgress(app.out, sub, relayDone)

	svc := newSyncService(logger, bus, db, app.config)

	res, err := run(ctx, svc)

	// Close the bus so the relay drains and exits before we report.
	bus.Close()
	<-relayDone

	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "Imported %d records: %d restaurants, %d beverages, %d travels, %d recreations\n",
		res.TotalImported, res.Restaurants, res.Beverages, res.Travels, res.Recreations)
	return nil
}

func newSyncService(logger *slog.Logger, bus *events.Bus, db *store.DB, cfg *Config) *syncsvc.Service {
	scanner := discovery.New(logger, discovery.Config{
		Port:         cfg.Discovery.Port,
		BatchSize:    cfg.Discovery.BatchSize,
		ProbeTimeout: cfg.Discovery.ProbeTimeout(),
	})
	return syncsvc.New(logger, bus, db, scanner, syncsvc.Config{
		Port:         cfg.Discovery.Port,
		FetchTimeout: cfg.Sync.FetchTimeout(),
	})
}

// relayProgress prints one line per sync stage until the channel closes.
func relayProgress(out io.Writer, sub chan events.Event, done chan struct{}) {
	defer close(done)
	for e := range sub {
		if e.Type != events.TypeSyncProgress {
			continue
		}
		progress, ok := e.Data.(syncsvc.ProgressEvent)
		if !ok {
			continue
		}
		switch progress.Stage {
		case syncsvc.ProgressConnecting:
			fmt.Fprintln(out, "Looking for your other device...")
		case syncsvc.ProgressDownloading:
			fmt.Fprintln(out, "Downloading records...")
		case syncsvc.ProgressImporting:
			fmt.Fprintln(out, "Saving records...")
		case syncsvc.ProgressFailed:
			fmt.Fprintln(out, progress.Reason)
		}
	}
}
