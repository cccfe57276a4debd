// Package app wires the ingestion loop and the HTTP gateway together and
// runs them until either ends or the process is interrupted.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/bryanchriswhite/ScreenRelay/internal/api"
	"github.com/bryanchriswhite/ScreenRelay/internal/config"
	"github.com/bryanchriswhite/ScreenRelay/internal/device"
	"github.com/bryanchriswhite/ScreenRelay/internal/ingest"
	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
	"github.com/bryanchriswhite/ScreenRelay/internal/queue"
	"github.com/bryanchriswhite/ScreenRelay/internal/state"
)

// ErrTaskExited is wrapped when a task returns nil before shutdown was
// requested. Both tasks are expected to run for the life of the process.
var ErrTaskExited = errors.New("task exited unexpectedly")

type task struct {
	name string
	run  func(ctx context.Context) error
}

// App owns the shared store and the two long-lived tasks.
type App struct {
	cfg        *config.Config
	store      *state.Store
	controller device.Controller
	tasks      []task
}

// Option configures an App.
type Option func(*App)

// WithController replaces the adb controller.
func WithController(c device.Controller) Option {
	return func(a *App) { a.controller = c }
}

// New builds the application from cfg.
func New(cfg *config.Config, opts ...Option) *App {
	a := &App{
		cfg:   cfg,
		store: state.New(),
		controller: device.NewADB(
			device.WithBinary(cfg.Device.ADBPath),
			device.WithSerial(cfg.Device.Serial),
		),
	}
	for _, opt := range opts {
		opt(a)
	}

	loop := ingest.New(cfg.Capture.Addr, a.store, ingest.WithMaxFrameSize(cfg.Capture.MaxFrameSize))
	queueClient := queue.NewClient(cfg.Queue.URL,
		queue.WithTimeout(cfg.Queue.Timeout),
		queue.WithCacheTTL(cfg.Queue.CacheTTL),
	)
	server := api.NewServer(a.store, a.controller, queueClient, api.Config{
		StreamFPS:    cfg.Server.StreamFPS,
		DeviceSerial: cfg.Device.Serial,
	})

	a.tasks = []task{
		{name: "ingest", run: loop.Run},
		{name: "http", run: func(ctx context.Context) error {
			return server.Run(ctx, cfg.Server.Addr)
		}},
	}
	return a
}

// Store returns the shared frame store.
func (a *App) Store() *state.Store {
	return a.store
}

// Run forwards the capture port when configured, then runs every task
// until one ends or ctx is cancelled. The first task to end cancels the
// others. Cancellation of ctx is a clean shutdown and yields nil.
func (a *App) Run(ctx context.Context) error {
	log := logger.WithComponent("app")

	if a.cfg.Device.Forward {
		if err := a.forward(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range a.tasks {
		g.Go(func() error {
			err := t.run(gctx)
			switch {
			case gctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)):
				log.Debug().Str("task", t.name).Msg("Task stopped")
				return nil
			case err == nil:
				return fmt.Errorf("%s: %w", t.name, ErrTaskExited)
			default:
				return fmt.Errorf("%s: %w", t.name, err)
			}
		})
	}

	err := g.Wait()
	if err != nil {
		log.Error().Err(err).Msg("Shutting down")
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}

func (a *App) forward(ctx context.Context) error {
	_, port, err := net.SplitHostPort(a.cfg.Capture.Addr)
	if err != nil {
		return fmt.Errorf("parse capture address %q: %w", a.cfg.Capture.Addr, err)
	}

	local := "tcp:" + port
	if err := a.controller.Forward(ctx, local, a.cfg.Device.ForwardRemote); err != nil {
		return fmt.Errorf("forward capture port: %w", err)
	}
	logger.WithComponent("app").Info().
		Str("local", local).
		Str("remote", a.cfg.Device.ForwardRemote).
		Msg("Forwarded capture port")
	return nil
}
