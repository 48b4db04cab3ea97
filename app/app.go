package app

import (
	"context"
	"fmt"

	"github.com/quickview/desktop/frontend"
	"github.com/quickview/desktop/session"
	"github.com/quickview/desktop/sidecar"
	"github.com/quickview/desktop/supervisor"
	"github.com/quickview/desktop/window"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const (
	splashWidth  = 480
	splashHeight = 320
)

// App is the desktop launcher. It serves the frontend, runs the sidecar, and drives the splash and main windows.
type App struct {
	logger *zap.SugaredLogger

	sidecarName  string
	frontendDir  string
	width        int
	height       int
	probeSession bool

	openWindow window.Opener
}

type Option func(a *App)

// WithSidecar sets the sidecar executable name or path.
func WithSidecar(name string) Option {
	return func(a *App) {
		a.sidecarName = name
	}
}

// WithFrontendDir serves the main window's page from dir.
func WithFrontendDir(dir string) Option {
	return func(a *App) {
		a.frontendDir = dir
	}
}

func WithWindowSize(width, height int) Option {
	return func(a *App) {
		a.width = width
		a.height = height
	}
}

// WithSessionProbe checks, in the background, that the announced session accepts WebSocket connections.
func WithSessionProbe(enabled bool) Option {
	return func(a *App) {
		a.probeSession = enabled
	}
}

func WithWindowOpener(o window.Opener) Option {
	return func(a *App) {
		a.openWindow = o
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		a.logger = l.Named("quickview").Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(a *App) {
		a.logger = a.logger.WithOptions(zap.IncreaseLevel(l))
	}
}

func New(opts ...Option) (*App, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	a := &App{
		logger:      logger.Named("quickview").Sugar(),
		sidecarName: sidecar.TrameCommand,
		width:       1280,
		height:      800,
		openWindow:  window.OpenLorca,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Run starts the sidecar and the windows, and returns once the main window closes or ctx is canceled.
// An error before the windows open means startup failed and the sidecar, if started, was killed.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, err := frontend.New(a.logger, a.frontendDir)
	if err != nil {
		return fmt.Errorf("starting frontend server: %w", err)
	}

	path, err := sidecar.Resolve(a.sidecarName)
	if err != nil {
		srv.Close()
		return fmt.Errorf("resolving sidecar: %w", err)
	}
	proc, err := sidecar.Start(ctx, a.logger.Named("sidecar"), sidecar.TrameRequest(path))
	if err != nil {
		srv.Close()
		return fmt.Errorf("spawning sidecar: %w", err)
	}
	a.logger.Infow("sidecar started", "Path", path, "PID", proc.PID())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(srv.Serve)

	splash, main, err := a.openWindows(srv)
	if err != nil {
		cancel()
		srv.Close()
		_ = group.Wait()
		return err
	}

	supOpts := []supervisor.Option{supervisor.WithLogger(a.logger)}
	if a.probeSession {
		supOpts = append(supOpts, supervisor.WithProber(session.NewProber(a.logger)))
	}
	sup := supervisor.New(splash, main, srv.URL(frontend.IndexPath), supOpts...)

	group.Go(func() error {
		sup.Run(groupCtx, proc.Events())
		return nil
	})

	group.Go(func() error {
		select {
		case <-main.Done():
			a.logger.Debug("main window closed, shutting down")
		case <-groupCtx.Done():
			a.logger.Debugf("context done, shutting down: %s", groupCtx.Err())
		}
		cancel()
		if err := splash.Close(); err != nil {
			a.logger.Debugf("error closing splash window: %s", err)
		}
		if err := main.Close(); err != nil {
			a.logger.Debugf("error closing main window: %s", err)
		}
		return srv.Close()
	})

	return group.Wait()
}

func (a *App) openWindows(srv *frontend.Server) (splash, main window.Handle, err error) {
	splash, err = a.openWindow(a.logger, srv.URL(frontend.SplashPath), window.Options{
		Title:  "splash",
		Width:  splashWidth,
		Height: splashHeight,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening splash window: %w", err)
	}
	main, err = a.openWindow(a.logger, srv.URL(frontend.IndexPath), window.Options{
		Title:  "main",
		Width:  a.width,
		Height: a.height,
		Hidden: true,
	})
	if err != nil {
		splash.Close()
		return nil, nil, fmt.Errorf("opening main window: %w", err)
	}
	return splash, main, nil
}
