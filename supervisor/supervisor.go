// Package supervisor reacts to a sidecar's output: it points the main window at the sidecar's session
// once the port is announced, and swaps the splash screen for the main window once the client is ready.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/quickview/desktop/readiness"
	"github.com/quickview/desktop/sidecar"
	"github.com/quickview/desktop/window"
	"go.uber.org/zap"
)

// GraceDelay is how long the splash stays up after the client reports ready.
const GraceDelay = 2 * time.Second

const (
	sessionURLParam = "sessionURL"
	probeTimeout    = 30 * time.Second
)

type state int

const (
	waitingForPort state = iota
	waitingForReady
	steady
)

func (s state) String() string {
	switch s {
	case waitingForPort:
		return "waiting-for-port"
	case waitingForReady:
		return "waiting-for-ready"
	case steady:
		return "steady"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Prober checks a session endpoint after navigation.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

type Supervisor struct {
	log     *zap.SugaredLogger
	splash  window.Window
	main    window.Window
	pageURL string
	prober  Prober

	sleep func(time.Duration)

	navigated bool
	revealed  bool
}

type Option func(s *Supervisor)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Supervisor) {
		s.log = l.Named("supervisor")
	}
}

// WithProber runs p against the session URL in the background after the main window navigates to it.
func WithProber(p Prober) Option {
	return func(s *Supervisor) {
		s.prober = p
	}
}

// New builds a supervisor for the two windows. pageURL is the main window's page; the session URL is added to it
// as a query parameter when the sidecar announces its port.
func New(splash, main window.Window, pageURL string, opts ...Option) *Supervisor {
	s := &Supervisor{
		log:     zap.NewNop().Sugar(),
		splash:  splash,
		main:    main,
		pageURL: pageURL,
		sleep:   time.Sleep,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) state() state {
	switch {
	case s.revealed:
		return steady
	case s.navigated:
		return waitingForReady
	default:
		return waitingForPort
	}
}

// Run consumes events until the channel is closed. Nothing an event carries stops the loop.
// ctx only bounds background session probes.
func (s *Supervisor) Run(ctx context.Context, events <-chan sidecar.Event) {
	for ev := range events {
		s.handle(ctx, ev)
	}
	s.log.Debugw("event stream closed", "State", s.state())
}

func (s *Supervisor) handle(ctx context.Context, ev sidecar.Event) {
	switch ev.Kind {
	case sidecar.EventStdout:
		s.log.Infof("Stdout: %s", ev.Line)
		s.handleStdout(ctx, ev.Line)
	case sidecar.EventStderr:
		s.log.Infof("Stderr: %s", ev.Line)
	case sidecar.EventError:
		s.log.Errorf("sidecar error: %s", ev.Err)
	case sidecar.EventTerminated:
		s.log.Infof("sidecar exited with code %d", ev.ExitCode)
	default:
		s.log.Debugf("ignoring event of kind %s", ev.Kind)
	}
}

func (s *Supervisor) handleStdout(ctx context.Context, line string) {
	sig, err := readiness.Parse(line)
	if err != nil {
		s.log.Warnf("ignoring port announcement: %s", err)
	}
	if sig.Port != 0 {
		s.onPort(ctx, sig.Port)
	}
	if sig.Ready {
		s.onReady()
	}
}

func (s *Supervisor) onPort(ctx context.Context, port int) {
	if s.navigated {
		s.log.Warnw("ignoring repeated port announcement", "Port", port, "State", s.state())
		return
	}

	sessionURL := readiness.SessionURL(port)
	target, err := NavigationTarget(s.pageURL, sessionURL)
	if err != nil {
		s.log.Errorf("building navigation target: %s", err)
		return
	}
	s.navigated = true
	s.log.Infow("sidecar listening, navigating main window", "Port", port, "URL", target)
	if err := s.main.Navigate(target); err != nil {
		s.log.Errorf("navigating main window: %s", err)
	}

	if s.prober != nil {
		go s.probe(ctx, sessionURL)
	}
}

func (s *Supervisor) onReady() {
	if s.revealed {
		s.log.Debug("ignoring repeated ready signal")
		return
	}
	if !s.navigated {
		s.log.Warn("client ready before port announcement")
	}
	s.revealed = true

	s.sleep(GraceDelay)

	if err := s.splash.Close(); err != nil && !errors.Is(err, window.ErrClosed) {
		s.log.Errorf("closing splash window: %s", err)
	}
	if err := s.main.Show(); err != nil {
		s.log.Errorf("showing main window: %s", err)
	}
	s.log.Info("main window revealed")
}

func (s *Supervisor) probe(ctx context.Context, sessionURL string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := s.prober.Probe(ctx, sessionURL); err != nil {
		s.log.Warnf("session probe failed: %s", err)
		return
	}
	s.log.Infow("session accepts connections", "URL", sessionURL)
}

// NavigationTarget adds the session URL to pageURL's query string.
func NavigationTarget(pageURL, sessionURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing page URL %q: %w", pageURL, err)
	}
	q := u.Query()
	q.Set(sessionURLParam, sessionURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
