package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quickview/desktop/sidecar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const pageURL = "http://127.0.0.1:5000/index.html"

type recorder struct {
	m     sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeWindow struct {
	name string
	rec  *recorder
	err  error
}

func (w *fakeWindow) Navigate(url string) error {
	w.rec.record(w.name + " navigate " + url)
	return w.err
}

func (w *fakeWindow) Show() error {
	w.rec.record(w.name + " show")
	return w.err
}

func (w *fakeWindow) Close() error {
	w.rec.record(w.name + " close")
	return w.err
}

type fakeProber struct {
	urls chan string
}

func (p *fakeProber) Probe(ctx context.Context, url string) error {
	p.urls <- url
	return nil
}

func newTestSupervisor(t *testing.T, opts ...Option) (*Supervisor, *recorder, *[]time.Duration) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithLogger(zap.NewExample().Sugar())}, opts...)
	s := New(&fakeWindow{name: "splash", rec: rec}, &fakeWindow{name: "main", rec: rec}, pageURL, opts...)
	var sleeps []time.Duration
	s.sleep = func(d time.Duration) {
		rec.record("sleep")
		sleeps = append(sleeps, d)
	}
	return s, rec, &sleeps
}

func run(s *Supervisor, events ...sidecar.Event) {
	ch := make(chan sidecar.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	s.Run(context.Background(), ch)
}

func stdout(line string) sidecar.Event {
	return sidecar.Event{Kind: sidecar.EventStdout, Line: line}
}

func stderr(line string) sidecar.Event {
	return sidecar.Event{Kind: sidecar.EventStderr, Line: line}
}

const expNavigate = "main navigate http://127.0.0.1:5000/index.html?sessionURL=ws%3A%2F%2Flocalhost%3A4321%2Fws"

func TestRun(t *testing.T) {
	cases := []struct {
		name     string
		events   []sidecar.Event
		expCalls []string
	}{
		{
			name: "unrelated output causes no transitions",
			events: []sidecar.Event{
				stdout("Serving on http://localhost:4321"),
				stdout(""),
				stderr("tauri-server-port=4321"),
				stderr("tauri-client-ready"),
				{Kind: sidecar.EventError, Err: errors.New("boom")},
				{Kind: sidecar.EventTerminated, ExitCode: 1},
			},
		},
		{
			name:     "port announcement navigates once",
			events:   []sidecar.Event{stdout("tauri-server-port=4321")},
			expCalls: []string{expNavigate},
		},
		{
			name: "repeated port announcement is ignored",
			events: []sidecar.Event{
				stdout("tauri-server-port=4321"),
				stdout("tauri-server-port=9999"),
			},
			expCalls: []string{expNavigate},
		},
		{
			name: "malformed port is ignored and a later one is used",
			events: []sidecar.Event{
				stdout("tauri-server-port 1234"),
				stdout("tauri-server-port=abc"),
				stdout("tauri-server-port=4321"),
			},
			expCalls: []string{expNavigate},
		},
		{
			name: "ready reveals once after the delay",
			events: []sidecar.Event{
				stdout("tauri-client-ready"),
				stdout("tauri-client-ready"),
			},
			expCalls: []string{"sleep", "splash close", "main show"},
		},
		{
			name: "navigation precedes reveal",
			events: []sidecar.Event{
				stdout("starting"),
				stdout("tauri-server-port=4321"),
				stderr("some warning"),
				stdout("tauri-client-ready"),
			},
			expCalls: []string{expNavigate, "sleep", "splash close", "main show"},
		},
		{
			name: "structured protocol",
			events: []sidecar.Event{
				stdout(`{"event":"port","port":4321}`),
				stdout(`{"event":"ready"}`),
			},
			expCalls: []string{expNavigate, "sleep", "splash close", "main show"},
		},
		{
			name:     "port and ready on one line",
			events:   []sidecar.Event{stdout("tauri-server-port=4321 tauri-client-ready")},
			expCalls: []string{expNavigate, "sleep", "splash close", "main show"},
		},
		{
			name:     "ready marker inside a json log line",
			events:   []sidecar.Event{stdout(`{"level":"info","msg":"tauri-client-ready"}`)},
			expCalls: []string{"sleep", "splash close", "main show"},
		},
		{
			name:     "ready on a line with a malformed port",
			events:   []sidecar.Event{stdout("tauri-server-port tauri-client-ready")},
			expCalls: []string{"sleep", "splash close", "main show"},
		},
		{
			name: "termination does not stop the loop",
			events: []sidecar.Event{
				{Kind: sidecar.EventError, Err: errors.New("read error")},
				{Kind: sidecar.EventTerminated, ExitCode: -1},
				stdout("tauri-server-port=4321"),
				stdout("tauri-client-ready"),
			},
			expCalls: []string{expNavigate, "sleep", "splash close", "main show"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, rec, _ := newTestSupervisor(t)
			run(s, c.events...)
			assert.Equal(t, c.expCalls, rec.Calls())
		})
	}
}

func TestGraceDelay(t *testing.T) {
	s, _, sleeps := newTestSupervisor(t)
	run(s, stdout("tauri-client-ready"))
	assert.Equal(t, []time.Duration{2 * time.Second}, *sleeps)
	assert.Equal(t, steady, s.state())
}

func TestStateTransitions(t *testing.T) {
	s, _, _ := newTestSupervisor(t)
	assert.Equal(t, waitingForPort, s.state())

	s.handle(context.Background(), stdout("tauri-server-port=4321"))
	assert.Equal(t, waitingForReady, s.state())

	s.handle(context.Background(), stdout("tauri-client-ready"))
	assert.Equal(t, steady, s.state())

	s.handle(context.Background(), stdout("tauri-server-port=1"))
	assert.Equal(t, steady, s.state())
}

func TestNavigationTargetFailureKeepsWaiting(t *testing.T) {
	s, rec, _ := newTestSupervisor(t)
	s.pageURL = "http://[::1"

	s.handle(context.Background(), stdout("tauri-server-port=4321"))
	assert.Equal(t, waitingForPort, s.state())
	assert.Empty(t, rec.Calls())

	s.pageURL = pageURL
	s.handle(context.Background(), stdout("tauri-server-port=4321"))
	assert.Equal(t, waitingForReady, s.state())
	assert.Equal(t, []string{expNavigate}, rec.Calls())
}

func TestWindowErrorsAreNotFatal(t *testing.T) {
	rec := &recorder{}
	failing := errors.New("window gone")
	s := New(
		&fakeWindow{name: "splash", rec: rec, err: failing},
		&fakeWindow{name: "main", rec: rec, err: failing},
		pageURL,
		WithLogger(zap.NewExample().Sugar()),
	)
	s.sleep = func(time.Duration) {}

	run(s,
		stdout("tauri-server-port=4321"),
		stdout("tauri-client-ready"),
		stdout("after"),
	)
	assert.Equal(t, []string{expNavigate, "splash close", "main show"}, rec.Calls())
}

func TestProber(t *testing.T) {
	p := &fakeProber{urls: make(chan string, 1)}
	s, _, _ := newTestSupervisor(t, WithProber(p))
	run(s, stdout("tauri-server-port=4321"))

	select {
	case u := <-p.urls:
		assert.Equal(t, "ws://localhost:4321/ws", u)
	case <-time.After(5 * time.Second):
		t.Fatal("prober was never called")
	}
}

func TestNavigationTarget(t *testing.T) {
	cases := []struct {
		name    string
		pageURL string
		exp     string
	}{
		{
			name:    "no query",
			pageURL: "http://127.0.0.1:5000/",
			exp:     "http://127.0.0.1:5000/?sessionURL=ws%3A%2F%2Flocalhost%3A4321%2Fws",
		},
		{
			name:    "existing query is kept",
			pageURL: "http://127.0.0.1:5000/index.html?theme=dark",
			exp:     "http://127.0.0.1:5000/index.html?sessionURL=ws%3A%2F%2Flocalhost%3A4321%2Fws&theme=dark",
		},
		{
			name:    "existing session is replaced",
			pageURL: "http://127.0.0.1:5000/?sessionURL=ws%3A%2F%2Flocalhost%3A1%2Fws",
			exp:     "http://127.0.0.1:5000/?sessionURL=ws%3A%2F%2Flocalhost%3A4321%2Fws",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			target, err := NavigationTarget(c.pageURL, "ws://localhost:4321/ws")
			require.NoError(t, err)
			assert.Equal(t, c.exp, target)
		})
	}

	_, err := NavigationTarget("http://[::1", "ws://localhost:4321/ws")
	require.Error(t, err)
}
