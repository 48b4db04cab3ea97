// Package window provides the webview windows the launcher drives.
package window

import (
	"errors"
	"fmt"

	"github.com/zserge/lorca"
	"go.uber.org/zap"
)

// Window is the set of operations the supervisor performs on a GUI window.
// Implementations must be safe to call from any goroutine.
type Window interface {
	Navigate(url string) error
	Show() error
	Close() error
}

// Handle is a Window whose lifetime can be observed.
type Handle interface {
	Window
	Done() <-chan struct{}
}

type Options struct {
	Title  string
	Width  int
	Height int
	// Hidden opens the window minimized until Show is called.
	Hidden bool
}

// Opener creates a window showing url.
type Opener func(log *zap.SugaredLogger, url string, opts Options) (Handle, error)

var ErrClosed = errors.New("window closed")

// Lorca is a window backed by a Chrome instance in app mode.
type Lorca struct {
	log  *zap.SugaredLogger
	ui   lorca.UI
	opts Options
}

var _ Handle = (*Lorca)(nil)

// OpenLorca launches a Chrome app window. It fails if no Chrome or Chromium installation is found.
func OpenLorca(log *zap.SugaredLogger, url string, opts Options) (Handle, error) {
	ui, err := lorca.New(url, "", opts.Width, opts.Height, "--disable-features=Translate")
	if err != nil {
		return nil, fmt.Errorf("launching window %q: %w", opts.Title, err)
	}
	w := &Lorca{log: log.Named(opts.Title), ui: ui, opts: opts}
	if opts.Hidden {
		err = ui.SetBounds(lorca.Bounds{WindowState: lorca.WindowStateMinimized})
		if err != nil {
			w.log.Debugf("unable to minimize window: %s", err)
		}
	}
	return w, nil
}

func (w *Lorca) Navigate(url string) error {
	if w.closed() {
		return ErrClosed
	}
	w.log.Debugw("navigating", "URL", url)
	return w.ui.Load(url)
}

func (w *Lorca) Show() error {
	if w.closed() {
		return ErrClosed
	}
	w.log.Debug("showing")
	return w.ui.SetBounds(lorca.Bounds{WindowState: lorca.WindowStateNormal})
}

func (w *Lorca) Close() error {
	if w.closed() {
		return nil
	}
	w.log.Debug("closing")
	return w.ui.Close()
}

func (w *Lorca) Done() <-chan struct{} { return w.ui.Done() }

func (w *Lorca) closed() bool {
	select {
	case <-w.ui.Done():
		return true
	default:
		return false
	}
}
