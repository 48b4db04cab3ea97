// Package session checks that a sidecar accepts client WebSocket connections on its announced endpoint.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type Prober struct {
	Logger     *zap.SugaredLogger
	HTTPClient *http.Client
}

type ProberOption func(*proberConfig)

type proberConfig struct {
	retryMax  int
	retryWait time.Duration
	customize func(*retryablehttp.Client)
}

func WithRetryMax(n int) ProberOption {
	return func(c *proberConfig) {
		c.retryMax = n
	}
}

func WithRetryWait(d time.Duration) ProberOption {
	return func(c *proberConfig) {
		c.retryWait = d
	}
}

func WithCustomizeRetryableClient(f func(*retryablehttp.Client)) ProberOption {
	return func(c *proberConfig) {
		c.customize = f
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

func NewProber(log *zap.SugaredLogger, opts ...ProberOption) *Prober {
	cfg := &proberConfig{
		retryMax:  10,
		retryWait: 200 * time.Millisecond,
	}
	for _, o := range opts {
		o(cfg)
	}

	log = log.Named("session_probe")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.retryMax
	retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return cfg.retryWait
	}
	retryClient.Logger = &logAdapter{SugaredLogger: log}
	if cfg.customize != nil {
		cfg.customize(retryClient)
	}

	return &Prober{
		Logger:     log,
		HTTPClient: retryClient.StandardClient(),
	}
}

// Probe opens a WebSocket connection to url and closes it normally.
func (p *Prober) Probe(ctx context.Context, url string) error {
	p.Logger.Debugw("dialing session WebSocket", "URL", url)
	start := time.Now()
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: p.HTTPClient,
	})
	if err != nil {
		return fmt.Errorf("establishing WebSocket conn to session: %w", err)
	}
	p.Logger.Debugf("session WebSocket connected after %s", time.Since(start))

	err = conn.Close(websocket.StatusNormalClosure, "probe")
	if err != nil {
		p.Logger.Debugf("error closing conn: %s", err)
	}
	return nil
}
