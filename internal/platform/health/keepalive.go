package health

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultKeepAliveInterval = 12 * time.Minute

// KeepAlive periodically requests the service's own public URL so that
// hosting platforms do not idle it out. Failures are logged and otherwise
// ignored.
type KeepAlive struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	onPing func(error)
}

func NewKeepAlive(url string, interval time.Duration, logger zerolog.Logger) *KeepAlive {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	return &KeepAlive{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With().Str("component", "keepalive").Logger(),
	}
}

// Enabled reports whether a target URL is configured.
func (k *KeepAlive) Enabled() bool { return k.url != "" }

// Start launches the ping loop. It does nothing when no URL is configured or
// the loop is already running.
func (k *KeepAlive) Start(ctx context.Context) {
	if !k.Enabled() {
		k.logger.Info().Msg("keep-alive disabled, no server url")
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}

	ctx, k.cancel = context.WithCancel(ctx)
	k.done = make(chan struct{})
	go k.loop(ctx, k.done)
	k.logger.Info().Str("url", k.url).Dur("interval", k.interval).Msg("keep-alive started")
}

// Stop ends the loop and waits for it to exit. It is safe to call more than
// once.
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel, k.done = nil, nil
	k.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (k *KeepAlive) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := k.ping(ctx)
			if k.onPing != nil {
				k.onPing(err)
			}
		}
	}
}

func (k *KeepAlive) ping(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			k.logger.Error().Interface("panic", r).Msg("keep-alive ping panicked")
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		k.logger.Error().Err(err).Msg("keep-alive ping failed")
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		k.logger.Warn().Err(err).Msg("keep-alive ping failed")
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	k.logger.Info().Int("status", resp.StatusCode).Msg("keep-alive ping")
	return nil
}
