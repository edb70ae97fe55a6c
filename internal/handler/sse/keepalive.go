package sse

import (
	"log/slog"
	"sync"
	"time"
)

// KeepAliveWriter abstracts the mechanism for writing keep-alive messages
type KeepAliveWriter interface {
	WriteKeepAlive() error
}

// TickerKeepAlive sends keep-alive pings at a fixed interval until stopped or a write fails.
type TickerKeepAlive struct {
	interval time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewTickerKeepAlive creates a ticker-based keep-alive
func NewTickerKeepAlive(interval time.Duration) *TickerKeepAlive {
	return &TickerKeepAlive{
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins sending pings. The returned channel closes when pinging stops,
// either through Stop or because a write failed (connection dropped).
func (k *TickerKeepAlive) Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{} {
	stopped := make(chan struct{})
	ticker := time.NewTicker(k.interval)

	go func() {
		defer close(stopped)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					logger.Warn("keep-alive write failed, stopping", "error", err)
					return
				}
			case <-k.done:
				return
			}
		}
	}()

	return stopped
}

// Stop terminates the keep-alive. Safe to call multiple times.
func (k *TickerKeepAlive) Stop() {
	k.once.Do(func() { close(k.done) })
}
