package sse

import "time"

// Config holds configuration for SSE connections
type Config struct {
	// KeepAliveInterval is how often to send keep-alive comments so proxies keep the connection open
	KeepAliveInterval time.Duration
	// PollInterval is how often a live turn is checked for new events
	PollInterval time.Duration
}

// DefaultConfig returns the default SSE configuration
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
		PollInterval:      250 * time.Millisecond,
	}
}
