package sse

import "time"

// Config holds configuration for change-feed streams
type Config struct {
	// KeepAliveInterval is how often a comment line is written so idle
	// proxies do not close the stream
	KeepAliveInterval time.Duration

	// RetryAfter is sent to clients as the reconnect delay
	RetryAfter time.Duration
}

// DefaultConfig returns the default SSE configuration.
// 10 seconds is safe for most proxies.
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
		RetryAfter:        3 * time.Second,
	}
}
