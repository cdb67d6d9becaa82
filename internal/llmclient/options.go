package llmclient

import (
	"net/http"

	"github.com/cenkalti/backoff/v4"
)

// Option customises a provider client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	newTimer   func() backoff.Timer
}

// WithHTTPClient replaces the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithTimer supplies the timer used between retry attempts. Tests pass a
// timer that fires immediately and records the requested waits.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(o *clientOptions) { o.newTimer = newTimer }
}

func applyOptions(opts []Option) clientOptions {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
