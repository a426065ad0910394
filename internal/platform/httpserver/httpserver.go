// Package httpserver builds the aid API server. Every endpoint is a short
// request/response exchange against the pool, so client timeouts are tight
// rather than tuned for streaming or long polls.
package httpserver

import (
	"net/http"
	"time"
)

// ShutdownTimeout bounds graceful shutdown. Transitions are short-lived;
// anything still in flight after this is abandoned with the process.
const ShutdownTimeout = 10 * time.Second

// New builds the API server. Header and body timeouts cut slow clients
// before they can hold request handlers open against the stores.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
