// Package httpserver builds the API listener with shared timeouts.
package httpserver

import (
	"net/http"
	"time"
)

// New wraps the handler in an http.Server. ReadHeaderTimeout guards
// against slow-header clients holding connections open.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
