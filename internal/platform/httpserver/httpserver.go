// Package httpserver constructs the service's HTTP listener.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server for the attestor API. Header reads are bounded so a
// stalled client cannot pin a connection slot; per-request deadlines come
// from the router's timeout middleware, not from here.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
