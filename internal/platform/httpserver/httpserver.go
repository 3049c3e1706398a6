// Package httpserver runs the public listener and its graceful shutdown.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Timeouts bound each phase of a request. Write covers PDF rendering and
// multipart uploads, so it is the longest.
type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
}

var DefaultTimeouts = Timeouts{
	ReadHeader: 5 * time.Second,
	Read:       60 * time.Second,
	Write:      90 * time.Second,
	Idle:       120 * time.Second,
}

type Option func(*http.Server)

// WithTimeouts overrides DefaultTimeouts. Zero fields keep the default.
func WithTimeouts(t Timeouts) Option {
	return func(s *http.Server) {
		if t.ReadHeader > 0 {
			s.ReadHeaderTimeout = t.ReadHeader
		}
		if t.Read > 0 {
			s.ReadTimeout = t.Read
		}
		if t.Write > 0 {
			s.WriteTimeout = t.Write
		}
		if t.Idle > 0 {
			s.IdleTimeout = t.Idle
		}
	}
}

func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultTimeouts.ReadHeader,
		ReadTimeout:       DefaultTimeouts.Read,
		WriteTimeout:      DefaultTimeouts.Write,
		IdleTimeout:       DefaultTimeouts.Idle,
		MaxHeaderBytes:    1 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve listens until ctx ends, then drains in-flight requests for at most
// grace. A listener failure is returned at once.
func Serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
