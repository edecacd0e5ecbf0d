// Package ctl serves the daemon's control socket: an HTTP API on a unix
// socket through which operators dump the caches, stop the daemon and scrape
// metrics. Requests that touch daemon state are handed to the main loop.
package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cybercoder/l2macd/pkg/l2mac"
)

type Command string

const (
	CommandDump Command = "dump"
	CommandExit Command = "exit"
)

var ErrShuttingDown = errors.New("daemon is shutting down")

const requestTimeout = 10 * time.Second

// Reply is the main loop's answer to a Request.
type Reply struct {
	Snapshot *l2mac.Snapshot
	Err      error
}

type Request struct {
	Command Command
	reply   chan Reply
}

// Respond completes the request. It must be called exactly once.
func (r *Request) Respond(rep Reply) {
	r.reply <- rep
}

type Server struct {
	path     string
	listener net.Listener
	srv      *http.Server
	requests chan *Request
	done     chan struct{}
	logger   *zap.Logger

	closeOnce sync.Once
}

// Listen binds the control socket at path, replacing a stale socket left by
// a previous instance. Requests are served once Serve is running.
func Listen(path string, gatherer prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale control socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to bind control socket %s: %w", path, err)
	}

	s := &Server{
		path:     path,
		listener: listener,
		requests: make(chan *Request),
		done:     make(chan struct{}),
		logger:   logger.Named("ctl"),
	}
	s.srv = &http.Server{
		Handler:           s.router(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("listening on control socket", zap.String("path", path))
	return s, nil
}

// Serve blocks until Close is called or the listener fails.
func (s *Server) Serve() error {
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control socket stopped: %w", err)
	}
	return nil
}

func (s *Server) router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.requestLogger)

	r.Get("/dump", s.dump)
	r.Post("/exit", s.exit)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// Requests delivers control requests to the main loop.
func (s *Server) Requests() <-chan *Request {
	return s.requests
}

// Close stops accepting requests, fails the ones still waiting for the main
// loop and removes the socket.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	err := s.srv.Shutdown(ctx)
	// Shutdown only closes listeners that Serve has picked up.
	_ = s.listener.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

func (s *Server) submit(ctx context.Context, cmd Command) Reply {
	req := &Request{Command: cmd, reply: make(chan Reply, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return Reply{Err: ErrShuttingDown}
	case <-ctx.Done():
		return Reply{Err: ctx.Err()}
	}
	select {
	case rep := <-req.reply:
		return rep
	case <-ctx.Done():
		return Reply{Err: ctx.Err()}
	}
}

func (s *Server) dump(w http.ResponseWriter, r *http.Request) {
	rep := s.submit(r.Context(), CommandDump)
	if rep.Err != nil {
		http.Error(w, rep.Err.Error(), http.StatusServiceUnavailable)
		return
	}
	if rep.Snapshot == nil {
		http.Error(w, "no snapshot", http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rep.Snapshot); err != nil {
			s.logger.Warn("failed to write dump", zap.Error(err))
		}
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(rep.Snapshot.String()))
}

func (s *Server) exit(w http.ResponseWriter, r *http.Request) {
	rep := s.submit(r.Context(), CommandExit)
	if rep.Err != nil {
		http.Error(w, rep.Err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("exiting\n"))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("control request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
