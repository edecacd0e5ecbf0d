// Package daemon runs the l2macd process: it connects to the database, owns
// the reconciler and the control socket, and drives the main loop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cybercoder/l2macd/pkg/config"
	"github.com/cybercoder/l2macd/pkg/ctl"
	"github.com/cybercoder/l2macd/pkg/l2mac"
	"github.com/cybercoder/l2macd/pkg/lock"
	l2maclog "github.com/cybercoder/l2macd/pkg/log"
	"github.com/cybercoder/l2macd/pkg/ovs"
)

const shutdownTimeout = 5 * time.Second

var (
	_ l2mac.Database = (*ovs.Client)(nil)
	_ ovs.Locker     = (*lock.FileLock)(nil)
	_ source         = (*ovs.Client)(nil)
	_ engine         = (*l2mac.Reconciler)(nil)
)

// source is the database connection as seen by the loop.
type source interface {
	Notify() <-chan struct{}
	Close()
}

type engine interface {
	RunOnce(ctx context.Context)
	Snapshot() l2mac.Snapshot
	Close()
}

type Daemon struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	client  source
	engine  engine
	ctl     *ctl.Server
	exiting bool

	shutdownOnce sync.Once
}

func New(cfg *config.Config, logger *zap.Logger) *Daemon {
	id := uuid.New()
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(zap.String("instance", id.String())),
		registry: prometheus.NewRegistry(),
	}
}

// Init connects to the database and binds the control socket. Errors are
// fatal for the process.
func (d *Daemon) Init(ctx context.Context) error {
	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := l2mac.NewMetrics(d.registry)

	ovsdbLogger := l2maclog.Logr(d.logger)
	client, err := ovs.CreateOVSclient(ctx, d.cfg.Database,
		ovs.WithDatabase(d.cfg.DatabaseName),
		ovs.WithLogger(d.logger.Named("ovs"), &ovsdbLogger),
		ovs.WithLocker(lock.NewFileLock(d.cfg.LockFile)),
		ovs.WithReconnect(d.cfg.ReconnectTimeout),
		ovs.WithChangeTracking(),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.cfg.Database, err)
	}

	server, err := ctl.Listen(d.cfg.ControlSocket, d.registry, d.logger)
	if err != nil {
		client.Close()
		return err
	}

	d.client = client
	d.engine = l2mac.NewReconciler(client, d.cfg.TxnTimeout, d.logger.Named("l2mac"), metrics)
	d.ctl = server
	d.logger.Info("l2macd initialized",
		zap.String("database", d.cfg.Database),
		zap.String("control_socket", d.cfg.ControlSocket))
	return nil
}

// RunOnce runs one reconciliation pass. The pass is not cancelled by ctx so
// an in-flight flush transaction always completes.
func (d *Daemon) RunOnce(ctx context.Context) {
	d.engine.RunOnce(context.WithoutCancel(ctx))
}

// Wait blocks until there is something to do: new data from the database, a
// control request, the poll interval elapsing, or ctx being done.
func (d *Daemon) Wait(ctx context.Context) error {
	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-d.client.Notify():
	case req := <-d.ctl.Requests():
		d.handle(req)
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (d *Daemon) handle(req *ctl.Request) {
	switch req.Command {
	case ctl.CommandDump:
		snap := d.engine.Snapshot()
		req.Respond(ctl.Reply{Snapshot: &snap})
	case ctl.CommandExit:
		d.logger.Info("exit requested over control socket")
		d.exiting = true
		req.Respond(ctl.Reply{})
	default:
		req.Respond(ctl.Reply{Err: fmt.Errorf("unknown command %q", req.Command)})
	}
}

// Exiting reports whether an exit was requested over the control socket.
func (d *Daemon) Exiting() bool {
	return d.exiting
}

// Run serves the control socket and loops until an exit request or ctx is
// done, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(d.ctl.Serve)
	g.Go(func() error {
		defer d.Shutdown()
		return d.loop(gctx)
	})
	return g.Wait()
}

func (d *Daemon) loop(ctx context.Context) error {
	for !d.exiting {
		d.RunOnce(ctx)
		if err := d.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.logger.Info("shutting down", zap.Error(context.Cause(ctx)))
				return nil
			}
			return err
		}
	}
	return nil
}

// Shutdown closes the control socket, drops the caches and disconnects from
// the database, releasing the processing lock.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if d.ctl != nil {
			if err := d.ctl.Close(ctx); err != nil {
				d.logger.Warn("failed to close control socket", zap.Error(err))
			}
		}
		if d.engine != nil {
			d.engine.Close()
		}
		if d.client != nil {
			d.client.Close()
		}
		d.logger.Info("l2macd stopped")
	})
}
