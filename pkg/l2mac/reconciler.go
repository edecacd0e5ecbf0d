package l2mac

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cybercoder/l2macd/pkg/ovs"
)

// cacheContext holds the state owned by one reconciler.
type cacheContext struct {
	ports *PortCache
	vlans *VLANCache
}

// Reconciler runs reconciliation passes. It is not safe for concurrent use;
// the caches belong to the goroutine calling RunOnce.
type Reconciler struct {
	db      Database
	gate    Gate
	caches  cacheContext
	seqno   uint64
	logger  *zap.Logger
	metrics *Metrics

	contendedLog *rate.Limiter
}

func NewReconciler(db Database, txnTimeout time.Duration, logger *zap.Logger, metrics *Metrics) *Reconciler {
	flusher := NewFlusher(db, txnTimeout, logger, metrics)
	return &Reconciler{
		db: db,
		caches: cacheContext{
			ports: NewPortCache(flusher, logger.Named("ports")),
			vlans: NewVLANCache(flusher, logger.Named("vlans")),
		},
		logger:       logger,
		metrics:      metrics,
		contendedLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// RunOnce performs one reconciliation pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	r.db.Advance()

	if r.db.LockContended() {
		if r.contendedLog.Allow() {
			r.logger.Error("another l2macd process is running, " +
				"disabling this process until it goes away")
		}
		r.metrics.Passes.WithLabelValues(passContended).Inc()
		return
	}
	if !r.db.HasLock() {
		r.metrics.Passes.WithLabelValues(passStandby).Inc()
		return
	}

	wasOpen := r.gate.State() == Active
	if !r.gate.Check(r.db.CurCfg()) {
		r.metrics.Passes.WithLabelValues(passUnconfigured).Inc()
		return
	}
	if !wasOpen {
		r.logger.Info("system is now configured", zap.Int64("cur_cfg", r.db.CurCfg()))
	}

	r.reconcile(ctx)
}

func (r *Reconciler) reconcile(ctx context.Context) {
	seqno := r.db.Seqno()
	if seqno == r.seqno {
		r.metrics.Passes.WithLabelValues(passUnchanged).Inc()
		return
	}
	since := r.seqno

	r.updatePorts(ctx, since)
	r.updateVLANs(ctx, since)

	r.seqno = seqno
	r.db.ClearTracked()

	r.metrics.Passes.WithLabelValues(passReconciled).Inc()
	r.metrics.CachedPorts.Set(float64(r.caches.ports.Len()))
	r.metrics.CachedVLANs.Set(float64(r.caches.vlans.Len()))
}

func (r *Reconciler) updatePorts(ctx context.Context, since uint64) {
	ports := r.caches.ports
	for _, row := range r.db.TrackedPorts() {
		if row.Deleted() {
			continue
		}
		if row.ChangedSince(ovs.ChangeInsert, since) || row.ChangedSince(ovs.ChangeModify, since) {
			ports.Observe(ctx, row)
		}
	}

	live := r.db.Ports()
	// Deleted rows carry no name, so removals are found by absence.
	ports.Prune(live)

	// Link state and type live in the Interface table; attribute those
	// changes to the owning port. A member inserted after its port counts too.
	for _, row := range live {
		if lo.ContainsBy(row.Interfaces, func(i *ovs.InterfaceRow) bool {
			return i != nil && (i.ChangedSince(ovs.ChangeInsert, since) || i.ChangedSince(ovs.ChangeModify, since))
		}) {
			ports.Observe(ctx, row)
		}
	}
}

func (r *Reconciler) updateVLANs(ctx context.Context, since uint64) {
	vlans := r.caches.vlans
	for _, row := range r.db.TrackedVLANs() {
		if row.Deleted() {
			continue
		}
		if row.ChangedSince(ovs.ChangeInsert, since) || row.ChangedSince(ovs.ChangeModify, since) {
			vlans.Observe(ctx, row, since)
		}
	}
	vlans.Prune(r.db.VLANs())
}

func (r *Reconciler) State() State {
	return r.gate.State()
}

// Seqno is the database sequence number consumed by the last pass.
func (r *Reconciler) Seqno() uint64 {
	return r.seqno
}

func (r *Reconciler) Ports() *PortCache {
	return r.caches.ports
}

func (r *Reconciler) VLANs() *VLANCache {
	return r.caches.vlans
}

// Close releases the caches.
func (r *Reconciler) Close() {
	r.caches.ports.reset()
	r.caches.vlans.reset()
	r.metrics.CachedPorts.Set(0)
	r.metrics.CachedVLANs.Set(0)
}
