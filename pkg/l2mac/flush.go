package l2mac

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cybercoder/l2macd/pkg/ovs"
)

// Flusher writes MAC invalidation requests. A failed request is aborted and
// logged, never retried.
type Flusher struct {
	db      Database
	timeout time.Duration
	logger  *zap.Logger
	metrics *Metrics
}

func NewFlusher(db Database, timeout time.Duration, logger *zap.Logger, metrics *Metrics) *Flusher {
	return &Flusher{db: db, timeout: timeout, logger: logger, metrics: metrics}
}

// FlushPort asks the forwarding plane to purge the MAC entries learned on port.
func (f *Flusher) FlushPort(ctx context.Context, row *ovs.PortRow) error {
	if row == nil {
		return nil
	}
	return f.flush(ctx, targetPort, row.Name, row.Ref(), ovs.PortColumnMacsInvalid)
}

// FlushVLAN asks the forwarding plane to purge the MAC entries learned on vlan.
func (f *Flusher) FlushVLAN(ctx context.Context, row *ovs.VLANRow) error {
	if row == nil {
		return nil
	}
	return f.flush(ctx, targetVLAN, strconv.FormatInt(row.ID, 10), row.Ref(), ovs.VLANColumnMacsInvalid)
}

func (f *Flusher) flush(ctx context.Context, target, name string, ref ovs.RowRef, column string) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	txn := f.db.NewTxn()
	txn.Set(ref, column, true)
	txn.Verify(ref, column)
	txn.Annotate(fmt.Sprintf("l2macd-%s-flush", name))

	status, err := txn.Commit(ctx)
	f.metrics.Flushes.WithLabelValues(target, status.String()).Inc()
	if status != ovs.TxnSuccess {
		txn.Abort()
		f.logger.Error("MAC flush request failed",
			zap.String("target", target), zap.String("name", name),
			zap.Stringer("status", status), zap.Error(err))
		return fmt.Errorf("flush %s %s: %s: %w", target, name, status, err)
	}
	f.logger.Debug("MAC flush requested", zap.String("target", target), zap.String("name", name))
	return nil
}
