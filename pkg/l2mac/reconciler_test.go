package l2mac_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cybercoder/l2macd/pkg/l2mac"
	"github.com/cybercoder/l2macd/pkg/ovs"
)

func newReconciler(t *testing.T, db *fakeDB) (*l2mac.Reconciler, *l2mac.Metrics) {
	t.Helper()
	metrics := l2mac.NewMetrics(prometheus.NewRegistry())
	return l2mac.NewReconciler(db, time.Second, zaptest.NewLogger(t), metrics), metrics
}

func TestPortDownFlushesOnce(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setPort("1", system("up"))
	r.RunOnce(ctx)
	rec, ok := r.Ports().Lookup("1")
	require.True(t, ok)
	assert.True(t, rec.Up)
	assert.Empty(t, db.flushes(), "first observation never flushes")

	db.setLink("1", 0, "down")
	r.RunOnce(ctx)
	rec, _ = r.Ports().Lookup("1")
	assert.False(t, rec.Up)
	assert.Equal(t, []string{"l2macd-1-flush"}, db.flushes())

	txn := db.txns[0]
	require.Len(t, txn.sets, 1)
	assert.Equal(t, ovs.RowRef{Table: ovs.OvsPortTable, UUID: "port-1"}, txn.sets[0].ref)
	assert.Equal(t, ovs.PortColumnMacsInvalid, txn.sets[0].column)
	assert.Equal(t, true, txn.sets[0].value)
	require.Len(t, txn.verifies, 1, "exactly one verification per flush")
	assert.Equal(t, ovs.PortColumnMacsInvalid, txn.verifies[0].column)

	// Still down: re-notification must not flush again.
	db.touchPort("1")
	r.RunOnce(ctx)
	db.setLink("1", 0, "down")
	r.RunOnce(ctx)
	assert.Len(t, db.flushes(), 1)

	// Another up run followed by down flushes once more.
	db.setLink("1", 0, "up")
	r.RunOnce(ctx)
	db.setLink("1", 0, "up")
	r.RunOnce(ctx)
	db.setLink("1", 0, "down")
	r.RunOnce(ctx)
	assert.Len(t, db.flushes(), 2)
}

func TestPortFirstSeenDownDoesNotFlush(t *testing.T) {
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setPort("5", system("down"))
	r.RunOnce(context.Background())

	rec, ok := r.Ports().Lookup("5")
	require.True(t, ok)
	assert.False(t, rec.Up)
	assert.Empty(t, db.txns)
}

func TestPortAggregatesMembers(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setPort("lag1", system("up"), system("up"))
	r.RunOnce(ctx)

	db.setLink("lag1", 0, "down")
	r.RunOnce(ctx)
	assert.Empty(t, db.txns, "one member still up")

	db.setLink("lag1", 1, "down")
	r.RunOnce(ctx)
	assert.Equal(t, []string{"l2macd-lag1-flush"}, db.flushes())
}

func TestPortWithoutMembersIsNotCached(t *testing.T) {
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setPort("empty")
	r.RunOnce(context.Background())
	assert.Equal(t, 0, r.Ports().Len(), "no system interface, no record")
	assert.Empty(t, db.txns)
}

func TestLogicalPortNeverCached(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setPort("2", internal("up"))
	r.RunOnce(ctx)
	db.setLink("2", 0, "down")
	r.RunOnce(ctx)
	db.setLink("2", 0, "up")
	r.RunOnce(ctx)
	db.setLink("2", 0, "down")
	r.RunOnce(ctx)

	_, ok := r.Ports().Lookup("2")
	assert.False(t, ok)
	assert.Empty(t, db.txns)
}

func TestPortLosingSystemMembersIsDropped(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setPort("4", system("up"))
	r.RunOnce(ctx)
	require.Equal(t, 1, r.Ports().Len())

	db.setPort("4", internal("down"))
	r.RunOnce(ctx)
	assert.Equal(t, 0, r.Ports().Len())
	assert.Empty(t, db.txns)
}

func TestDeletedPortRemovedWithoutFlush(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setPort("3", system("up"))
	r.RunOnce(ctx)
	require.Equal(t, 1, r.Ports().Len())

	db.deletePort("3")
	r.RunOnce(ctx)
	_, ok := r.Ports().Lookup("3")
	assert.False(t, ok)
	assert.Empty(t, db.txns)
}

func TestVLANDownFlushes(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setVLAN(10, ovs.OperStateUp)
	r.RunOnce(ctx)
	rec, ok := r.VLANs().Lookup(10)
	require.True(t, ok)
	assert.True(t, rec.Up)
	assert.Empty(t, db.txns)

	db.setVLAN(10, ovs.OperStateDown)
	r.RunOnce(ctx)
	assert.Equal(t, []string{"l2macd-10-flush"}, db.flushes())
	txn := db.txns[0]
	assert.Equal(t, ovs.RowRef{Table: ovs.OvsVLANTable, UUID: "vlan-10"}, txn.sets[0].ref)
	assert.Equal(t, ovs.VLANColumnMacsInvalid, txn.sets[0].column)
	require.Len(t, txn.verifies, 1)

	// Unrelated column edits while down never flush.
	db.touchVLAN(10)
	r.RunOnce(ctx)
	db.touchVLAN(10)
	r.RunOnce(ctx)
	assert.Len(t, db.flushes(), 1)
}

func TestVLANFlushRequiresOperStateMarker(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setVLAN(20, ovs.OperStateUp)
	r.RunOnce(ctx)

	db.setVLANStateUntracked(20, ovs.OperStateDown)
	r.RunOnce(ctx)
	assert.Empty(t, db.txns)
	rec, _ := r.VLANs().Lookup(20)
	assert.False(t, rec.Up, "state is stored even without a flush")
}

func TestVLANUnknownStateCountsAsDown(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setVLAN(30, ovs.OperStateUp)
	r.RunOnce(ctx)
	db.setVLAN(30, ovs.OperStateUnknown)
	r.RunOnce(ctx)
	assert.Equal(t, []string{"l2macd-30-flush"}, db.flushes())
}

func TestDeletedVLANRemovedWithoutFlush(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, _ := newReconciler(t, db)

	db.setVLAN(10, ovs.OperStateUp)
	db.setVLAN(20, ovs.OperStateUp)
	r.RunOnce(ctx)
	db.deleteVLAN(10)
	r.RunOnce(ctx)

	_, ok := r.VLANs().Lookup(10)
	assert.False(t, ok)
	assert.Equal(t, 1, r.VLANs().Len())
	assert.Empty(t, db.txns)
}

func TestUnchangedSeqnoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, metrics := newReconciler(t, db)

	db.setPort("1", system("up"))
	db.setVLAN(10, ovs.OperStateUp)
	r.RunOnce(ctx)
	before := r.Snapshot()

	// Markers left behind must not be replayed when nothing new arrived.
	db.ports["1"].Interfaces[0].LinkState = "down"
	r.RunOnce(ctx)
	r.RunOnce(ctx)

	assert.Equal(t, before, r.Snapshot())
	assert.Empty(t, db.txns)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Passes.WithLabelValues("unchanged")))
}

func TestCacheMatchesLiveSet(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, metrics := newReconciler(t, db)

	db.setPort("1", system("up"))
	db.setPort("2", internal("up"))
	db.setPort("3", system("down"))
	db.setPort("4", system("up"), internal("down"))
	db.setVLAN(1, ovs.OperStateUp)
	db.setVLAN(2, ovs.OperStateDown)
	r.RunOnce(ctx)

	names := make([]string, 0)
	for _, p := range r.Snapshot().Ports {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"1", "3", "4"}, names)
	assert.Equal(t, 2, r.VLANs().Len())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.CachedPorts))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CachedVLANs))

	db.deletePort("1")
	db.deleteVLAN(2)
	r.RunOnce(ctx)
	assert.Equal(t, 2, r.Ports().Len())
	assert.Equal(t, 1, r.VLANs().Len())
}

func TestNoLockNoFlush(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, metrics := newReconciler(t, db)

	db.setPort("1", system("up"))
	db.setVLAN(10, ovs.OperStateUp)
	r.RunOnce(ctx)

	db.hasLock = false
	db.setLink("1", 0, "down")
	db.setVLAN(10, ovs.OperStateDown)
	r.RunOnce(ctx)
	r.RunOnce(ctx)

	assert.Empty(t, db.txns)
	rec, _ := r.Ports().Lookup("1")
	assert.True(t, rec.Up, "no cache mutation without the lock")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Passes.WithLabelValues("standby")))
	assert.Equal(t, 2, db.advances-1, "the mirror still advances")
}

func TestContendedLockSkipsPass(t *testing.T) {
	db := newFakeDB()
	db.contended = true
	r, metrics := newReconciler(t, db)

	db.setPort("1", system("up"))
	r.RunOnce(context.Background())
	r.RunOnce(context.Background())

	assert.Equal(t, 0, r.Ports().Len())
	assert.Equal(t, uint64(0), r.Seqno())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Passes.WithLabelValues("contended")))
}

func TestStandbyTakeoverCatchesUp(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	db.hasLock = false
	r, _ := newReconciler(t, db)

	db.setPort("1", system("up"))
	r.RunOnce(ctx)
	db.setVLAN(10, ovs.OperStateUp)
	r.RunOnce(ctx)

	db.hasLock = true
	r.RunOnce(ctx)
	assert.Equal(t, 1, r.Ports().Len(), "markers accumulated while standing by are consumed")
	assert.Equal(t, 1, r.VLANs().Len())
	assert.Equal(t, db.Seqno(), r.Seqno())
}

func TestGateHoldsUntilConfigured(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	db.curCfg = 0
	r, _ := newReconciler(t, db)

	db.setPort("1", system("up"))
	r.RunOnce(ctx)
	assert.Equal(t, l2mac.Unconfigured, r.State())
	assert.Equal(t, 0, r.Ports().Len())
	assert.Equal(t, 1, db.advances)

	db.curCfg = 1
	r.RunOnce(ctx)
	assert.Equal(t, l2mac.Active, r.State())
	assert.Equal(t, 1, r.Ports().Len())

	// The gate latches even if cur_cfg drops back.
	db.curCfg = 0
	db.setLink("1", 0, "down")
	r.RunOnce(ctx)
	assert.Equal(t, l2mac.Active, r.State())
	assert.Len(t, db.flushes(), 1)
}

func TestFailedFlushIsAbortedAndNotRetried(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	r, metrics := newReconciler(t, db)

	db.setPort("1", system("up"))
	r.RunOnce(ctx)

	db.commitStatus = ovs.TxnConflict
	db.setLink("1", 0, "down")
	r.RunOnce(ctx)
	require.Len(t, db.txns, 1)
	assert.True(t, db.txns[0].aborted)
	rec, _ := r.Ports().Lookup("1")
	assert.False(t, rec.Up, "state is stored even when the flush failed")

	db.commitStatus = ovs.TxnSuccess
	db.touchPort("1")
	r.RunOnce(ctx)
	assert.Len(t, db.txns, 1, "no retry until the next down transition")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Flushes.WithLabelValues("port", "conflict")))
}

func TestCloseReleasesCaches(t *testing.T) {
	db := newFakeDB()
	r, _ := newReconciler(t, db)
	db.setPort("1", system("up"))
	db.setVLAN(10, ovs.OperStateUp)
	r.RunOnce(context.Background())

	r.Close()
	assert.Equal(t, 0, r.Ports().Len())
	assert.Equal(t, 0, r.VLANs().Len())
}
