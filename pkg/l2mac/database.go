// Package l2mac reconciles port and VLAN operational state against the MAC
// table. When a port or VLAN goes from up to down it asks the forwarding
// plane, through the database, to invalidate the MAC entries learned on it.
package l2mac

import "github.com/cybercoder/l2macd/pkg/ovs"

// Database is the change-tracking view of the configuration database that the
// reconciler consumes. *ovs.Client implements it.
type Database interface {
	// Seqno increases whenever Advance applied new data.
	Seqno() uint64
	// Advance pulls newly received data into the mirror without blocking.
	Advance()
	HasLock() bool
	LockContended() bool
	// CurCfg is the System bring-up counter.
	CurCfg() int64

	Ports() []*ovs.PortRow
	TrackedPorts() []*ovs.PortRow
	VLANs() []*ovs.VLANRow
	TrackedVLANs() []*ovs.VLANRow
	ClearTracked()

	NewTxn() ovs.Txn
}
