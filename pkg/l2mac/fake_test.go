package l2mac_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cybercoder/l2macd/pkg/ovs"
)

type iface struct {
	typ  string
	link string
}

func system(link string) iface { return iface{typ: ovs.InterfaceTypeSystem, link: link} }

func internal(link string) iface { return iface{typ: "internal", link: link} }

// fakeDB mimics the change-tracking client: mutations are stamped with the
// next sequence number and become visible on Advance.
type fakeDB struct {
	seqno     uint64
	dirty     bool
	curCfg    int64
	hasLock   bool
	contended bool
	advances  int

	ports        map[string]*ovs.PortRow
	vlans        map[int64]*ovs.VLANRow
	trackedPorts map[string]*ovs.PortRow
	trackedVLANs map[int64]*ovs.VLANRow

	commitStatus ovs.TxnStatus
	txns         []*fakeTxn
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		curCfg:       1,
		hasLock:      true,
		ports:        make(map[string]*ovs.PortRow),
		vlans:        make(map[int64]*ovs.VLANRow),
		trackedPorts: make(map[string]*ovs.PortRow),
		trackedVLANs: make(map[int64]*ovs.VLANRow),
	}
}

func (db *fakeDB) next() uint64 {
	db.dirty = true
	return db.seqno + 1
}

func mark(m *ovs.RowMeta, kind ovs.ChangeKind, seqno uint64, columns ...string) {
	m.Changes[kind] = seqno
	if m.ColumnChanges == nil {
		m.ColumnChanges = make(map[string]uint64)
	}
	for _, c := range columns {
		m.ColumnChanges[c] = seqno
	}
}

// setPort inserts the port or replaces its members, marking the port row.
func (db *fakeDB) setPort(name string, members ...iface) {
	seq := db.next()
	row, ok := db.ports[name]
	if !ok {
		row = &ovs.PortRow{RowMeta: ovs.RowMeta{UUID: "port-" + name}, Name: name}
		db.ports[name] = row
		mark(&row.RowMeta, ovs.ChangeInsert, seq, ovs.PortColumnName, ovs.PortColumnInterfaces)
	} else {
		mark(&row.RowMeta, ovs.ChangeModify, seq, ovs.PortColumnInterfaces)
	}
	row.Interfaces = nil
	for i, m := range members {
		row.Interfaces = append(row.Interfaces, &ovs.InterfaceRow{
			RowMeta:   ovs.RowMeta{UUID: fmt.Sprintf("iface-%s-%d", name, i)},
			Name:      fmt.Sprintf("%s-%d", name, i),
			Type:      m.typ,
			LinkState: m.link,
		})
	}
	db.trackedPorts[name] = row
}

// setLink changes the link state of one member without touching the port row.
func (db *fakeDB) setLink(name string, member int, link string) {
	seq := db.next()
	i := db.ports[name].Interfaces[member]
	i.LinkState = link
	mark(&i.RowMeta, ovs.ChangeModify, seq, ovs.InterfaceColumnLinkState)
}

// touchPort marks the port modified without any state change.
func (db *fakeDB) touchPort(name string) {
	seq := db.next()
	row := db.ports[name]
	mark(&row.RowMeta, ovs.ChangeModify, seq, ovs.PortColumnVlanMode)
	db.trackedPorts[name] = row
}

func (db *fakeDB) deletePort(name string) {
	seq := db.next()
	row := db.ports[name]
	delete(db.ports, name)
	tomb := &ovs.PortRow{RowMeta: ovs.RowMeta{UUID: row.UUID, Changes: row.Changes}}
	mark(&tomb.RowMeta, ovs.ChangeDelete, seq)
	db.trackedPorts[name] = tomb
}

func (db *fakeDB) setVLAN(id int64, operState string) {
	seq := db.next()
	row, ok := db.vlans[id]
	if !ok {
		row = &ovs.VLANRow{RowMeta: ovs.RowMeta{UUID: fmt.Sprintf("vlan-%d", id)}, ID: id, OperState: operState}
		db.vlans[id] = row
		mark(&row.RowMeta, ovs.ChangeInsert, seq, ovs.VLANColumnID, ovs.VLANColumnOperState)
	} else {
		var cols []string
		if row.OperState != operState {
			cols = append(cols, ovs.VLANColumnOperState)
		}
		row.OperState = operState
		mark(&row.RowMeta, ovs.ChangeModify, seq, cols...)
	}
	db.trackedVLANs[id] = row
}

// setVLANStateUntracked changes oper_state without a column marker, as if
// the change had been coalesced away from the column view.
func (db *fakeDB) setVLANStateUntracked(id int64, operState string) {
	seq := db.next()
	row := db.vlans[id]
	row.OperState = operState
	mark(&row.RowMeta, ovs.ChangeModify, seq)
	db.trackedVLANs[id] = row
}

func (db *fakeDB) touchVLAN(id int64) {
	seq := db.next()
	row := db.vlans[id]
	invalid := true
	row.MacsInvalid = &invalid
	mark(&row.RowMeta, ovs.ChangeModify, seq, ovs.VLANColumnMacsInvalid)
	db.trackedVLANs[id] = row
}

func (db *fakeDB) deleteVLAN(id int64) {
	seq := db.next()
	row := db.vlans[id]
	delete(db.vlans, id)
	tomb := &ovs.VLANRow{RowMeta: ovs.RowMeta{UUID: row.UUID, Changes: row.Changes}}
	mark(&tomb.RowMeta, ovs.ChangeDelete, seq)
	db.trackedVLANs[id] = tomb
}

func (db *fakeDB) Seqno() uint64 { return db.seqno }

func (db *fakeDB) Advance() {
	db.advances++
	if db.dirty {
		db.seqno++
		db.dirty = false
	}
}

func (db *fakeDB) HasLock() bool       { return db.hasLock }
func (db *fakeDB) LockContended() bool { return db.contended }
func (db *fakeDB) CurCfg() int64       { return db.curCfg }

func (db *fakeDB) Ports() []*ovs.PortRow {
	out := make([]*ovs.PortRow, 0, len(db.ports))
	for _, r := range db.ports {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *ovs.PortRow) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (db *fakeDB) TrackedPorts() []*ovs.PortRow {
	out := make([]*ovs.PortRow, 0, len(db.trackedPorts))
	for _, r := range db.trackedPorts {
		out = append(out, r)
	}
	return out
}

func (db *fakeDB) VLANs() []*ovs.VLANRow {
	out := make([]*ovs.VLANRow, 0, len(db.vlans))
	for _, r := range db.vlans {
		out = append(out, r)
	}
	return out
}

func (db *fakeDB) TrackedVLANs() []*ovs.VLANRow {
	out := make([]*ovs.VLANRow, 0, len(db.trackedVLANs))
	for _, r := range db.trackedVLANs {
		out = append(out, r)
	}
	return out
}

func (db *fakeDB) ClearTracked() {
	for _, r := range db.trackedPorts {
		r.Changes = [3]uint64{}
		r.ColumnChanges = nil
	}
	for _, r := range db.ports {
		for _, i := range r.Interfaces {
			i.Changes = [3]uint64{}
			i.ColumnChanges = nil
		}
	}
	for _, r := range db.trackedVLANs {
		r.Changes = [3]uint64{}
		r.ColumnChanges = nil
	}
	clear(db.trackedPorts)
	clear(db.trackedVLANs)
}

func (db *fakeDB) NewTxn() ovs.Txn {
	t := &fakeTxn{status: db.commitStatus}
	db.txns = append(db.txns, t)
	return t
}

// flushes returns the annotations of every committed flush transaction.
func (db *fakeDB) flushes() []string {
	var out []string
	for _, t := range db.txns {
		if t.committed {
			out = append(out, t.comment)
		}
	}
	return out
}

type write struct {
	ref    ovs.RowRef
	column string
	value  any
}

type fakeTxn struct {
	status    ovs.TxnStatus
	sets      []write
	verifies  []write
	comment   string
	committed bool
	aborted   bool
}

func (t *fakeTxn) Set(ref ovs.RowRef, column string, value any) {
	t.sets = append(t.sets, write{ref: ref, column: column, value: value})
}

func (t *fakeTxn) Verify(ref ovs.RowRef, column string) {
	t.verifies = append(t.verifies, write{ref: ref, column: column})
}

func (t *fakeTxn) Annotate(comment string) { t.comment = comment }

func (t *fakeTxn) Commit(context.Context) (ovs.TxnStatus, error) {
	t.committed = true
	if t.status != ovs.TxnSuccess {
		return t.status, errors.New("commit rejected")
	}
	return ovs.TxnSuccess, nil
}

func (t *fakeTxn) Abort() { t.aborted = true }
