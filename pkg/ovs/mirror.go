package ovs

import (
	"cmp"
	"slices"
	"sync"

	"github.com/ovn-kubernetes/libovsdb/cache"
	"github.com/ovn-kubernetes/libovsdb/model"
	"github.com/samber/lo"
)

type event struct {
	table string
	kind  ChangeKind
	uuid  string
	row   any
}

// mirror keeps the tracked tables as row snapshots. libovsdb delivers cache
// events on its own goroutine; they are queued and only applied by advance,
// so the rows seen by a reconciliation pass never change underneath it.
type mirror struct {
	mu      sync.Mutex
	pending []event
	notify  chan struct{}

	seqno      uint64
	curCfg     int64
	interfaces map[string]*InterfaceRow
	ports      map[string]*PortRow
	vlans      map[string]*VLANRow

	trackedInterfaces map[string]*InterfaceRow
	trackedPorts      map[string]*PortRow
	trackedVLANs      map[string]*VLANRow
}

func newMirror() *mirror {
	return &mirror{
		notify:            make(chan struct{}, 1),
		interfaces:        make(map[string]*InterfaceRow),
		ports:             make(map[string]*PortRow),
		vlans:             make(map[string]*VLANRow),
		trackedInterfaces: make(map[string]*InterfaceRow),
		trackedPorts:      make(map[string]*PortRow),
		trackedVLANs:      make(map[string]*VLANRow),
	}
}

func (m *mirror) handler() *cache.EventHandlerFuncs {
	return &cache.EventHandlerFuncs{
		AddFunc: func(table string, row model.Model) {
			m.enqueue(table, ChangeInsert, row)
		},
		UpdateFunc: func(table string, _ model.Model, row model.Model) {
			m.enqueue(table, ChangeModify, row)
		},
		DeleteFunc: func(table string, row model.Model) {
			m.enqueue(table, ChangeDelete, row)
		},
	}
}

// enqueue snapshots the model right away; libovsdb owns the model afterwards.
func (m *mirror) enqueue(table string, kind ChangeKind, row model.Model) {
	ev := event{table: table, kind: kind}
	switch r := row.(type) {
	case *System:
		ev.uuid, ev.row = r.UUID, int64(r.CurCfg)
	case *Interface:
		ev.uuid, ev.row = r.UUID, interfaceRowFrom(r)
	case *Port:
		ev.uuid, ev.row = r.UUID, portRowFrom(r)
	case *VLAN:
		ev.uuid, ev.row = r.UUID, vlanRowFrom(r)
	default:
		return
	}

	m.mu.Lock()
	m.pending = append(m.pending, ev)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// advance applies every queued event under one new sequence number. It
// returns false when nothing was queued.
func (m *mirror) advance() bool {
	m.mu.Lock()
	events := m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(events) == 0 {
		return false
	}
	m.seqno++
	for _, ev := range events {
		m.apply(ev)
	}
	m.linkInterfaces()
	return true
}

func (m *mirror) apply(ev event) {
	switch ev.table {
	case OvsSystemTable:
		if ev.kind == ChangeDelete {
			m.curCfg = 0
			return
		}
		m.curCfg = ev.row.(int64)
	case OvsInterfaceTable:
		applyEvent(m.interfaces, m.trackedInterfaces, m.seqno, ev, interfaceColumns)
	case OvsPortTable:
		applyEvent(m.ports, m.trackedPorts, m.seqno, ev, portColumns)
	case OvsVLANTable:
		applyEvent(m.vlans, m.trackedVLANs, m.seqno, ev, vlanColumns)
	}
}

type mirroredRow[T any] interface {
	*T
	meta() *RowMeta
	update(n *T) []string
}

func (r *InterfaceRow) meta() *RowMeta { return &r.RowMeta }
func (r *PortRow) meta() *RowMeta      { return &r.RowMeta }
func (r *VLANRow) meta() *RowMeta      { return &r.RowMeta }

func applyEvent[T any, P mirroredRow[T]](live, tracked map[string]P, seqno uint64, ev event, columns []string) {
	existing, ok := live[ev.uuid]
	switch ev.kind {
	case ChangeDelete:
		if !ok {
			return
		}
		delete(live, ev.uuid)
		// Deleted rows lose their content; only the UUID and markers survive.
		var tomb T
		P(&tomb).meta().UUID = ev.uuid
		P(&tomb).meta().Changes = existing.meta().Changes
		P(&tomb).meta().mark(ChangeDelete, seqno)
		tracked[ev.uuid] = &tomb
	default:
		n := ev.row.(P)
		if !ok {
			n.meta().mark(ChangeInsert, seqno, columns...)
			live[ev.uuid] = n
			tracked[ev.uuid] = n
			return
		}
		changed := existing.update((*T)(n))
		existing.meta().mark(ChangeModify, seqno, changed...)
		tracked[ev.uuid] = existing
	}
}

// linkInterfaces resolves port membership against the current interface rows.
// A port whose resolved members changed without a Port update of its own, for
// instance because a member row arrived in a later batch, is marked modified.
func (m *mirror) linkInterfaces() {
	for _, p := range m.ports {
		resolved := make([]*InterfaceRow, 0, len(p.interfaceUUIDs))
		for _, id := range p.interfaceUUIDs {
			if iface, ok := m.interfaces[id]; ok {
				resolved = append(resolved, iface)
			}
		}
		if !slices.Equal(p.Interfaces, resolved) && p.Changes[ChangeInsert] != m.seqno {
			p.mark(ChangeModify, m.seqno, PortColumnInterfaces)
			m.trackedPorts[p.UUID] = p
		}
		p.Interfaces = resolved
	}
}

func (m *mirror) clearTracked() {
	for _, r := range m.trackedInterfaces {
		r.clear()
	}
	for _, r := range m.trackedPorts {
		r.clear()
	}
	for _, r := range m.trackedVLANs {
		r.clear()
	}
	clear(m.trackedInterfaces)
	clear(m.trackedPorts)
	clear(m.trackedVLANs)
}

func (m *mirror) livePorts() []*PortRow {
	return sortedRows(m.ports, func(a, b *PortRow) int { return cmp.Compare(a.Name, b.Name) })
}

func (m *mirror) liveVLANs() []*VLANRow {
	return sortedRows(m.vlans, func(a, b *VLANRow) int { return cmp.Compare(a.ID, b.ID) })
}

func (m *mirror) changedPorts() []*PortRow {
	return sortedRows(m.trackedPorts, func(a, b *PortRow) int { return cmp.Compare(a.UUID, b.UUID) })
}

func (m *mirror) changedVLANs() []*VLANRow {
	return sortedRows(m.trackedVLANs, func(a, b *VLANRow) int { return cmp.Compare(a.UUID, b.UUID) })
}

func sortedRows[T any](rows map[string]*T, less func(a, b *T) int) []*T {
	out := lo.Values(rows)
	slices.SortFunc(out, less)
	return out
}
