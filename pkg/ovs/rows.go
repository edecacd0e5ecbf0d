package ovs

import "slices"

// ChangeKind identifies the class of change recorded against a row.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeModify
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	}
	return "unknown"
}

// RowRef identifies a row for transactions.
type RowRef struct {
	Table string
	UUID  string
}

// RowMeta carries the change markers of a mirrored row. A marker holds the
// mirror sequence number at which the change was applied; zero means the
// change has not been seen since the markers were last cleared.
type RowMeta struct {
	UUID          string
	Changes       [3]uint64
	ColumnChanges map[string]uint64
}

// ChangedSince reports whether a change of the given kind was applied after seqno.
func (m *RowMeta) ChangedSince(kind ChangeKind, seqno uint64) bool {
	return m.Changes[kind] > seqno
}

// ColumnChangedSince reports whether column was modified after seqno.
func (m *RowMeta) ColumnChangedSince(column string, seqno uint64) bool {
	return m.ColumnChanges[column] > seqno
}

// Deleted reports whether the row is a tombstone. Tombstones keep nothing but
// their UUID and markers.
func (m *RowMeta) Deleted() bool {
	return m.Changes[ChangeDelete] != 0
}

func (m *RowMeta) mark(kind ChangeKind, seqno uint64, columns ...string) {
	m.Changes[kind] = seqno
	if len(columns) == 0 {
		return
	}
	if m.ColumnChanges == nil {
		m.ColumnChanges = make(map[string]uint64, len(columns))
	}
	for _, c := range columns {
		m.ColumnChanges[c] = seqno
	}
}

func (m *RowMeta) clear() {
	m.Changes = [3]uint64{}
	m.ColumnChanges = nil
}

type InterfaceRow struct {
	RowMeta
	Name      string
	Type      string
	LinkState string
}

// IsSystem reports whether the interface is a physical one.
func (r *InterfaceRow) IsSystem() bool {
	return r.Type == InterfaceTypeSystem
}

func (r *InterfaceRow) IsUp() bool {
	return r.LinkState == LinkStateUp
}

type PortRow struct {
	RowMeta
	Name               string
	Interfaces         []*InterfaceRow
	VlanMode           string
	VlanTag            string
	VlanTrunks         []string
	MacsInvalid        *bool
	MacsInvalidOnVlans []string

	interfaceUUIDs []string
}

func (r *PortRow) Ref() RowRef {
	return RowRef{Table: OvsPortTable, UUID: r.UUID}
}

type VLANRow struct {
	RowMeta
	ID          int64
	OperState   string
	MacsInvalid *bool
}

func (r *VLANRow) Ref() RowRef {
	return RowRef{Table: OvsVLANTable, UUID: r.UUID}
}

func (r *VLANRow) IsUp() bool {
	return r.OperState == OperStateUp
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func interfaceRowFrom(m *Interface) *InterfaceRow {
	return &InterfaceRow{
		RowMeta:   RowMeta{UUID: m.UUID},
		Name:      m.Name,
		Type:      m.Type,
		LinkState: deref(m.LinkState),
	}
}

func portRowFrom(m *Port) *PortRow {
	return &PortRow{
		RowMeta:            RowMeta{UUID: m.UUID},
		Name:               m.Name,
		VlanMode:           deref(m.VlanMode),
		VlanTag:            deref(m.VlanTag),
		VlanTrunks:         slices.Clone(m.VlanTrunks),
		MacsInvalid:        cloneBool(m.MacsInvalid),
		MacsInvalidOnVlans: slices.Clone(m.MacsInvalidOnVlans),
		interfaceUUIDs:     slices.Clone(m.Interfaces),
	}
}

func vlanRowFrom(m *VLAN) *VLANRow {
	return &VLANRow{
		RowMeta:     RowMeta{UUID: m.UUID},
		ID:          int64(m.ID),
		OperState:   deref(m.OperState),
		MacsInvalid: cloneBool(m.MacsInvalid),
	}
}

// update copies the column values of n into r and returns the columns whose
// value changed.
func (r *InterfaceRow) update(n *InterfaceRow) []string {
	var changed []string
	if r.Name != n.Name {
		changed = append(changed, InterfaceColumnName)
	}
	if r.Type != n.Type {
		changed = append(changed, InterfaceColumnType)
	}
	if r.LinkState != n.LinkState {
		changed = append(changed, InterfaceColumnLinkState)
	}
	r.Name, r.Type, r.LinkState = n.Name, n.Type, n.LinkState
	return changed
}

func (r *PortRow) update(n *PortRow) []string {
	var changed []string
	if r.Name != n.Name {
		changed = append(changed, PortColumnName)
	}
	if !slices.Equal(r.interfaceUUIDs, n.interfaceUUIDs) {
		changed = append(changed, PortColumnInterfaces)
	}
	if r.VlanMode != n.VlanMode {
		changed = append(changed, PortColumnVlanMode)
	}
	if r.VlanTag != n.VlanTag {
		changed = append(changed, PortColumnVlanTag)
	}
	if !slices.Equal(r.VlanTrunks, n.VlanTrunks) {
		changed = append(changed, PortColumnVlanTrunks)
	}
	if !boolPtrEqual(r.MacsInvalid, n.MacsInvalid) {
		changed = append(changed, PortColumnMacsInvalid)
	}
	if !slices.Equal(r.MacsInvalidOnVlans, n.MacsInvalidOnVlans) {
		changed = append(changed, PortColumnMacsInvalidOnVlans)
	}
	r.Name = n.Name
	r.interfaceUUIDs = n.interfaceUUIDs
	r.VlanMode, r.VlanTag, r.VlanTrunks = n.VlanMode, n.VlanTag, n.VlanTrunks
	r.MacsInvalid, r.MacsInvalidOnVlans = n.MacsInvalid, n.MacsInvalidOnVlans
	return changed
}

func (r *VLANRow) update(n *VLANRow) []string {
	var changed []string
	if r.ID != n.ID {
		changed = append(changed, VLANColumnID)
	}
	if r.OperState != n.OperState {
		changed = append(changed, VLANColumnOperState)
	}
	if !boolPtrEqual(r.MacsInvalid, n.MacsInvalid) {
		changed = append(changed, VLANColumnMacsInvalid)
	}
	r.ID, r.OperState, r.MacsInvalid = n.ID, n.OperState, n.MacsInvalid
	return changed
}

var (
	interfaceColumns = []string{InterfaceColumnName, InterfaceColumnType, InterfaceColumnLinkState}
	portColumns      = []string{
		PortColumnName, PortColumnInterfaces, PortColumnVlanMode, PortColumnVlanTag,
		PortColumnVlanTrunks, PortColumnMacsInvalid, PortColumnMacsInvalidOnVlans,
	}
	vlanColumns = []string{VLANColumnID, VLANColumnOperState, VLANColumnMacsInvalid}
)
