package ovs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ovn-kubernetes/libovsdb/client"
	"github.com/ovn-kubernetes/libovsdb/ovsdb"
)

type TxnStatus int

const (
	TxnSuccess TxnStatus = iota
	// TxnConflict means a verified column changed before the commit.
	TxnConflict
	TxnError
)

func (s TxnStatus) String() string {
	switch s {
	case TxnSuccess:
		return "success"
	case TxnConflict:
		return "conflict"
	case TxnError:
		return "error"
	}
	return "unknown"
}

// Txn is an atomic write against the database: it either fully commits or
// fully aborts.
type Txn interface {
	// Set writes value into column of the row.
	Set(ref RowRef, column string, value any)
	// Verify makes the commit fail with TxnConflict if column no longer holds
	// the value last seen by the mirror.
	Verify(ref RowRef, column string)
	Annotate(comment string)
	// Commit sends the transaction and blocks until the server replied.
	Commit(ctx context.Context) (TxnStatus, error)
	Abort()
}

var errTxnDone = errors.New("transaction already committed or aborted")

type transactFunc func(ctx context.Context, ops ...ovsdb.Operation) ([]ovsdb.OperationResult, error)

type columnWrite struct {
	ref    RowRef
	column string
	value  any
}

type transaction struct {
	transact transactFunc
	mirror   *mirror

	waits   []columnWrite
	updates []columnWrite
	comment string
	err     error
	done    bool
}

func newTransaction(transact transactFunc, m *mirror) *transaction {
	return &transaction{transact: transact, mirror: m}
}

func (t *transaction) Set(ref RowRef, column string, value any) {
	t.updates = append(t.updates, columnWrite{ref: ref, column: column, value: encodeValue(value)})
}

func (t *transaction) Verify(ref RowRef, column string) {
	current, err := t.mirror.columnValue(ref, column)
	if err != nil {
		if t.err == nil {
			t.err = err
		}
		return
	}
	t.waits = append(t.waits, columnWrite{ref: ref, column: column, value: current})
}

func (t *transaction) Annotate(comment string) {
	t.comment = comment
}

func (t *transaction) Abort() {
	t.done = true
	t.waits, t.updates = nil, nil
}

func (t *transaction) Commit(ctx context.Context) (TxnStatus, error) {
	if t.done {
		return TxnError, errTxnDone
	}
	t.done = true
	if t.err != nil {
		return TxnError, t.err
	}

	ops := t.operations()
	reply, err := t.transact(ctx, ops...)
	if err != nil {
		if errors.Is(err, client.ErrNotConnected) {
			return TxnError, fmt.Errorf("database not connected: %w", err)
		}
		return TxnError, fmt.Errorf("transaction failed: %w", err)
	}
	for i, r := range reply {
		if r.Error == "" {
			continue
		}
		if i < len(ops) && ops[i].Op == "wait" {
			return TxnConflict, fmt.Errorf("%s.%s changed concurrently: %s (%s)",
				ops[i].Table, ops[i].Columns[0], r.Error, r.Details)
		}
		return TxnError, fmt.Errorf("OVSDB error %d: %s (%s)", i, r.Error, r.Details)
	}
	return TxnSuccess, nil
}

// operations renders the transaction: verifications first so the server
// checks them before any write, then one update per row, then the comment.
func (t *transaction) operations() []ovsdb.Operation {
	var ops []ovsdb.Operation
	for _, w := range t.waits {
		timeout := 0
		ops = append(ops, ovsdb.Operation{
			Op:      "wait",
			Table:   w.ref.Table,
			Where:   whereUUID(w.ref),
			Columns: []string{w.column},
			Until:   "==",
			Rows:    []ovsdb.Row{{w.column: w.value}},
			Timeout: &timeout,
		})
	}

	var order []RowRef
	rows := make(map[RowRef]ovsdb.Row)
	for _, u := range t.updates {
		row, ok := rows[u.ref]
		if !ok {
			row = ovsdb.Row{}
			rows[u.ref] = row
			order = append(order, u.ref)
		}
		row[u.column] = u.value
	}
	for _, ref := range order {
		ops = append(ops, ovsdb.Operation{
			Op:    "update",
			Table: ref.Table,
			Where: whereUUID(ref),
			Row:   rows[ref],
		})
	}

	if t.comment != "" {
		comment := t.comment
		ops = append(ops, ovsdb.Operation{
			Op:      "comment",
			Comment: &comment,
		})
	}
	return ops
}

func whereUUID(ref RowRef) []ovsdb.Condition {
	return []ovsdb.Condition{{
		Column:   "_uuid",
		Function: ovsdb.ConditionEqual,
		Value:    ovsdb.UUID{GoUUID: ref.UUID},
	}}
}

// encodeValue converts Go values into their OVSDB wire notation. Optional
// scalars are sets of zero or one element.
func encodeValue(v any) any {
	switch x := v.(type) {
	case *bool:
		if x == nil {
			return ovsdb.OvsSet{GoSet: []any{}}
		}
		return ovsdb.OvsSet{GoSet: []any{*x}}
	case bool:
		return ovsdb.OvsSet{GoSet: []any{x}}
	case []string:
		set := make([]any, 0, len(x))
		for _, id := range x {
			set = append(set, ovsdb.UUID{GoUUID: id})
		}
		return ovsdb.OvsSet{GoSet: set}
	case int64:
		return int(x)
	}
	return v
}

// columnValue returns the mirrored value of a writable column in wire notation.
func (m *mirror) columnValue(ref RowRef, column string) (any, error) {
	switch ref.Table {
	case OvsPortTable:
		p, ok := m.ports[ref.UUID]
		if !ok {
			return nil, fmt.Errorf("port %s not found", ref.UUID)
		}
		switch column {
		case PortColumnMacsInvalid:
			return encodeValue(p.MacsInvalid), nil
		case PortColumnMacsInvalidOnVlans:
			return encodeValue(p.MacsInvalidOnVlans), nil
		case PortColumnName:
			return p.Name, nil
		}
	case OvsVLANTable:
		v, ok := m.vlans[ref.UUID]
		if !ok {
			return nil, fmt.Errorf("vlan %s not found", ref.UUID)
		}
		switch column {
		case VLANColumnMacsInvalid:
			return encodeValue(v.MacsInvalid), nil
		case VLANColumnOperState:
			if v.OperState == "" {
				return ovsdb.OvsSet{GoSet: []any{}}, nil
			}
			return ovsdb.OvsSet{GoSet: []any{v.OperState}}, nil
		case VLANColumnID:
			return int(v.ID), nil
		}
	}
	return nil, fmt.Errorf("cannot verify %s.%s", ref.Table, column)
}
