package ovs

const OvsVLANTable = "VLAN"

const (
	VLANColumnID          = "id"
	VLANColumnOperState   = "oper_state"
	VLANColumnMacsInvalid = "macs_invalid"
)

const (
	OperStateUp      = "up"
	OperStateDown    = "down"
	OperStateUnknown = "unknown"
)

type VLAN struct {
	UUID        string  `ovsdb:"_uuid"`
	ID          int     `ovsdb:"id"`
	OperState   *string `ovsdb:"oper_state"`
	MacsInvalid *bool   `ovsdb:"macs_invalid"`
}
