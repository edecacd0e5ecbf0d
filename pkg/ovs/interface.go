package ovs

const OvsInterfaceTable = "Interface"

const (
	InterfaceColumnName      = "name"
	InterfaceColumnType      = "type"
	InterfaceColumnLinkState = "link_state"
)

const (
	// InterfaceTypeSystem marks a physical front-panel interface.
	InterfaceTypeSystem = "system"
	LinkStateUp         = "up"
	LinkStateDown       = "down"
)

type Interface struct {
	UUID      string  `ovsdb:"_uuid"`
	Name      string  `ovsdb:"name"`
	Type      string  `ovsdb:"type"` // "system", "internal", "vlansubint", "loopback", etc.
	LinkState *string `ovsdb:"link_state"`
}
