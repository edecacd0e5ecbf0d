package ovs

const OvsPortTable = "Port"

const (
	PortColumnName               = "name"
	PortColumnInterfaces         = "interfaces"
	PortColumnVlanMode           = "vlan_mode"
	PortColumnVlanTag            = "vlan_tag"
	PortColumnVlanTrunks         = "vlan_trunks"
	PortColumnMacsInvalid        = "macs_invalid"
	PortColumnMacsInvalidOnVlans = "macs_invalid_on_vlans"
)

type Port struct {
	UUID               string   `ovsdb:"_uuid"`
	Name               string   `ovsdb:"name"`
	Interfaces         []string `ovsdb:"interfaces"`
	VlanMode           *string  `ovsdb:"vlan_mode"`
	VlanTag            *string  `ovsdb:"vlan_tag"`
	VlanTrunks         []string `ovsdb:"vlan_trunks"`
	MacsInvalid        *bool    `ovsdb:"macs_invalid"`
	MacsInvalidOnVlans []string `ovsdb:"macs_invalid_on_vlans"`
}
