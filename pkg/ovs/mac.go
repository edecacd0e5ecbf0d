package ovs

const OvsMACTable = "MAC"

const (
	MACFromDynamic = "dynamic"
	MACFromStatic  = "static"
	MACFromHwVtep  = "hw-vtep"
)

// MAC is a forwarding entry published by the forwarding-plane agent. l2macd
// only ever reads it.
type MAC struct {
	UUID      string  `ovsdb:"_uuid"`
	MacAddr   string  `ovsdb:"mac_addr"`
	MacVlan   int     `ovsdb:"mac_vlan"`
	From      string  `ovsdb:"from"`
	Port      *string `ovsdb:"port"`
	TunnelKey *int    `ovsdb:"tunnel_key"`
}
