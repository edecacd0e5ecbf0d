package ovs

const OvsSystemTable = "System"

// System is the singleton row the configuration daemon bumps once bring-up
// configuration has been applied.
type System struct {
	UUID   string `ovsdb:"_uuid"`
	CurCfg int    `ovsdb:"cur_cfg"`
}
