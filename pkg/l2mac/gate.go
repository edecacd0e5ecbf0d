package l2mac

// State of the reconciliation loop.
type State int

const (
	Unconfigured State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "unconfigured"
}

// Gate holds reconciliation back until the system finished its bring-up
// configuration. Once open it stays open.
type Gate struct {
	open bool
}

// Check opens the gate when curCfg is positive and reports whether it is open.
func (g *Gate) Check(curCfg int64) bool {
	if !g.open && curCfg > 0 {
		g.open = true
	}
	return g.open
}

func (g *Gate) State() State {
	if g.open {
		return Active
	}
	return Unconfigured
}
