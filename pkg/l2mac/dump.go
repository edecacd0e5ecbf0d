package l2mac

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Snapshot is a read-only copy of the reconciler state.
type Snapshot struct {
	State string       `json:"state"`
	Seqno uint64       `json:"seqno"`
	Ports []PortRecord `json:"ports"`
	VLANs []VLANRecord `json:"vlans"`
}

func (r *Reconciler) Snapshot() Snapshot {
	ports := r.caches.ports.Records()
	slices.SortFunc(ports, func(a, b PortRecord) int { return cmp.Compare(a.Name, b.Name) })
	vlans := r.caches.vlans.Records()
	slices.SortFunc(vlans, func(a, b VLANRecord) int { return cmp.Compare(a.ID, b.ID) })
	return Snapshot{
		State: r.State().String(),
		Seqno: r.seqno,
		Ports: ports,
		VLANs: vlans,
	}
}

func linkWord(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\nseqno: %d\n", s.State, s.Seqno)
	fmt.Fprintf(&b, "ports: %d\n", len(s.Ports))
	for _, p := range s.Ports {
		fmt.Fprintf(&b, "  %-16s %s\n", p.Name, linkWord(p.Up))
	}
	fmt.Fprintf(&b, "vlans: %d\n", len(s.VLANs))
	for _, v := range s.VLANs {
		fmt.Fprintf(&b, "  %-16d %s\n", v.ID, linkWord(v.Up))
	}
	return b.String()
}
