package ovs

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// MACEntry is a MAC row with its port reference resolved to a name.
type MACEntry struct {
	Address   string
	VLAN      int64
	From      string
	Port      string
	TunnelKey *int
}

// MACEntries lists the MAC table. It requires a client created with WithMACTable.
func (c *Client) MACEntries(ctx context.Context) ([]MACEntry, error) {
	var macs []MAC
	if err := c.ovsClient.List(ctx, &macs); err != nil {
		return nil, fmt.Errorf("failed to list MAC table: %w", err)
	}
	var ports []Port
	if err := c.ovsClient.List(ctx, &ports); err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	return resolveMACs(macs, ports), nil
}

func resolveMACs(macs []MAC, ports []Port) []MACEntry {
	names := lo.SliceToMap(ports, func(p Port) (string, string) {
		return p.UUID, p.Name
	})
	return lo.Map(macs, func(m MAC, _ int) MACEntry {
		e := MACEntry{
			Address:   m.MacAddr,
			VLAN:      int64(m.MacVlan),
			From:      m.From,
			TunnelKey: m.TunnelKey,
		}
		if m.Port != nil {
			e.Port = names[*m.Port]
		}
		return e
	})
}
