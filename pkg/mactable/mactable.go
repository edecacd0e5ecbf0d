// Package mactable implements the read-only "show mac-address-table" view of
// the MAC table.
package mactable

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/cybercoder/l2macd/pkg/ovs"
)

// AgeTime is the MAC aging time reported in the header, in seconds.
const AgeTime = 300

// Filter selects MAC entries. Zero fields match everything.
type Filter struct {
	From    string
	VLANs   []int64
	Ports   []string
	Address string
}

// Select returns the matching entries sorted by MAC address, then VLAN.
// Entries not learnt on a port are never shown.
func (f Filter) Select(entries []ovs.MACEntry) []ovs.MACEntry {
	out := lo.Filter(entries, func(e ovs.MACEntry, _ int) bool {
		if e.Port == "" {
			return false
		}
		if f.From != "" && e.From != f.From {
			return false
		}
		if f.Address != "" && !strings.EqualFold(e.Address, f.Address) {
			return false
		}
		if len(f.VLANs) > 0 && !lo.Contains(f.VLANs, e.VLAN) {
			return false
		}
		if len(f.Ports) > 0 && !lo.Contains(f.Ports, e.Port) {
			return false
		}
		return true
	})
	slices.SortFunc(out, func(a, b ovs.MACEntry) int {
		return cmp.Or(cmp.Compare(a.Address, b.Address), cmp.Compare(a.VLAN, b.VLAN))
	})
	return out
}

// Render writes the selected entries. total is the size of the unfiltered
// table; an empty table is reported as such instead of an empty listing.
func Render(w io.Writer, total int, entries []ovs.MACEntry, countOnly bool) error {
	if total == 0 {
		_, err := fmt.Fprintln(w, "No MAC entries found.")
		return err
	}
	if countOnly {
		_, err := fmt.Fprintf(w, "Number of MAC addresses : %d\n", len(entries))
		return err
	}
	if _, err := fmt.Fprintf(w, "MAC age-time            : %d seconds\nNumber of MAC addresses : %d\n",
		AgeTime, len(entries)); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("-")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"MAC Address", "VLAN", "Type", "Port"})
	for _, e := range entries {
		table.Append([]string{e.Address, strconv.FormatInt(e.VLAN, 10), e.From, e.Port})
	}
	table.Render()
	return nil
}
