package mactable

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MinVLAN = 1
	MaxVLAN = 4094

	// MaxPortNumber bounds numeric port ranges such as "2-6".
	MaxPortNumber = 4096
)

// ParseVLANList parses a list such as "2,3-10" into the set of VLAN ids it
// names. Every id must lie in 1-4094.
func ParseVLANList(list string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, item := range splitList(list) {
		lo, hi, err := parseRange(item)
		if err != nil {
			return nil, fmt.Errorf("invalid VLAN list %q: %w", list, err)
		}
		if lo < MinVLAN || hi > MaxVLAN {
			return nil, fmt.Errorf("invalid VLAN list %q: %s out of range %d-%d", list, item, MinVLAN, MaxVLAN)
		}
		for id := lo; id <= hi; id++ {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty VLAN list")
	}
	return ids, nil
}

// ParsePortList parses a list such as "2-6,lag1". Numeric ranges expand to
// one name per number; anything else is taken as a literal port name.
func ParsePortList(list string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, item := range splitList(list) {
		if lo, hi, err := parseRange(item); err == nil {
			if lo < 0 || hi > MaxPortNumber {
				return nil, fmt.Errorf("invalid port list %q: %s out of range 0-%d", list, item, MaxPortNumber)
			}
			for n := lo; n <= hi; n++ {
				add(strconv.FormatInt(n, 10))
			}
			continue
		}
		if strings.ContainsAny(item, " \t") {
			return nil, fmt.Errorf("invalid port list %q: bad port name %q", list, item)
		}
		add(item)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("empty port list")
	}
	return names, nil
}

func splitList(list string) []string {
	var items []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseRange parses "N" or "N-M" with N <= M.
func parseRange(item string) (int64, int64, error) {
	first, last, isRange := strings.Cut(item, "-")
	lo, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not a number", first)
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not a number", last)
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("range %s is reversed", item)
	}
	return lo, hi, nil
}
