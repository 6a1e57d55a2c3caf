package scanner

import (
	"fmt"
	"net/netip"
)

// MaxRangeSize caps expansion of a misconfigured huge range. Oversized ranges
// are truncated rather than rejected, favoring progress over hard failure
const MaxRangeSize = 1024

// ExpandRange expands an inclusive IPv4 range into an ascending address list.
// A start past the end yields an empty list, not an error: the sweep just has
// nothing to do
func ExpandRange(start, end string) ([]string, error) {
	from, err := netip.ParseAddr(start)
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q: %w", start, err)
	}
	to, err := netip.ParseAddr(end)
	if err != nil {
		return nil, fmt.Errorf("invalid range end %q: %w", end, err)
	}
	if !from.Is4() || !to.Is4() {
		return nil, fmt.Errorf("range %s-%s is not IPv4", start, end)
	}

	var addrs []string
	for a := from; a.Compare(to) <= 0; a = a.Next() {
		addrs = append(addrs, a.String())
		if len(addrs) == MaxRangeSize {
			break
		}
	}
	return addrs, nil
}
