package edge

import "errors"

// PortRange is the band of host ports reserved for edge-routed stacks. Each
// stack with a hostname gets one port from the band; the edge server proxies
// the stack's hostname to 127.0.0.1:<port>.
type PortRange struct {
	Start int // Inclusive
	End   int // Inclusive
}

// DefaultPortRange returns the band stackd reserves by default, 30000-39999.
func DefaultPortRange() PortRange {
	return PortRange{Start: 30000, End: 39999}
}

// AllocatePort picks the lowest port in the range not already held by
// another stack. The caller supplies the ports currently in use; the
// function itself keeps no state.
func AllocatePort(usedPorts []int, portRange PortRange) (int, error) {
	used := make(map[int]bool, len(usedPorts))
	for _, p := range usedPorts {
		used[p] = true
	}

	for port := portRange.Start; port <= portRange.End; port++ {
		if !used[port] {
			return port, nil
		}
	}

	return 0, errors.New("no available ports in range")
}

// ValidatePort reports whether a stored edge port still falls inside the
// configured band.
func ValidatePort(port int, portRange PortRange) bool {
	return port >= portRange.Start && port <= portRange.End
}
