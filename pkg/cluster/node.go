package cluster

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// NodeRole represents the role of a node in the cluster
type NodeRole int

const (
	// RoleMaster owns hash slots and accepts writes for them
	RoleMaster NodeRole = iota
	// RoleReplica mirrors a master and may serve reads
	RoleReplica
)

// String returns the string representation of a NodeRole
func (r NodeRole) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleReplica:
		return "replica"
	default:
		return "unknown"
	}
}

// NodeAddress is a reachable cluster endpoint (host and port)
type NodeAddress struct {
	Host string
	Port int
}

// String returns the address in host:port form
func (a NodeAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsZero reports whether the address is unset
func (a NodeAddress) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// MarshalText encodes the address as host:port
func (a NodeAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a host:port string
func (a *NodeAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseNodeAddress parses a host:port string into a NodeAddress
func ParseNodeAddress(s string) (NodeAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: %q", ErrInvalidNodeAddr, s)
	}
	if host == "" {
		return NodeAddress{}, fmt.Errorf("%w: %q", ErrInvalidNodeAddr, s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return NodeAddress{}, fmt.Errorf("%w: bad port in %q", ErrInvalidNodeAddr, s)
	}
	return NodeAddress{Host: host, Port: port}, nil
}

// ParseNodeAddresses parses a list of host:port strings
func ParseNodeAddresses(addrs []string) ([]NodeAddress, error) {
	out := make([]NodeAddress, 0, len(addrs))
	for _, s := range addrs {
		addr, err := ParseNodeAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// SlotRange is an inclusive range of hash slots owned by a master
type SlotRange struct {
	Start int
	End   int
}

// Contains reports whether slot falls inside the range
func (r SlotRange) Contains(slot int) bool {
	return slot >= r.Start && slot <= r.End
}

// Size returns the number of slots covered by the range
func (r SlotRange) Size() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// String renders the range as "start-end", or just "start" for a single slot
func (r SlotRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return strconv.Itoa(r.Start) + "-" + strconv.Itoa(r.End)
}

// MarshalText encodes the range in its string form
func (r SlotRange) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a "start-end" or "slot" string
func (r *SlotRange) UnmarshalText(text []byte) error {
	parsed, err := ParseSlotRange(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseSlotRange parses "start-end" or a single "slot" into a SlotRange
func ParseSlotRange(s string) (SlotRange, error) {
	start, end, found := strings.Cut(s, "-")
	if !found {
		end = start
	}
	lo, err := strconv.Atoi(start)
	if err != nil {
		return SlotRange{}, fmt.Errorf("%w: %q", ErrInvalidSlotRange, s)
	}
	hi, err := strconv.Atoi(end)
	if err != nil {
		return SlotRange{}, fmt.Errorf("%w: %q", ErrInvalidSlotRange, s)
	}
	if lo < 0 || hi >= SlotCount || hi < lo {
		return SlotRange{}, fmt.Errorf("%w: %q", ErrInvalidSlotRange, s)
	}
	return SlotRange{Start: lo, End: hi}, nil
}

// NodeDescriptor describes one node as reported by a topology snapshot
type NodeDescriptor struct {
	ID       string      `json:"id"`
	Addr     NodeAddress `json:"addr"`
	Role     NodeRole    `json:"role"`
	MasterID string      `json:"master_id,omitempty"` // set on replicas
	Slots    []SlotRange `json:"slots,omitempty"`     // set on masters
}

// IsMaster reports whether the node is a master
func (n NodeDescriptor) IsMaster() bool {
	return n.Role == RoleMaster
}

// IsReplica reports whether the node is a replica
func (n NodeDescriptor) IsReplica() bool {
	return n.Role == RoleReplica
}

// Serves reports whether the node owns the given hash slot
func (n NodeDescriptor) Serves(slot int) bool {
	for _, r := range n.Slots {
		if r.Contains(slot) {
			return true
		}
	}
	return false
}

// OwnedSlotCount returns how many slots the node owns in total
func (n NodeDescriptor) OwnedSlotCount() int {
	total := 0
	for _, r := range n.Slots {
		total += r.Size()
	}
	return total
}

// Equal reports whether both descriptors identify the same node.
// Identity is the node ID alone; address, role and slots may differ
// between snapshots of the same node.
func (n NodeDescriptor) Equal(other NodeDescriptor) bool {
	return n.ID == other.ID
}

// String renders a short human-readable summary of the node
func (n NodeDescriptor) String() string {
	if n.IsReplica() {
		return fmt.Sprintf("%s %s replica of %s", n.ID, n.Addr, n.MasterID)
	}
	return fmt.Sprintf("%s %s master %s", n.ID, n.Addr, FormatSlotRanges(n.Slots))
}

// FormatSlotRanges renders slot ranges as a comma-separated list
func FormatSlotRanges(ranges []SlotRange) string {
	if len(ranges) == 0 {
		return "-"
	}
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// SortNodes orders nodes by role (masters first) and then by ID.
// Used for stable presentation in diagnostics output.
func SortNodes(nodes []NodeDescriptor) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Role != nodes[j].Role {
			return nodes[i].Role < nodes[j].Role
		}
		return nodes[i].ID < nodes[j].ID
	})
}
