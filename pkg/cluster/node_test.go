package cluster

import (
	"errors"
	"testing"
)

func TestParseNodeAddress(t *testing.T) {
	tests := []struct {
		input   string
		want    NodeAddress
		wantErr bool
	}{
		{"10.0.0.1:7000", NodeAddress{Host: "10.0.0.1", Port: 7000}, false},
		{"cache-a.internal:6379", NodeAddress{Host: "cache-a.internal", Port: 6379}, false},
		{"[::1]:7000", NodeAddress{Host: "::1", Port: 7000}, false},
		{"10.0.0.1", NodeAddress{}, true},  // missing port
		{":7000", NodeAddress{}, true},     // missing host
		{"host:0", NodeAddress{}, true},    // port out of range
		{"host:99999", NodeAddress{}, true},
		{"host:abc", NodeAddress{}, true},
		{"", NodeAddress{}, true},
	}

	for _, tt := range tests {
		got, err := ParseNodeAddress(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidNodeAddr) {
				t.Errorf("ParseNodeAddress(%q) error = %v, want ErrInvalidNodeAddr", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseNodeAddress(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseNodeAddress(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestNodeAddress_String(t *testing.T) {
	addr := NodeAddress{Host: "10.0.0.1", Port: 7000}
	if got := addr.String(); got != "10.0.0.1:7000" {
		t.Errorf("String() = %q, want %q", got, "10.0.0.1:7000")
	}

	v6 := NodeAddress{Host: "::1", Port: 7000}
	if got := v6.String(); got != "[::1]:7000" {
		t.Errorf("String() = %q, want %q", got, "[::1]:7000")
	}

	if !new(NodeAddress).IsZero() {
		t.Error("zero NodeAddress should report IsZero")
	}
}

func TestParseSlotRange(t *testing.T) {
	tests := []struct {
		input   string
		want    SlotRange
		wantErr bool
	}{
		{"0-5460", SlotRange{Start: 0, End: 5460}, false},
		{"7000", SlotRange{Start: 7000, End: 7000}, false},
		{"16383", SlotRange{Start: 16383, End: 16383}, false},
		{"5-1", SlotRange{}, true},     // inverted
		{"0-16384", SlotRange{}, true}, // past the slot space
		{"abc", SlotRange{}, true},
		{"", SlotRange{}, true},
	}

	for _, tt := range tests {
		got, err := ParseSlotRange(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSlotRange) {
				t.Errorf("ParseSlotRange(%q) error = %v, want ErrInvalidSlotRange", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSlotRange(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSlotRange(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestSlotRange_Contains(t *testing.T) {
	r := SlotRange{Start: 100, End: 200}

	if !r.Contains(100) || !r.Contains(150) || !r.Contains(200) {
		t.Error("range should contain its boundaries and interior")
	}
	if r.Contains(99) || r.Contains(201) {
		t.Error("range should not contain slots outside its bounds")
	}
	if got := r.Size(); got != 101 {
		t.Errorf("Size() = %d, want 101", got)
	}
}

func TestSlotRange_String(t *testing.T) {
	if got := (SlotRange{Start: 0, End: 5460}).String(); got != "0-5460" {
		t.Errorf("String() = %q, want %q", got, "0-5460")
	}
	if got := (SlotRange{Start: 42, End: 42}).String(); got != "42" {
		t.Errorf("String() = %q, want %q", got, "42")
	}
}

func TestNodeDescriptor_Serves(t *testing.T) {
	node := NodeDescriptor{
		ID:   "n1",
		Role: RoleMaster,
		Slots: []SlotRange{
			{Start: 0, End: 100},
			{Start: 5000, End: 5002},
		},
	}

	for _, slot := range []int{0, 50, 100, 5000, 5002} {
		if !node.Serves(slot) {
			t.Errorf("Serves(%d) = false, want true", slot)
		}
	}
	for _, slot := range []int{101, 4999, 5003, 16383} {
		if node.Serves(slot) {
			t.Errorf("Serves(%d) = true, want false", slot)
		}
	}

	if got := node.OwnedSlotCount(); got != 104 {
		t.Errorf("OwnedSlotCount() = %d, want 104", got)
	}
}

func TestNodeDescriptor_Equal(t *testing.T) {
	a := NodeDescriptor{ID: "n1", Addr: NodeAddress{Host: "10.0.0.1", Port: 7000}, Role: RoleMaster}
	// Same node after failover: new role, new slots, same identity
	b := NodeDescriptor{ID: "n1", Addr: NodeAddress{Host: "10.0.0.9", Port: 7000}, Role: RoleReplica}
	c := NodeDescriptor{ID: "n2", Addr: a.Addr, Role: RoleMaster}

	if !a.Equal(b) {
		t.Error("descriptors with the same ID should be equal")
	}
	if a.Equal(c) {
		t.Error("descriptors with different IDs should not be equal")
	}
}

func TestNodeRole_String(t *testing.T) {
	tests := []struct {
		role NodeRole
		want string
	}{
		{RoleMaster, "master"},
		{RoleReplica, "replica"},
		{NodeRole(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.role.String(); got != tt.want {
			t.Errorf("NodeRole(%d).String() = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestFormatSlotRanges(t *testing.T) {
	ranges := []SlotRange{{Start: 0, End: 100}, {Start: 7000, End: 7000}}
	if got := FormatSlotRanges(ranges); got != "0-100,7000" {
		t.Errorf("FormatSlotRanges() = %q, want %q", got, "0-100,7000")
	}
	if got := FormatSlotRanges(nil); got != "-" {
		t.Errorf("FormatSlotRanges(nil) = %q, want %q", got, "-")
	}
}

func TestSortNodes(t *testing.T) {
	nodes := []NodeDescriptor{
		{ID: "r2", Role: RoleReplica},
		{ID: "m2", Role: RoleMaster},
		{ID: "r1", Role: RoleReplica},
		{ID: "m1", Role: RoleMaster},
	}

	SortNodes(nodes)

	want := []string{"m1", "m2", "r1", "r2"}
	for i, id := range want {
		if nodes[i].ID != id {
			t.Errorf("nodes[%d].ID = %q, want %q", i, nodes[i].ID, id)
		}
	}
}
