package cluster

// Topology is an immutable snapshot of the cluster shape: which nodes
// exist, which role each plays, and which master owns every hash slot.
//
// Concurrent Safety:
// 1. A Topology is never mutated after NewTopology returns
// 2. Accessors hand out copies, never references into internal state
// 3. Readers on different goroutines may share one *Topology freely;
//    replacing a snapshot with a newer one is the provider's job
type Topology struct {
	nodes     []NodeDescriptor
	byID      map[string]int
	byAddr    map[string]int
	slotOwner []int16 // slot -> index into nodes, -1 when unserved
	replicaOf map[string][]int
	masters   int
	replicas  int
}

// NewTopology builds a snapshot from a node table. The input is
// accepted as-is: gaps leave slots unserved, and when two masters
// claim the same slot the first claimant in table order wins.
func NewTopology(nodes []NodeDescriptor) *Topology {
	t := &Topology{
		nodes:     make([]NodeDescriptor, len(nodes)),
		byID:      make(map[string]int, len(nodes)),
		byAddr:    make(map[string]int, len(nodes)),
		slotOwner: make([]int16, SlotCount),
		replicaOf: make(map[string][]int),
	}
	copy(t.nodes, nodes)

	for i := range t.slotOwner {
		t.slotOwner[i] = -1
	}

	for i, node := range t.nodes {
		if _, ok := t.byID[node.ID]; !ok {
			t.byID[node.ID] = i
		}
		if !node.Addr.IsZero() {
			if _, ok := t.byAddr[node.Addr.String()]; !ok {
				t.byAddr[node.Addr.String()] = i
			}
		}

		switch node.Role {
		case RoleMaster:
			t.masters++
			for _, r := range node.Slots {
				lo, hi := r.Start, r.End
				if lo < 0 {
					lo = 0
				}
				if hi >= SlotCount {
					hi = SlotCount - 1
				}
				for slot := lo; slot <= hi; slot++ {
					if t.slotOwner[slot] == -1 {
						t.slotOwner[slot] = int16(i)
					}
				}
			}
		case RoleReplica:
			t.replicas++
			if node.MasterID != "" {
				t.replicaOf[node.MasterID] = append(t.replicaOf[node.MasterID], i)
			}
		}
	}

	return t
}

// Size returns the number of nodes in the snapshot
func (t *Topology) Size() int {
	return len(t.nodes)
}

// MasterCount returns the number of master nodes
func (t *Topology) MasterCount() int {
	return t.masters
}

// ReplicaCount returns the number of replica nodes
func (t *Topology) ReplicaCount() int {
	return t.replicas
}

// MasterServing returns the master that owns the given slot.
// The second return is false for unserved or out-of-range slots.
func (t *Topology) MasterServing(slot int) (NodeDescriptor, bool) {
	if slot < 0 || slot >= SlotCount {
		return NodeDescriptor{}, false
	}
	idx := t.slotOwner[slot]
	if idx < 0 {
		return NodeDescriptor{}, false
	}
	return t.nodes[idx], true
}

// ReplicasServing returns the replicas of the master owning the slot.
// The result is empty for unserved slots and masters with no replicas.
func (t *Topology) ReplicasServing(slot int) []NodeDescriptor {
	master, ok := t.MasterServing(slot)
	if !ok {
		return nil
	}
	positions := t.replicaOf[master.ID]
	if len(positions) == 0 {
		return nil
	}
	out := make([]NodeDescriptor, len(positions))
	for i, pos := range positions {
		out[i] = t.nodes[pos]
	}
	return out
}

// NodeByID returns the node with the given ID
func (t *Topology) NodeByID(id string) (NodeDescriptor, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return NodeDescriptor{}, false
	}
	return t.nodes[idx], true
}

// NodeByAddr returns the node listening on the given address
func (t *Topology) NodeByAddr(addr NodeAddress) (NodeDescriptor, bool) {
	idx, ok := t.byAddr[addr.String()]
	if !ok {
		return NodeDescriptor{}, false
	}
	return t.nodes[idx], true
}

// Lookup resolves a possibly stale descriptor against this snapshot,
// first by node ID and then by address. When the node is unknown to
// the snapshot the input is returned unchanged.
func (t *Topology) Lookup(node NodeDescriptor) NodeDescriptor {
	if found, ok := t.NodeByID(node.ID); ok {
		return found
	}
	if found, ok := t.NodeByAddr(node.Addr); ok {
		return found
	}
	return node
}

// Nodes returns a copy of all nodes in the snapshot
func (t *Topology) Nodes() []NodeDescriptor {
	out := make([]NodeDescriptor, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Masters returns a copy of all master nodes
func (t *Topology) Masters() []NodeDescriptor {
	out := make([]NodeDescriptor, 0, t.masters)
	for _, node := range t.nodes {
		if node.IsMaster() {
			out = append(out, node)
		}
	}
	return out
}

// Replicas returns a copy of all replica nodes
func (t *Topology) Replicas() []NodeDescriptor {
	out := make([]NodeDescriptor, 0, t.replicas)
	for _, node := range t.nodes {
		if node.IsReplica() {
			out = append(out, node)
		}
	}
	return out
}

// Addrs returns the addresses of every node in the snapshot
func (t *Topology) Addrs() []NodeAddress {
	out := make([]NodeAddress, 0, len(t.nodes))
	for _, node := range t.nodes {
		if !node.Addr.IsZero() {
			out = append(out, node.Addr)
		}
	}
	return out
}

// SlotCoverage summarizes how much of the slot space a snapshot serves
type SlotCoverage struct {
	Served int
	Gaps   []SlotRange
}

// Full reports whether every slot has a serving master
func (c SlotCoverage) Full() bool {
	return c.Served == SlotCount
}

// Coverage scans the slot table and reports served slots and gaps
func (t *Topology) Coverage() SlotCoverage {
	cov := SlotCoverage{}
	gapStart := -1
	for slot := 0; slot < SlotCount; slot++ {
		if t.slotOwner[slot] >= 0 {
			cov.Served++
			if gapStart >= 0 {
				cov.Gaps = append(cov.Gaps, SlotRange{Start: gapStart, End: slot - 1})
				gapStart = -1
			}
			continue
		}
		if gapStart < 0 {
			gapStart = slot
		}
	}
	if gapStart >= 0 {
		cov.Gaps = append(cov.Gaps, SlotRange{Start: gapStart, End: SlotCount - 1})
	}
	return cov
}
