// Package transporttest provides an in-memory cluster for exercising
// routing, pooling, and execution logic without real sockets. Nodes
// hold independent key spaces, can fail and recover, and reply with
// redirects when slot ownership moves under a connected client.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/transport"
)

// ErrNodeDown is returned for dials and commands against a failed node
var ErrNodeDown = errors.New("node unavailable")

type node struct {
	id       string
	addr     cluster.NodeAddress
	role     cluster.NodeRole
	masterID string

	data         map[string]string
	failed       bool
	rejecting    bool
	rejectReason string

	dials    int
	commands int
}

// Cluster is a fake sharded cluster. Slot ownership can be reassigned
// mid-test to provoke moved and ask redirects.
//
// Concurrent Safety:
// 1. A single mutex guards all cluster and node state
// 2. Connections observe state changes made after they were dialed
type Cluster struct {
	mu       sync.Mutex
	nodes    map[string]*node
	byAddr   map[string]*node
	order    []string
	slots    []string
	asking   map[int]string
	nextPort int
}

// NewCluster creates masters with the slot space split evenly between
// them. Node IDs are n1, n2, ... and addresses are synthetic.
func NewCluster(masters int) *Cluster {
	c := &Cluster{
		nodes:    make(map[string]*node),
		byAddr:   make(map[string]*node),
		slots:    make([]string, cluster.SlotCount),
		asking:   make(map[int]string),
		nextPort: 7000,
	}

	base := cluster.SlotCount / masters
	extra := cluster.SlotCount % masters
	next := 0
	for i := 0; i < masters; i++ {
		size := base
		if i < extra {
			size++
		}
		id := c.addNode(cluster.RoleMaster, "")
		for slot := next; slot < next+size; slot++ {
			c.slots[slot] = id
		}
		next += size
	}
	return c
}

func (c *Cluster) addNode(role cluster.NodeRole, masterID string) string {
	id := fmt.Sprintf("n%d", len(c.order)+1)
	addr := cluster.NodeAddress{Host: "10.0.0.1", Port: c.nextPort}
	c.nextPort++

	n := &node{
		id:       id,
		addr:     addr,
		role:     role,
		masterID: masterID,
		data:     make(map[string]string),
	}
	c.nodes[id] = n
	c.byAddr[addr.String()] = n
	c.order = append(c.order, id)
	return id
}

// AddReplica attaches a replica to masterID and returns its node ID
func (c *Cluster) AddReplica(masterID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addNode(cluster.RoleReplica, masterID)
}

// Addr returns the address of a node by ID
func (c *Cluster) Addr(id string) cluster.NodeAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[id].addr
}

// Seeds returns every node address in creation order
func (c *Cluster) Seeds() []cluster.NodeAddress {
	c.mu.Lock()
	defer c.mu.Unlock()

	addrs := make([]cluster.NodeAddress, 0, len(c.order))
	for _, id := range c.order {
		addrs = append(addrs, c.nodes[id].addr)
	}
	return addrs
}

// Descriptors returns the cluster's current topology view
func (c *Cluster) Descriptors() []cluster.NodeDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descriptorsLocked()
}

func (c *Cluster) descriptorsLocked() []cluster.NodeDescriptor {
	descriptors := make([]cluster.NodeDescriptor, 0, len(c.order))
	for _, id := range c.order {
		n := c.nodes[id]
		d := cluster.NodeDescriptor{
			ID:       n.id,
			Addr:     n.addr,
			Role:     n.role,
			MasterID: n.masterID,
		}
		if n.role == cluster.RoleMaster {
			d.Slots = c.rangesLocked(id)
		}
		descriptors = append(descriptors, d)
	}
	return descriptors
}

// rangesLocked compresses a node's owned slots into contiguous ranges
func (c *Cluster) rangesLocked(id string) []cluster.SlotRange {
	var ranges []cluster.SlotRange
	start := -1
	for slot := 0; slot < cluster.SlotCount; slot++ {
		owns := c.slots[slot] == id
		if owns && start < 0 {
			start = slot
		}
		if !owns && start >= 0 {
			ranges = append(ranges, cluster.SlotRange{Start: start, End: slot - 1})
			start = -1
		}
	}
	if start >= 0 {
		ranges = append(ranges, cluster.SlotRange{Start: start, End: cluster.SlotCount - 1})
	}
	return ranges
}

// Fail makes a node refuse dials and fail in-flight connections
func (c *Cluster) Fail(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[id].failed = true
}

// Heal brings a failed node back
func (c *Cluster) Heal(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[id].failed = false
}

// RejectHandshakes makes a node refuse new clients with reason
func (c *Cluster) RejectHandshakes(id, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[id].rejecting = true
	c.nodes[id].rejectReason = reason
}

// MoveSlot reassigns a slot to another node. Clients holding the old
// topology receive moved redirects until they refresh.
func (c *Cluster) MoveSlot(slot int, toID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fromID := c.slots[slot]
	c.slots[slot] = toID
	// Carry keys in the slot over to the new owner.
	from, to := c.nodes[fromID], c.nodes[toID]
	for k, v := range from.data {
		if cluster.SlotForKeyString(k) == slot {
			to.data[k] = v
			delete(from.data, k)
		}
	}
}

// AskSlot marks a slot as migrating so its owner answers with ask
// redirects toward toID. The target serves the slot without owning it.
func (c *Cluster) AskSlot(slot int, toID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asking[slot] = toID
}

// ClearAsk ends a migration started with AskSlot
func (c *Cluster) ClearAsk(slot int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.asking, slot)
}

// Seed stores a key on its owning master, bypassing the protocol
func (c *Cluster) Seed(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := cluster.SlotForKeyString(key)
	c.nodes[c.slots[slot]].data[key] = value
}

// Lookup reads a key from its owning master, bypassing the protocol
func (c *Cluster) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := cluster.SlotForKeyString(key)
	v, ok := c.nodes[c.slots[slot]].data[key]
	return v, ok
}

// Owner returns the ID of the master currently serving key
func (c *Cluster) Owner(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[cluster.SlotForKeyString(key)]
}

// Dials reports how many times a node was dialed
func (c *Cluster) Dials(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[id].dials
}

// Commands reports how many commands a node received
func (c *Cluster) Commands(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[id].commands
}

// Dialer returns a dialer that connects to this cluster
func (c *Cluster) Dialer() transport.ConnDialer {
	return &fakeDialer{cluster: c}
}

// Source returns a topology source backed by this cluster's dialer
func (c *Cluster) Source() cluster.TopologySource {
	return transport.NewSource(c.Dialer())
}

type fakeDialer struct {
	cluster *Cluster
}

var _ transport.ConnDialer = (*fakeDialer)(nil)

func (d *fakeDialer) Dial(ctx context.Context, addr cluster.NodeAddress) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := d.cluster
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.byAddr[addr.String()]
	if n == nil {
		return nil, fmt.Errorf("%w: no node at %s", ErrNodeDown, addr)
	}
	n.dials++
	if n.failed {
		return nil, fmt.Errorf("%w: %s", ErrNodeDown, addr)
	}
	if n.rejecting {
		if n.rejectReason != "" {
			return nil, fmt.Errorf("handshake with %s: %w: %s", addr, transport.ErrHandshakeRejected, n.rejectReason)
		}
		return nil, fmt.Errorf("handshake with %s: %w", addr, transport.ErrHandshakeRejected)
	}

	return &fakeConn{cluster: c, node: n}, nil
}

// fakeConn serves the command surface from the fake cluster's state.
type fakeConn struct {
	cluster *Cluster
	node    *node
	broken  atomic.Bool
}

var _ transport.Conn = (*fakeConn)(nil)

func (fc *fakeConn) Addr() cluster.NodeAddress {
	return fc.node.addr
}

func (fc *fakeConn) Healthy() bool {
	return !fc.broken.Load()
}

func (fc *fakeConn) Close() error {
	fc.broken.Store(true)
	return nil
}

func (fc *fakeConn) Topology(ctx context.Context) ([]cluster.NodeDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := fc.cluster
	c.mu.Lock()
	defer c.mu.Unlock()

	if fc.node.failed {
		fc.broken.Store(true)
		return nil, ErrNodeDown
	}
	return c.descriptorsLocked(), nil
}

func (fc *fakeConn) Do(ctx context.Context, req *transport.CommandRequest) (*transport.CommandReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := fc.cluster
	c.mu.Lock()
	defer c.mu.Unlock()

	n := fc.node
	n.commands++
	if fc.broken.Load() {
		return nil, transport.ErrClosed
	}
	if n.failed {
		fc.broken.Store(true)
		return nil, ErrNodeDown
	}

	verb := strings.ToUpper(req.Verb)
	switch verb {
	case "PING":
		return okReply(req, []byte("PONG"), nil, 0), nil
	case "DBSIZE":
		return okReply(req, nil, nil, int64(len(n.data))), nil
	case "FLUSHALL":
		n.data = make(map[string]string)
		return okReply(req, nil, nil, 0), nil
	}

	// Everything else is keyed and subject to slot checks.
	if len(req.Args) == 0 {
		return nil, &transport.RemoteError{Message: "wrong number of arguments for " + verb}
	}

	keys := keysFor(verb, req.Args)
	slot, err := cluster.SlotForKeys(keys...)
	if err != nil {
		return nil, &transport.RemoteError{Message: "keys do not hash to the same slot"}
	}
	if redirect := c.redirectLocked(n, slot); redirect != nil {
		return nil, redirect
	}

	switch verb {
	case "GET":
		v, ok := n.data[string(req.Args[0])]
		if !ok {
			return okReply(req, nil, nil, 0), nil
		}
		return okReply(req, []byte(v), nil, 1), nil
	case "SET":
		if len(req.Args) < 2 {
			return nil, &transport.RemoteError{Message: "wrong number of arguments for SET"}
		}
		n.data[string(req.Args[0])] = string(req.Args[1])
		return okReply(req, nil, nil, 1), nil
	case "DEL", "MDEL":
		var removed int64
		for _, k := range keys {
			if _, ok := n.data[string(k)]; ok {
				delete(n.data, string(k))
				removed++
			}
		}
		return okReply(req, nil, nil, removed), nil
	case "EXISTS":
		var found int64
		if _, ok := n.data[string(req.Args[0])]; ok {
			found = 1
		}
		return okReply(req, nil, nil, found), nil
	case "MGET":
		values := make([][]byte, len(keys))
		var found int64
		for i, k := range keys {
			if v, ok := n.data[string(k)]; ok {
				values[i] = []byte(v)
				found++
			}
		}
		return okReply(req, nil, values, found), nil
	default:
		return nil, &transport.RemoteError{Message: "unknown command " + verb}
	}
}

// redirectLocked returns the redirect error a node would send for a
// slot it cannot serve, or nil when the command may proceed.
func (c *Cluster) redirectLocked(n *node, slot int) error {
	owner := c.slots[slot]
	target, migrating := c.asking[slot]

	if owner == n.id {
		if migrating {
			return &transport.AskError{Slot: slot, Addr: c.nodes[target].addr}
		}
		return nil
	}
	if migrating && target == n.id {
		// Mid-migration the target serves asked keys before owning
		// the slot.
		return nil
	}
	return &transport.MovedError{Slot: slot, Addr: c.nodes[owner].addr}
}

// keysFor extracts the key arguments of a verb
func keysFor(verb string, args [][]byte) [][]byte {
	switch verb {
	case "SET":
		return args[:1]
	default:
		return args
	}
}

func okReply(req *transport.CommandRequest, value []byte, values [][]byte, number int64) *transport.CommandReply {
	return &transport.CommandReply{
		ID:     req.ID,
		Status: transport.StatusOK,
		Value:  value,
		Values: values,
		Number: number,
	}
}
