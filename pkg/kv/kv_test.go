package kv

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/executor"
	"github.com/dd0wney/cluso-kvclient/pkg/transport"
	"github.com/dd0wney/cluso-kvclient/pkg/transport/transporttest"
)

// newTestClient opens a client against a fake cluster with a long
// topology TTL, so tests control staleness by refreshing explicitly.
func newTestClient(t *testing.T, c *transporttest.Cluster) *Client {
	t.Helper()

	seeds := make([]string, 0, len(c.Seeds()))
	for _, addr := range c.Seeds() {
		seeds = append(seeds, addr.String())
	}

	client, err := Open(Options{
		Seeds:       seeds,
		TopologyTTL: time.Hour,
		Dialer:      c.Dialer(),
		Source:      c.Source(),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestOpen_InvalidSeeds(t *testing.T) {
	if _, err := Open(Options{Seeds: []string{"not an address"}}); err == nil {
		t.Error("Open() expected error for malformed seed")
	}
	if _, err := Open(Options{}); err == nil {
		t.Error("Open() expected error for missing seeds")
	}
}

func TestOpen_UnknownProtocol(t *testing.T) {
	_, err := Open(Options{
		Seeds:    []string{"10.0.0.1:7000"},
		Protocol: "carrier-pigeon",
	})
	if err == nil {
		t.Fatal("Open() accepted a wire protocol this build does not include")
	}
}

func TestSetGet(t *testing.T) {
	c := transporttest.NewCluster(3)
	client := newTestClient(t, c)
	ctx := context.Background()

	if err := client.Set(ctx, "user:1", "alice"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, found, err := client.Get(ctx, "user:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("Get() found = false, want true")
	}
	if got != "alice" {
		t.Errorf("Get() = %q, want %q", got, "alice")
	}

	// The write landed on the slot owner, not just any node.
	if v, ok := c.Lookup("user:1"); !ok || v != "alice" {
		t.Errorf("cluster Lookup = %q, %v; want value on the serving master", v, ok)
	}
}

func TestGet_Missing(t *testing.T) {
	c := transporttest.NewCluster(2)
	client := newTestClient(t, c)

	got, found, err := client.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Get() found = true for missing key")
	}
	if got != "" {
		t.Errorf("Get() = %q, want empty", got)
	}
}

func TestExistsDel(t *testing.T) {
	c := transporttest.NewCluster(3)
	c.Seed("k", "v")
	client := newTestClient(t, c)
	ctx := context.Background()

	exists, err := client.Exists(ctx, "k")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v; want true, nil", exists, err)
	}

	removed, err := client.Del(ctx, "k")
	if err != nil || !removed {
		t.Fatalf("Del() = %v, %v; want true, nil", removed, err)
	}

	exists, err = client.Exists(ctx, "k")
	if err != nil || exists {
		t.Fatalf("Exists() after Del = %v, %v; want false, nil", exists, err)
	}

	removed, err = client.Del(ctx, "k")
	if err != nil || removed {
		t.Fatalf("Del() on missing key = %v, %v; want false, nil", removed, err)
	}
}

func TestPing(t *testing.T) {
	c := transporttest.NewCluster(3)
	client := newTestClient(t, c)

	addr, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if addr.Host == "" {
		t.Error("Ping() returned empty responder address")
	}
}

func TestDBSizeAndFlushAll(t *testing.T) {
	c := transporttest.NewCluster(3)
	for i := 0; i < 20; i++ {
		c.Seed(fmt.Sprintf("key-%d", i), "v")
	}
	client := newTestClient(t, c)
	ctx := context.Background()

	size, err := client.DBSize(ctx)
	if err != nil {
		t.Fatalf("DBSize() error = %v", err)
	}
	if size != 20 {
		t.Errorf("DBSize() = %d, want 20", size)
	}

	if err := client.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}

	size, err = client.DBSize(ctx)
	if err != nil {
		t.Fatalf("DBSize() after flush error = %v", err)
	}
	if size != 0 {
		t.Errorf("DBSize() after flush = %d, want 0", size)
	}
}

func TestDBSize_NodeDownFailsTheSum(t *testing.T) {
	c := transporttest.NewCluster(3)
	client := newTestClient(t, c)

	// Prime discovery, then lose a node.
	if err := client.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	c.Fail("n2")

	if _, err := client.DBSize(context.Background()); err == nil {
		t.Error("DBSize() expected error when a master is unreachable")
	}
}

func TestMGet_RestoresCallerOrder(t *testing.T) {
	c := transporttest.NewCluster(3)
	keys := make([]string, 10)
	for i := range keys {
		keys[i] = fmt.Sprintf("item-%d", i)
		if i%2 == 0 {
			c.Seed(keys[i], fmt.Sprintf("value-%d", i))
		}
	}
	client := newTestClient(t, c)

	values, err := client.MGet(context.Background(), keys...)
	if err != nil {
		t.Fatalf("MGet() error = %v", err)
	}
	if len(values) != len(keys) {
		t.Fatalf("MGet() returned %d values, want %d", len(values), len(keys))
	}
	for i, v := range values {
		if i%2 == 0 {
			want := fmt.Sprintf("value-%d", i)
			if !v.Found || v.Data != want {
				t.Errorf("values[%d] = %+v, want found %q", i, v, want)
			}
		} else if v.Found {
			t.Errorf("values[%d] = %+v, want missing", i, v)
		}
	}
}

func TestMGet_HashTagsShareOneCommand(t *testing.T) {
	c := transporttest.NewCluster(3)
	c.Seed("{cart:7}items", "3")
	c.Seed("{cart:7}total", "42")
	client := newTestClient(t, c)

	values, err := client.MGet(context.Background(), "{cart:7}items", "{cart:7}total")
	if err != nil {
		t.Fatalf("MGet() error = %v", err)
	}
	if !values[0].Found || values[0].Data != "3" {
		t.Errorf("values[0] = %+v, want 3", values[0])
	}
	if !values[1].Found || values[1].Data != "42" {
		t.Errorf("values[1] = %+v, want 42", values[1])
	}
}

func TestMGet_NoKeys(t *testing.T) {
	c := transporttest.NewCluster(2)
	client := newTestClient(t, c)

	if _, err := client.MGet(context.Background()); !errors.Is(err, cluster.ErrNoKeys) {
		t.Errorf("MGet() error = %v, want ErrNoKeys", err)
	}
}

func TestMDel(t *testing.T) {
	c := transporttest.NewCluster(3)
	c.Seed("a", "1")
	c.Seed("b", "2")
	c.Seed("c", "3")
	client := newTestClient(t, c)

	removed, err := client.MDel(context.Background(), "a", "b", "c", "ghost")
	if err != nil {
		t.Fatalf("MDel() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("MDel() = %d, want 3", removed)
	}

	for _, key := range []string{"a", "b", "c"} {
		if _, ok := c.Lookup(key); ok {
			t.Errorf("key %q still present after MDel", key)
		}
	}
}

func TestMDel_PartialFailureReportsSurvivors(t *testing.T) {
	c := transporttest.NewCluster(3)
	client := newTestClient(t, c)
	ctx := context.Background()

	// Two keys with different owners, seeded after discovery so the
	// snapshot stays current.
	if err := client.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	var aKey, bKey string
	for i := 0; aKey == "" || bKey == ""; i++ {
		key := fmt.Sprintf("probe-%d", i)
		switch c.Owner(key) {
		case "n1":
			if aKey == "" {
				aKey = key
			}
		case "n2":
			if bKey == "" {
				bKey = key
			}
		}
	}
	c.Seed(aKey, "1")
	c.Seed(bKey, "2")
	c.Fail("n2")

	removed, err := client.MDel(ctx, aKey, bKey)

	var partial *executor.PartialBatchFailure
	if !errors.As(err, &partial) {
		t.Fatalf("MDel() error = %v, want PartialBatchFailure", err)
	}
	if removed != 1 {
		t.Errorf("MDel() = %d, want 1 from the surviving node", removed)
	}
}

func TestMGetSlot(t *testing.T) {
	c := transporttest.NewCluster(3)
	c.Seed("{user:9}name", "carol")
	c.Seed("{user:9}role", "admin")
	client := newTestClient(t, c)
	ctx := context.Background()

	values, err := client.MGetSlot(ctx, "{user:9}name", "{user:9}role", "{user:9}ghost")
	if err != nil {
		t.Fatalf("MGetSlot() error = %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("MGetSlot() returned %d values, want 3", len(values))
	}
	if !values[0].Found || values[0].Data != "carol" {
		t.Errorf("values[0] = %+v, want carol", values[0])
	}
	if !values[1].Found || values[1].Data != "admin" {
		t.Errorf("values[1] = %+v, want admin", values[1])
	}
	if values[2].Found {
		t.Errorf("values[2] = %+v, want missing", values[2])
	}

	// Keys on different slots are rejected before any I/O.
	if _, err := client.MGetSlot(ctx, "alpha", "omega"); !errors.Is(err, cluster.ErrCrossSlotKeys) {
		t.Errorf("MGetSlot() cross-slot error = %v, want ErrCrossSlotKeys", err)
	}
}

func TestMDelSlot(t *testing.T) {
	c := transporttest.NewCluster(2)
	c.Seed("{job:3}state", "done")
	c.Seed("{job:3}result", "ok")
	client := newTestClient(t, c)
	ctx := context.Background()

	removed, err := client.MDelSlot(ctx, "{job:3}state", "{job:3}result")
	if err != nil {
		t.Fatalf("MDelSlot() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("MDelSlot() = %d, want 2", removed)
	}

	if _, err := client.MDelSlot(ctx, "alpha", "omega"); !errors.Is(err, cluster.ErrCrossSlotKeys) {
		t.Errorf("MDelSlot() cross-slot error = %v, want ErrCrossSlotKeys", err)
	}
}

func TestGet_SurvivesSlotMigration(t *testing.T) {
	c := transporttest.NewCluster(3)
	c.Seed("k", "v")
	client := newTestClient(t, c)
	ctx := context.Background()

	// Hold a pre-move snapshot, then migrate the slot.
	if err := client.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	oldOwner := c.Owner("k")
	var newOwner string
	for _, n := range c.Descriptors() {
		if n.IsMaster() && n.ID != oldOwner {
			newOwner = n.ID
			break
		}
	}
	c.MoveSlot(cluster.SlotForKeyString("k"), newOwner)

	got, found, err := client.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() after migration error = %v", err)
	}
	if !found || got != "v" {
		t.Errorf("Get() after migration = %q, %v; want v, true", got, found)
	}
}

func TestRouteHelpers(t *testing.T) {
	c := transporttest.NewCluster(3)
	client := newTestClient(t, c)
	ctx := context.Background()

	node, err := client.Route(ctx, "k")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if node.ID != c.Owner("k") {
		t.Errorf("Route() = %s, want owner %s", node.ID, c.Owner("k"))
	}

	if _, err := client.RouteKeys(ctx, "{t}a", "{t}b"); err != nil {
		t.Errorf("RouteKeys() same-slot error = %v", err)
	}
	if _, err := client.RouteKeys(ctx, "alpha", "omega"); !errors.Is(err, cluster.ErrCrossSlotKeys) {
		t.Errorf("RouteKeys() cross-slot error = %v, want ErrCrossSlotKeys", err)
	}
}

func TestWithConn(t *testing.T) {
	c := transporttest.NewCluster(2)
	c.Seed("k", "v")
	client := newTestClient(t, c)
	ctx := context.Background()

	node, err := client.Route(ctx, "k")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}

	var status string
	err = client.WithConn(ctx, node, func(conn transport.Conn) error {
		reply, err := conn.Do(ctx, &transport.CommandRequest{Verb: "PING"})
		if err != nil {
			return err
		}
		status = string(reply.Value)
		return nil
	})
	if err != nil {
		t.Fatalf("WithConn() error = %v", err)
	}
	if status != "PONG" {
		t.Errorf("raw PING = %q, want PONG", status)
	}

	// Unknown nodes are rejected before borrowing.
	err = client.WithConn(ctx, cluster.NodeDescriptor{ID: "n99"}, func(transport.Conn) error { return nil })
	if !errors.Is(err, cluster.ErrNodeNotFound) {
		t.Errorf("WithConn() unknown node error = %v, want ErrNodeNotFound", err)
	}
}

func TestPoolPrunedOnTopologySwap(t *testing.T) {
	c := transporttest.NewCluster(3)
	c.Seed("k", "v")
	client := newTestClient(t, c)
	ctx := context.Background()

	if _, _, err := client.Get(ctx, "k"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(client.PoolStats()) == 0 {
		t.Fatal("expected a pool for the serving master")
	}

	// Refresh with an unchanged topology keeps the pools alive.
	if err := client.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(client.PoolStats()) == 0 {
		t.Error("expected pools to survive a same-topology swap")
	}
}
