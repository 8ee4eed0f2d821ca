package e2e

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/journal"
	"github.com/dd0wney/cluso-kvclient/pkg/kv"
	"github.com/dd0wney/cluso-kvclient/pkg/transport/transporttest"
)

// startTestClient opens a client against a fresh in-memory cluster
// with a journal wired into the topology and command paths.
func startTestClient(t *testing.T, masters int) (*kv.Client, *transporttest.Cluster, *journal.Journal) {
	t.Helper()

	fake := transporttest.NewCluster(masters)
	jnl := journal.New(256)

	seeds := make([]string, 0, masters)
	for _, addr := range fake.Seeds() {
		seeds = append(seeds, addr.String())
	}

	client, err := kv.Open(kv.Options{
		Seeds:       seeds,
		TopologyTTL: time.Hour,
		Dialer:      fake.Dialer(),
		Source:      fake.Source(),
		EventSink:   jnl,
		Observer:    jnl,
	})
	require.NoError(t, err, "client should open against the fake cluster")

	t.Cleanup(client.Close)
	return client, fake, jnl
}

// TestCompleteClientWorkflow walks one client through its whole life:
// discovery, writes, reads, batches, deletes, and a slot migration.
func TestCompleteClientWorkflow(t *testing.T) {
	client, fake, jnl := startTestClient(t, 3)
	ctx := context.Background()

	t.Log("=== E2E Test: Complete Client Workflow ===")

	// Step 1: Discover the cluster
	t.Log("Step 1: Discovering topology...")
	require.NoError(t, client.Refresh(ctx), "initial refresh should succeed")

	topo, err := client.Topology(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, topo.MasterCount(), "should discover all masters")
	assert.True(t, topo.Coverage().Full(), "every slot should be served")
	t.Logf("  ✓ Discovered %d masters, full slot coverage", topo.MasterCount())

	// Step 2: Write keys
	t.Log("Step 2: Writing keys...")
	values := map[string]string{
		"user:1": "alice",
		"user:2": "bob",
		"user:3": "carol",
		"user:4": "dave",
		"user:5": "erin",
	}
	for k, v := range values {
		require.NoError(t, client.Set(ctx, k, v), "Set(%s) should succeed", k)
	}
	t.Logf("  ✓ Wrote %d keys", len(values))

	// Step 3: Read them back
	t.Log("Step 3: Reading keys back...")
	for k, want := range values {
		got, found, err := client.Get(ctx, k)
		require.NoError(t, err, "Get(%s) should succeed", k)
		require.True(t, found, "Get(%s) should find the key", k)
		assert.Equal(t, want, got, "Get(%s) should return what was written", k)
	}
	t.Log("  ✓ All keys read back")

	// Step 4: Existence and size
	t.Log("Step 4: Checking existence and size...")
	exists, err := client.Exists(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, exists, "user:1 should exist")

	_, found, err := client.Get(ctx, "user:999")
	require.NoError(t, err)
	assert.False(t, found, "user:999 should not exist")

	size, err := client.DBSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len(values), size, "DBSize should count every key")
	t.Logf("  ✓ DBSize = %d", size)

	// Step 5: Batch operations
	t.Log("Step 5: Batch reads and deletes...")
	batch, err := client.MGet(ctx, "user:1", "user:2", "user:3")
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, k := range []string{"user:1", "user:2", "user:3"} {
		require.True(t, batch[i].Found, "MGet should find %s", k)
		assert.Equal(t, values[k], batch[i].Data)
	}

	removed, err := client.MDel(ctx, "user:4", "user:5")
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed, "MDel should remove both keys")

	size, err = client.DBSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, size, "DBSize should shrink after MDel")
	t.Log("  ✓ Batch reads and deletes verified")

	// Step 6: Slot migration. Move user:3's slot to another master and
	// check the client follows the redirect.
	t.Log("Step 6: Moving a slot under the client...")
	slot := cluster.SlotForKeyString("user:3")
	oldOwner := fake.Owner("user:3")
	var target string
	for _, m := range topo.Masters() {
		if m.ID != oldOwner {
			target = m.ID
			break
		}
	}
	require.NotEmpty(t, target, "need a second master to move the slot to")
	fake.MoveSlot(slot, target)

	got, found, err := client.Get(ctx, "user:3")
	require.NoError(t, err, "Get should chase the moved redirect")
	require.True(t, found)
	assert.Equal(t, "carol", got)
	assert.Equal(t, target, fake.Owner("user:3"), "slot should live on the new master")
	t.Logf("  ✓ Slot %d moved %s -> %s, read still succeeds", slot, oldOwner, target)

	// Step 7: The journal saw it all
	t.Log("Step 7: Checking the journal...")
	swaps := jnl.Events(&journal.Filter{Type: journal.EventTopologySwap})
	assert.NotEmpty(t, swaps, "refresh should record a topology swap")

	redirects := jnl.Events(&journal.Filter{Type: journal.EventRedirect})
	require.NotEmpty(t, redirects, "moved redirect should be journaled")
	assert.Equal(t, "moved", redirects[0].Detail)
	t.Logf("  ✓ Journal holds %d events", jnl.Count())

	t.Log("=== E2E Test: PASSED ===")
}

// TestConcurrentClientOperations runs many goroutines against one
// client and checks every write landed.
func TestConcurrentClientOperations(t *testing.T) {
	client, fake, _ := startTestClient(t, 3)
	ctx := context.Background()

	require.NoError(t, client.Refresh(ctx))

	t.Log("=== E2E Test: Concurrent Operations ===")

	numWorkers := 10
	keysPerWorker := 20

	var wg sync.WaitGroup
	errCh := make(chan error, numWorkers)

	t.Logf("Spawning %d workers, each writing %d keys...", numWorkers, keysPerWorker)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		workerID := i

		go func() {
			defer wg.Done()

			for j := 0; j < keysPerWorker; j++ {
				key := fmt.Sprintf("load:w%d:k%d", workerID, j)
				value := fmt.Sprintf("value-%d-%d", workerID, j)

				if err := client.Set(ctx, key, value); err != nil {
					errCh <- fmt.Errorf("worker %d: set %s: %w", workerID, key, err)
					return
				}

				got, found, err := client.Get(ctx, key)
				if err != nil {
					errCh <- fmt.Errorf("worker %d: get %s: %w", workerID, key, err)
					return
				}
				if !found || got != value {
					errCh <- fmt.Errorf("worker %d: get %s = %q, %v; want %q", workerID, key, got, found, value)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)

	var errList []error
	for err := range errCh {
		errList = append(errList, err)
	}
	require.Empty(t, errList, "concurrent operations should succeed")

	expected := numWorkers * keysPerWorker
	size, err := client.DBSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, expected, size, "every written key should be counted")

	// Spot-check storage directly, bypassing the protocol.
	v, ok := fake.Lookup("load:w0:k0")
	assert.True(t, ok)
	assert.Equal(t, "value-0-0", v)

	t.Logf("✓ %d keys written and verified concurrently", expected)
	t.Log("=== E2E Test: Concurrent Operations PASSED ===")
}

// TestNodeFailureRecovery fails a master under a connected client and
// checks that other shards keep serving and the failed shard recovers.
func TestNodeFailureRecovery(t *testing.T) {
	client, fake, jnl := startTestClient(t, 3)
	ctx := context.Background()

	require.NoError(t, client.Refresh(ctx))

	t.Log("=== E2E Test: Node Failure and Recovery ===")

	// Find two keys living on different masters.
	var k1, k2, owner1 string
	for i := 0; k2 == ""; i++ {
		key := fmt.Sprintf("failover:%d", i)
		owner := fake.Owner(key)
		switch {
		case k1 == "":
			k1, owner1 = key, owner
		case owner != owner1:
			k2 = key
		}
	}

	require.NoError(t, client.Set(ctx, k1, "on-failing-shard"))
	require.NoError(t, client.Set(ctx, k2, "on-healthy-shard"))

	t.Logf("Step 1: Failing master %s...", owner1)
	fake.Fail(owner1)

	// The healthy shard keeps serving.
	got, found, err := client.Get(ctx, k2)
	require.NoError(t, err, "healthy shard should keep serving")
	require.True(t, found)
	assert.Equal(t, "on-healthy-shard", got)
	t.Log("  ✓ Healthy shard unaffected")

	// The failed shard surfaces an error and lands in the journal.
	_, _, err = client.Get(ctx, k1)
	require.Error(t, err, "failed shard should surface an error")

	failures := jnl.Events(&journal.Filter{Type: journal.EventNodeError})
	assert.NotEmpty(t, failures, "node failure should be journaled")
	t.Log("  ✓ Failure surfaced and journaled")

	t.Logf("Step 2: Healing master %s...", owner1)
	fake.Heal(owner1)

	got, found, err = client.Get(ctx, k1)
	require.NoError(t, err, "healed shard should serve again")
	require.True(t, found)
	assert.Equal(t, "on-failing-shard", got)
	t.Log("  ✓ Healed shard serves again")

	t.Log("=== E2E Test: Node Failure and Recovery PASSED ===")
}
