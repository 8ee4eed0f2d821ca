package kv

import (
	"context"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/executor"
	"github.com/dd0wney/cluso-kvclient/pkg/transport"
)

// Value is one entry of a multi-key read. Found distinguishes a
// missing key from an empty value.
type Value struct {
	Data  string
	Found bool
}

// Get reads a key from the master serving its slot. The second return
// is false when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	result := executor.OnKey(ctx, c.exec, []byte(key), func(ctx context.Context, conn transport.Conn) (Value, error) {
		reply, err := conn.Do(ctx, &transport.CommandRequest{
			Verb: "GET",
			Args: [][]byte{[]byte(key)},
		})
		if err != nil {
			return Value{}, err
		}
		if reply.Number == 0 {
			return Value{}, nil
		}
		return Value{Data: string(reply.Value), Found: true}, nil
	})
	if result.Err != nil {
		return "", false, result.Err
	}
	return result.Value.Data, result.Value.Found, nil
}

// Set writes a key on the master serving its slot
func (c *Client) Set(ctx context.Context, key, value string) error {
	result := executor.OnKey(ctx, c.exec, []byte(key), func(ctx context.Context, conn transport.Conn) (struct{}, error) {
		_, err := conn.Do(ctx, &transport.CommandRequest{
			Verb: "SET",
			Args: [][]byte{[]byte(key), []byte(value)},
		})
		return struct{}{}, err
	})
	return result.Err
}

// Exists reports whether a key is present
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	result := executor.OnKey(ctx, c.exec, []byte(key), func(ctx context.Context, conn transport.Conn) (bool, error) {
		reply, err := conn.Do(ctx, &transport.CommandRequest{
			Verb: "EXISTS",
			Args: [][]byte{[]byte(key)},
		})
		if err != nil {
			return false, err
		}
		return reply.Number > 0, nil
	})
	return result.Value, result.Err
}

// Del removes a single key, reporting whether it existed
func (c *Client) Del(ctx context.Context, key string) (bool, error) {
	result := executor.OnKey(ctx, c.exec, []byte(key), func(ctx context.Context, conn transport.Conn) (bool, error) {
		reply, err := conn.Do(ctx, &transport.CommandRequest{
			Verb: "DEL",
			Args: [][]byte{[]byte(key)},
		})
		if err != nil {
			return false, err
		}
		return reply.Number > 0, nil
	})
	return result.Value, result.Err
}

// Ping round-trips a command on an arbitrary node and returns the
// address that answered
func (c *Client) Ping(ctx context.Context) (cluster.NodeAddress, error) {
	result := executor.OnArbitraryNode(ctx, c.exec, func(ctx context.Context, conn transport.Conn) (struct{}, error) {
		_, err := conn.Do(ctx, &transport.CommandRequest{Verb: "PING"})
		return struct{}{}, err
	})
	return result.Node.Addr, result.Err
}

// DBSize sums the key count across every master. Any node failure
// fails the call, since a partial sum would understate the total.
func (c *Client) DBSize(ctx context.Context) (int64, error) {
	batch, err := executor.OnAllMasters(ctx, c.exec, func(ctx context.Context, conn transport.Conn) (int64, error) {
		reply, err := conn.Do(ctx, &transport.CommandRequest{Verb: "DBSIZE"})
		if err != nil {
			return 0, err
		}
		return reply.Number, nil
	})
	if err != nil {
		return 0, err
	}
	counts, err := batch.Values()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// FlushAll clears every master. Any node failure fails the call; the
// nodes that were reached stay flushed.
func (c *Client) FlushAll(ctx context.Context) error {
	batch, err := executor.OnAllMasters(ctx, c.exec, func(ctx context.Context, conn transport.Conn) (struct{}, error) {
		_, err := conn.Do(ctx, &transport.CommandRequest{Verb: "FLUSHALL"})
		return struct{}{}, err
	})
	if err != nil {
		return err
	}
	_, err = batch.Values()
	return err
}

// MGet reads many keys in one fan-out, one task per serving node, and
// returns values in the caller's key order. Groups whose keys share a
// slot go out as one MGET; mixed-slot groups fall back to per-key
// reads on the same connection. Any group failure fails the call.
func (c *Client) MGet(ctx context.Context, keys ...string) ([]Value, error) {
	batch, err := executor.MultiKey(ctx, c.exec, byteKeys(keys), mgetGroup)
	if err != nil {
		return nil, err
	}
	return batch.ValuesByKey()
}

// mgetGroup reads one node's share of an MGet
func mgetGroup(ctx context.Context, conn transport.Conn, keys [][]byte) ([]Value, error) {
	if _, err := cluster.SlotForKeys(keys...); err == nil {
		reply, err := conn.Do(ctx, &transport.CommandRequest{Verb: "MGET", Args: keys})
		if err != nil {
			return nil, err
		}
		values := make([]Value, len(reply.Values))
		for i, raw := range reply.Values {
			if raw != nil {
				values[i] = Value{Data: string(raw), Found: true}
			}
		}
		return values, nil
	}

	values := make([]Value, 0, len(keys))
	for _, key := range keys {
		reply, err := conn.Do(ctx, &transport.CommandRequest{
			Verb: "GET",
			Args: [][]byte{key},
		})
		if err != nil {
			return nil, err
		}
		value := Value{}
		if reply.Number > 0 {
			value = Value{Data: string(reply.Value), Found: true}
		}
		values = append(values, value)
	}
	return values, nil
}

// MDel removes many keys in one fan-out and returns how many existed.
// A partial failure returns the count from the groups that succeeded
// alongside the batch error.
func (c *Client) MDel(ctx context.Context, keys ...string) (int64, error) {
	batch, err := executor.MultiKey(ctx, c.exec, byteKeys(keys), delGroup)
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, result := range batch.Results {
		if result.Err != nil {
			continue
		}
		for _, gone := range result.Value {
			if gone {
				removed++
			}
		}
	}
	if failures := batch.Failures(); len(failures) > 0 {
		return removed, &executor.PartialBatchFailure{Total: batch.Len(), Failures: failures}
	}
	return removed, nil
}

// delGroup removes one node's share of an MDel, one DEL per key so
// each key reports its own fate
func delGroup(ctx context.Context, conn transport.Conn, keys [][]byte) ([]bool, error) {
	removed := make([]bool, 0, len(keys))
	for _, key := range keys {
		reply, err := conn.Do(ctx, &transport.CommandRequest{
			Verb: "DEL",
			Args: [][]byte{key},
		})
		if err != nil {
			return nil, err
		}
		removed = append(removed, reply.Number > 0)
	}
	return removed, nil
}

// MGetSlot reads many keys with a single MGET against the one master
// serving them. Keys hashing to different slots are rejected with
// cluster.ErrCrossSlotKeys before any I/O.
func (c *Client) MGetSlot(ctx context.Context, keys ...string) ([]Value, error) {
	bs := byteKeys(keys)
	node, err := c.exec.RouteKeys(ctx, bs...)
	if err != nil {
		return nil, err
	}
	result := executor.OnSingleNode(ctx, c.exec, node, func(ctx context.Context, conn transport.Conn) ([]Value, error) {
		reply, err := conn.Do(ctx, &transport.CommandRequest{Verb: "MGET", Args: bs})
		if err != nil {
			return nil, err
		}
		values := make([]Value, len(reply.Values))
		for i, raw := range reply.Values {
			if raw != nil {
				values[i] = Value{Data: string(raw), Found: true}
			}
		}
		return values, nil
	})
	return result.Value, result.Err
}

// MDelSlot removes many keys with a single MDEL against the one master
// serving them. Keys hashing to different slots are rejected with
// cluster.ErrCrossSlotKeys before any I/O.
func (c *Client) MDelSlot(ctx context.Context, keys ...string) (int64, error) {
	bs := byteKeys(keys)
	node, err := c.exec.RouteKeys(ctx, bs...)
	if err != nil {
		return 0, err
	}
	result := executor.OnSingleNode(ctx, c.exec, node, func(ctx context.Context, conn transport.Conn) (int64, error) {
		reply, err := conn.Do(ctx, &transport.CommandRequest{Verb: "MDEL", Args: bs})
		if err != nil {
			return 0, err
		}
		return reply.Number, nil
	})
	return result.Value, result.Err
}
