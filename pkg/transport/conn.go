package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
	"github.com/google/uuid"
)

// Conn is a single logical connection to one cluster node. All methods
// return typed errors for redirects so callers can inspect them with
// errors.As.
type Conn interface {
	// Do sends a command and waits for the node's reply. Redirect
	// statuses surface as *MovedError and *AskError, command failures
	// as *RemoteError.
	Do(ctx context.Context, req *CommandRequest) (*CommandReply, error)

	// Topology asks the node for its current view of the cluster.
	Topology(ctx context.Context) ([]cluster.NodeDescriptor, error)

	// Addr reports the node this connection is bound to.
	Addr() cluster.NodeAddress

	// Healthy reports whether the connection can still carry requests.
	Healthy() bool

	io.Closer
}

// ConnDialer opens connections to cluster nodes.
type ConnDialer interface {
	Dial(ctx context.Context, addr cluster.NodeAddress) (Conn, error)
}

// tcpConn speaks the framed protocol over a TCP stream.
//
// Concurrent Safety:
// 1. mu serializes the request/reply exchange; one command is in
//    flight per connection at a time
// 2. broken is atomic so Healthy and Close are lock-free
// 3. Any I/O or framing failure poisons the stream state, so the
//    connection is closed rather than resynchronized
type tcpConn struct {
	addr     cluster.NodeAddress
	conn     net.Conn
	compress bool

	mu     sync.Mutex
	broken atomic.Bool

	logger  logging.Logger
	metrics *metrics.Registry
}

func (c *tcpConn) Addr() cluster.NodeAddress {
	return c.addr
}

func (c *tcpConn) Healthy() bool {
	return !c.broken.Load()
}

// Close shuts the connection down. It is safe to call more than once.
func (c *tcpConn) Close() error {
	if !c.broken.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

// fail poisons the connection after an I/O error
func (c *tcpConn) fail(op string, err error) {
	if c.broken.CompareAndSwap(false, true) {
		c.conn.Close()
		c.logger.Debug("connection failed",
			logging.Addr(c.addr.String()),
			logging.Operation(op),
			logging.Error(err))
	}
}

// roundtrip writes one message and reads one reply under the lock.
// Context deadlines map onto socket deadlines; cancellation without a
// deadline is observed before the exchange starts.
func (c *tcpConn) roundtrip(ctx context.Context, msg *Message) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.broken.Load() {
		return nil, ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken.Load() {
		return nil, ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.fail("set_deadline", err)
		return nil, err
	}

	sent, compressed, err := WriteMessage(c.conn, msg, c.compress)
	if err != nil {
		c.fail("write", err)
		c.metrics.TransportRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.TransportBytesSent.Add(float64(sent))
	if compressed {
		c.metrics.TransportFramesCompressed.Inc()
	}

	reply, received, err := ReadMessage(c.conn)
	if err != nil {
		c.fail("read", err)
		c.metrics.TransportRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.TransportBytesReceived.Add(float64(received))
	c.metrics.TransportRequestsTotal.WithLabelValues("ok").Inc()

	return reply, nil
}

func (c *tcpConn) Do(ctx context.Context, req *CommandRequest) (*CommandReply, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	msg, err := NewMessage(MsgCommand, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.roundtrip(ctx, msg)
	if err != nil {
		return nil, err
	}
	if resp.Type != MsgReply {
		c.fail("decode", ErrUnexpectedType)
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedType, resp.Type, MsgReply)
	}

	var reply CommandReply
	if err := resp.Decode(&reply); err != nil {
		c.fail("decode", err)
		return nil, err
	}
	if reply.ID != req.ID {
		// A mismatched ID means the stream carries a reply to some
		// other request; there is no way to recover the pairing.
		c.fail("decode", ErrReplyMismatch)
		return nil, fmt.Errorf("%w: got %q, want %q", ErrReplyMismatch, reply.ID, req.ID)
	}

	return decodeReplyStatus(&reply)
}

// decodeReplyStatus maps reply statuses onto the typed error surface
func decodeReplyStatus(reply *CommandReply) (*CommandReply, error) {
	switch reply.Status {
	case StatusOK:
		return reply, nil
	case StatusMoved:
		addr, err := cluster.ParseNodeAddress(reply.Addr)
		if err != nil {
			return nil, fmt.Errorf("invalid moved target %q: %w", reply.Addr, err)
		}
		return nil, &MovedError{Slot: reply.Slot, Addr: addr}
	case StatusAsk:
		addr, err := cluster.ParseNodeAddress(reply.Addr)
		if err != nil {
			return nil, fmt.Errorf("invalid ask target %q: %w", reply.Addr, err)
		}
		return nil, &AskError{Slot: reply.Slot, Addr: addr}
	case StatusError:
		return nil, &RemoteError{Message: reply.Error}
	default:
		return nil, fmt.Errorf("%w: status %q", ErrUnexpectedType, reply.Status)
	}
}

func (c *tcpConn) Topology(ctx context.Context) ([]cluster.NodeDescriptor, error) {
	msg, err := NewMessage(MsgTopology, TopologyRequest{})
	if err != nil {
		return nil, err
	}

	resp, err := c.roundtrip(ctx, msg)
	if err != nil {
		return nil, err
	}

	switch resp.Type {
	case MsgTopologyReply:
		var reply TopologyReply
		if err := resp.Decode(&reply); err != nil {
			c.fail("decode", err)
			return nil, err
		}
		return reply.Nodes, nil
	case MsgError:
		var remote ErrorReply
		if err := resp.Decode(&remote); err != nil {
			c.fail("decode", err)
			return nil, err
		}
		return nil, &RemoteError{Message: remote.Message}
	default:
		c.fail("decode", ErrUnexpectedType)
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedType, resp.Type, MsgTopologyReply)
	}
}
