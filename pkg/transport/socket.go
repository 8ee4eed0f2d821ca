package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
	"github.com/google/uuid"
)

// Socket is a message-oriented request socket with transport-native
// framing. Implementations for NNG and ZeroMQ live behind the nng and
// zmq build tags; tests supply in-memory fakes.
type Socket interface {
	io.Closer
	Send([]byte) error
	Recv() ([]byte, error)
	SetSendDeadline(d time.Duration) error
	SetRecvDeadline(d time.Duration) error
}

// sockConn adapts a Socket to the Conn interface. Message payloads are
// the same JSON envelope the TCP transport frames; the socket's own
// framing replaces the length prefix.
//
// Concurrent Safety:
// 1. mu serializes the request/reply exchange
// 2. broken is atomic so Healthy and Close are lock-free
type sockConn struct {
	addr cluster.NodeAddress
	sock Socket

	mu     sync.Mutex
	broken atomic.Bool

	logger  logging.Logger
	metrics *metrics.Registry
}

// newSocketConn wraps an already-dialed socket and performs the
// protocol handshake on it.
func newSocketConn(ctx context.Context, addr cluster.NodeAddress, sock Socket, config DialerConfig) (*sockConn, error) {
	c := &sockConn{
		addr:    addr,
		sock:    sock,
		logger:  logging.DefaultLogger().With(logging.Component("transport")),
		metrics: metrics.DefaultRegistry(),
	}

	if err := c.handshake(ctx, config); err != nil {
		sock.Close()
		c.metrics.TransportHandshakesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("handshake with %s: %w", addr, err)
	}
	c.metrics.TransportHandshakesTotal.WithLabelValues("ok").Inc()
	return c, nil
}

func (c *sockConn) Addr() cluster.NodeAddress {
	return c.addr
}

func (c *sockConn) Healthy() bool {
	return !c.broken.Load()
}

func (c *sockConn) Close() error {
	if !c.broken.CompareAndSwap(false, true) {
		return nil
	}
	return c.sock.Close()
}

func (c *sockConn) fail(op string, err error) {
	if c.broken.CompareAndSwap(false, true) {
		c.sock.Close()
		c.logger.Debug("connection failed",
			logging.Addr(c.addr.String()),
			logging.Operation(op),
			logging.Error(err))
	}
}

// roundtrip sends one encoded message and receives one reply under the
// lock. The context deadline maps onto socket send/recv deadlines.
func (c *sockConn) roundtrip(ctx context.Context, msg *Message) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.broken.Load() {
		return nil, ErrClosed
	}

	payload, err := encodeMessage(msg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken.Load() {
		return nil, ErrClosed
	}

	remaining := time.Duration(0)
	if deadline, ok := ctx.Deadline(); ok {
		remaining = time.Until(deadline)
		if remaining <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	if err := c.sock.SetSendDeadline(remaining); err != nil {
		c.fail("set_deadline", err)
		return nil, err
	}
	if err := c.sock.SetRecvDeadline(remaining); err != nil {
		c.fail("set_deadline", err)
		return nil, err
	}

	if err := c.sock.Send(payload); err != nil {
		c.fail("send", err)
		c.metrics.TransportRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.TransportBytesSent.Add(float64(len(payload)))

	raw, err := c.sock.Recv()
	if err != nil {
		c.fail("recv", err)
		c.metrics.TransportRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.TransportBytesReceived.Add(float64(len(raw)))
	c.metrics.TransportRequestsTotal.WithLabelValues("ok").Inc()

	resp, err := decodeMessage(raw)
	if err != nil {
		c.fail("decode", err)
		return nil, err
	}
	return resp, nil
}

func (c *sockConn) handshake(ctx context.Context, config DialerConfig) error {
	var token string
	if config.Tokens != nil {
		t, err := config.Tokens.Token()
		if err != nil {
			return fmt.Errorf("obtain token: %w", err)
		}
		token = t
	}

	msg, err := NewMessage(MsgHandshake, HandshakeRequest{
		ClientID:        config.ClientID,
		Token:           token,
		ProtocolVersion: ProtocolVersion,
	})
	if err != nil {
		return err
	}

	hctx := ctx
	if _, ok := ctx.Deadline(); !ok && config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	resp, err := c.roundtrip(hctx, msg)
	if err != nil {
		return err
	}
	if resp.Type != MsgHandshakeAck {
		return fmt.Errorf("%w: got %d, want %d", ErrUnexpectedType, resp.Type, MsgHandshakeAck)
	}

	var ack HandshakeResponse
	if err := resp.Decode(&ack); err != nil {
		return err
	}
	if !ack.Accepted {
		if ack.Error != "" {
			return fmt.Errorf("%w: %s", ErrHandshakeRejected, ack.Error)
		}
		return ErrHandshakeRejected
	}
	return nil
}

func (c *sockConn) Do(ctx context.Context, req *CommandRequest) (*CommandReply, error) {
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
		c.fail("decode", ErrReplyMismatch)
		return nil, fmt.Errorf("%w: got %q, want %q", ErrReplyMismatch, reply.ID, req.ID)
	}

	return decodeReplyStatus(&reply)
}

func (c *sockConn) Topology(ctx context.Context) ([]cluster.NodeDescriptor, error) {
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
