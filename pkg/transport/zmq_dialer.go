//go:build zmq
// +build zmq

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
)

func init() {
	dialerBuilders[ProtocolZMQ] = func(config DialerConfig) ConnDialer {
		return NewZMQDialer(config)
	}
}

// zmqSocket wraps a ZeroMQ socket to implement the Socket interface.
type zmqSocket struct {
	sock *zmq.Socket
}

func (s *zmqSocket) Send(data []byte) error {
	_, err := s.sock.SendBytes(data, 0)
	return err
}

func (s *zmqSocket) Recv() ([]byte, error) {
	return s.sock.RecvBytes(0)
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}

func (s *zmqSocket) SetRecvDeadline(d time.Duration) error {
	if d <= 0 {
		// -1 blocks forever in ZeroMQ
		d = -1
	}
	return s.sock.SetRcvtimeo(d)
}

func (s *zmqSocket) SetSendDeadline(d time.Duration) error {
	if d <= 0 {
		d = -1
	}
	return s.sock.SetSndtimeo(d)
}

// ZMQDialer opens REQ sockets to cluster nodes over ZeroMQ.
type ZMQDialer struct {
	config  DialerConfig
	metrics *metrics.Registry
}

var _ ConnDialer = (*ZMQDialer)(nil)

// NewZMQDialer creates a ZeroMQ-backed dialer, filling config defaults
func NewZMQDialer(config DialerConfig) *ZMQDialer {
	if config.ClientID == "" {
		config.ClientID = "kvclient-" + uuid.New().String()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultDialerConfig().ConnectTimeout
	}
	return &ZMQDialer{
		config:  config,
		metrics: metrics.DefaultRegistry(),
	}
}

// Dial connects a REQ socket to addr and performs the handshake
func (d *ZMQDialer) Dial(ctx context.Context, addr cluster.NodeAddress) (Conn, error) {
	sock, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return nil, fmt.Errorf("failed to create REQ socket: %w", err)
	}
	if err := sock.Connect("tcp://" + addr.String()); err != nil {
		sock.Close()
		d.metrics.TransportConnectsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	d.metrics.TransportConnectsTotal.WithLabelValues("ok").Inc()

	return newSocketConn(ctx, addr, &zmqSocket{sock: sock}, d.config)
}
