//go:build nng
// +build nng

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
	"github.com/google/uuid"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/req"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

func init() {
	dialerBuilders[ProtocolNNG] = func(config DialerConfig) ConnDialer {
		return NewNNGDialer(config)
	}
}

// nngSocket wraps a mangos.Socket to implement the Socket interface.
type nngSocket struct {
	sock mangos.Socket
}

func (s *nngSocket) Send(data []byte) error {
	return s.sock.Send(data)
}

func (s *nngSocket) Recv() ([]byte, error) {
	return s.sock.Recv()
}

func (s *nngSocket) Close() error {
	return s.sock.Close()
}

func (s *nngSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionRecvDeadline, d)
}

func (s *nngSocket) SetSendDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionSendDeadline, d)
}

// NNGDialer opens REQ sockets to cluster nodes over NNG.
type NNGDialer struct {
	config  DialerConfig
	metrics *metrics.Registry
}

var _ ConnDialer = (*NNGDialer)(nil)

// NewNNGDialer creates an NNG-backed dialer, filling config defaults
func NewNNGDialer(config DialerConfig) *NNGDialer {
	if config.ClientID == "" {
		config.ClientID = "kvclient-" + uuid.New().String()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultDialerConfig().ConnectTimeout
	}
	return &NNGDialer{
		config:  config,
		metrics: metrics.DefaultRegistry(),
	}
}

// Dial connects a REQ socket to addr and performs the handshake
func (d *NNGDialer) Dial(ctx context.Context, addr cluster.NodeAddress) (Conn, error) {
	sock, err := req.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.Dial("tcp://" + addr.String()); err != nil {
		sock.Close()
		d.metrics.TransportConnectsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	d.metrics.TransportConnectsTotal.WithLabelValues("ok").Inc()

	return newSocketConn(ctx, addr, &nngSocket{sock: sock}, d.config)
}
