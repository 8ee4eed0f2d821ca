package transport

import (
	"context"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
)

// Source fetches cluster topology by asking a node directly. Each
// fetch uses a short-lived connection so topology refresh never
// competes with command traffic for a stream.
type Source struct {
	dialer ConnDialer
}

var _ cluster.TopologySource = (*Source)(nil)

// NewSource creates a topology source backed by dialer
func NewSource(dialer ConnDialer) *Source {
	return &Source{dialer: dialer}
}

// FetchTopology connects to addr, retrieves its cluster view, and
// closes the connection.
func (s *Source) FetchTopology(ctx context.Context, addr cluster.NodeAddress) ([]cluster.NodeDescriptor, error) {
	conn, err := s.dialer.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.Topology(ctx)
}
