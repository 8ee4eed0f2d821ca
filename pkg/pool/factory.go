package pool

import (
	"context"

	commonspool "github.com/jolestar/go-commons-pool/v2"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
	"github.com/dd0wney/cluso-kvclient/pkg/transport"
)

// connFactory makes connections to one node for its object pool.
type connFactory struct {
	dialer  transport.ConnDialer
	addr    cluster.NodeAddress
	metrics *metrics.Registry
}

var _ commonspool.PooledObjectFactory = (*connFactory)(nil)

func (f *connFactory) MakeObject(ctx context.Context) (*commonspool.PooledObject, error) {
	conn, err := f.dialer.Dial(ctx, f.addr)
	if err != nil {
		return nil, err
	}
	f.metrics.PoolConnectionsCreated.Inc()
	return commonspool.NewPooledObject(conn), nil
}

func (f *connFactory) DestroyObject(ctx context.Context, object *commonspool.PooledObject) error {
	f.metrics.PoolConnectionsDestroyed.Inc()
	return object.Object.(transport.Conn).Close()
}

func (f *connFactory) ValidateObject(ctx context.Context, object *commonspool.PooledObject) bool {
	return object.Object.(transport.Conn).Healthy()
}

func (f *connFactory) ActivateObject(ctx context.Context, object *commonspool.PooledObject) error {
	return nil
}

func (f *connFactory) PassivateObject(ctx context.Context, object *commonspool.PooledObject) error {
	return nil
}
