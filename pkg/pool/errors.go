package pool

import (
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
)

var (
	ErrProviderClosed = errors.New("pool provider closed")
)

// NodeUnavailableError reports that a node's connection pool could not
// produce a usable connection.
type NodeUnavailableError struct {
	Addr cluster.NodeAddress
	Err  error
}

func (e *NodeUnavailableError) Error() string {
	return fmt.Sprintf("node %s unavailable: %v", e.Addr, e.Err)
}

func (e *NodeUnavailableError) Unwrap() error {
	return e.Err
}
