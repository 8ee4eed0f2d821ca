package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
)

var (
	ErrNoNodes       = errors.New("no nodes to execute against")
	ErrNilHandler    = errors.New("nil callback")
	ErrNilProvider   = errors.New("topology provider is required")
	ErrNilPools      = errors.New("connection pool provider is required")
	ErrExecutorDown  = errors.New("executor closed")
	ErrCallbackPanic = errors.New("callback panicked")
	ErrValueCount    = errors.New("callback returned wrong number of values")
)

// RedirectLimitExceededError reports that a routed execution chased
// more moved/ask signals than the redirect budget allows.
type RedirectLimitExceededError struct {
	// Node is the last node tried.
	Node cluster.NodeDescriptor

	// Attempts counts command attempts, including the first.
	Attempts int

	// Err is the final redirect signal.
	Err error
}

func (e *RedirectLimitExceededError) Error() string {
	return fmt.Sprintf("redirect limit exceeded after %d attempts, last node %s: %v",
		e.Attempts, e.Node.Addr, e.Err)
}

func (e *RedirectLimitExceededError) Unwrap() error {
	return e.Err
}

// NodeFailure pairs a node with the error its task produced.
type NodeFailure struct {
	Node cluster.NodeDescriptor
	Err  error
}

// PartialBatchFailure aggregates the failed entries of a fan-out. It
// is returned when every node failed, or by reducers the caller uses
// to demand all-success semantics.
type PartialBatchFailure struct {
	// Total is the number of nodes the batch ran against.
	Total    int
	Failures []NodeFailure
}

func (e *PartialBatchFailure) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d node tasks failed", len(e.Failures), e.Total)
	for _, f := range e.Failures {
		fmt.Fprintf(&sb, "; %s: %v", f.Node.Addr, f.Err)
	}
	return sb.String()
}

// Unwrap exposes every per-node cause to errors.Is and errors.As.
func (e *PartialBatchFailure) Unwrap() []error {
	causes := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		causes = append(causes, f.Err)
	}
	return causes
}
