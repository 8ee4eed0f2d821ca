package transport

import (
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
)

// Connection errors
var (
	ErrClosed         = errors.New("connection closed")
	ErrReplyMismatch  = errors.New("reply does not match request")
	ErrUnexpectedType = errors.New("unexpected message type")
)

// ErrUnknownProtocol is returned for a wire protocol this build does
// not include
var ErrUnknownProtocol = errors.New("unknown wire protocol")

// Frame errors
var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrFrameCorrupt  = errors.New("frame corrupt")
)

// Handshake errors
var (
	ErrHandshakeRejected = errors.New("handshake rejected")
	ErrProtocolMismatch  = errors.New("protocol version mismatch")
)

// MovedError reports that a slot has migrated to another node. The
// topology that produced the routing decision is stale and the command
// must be retried against Addr after a refresh.
type MovedError struct {
	Slot int
	Addr cluster.NodeAddress
}

func (e *MovedError) Error() string {
	return fmt.Sprintf("moved: slot %d served by %s", e.Slot, e.Addr)
}

// AskError reports that a slot is mid-migration. The command should be
// retried once against Addr without treating the topology as stale.
type AskError struct {
	Slot int
	Addr cluster.NodeAddress
}

func (e *AskError) Error() string {
	return fmt.Sprintf("ask: slot %d redirecting to %s", e.Slot, e.Addr)
}

// RemoteError is a command-level failure reported by a node. The
// connection remains usable.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}
