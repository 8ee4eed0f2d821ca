package transport

import (
	"encoding/json"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
)

// MessageType represents the type of wire message
type MessageType uint8

const (
	// Control messages
	MsgHandshake MessageType = iota
	MsgHandshakeAck

	// Command messages
	MsgCommand
	MsgReply

	// Topology messages
	MsgTopology
	MsgTopologyReply

	// Error messages
	MsgError
)

// Message is the base wire message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      []byte      `json:"data,omitempty"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
		Data:      dataBytes,
	}, nil
}

// Decode decodes message data into the provided value
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// ProtocolVersion is negotiated during the handshake. Nodes reject
// clients speaking a newer protocol than they understand.
const ProtocolVersion = 1

// HandshakeRequest identifies the client to a node
type HandshakeRequest struct {
	ClientID        string `json:"client_id"`
	Token           string `json:"token,omitempty"`
	ProtocolVersion int    `json:"protocol_version"`
}

// HandshakeResponse carries the node's accept/reject decision
type HandshakeResponse struct {
	Accepted bool   `json:"accepted"`
	NodeID   string `json:"node_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Reply status values
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusMoved = "moved"
	StatusAsk   = "ask"
)

// CommandRequest is a single key-value command sent to a node
type CommandRequest struct {
	ID   string   `json:"id"`
	Verb string   `json:"verb"`
	Args [][]byte `json:"args,omitempty"`
}

// Key returns the first argument, which keyed verbs treat as the key
func (r *CommandRequest) Key() []byte {
	if len(r.Args) == 0 {
		return nil
	}
	return r.Args[0]
}

// CommandReply is the outcome of a single command
type CommandReply struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Value  []byte   `json:"value,omitempty"`
	Values [][]byte `json:"values,omitempty"`
	Number int64    `json:"number,omitempty"`
	Error  string   `json:"error,omitempty"`

	// Redirect target, set when Status is moved or ask
	Slot int    `json:"slot,omitempty"`
	Addr string `json:"addr,omitempty"`
}

// TopologyRequest asks a node for its view of the cluster
type TopologyRequest struct{}

// TopologyReply carries a node's full node table
type TopologyReply struct {
	Nodes []cluster.NodeDescriptor `json:"nodes"`
}

// ErrorReply is the payload of MsgError messages
type ErrorReply struct {
	Message string `json:"message"`
}

// encodeMessage serializes a message for transports that do their own
// framing.
func encodeMessage(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// decodeMessage is the inverse of encodeMessage
func decodeMessage(data []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
