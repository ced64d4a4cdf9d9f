// Package mcwire defines the decoded-frame transport the relay runs on. The
// real wire codec and the auth/encryption handshake live in an external
// sidecar; this package only shuttles already-decoded frames and the
// per-connection protocol state.
package mcwire

import "encoding/json"

// State is the coarse protocol phase of a connection, used as the
// forwarding guard.
type State string

const (
	StateHandshake State = "handshake"
	StateStatus    State = "status"
	StateLogin     State = "login"
	StatePlay      State = "play"
)

// Frame is one decoded protocol frame. Data is opaque to the relay except for
// chat frames.
type Frame struct {
	Name  string          `json:"name"`
	State State           `json:"state"`
	Data  json.RawMessage `json:"data"`
}

// FrameChat is the name of chat frames in both directions.
const FrameChat = "chat"

type FrameCallback func(*Frame)

type ErrorCallback func(error)

type EndCallback func()

// Conn is one side of a relayed session. Callbacks must be registered before
// Start; they are dispatched synchronously on the connection's read loop.
type Conn interface {
	OnFrame(cb FrameCallback)
	OnError(cb ErrorCallback)
	OnEnd(cb EndCallback)

	Start()
	WriteFrame(f *Frame) error
	State() State
	Username() string
	Close() error
}
