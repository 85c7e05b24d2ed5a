package ws

import "time"

// Operation codes for WebSocket messages
type OpCode int

// ProtocolVersion is the exact server/client WS protocol version.
// Bump this only for breaking wire-contract changes.
const ProtocolVersion = 1

const (
	// DISPATCH - hint events with type field
	OpDispatch OpCode = 0

	// Lifecycle ops (Server -> Client)
	OpHello          OpCode = 1 // Sent on connection
	OpReady          OpCode = 2 // Sent after the client is registered
	OpInvalidSession OpCode = 3 // Session closed by the server
)

// Event types (Server -> Client via DISPATCH). Events are hints: clients
// react by refetching over HTTP, never by applying the payload as state.
const (
	EventMessageCreate = "MESSAGE_CREATE"
	EventThreadRead    = "THREAD_READ"
	EventRequestUpdate = "REQUEST_UPDATE"
)

type WSMessage struct {
	Op   OpCode `json:"op"`
	Type string `json:"t,omitempty"` // Event type (only for DISPATCH)
	Data any    `json:"d,omitempty"`
	Seq  *int64 `json:"s,omitempty"`
}

type HelloPayload struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval"`
}

type ReadyPayload struct {
	ProtocolVersion int    `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	UserID          string `json:"user_id"`
}

type InvalidSessionPayload struct {
	Resumable bool `json:"resumable"`
}

// MessageCreatePayload tells a participant that the thread with
// CounterpartID has a new message.
type MessageCreatePayload struct {
	MessageID     string    `json:"message_id"`
	CounterpartID string    `json:"counterpart_id"`
	Incoming      bool      `json:"incoming"`
	CreatedAt     time.Time `json:"created_at"`
}

type ThreadReadPayload struct {
	ReaderID      string `json:"reader_id"`
	CounterpartID string `json:"counterpart_id"`
}

type RequestUpdatePayload struct {
	RequestID     string `json:"request_id"`
	CounterpartID string `json:"counterpart_id"`
	Status        string `json:"status"`
}
