package domain

import "encoding/json"

// ActionPing is the heartbeat action sent while the channel is connected.
const ActionPing = "ping"

// Envelope is the outbound wire message. Data is always sent; use an empty
// object for actions without a payload.
type Envelope struct {
	Action    string `json:"action"`
	Data      any    `json:"data"`
	SessionID string `json:"sessionId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// InboundMessage is a message received from the peer. Responses to
// correlated requests carry RequestID and Success; pushes carry only
// Action and Data.
type InboundMessage struct {
	Success   *bool           `json:"success,omitempty"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// Succeeded reports whether the message is a successful response. A missing
// success flag is treated as success unless an error text is present.
func (m InboundMessage) Succeeded() bool {
	if m.Success != nil {
		return *m.Success
	}
	return m.Error == ""
}
