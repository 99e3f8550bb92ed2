package channel

// Status is the lifecycle state of the channel.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusReconnecting Status = "RECONNECTING"
	StatusError        Status = "ERROR"
)

var allStatuses = []Status{
	StatusDisconnected,
	StatusConnecting,
	StatusConnected,
	StatusReconnecting,
	StatusError,
}

// StatusListener observes status transitions.
type StatusListener func(from, to Status)
