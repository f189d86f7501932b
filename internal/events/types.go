// Package events defines event types and enumerations for the GMBridge event system.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Game server connection events
	EventGameConnected    EventType = "game_connected"
	EventGameDisconnected EventType = "game_disconnected"
	EventLoginOK          EventType = "login_ok"
	EventLoginFailed      EventType = "login_failed"

	// Command traffic events
	EventFrameReceived   EventType = "frame_received"
	EventCommandExecuted EventType = "command_executed"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventNotifyMQTT    EventType = "notify_mqtt"
	EventShutdown      EventType = "shutdown"
)

// LinkStatus represents the state of the game server link.
type LinkStatus int

const (
	LinkStatusDisconnected LinkStatus = iota
	LinkStatusConnecting
	LinkStatusConnected
	LinkStatusAuthenticated
)

// linkStatusStrings maps LinkStatus values to their lowercase JSON string representation.
var linkStatusStrings = map[LinkStatus]string{
	LinkStatusDisconnected:  "disconnected",
	LinkStatusConnecting:    "connecting",
	LinkStatusConnected:     "connected",
	LinkStatusAuthenticated: "authenticated",
}

// String returns the string representation of LinkStatus.
func (s LinkStatus) String() string {
	if str, ok := linkStatusStrings[s]; ok {
		return str
	}
	return "disconnected"
}

// MarshalJSON serializes LinkStatus as a JSON string (e.g. "connected").
func (s LinkStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// FrameReceivedPayload carries a decoded server frame through the bus.
type FrameReceivedPayload struct {
	SeqNo   int    `json:"seq_no"`
	Content string `json:"content"`
}

// CommandExecutedPayload describes one bridged command for audit and telemetry.
type CommandExecutedPayload struct {
	Module   string `json:"module"`
	Function string `json:"function"`
	Operator string `json:"operator"`
	Status   string `json:"status"`
	Frames   int    `json:"frames"`
}

// LoginFailedPayload carries the server's rejection message.
type LoginFailedPayload struct {
	Account string `json:"account"`
	Reason  string `json:"reason"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
