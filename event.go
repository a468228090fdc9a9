package libsse

import "encoding/json"

// EventKind names the semantic category an event is dispatched under.
type EventKind string

const (
	// Lifecycle kinds, emitted by the client itself.
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventError        EventKind = "error"

	// Server-originated kinds, classified from the frame payload.
	EventConnectionConfirmed EventKind = "connection_confirmed"
	EventHeartbeat           EventKind = "heartbeat"

	// Business kinds, classified from the frame's SSE event name.
	EventSecurity    EventKind = "security_event"
	EventStateChange EventKind = "state_change"
	EventSystem      EventKind = "system_event"
	EventUnknown     EventKind = "unknown_event"
)

func (k EventKind) Is(other EventKind) bool {
	return k == other
}

// Event is what listeners receive. Payload is the decoded JSON of the frame
// data for server-originated events, nil for lifecycle events and frames
// without data. Err is set on EventError only.
type Event struct {
	Kind    EventKind
	Frame   Frame
	Payload map[string]any
	Err     error
}

// EventCallback is invoked synchronously and in registration order. A
// callback must not block: it stalls delivery to every listener behind it.
type EventCallback func(Event)

// decodePayload parses a frame's data as JSON. Malformed data means the whole
// frame is unusable and gets dropped upstream; it is never a client error.
func decodePayload(data string) (map[string]any, error) {
	if data == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// payloadType extracts the semantic "type" field of a decoded payload.
func payloadType(payload map[string]any) string {
	t, _ := payload["type"].(string)
	return t
}

// classifyName maps a frame's SSE event name to a business kind. It is the
// fallback used when the payload type field did not decide the category.
func classifyName(name string) EventKind {
	switch name {
	case "event":
		return EventSecurity
	case "arming":
		return EventStateChange
	case "system":
		return EventSystem
	case "error":
		return EventError
	default:
		return EventUnknown
	}
}
