package libsse

import "fmt"

// Frame is one event/data/id group of the SSE wire format, terminated on the
// wire by a blank line. Data accumulates across continuation lines.
type Frame struct {
	Event string
	Data  string
	ID    string
}

// HasPayload reports whether the frame carries an event name or data. Frames
// without either are never emitted by the parser.
func (f Frame) HasPayload() bool {
	return f.Event != "" || f.Data != ""
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{event=%s,id=%s,data=%s}", f.Event, f.ID, f.Data)
}
