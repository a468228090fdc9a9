package libsse

import (
	"bytes"
	"strings"
)

const (
	// defaultMaxFrameBuffer caps the carry-over buffer holding incomplete
	// lines between Feed calls. When exceeded, the oldest bytes are trimmed:
	// the fragment they belonged to is already unusable, the stream is not.
	defaultMaxFrameBuffer = 64 << 10

	// defaultMaxFrameData caps a single frame's accumulated data. Oversized
	// data is truncated rather than dropped so payloads missing only trailing
	// bytes (embedded thumbnails) may still parse downstream.
	defaultMaxFrameData = 128 << 10
)

// FrameParser incrementally decodes the SSE wire format out of raw byte
// chunks. It keeps the last, possibly incomplete line between Feed calls, so
// frames split across arbitrary chunk boundaries decode identically to a
// single contiguous read. One parser per connection; not goroutine-safe.
type FrameParser struct {
	logger    logger
	buf       []byte
	cur       Frame
	dirty     bool
	maxBuffer int
	maxData   int
}

func NewFrameParser(logger logger, maxBuffer, maxData int) *FrameParser {
	if maxBuffer <= 0 {
		maxBuffer = defaultMaxFrameBuffer
	}
	if maxData <= 0 {
		maxData = defaultMaxFrameData
	}
	return &FrameParser{
		logger:    logger.WithField("type", "frame_parser"),
		maxBuffer: maxBuffer,
		maxData:   maxData,
	}
}

// Feed appends a chunk to the internal buffer and returns every frame
// completed by it. A blank line finalizes the in-progress frame when it
// carries an event name or data; `event:` sets the name, `data:` appends to
// the data, `id:` sets the id, comments and unknown fields are skipped.
func (p *FrameParser) Feed(chunk []byte) []Frame {
	p.buf = append(p.buf, chunk...)

	if len(p.buf) > p.maxBuffer {
		p.logger.Warnf("buffer over %d bytes, trimming oldest %d", p.maxBuffer, len(p.buf)-p.maxBuffer)
		trimmed := make([]byte, p.maxBuffer)
		copy(trimmed, p.buf[len(p.buf)-p.maxBuffer:])
		p.buf = trimmed
	}

	var frames []Frame

	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}

		line := strings.TrimRight(string(p.buf[:idx]), "\r")
		p.buf = p.buf[idx+1:]

		if line == "" {
			if p.dirty {
				frames = append(frames, p.cur)
			}
			p.reset()
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)

		switch field {
		case "event":
			p.cur.Event = value
			p.dirty = true
		case "data":
			p.appendData(value)
			p.dirty = true
		case "id":
			p.cur.ID = value
		}
	}

	return frames
}

// Reset drops any partial input and in-progress frame, e.g. at stream restart.
func (p *FrameParser) Reset() {
	p.buf = nil
	p.reset()
}

func (p *FrameParser) reset() {
	p.cur = Frame{}
	p.dirty = false
}

func (p *FrameParser) appendData(value string) {
	room := p.maxData - len(p.cur.Data)
	if room <= 0 {
		return
	}
	if len(value) > room {
		p.logger.Warnf("frame data over %d bytes, truncating", p.maxData)
		value = value[:room]
	}
	p.cur.Data += value
}

// splitField splits a "field: value" line on the first colon, stripping the
// single optional leading space from the value per the SSE wire format.
func splitField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field, value = line[:idx], line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return
}
