// Package stream consumes the upstream per-chatroom SSE feed and turns
// it into resync triggers for the session core.
package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// RawEvent is one server-sent event as read off the wire.
type RawEvent struct {
	Name string
	ID   string
	Data []byte
}

// Parser incrementally decodes a text/event-stream body. It handles
// multi-line data fields, comment lines, and CRLF line endings.
type Parser struct {
	scanner *bufio.Scanner
}

// NewParser wraps a stream body.
func NewParser(r io.Reader) *Parser {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	return &Parser{scanner: scanner}
}

// Next returns the next complete event, or io.EOF when the stream ends.
// Events with no data are skipped, as are comment-only blocks.
func (p *Parser) Next() (*RawEvent, error) {
	var (
		name  string
		id    string
		data  [][]byte
		dirty bool
	)

	for p.scanner.Scan() {
		line := strings.TrimSuffix(p.scanner.Text(), "\r")

		if line == "" {
			if dirty && len(data) > 0 {
				if name == "" {
					name = "message"
				}
				return &RawEvent{Name: name, ID: id, Data: bytes.Join(data, []byte("\n"))}, nil
			}
			// Reset partial or comment-only block.
			name, id, data, dirty = "", "", nil, false
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			name = value
			dirty = true
		case "data":
			data = append(data, []byte(value))
			dirty = true
		case "id":
			id = value
			dirty = true
		case "retry":
			// Reconnect pacing is fixed by the consumer config.
		}
	}

	if err := p.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
