package ami

import (
	"bufio"
	"io"
	"strings"
)

// Parser reads a manager interface byte stream and emits Events.
type Parser struct {
	scanner *bufio.Scanner
}

// NewParser creates a Parser that reads from the given reader.
func NewParser(r io.Reader) *Parser {
	return &Parser{scanner: bufio.NewScanner(r)}
}

// Next reads the next event block. It returns io.EOF once the stream
// ends, or the scanner's error if reading failed mid-stream.
func (p *Parser) Next() (Event, error) {
	var evt Event

	for p.scanner.Scan() {
		// AMI terminates lines with \r\n.
		line := strings.TrimRight(p.scanner.Text(), "\r")

		if line == "" {
			if len(evt) > 0 {
				return evt, nil
			}
			continue
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			// The login banner and stray lines carry no separator. Skip
			// them between blocks; ignore them inside a block.
			continue
		}
		if evt == nil {
			evt = make(Event)
		}
		evt[key] = value
	}

	if err := p.scanner.Err(); err != nil {
		return nil, err
	}
	if len(evt) > 0 {
		// Stream ended inside a block; return what we have.
		return evt, nil
	}
	return nil, io.EOF
}

// ParseBytes parses all events from a byte slice, for tests and captures.
func ParseBytes(data []byte) []Event {
	p := NewParser(strings.NewReader(string(data)))
	var events []Event
	for {
		evt, err := p.Next()
		if err != nil {
			return events
		}
		events = append(events, evt)
	}
}
