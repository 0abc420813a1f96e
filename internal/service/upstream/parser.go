package upstream

import (
	"bytes"
	"encoding/json"
)

var dataPrefix = []byte("data:")

// Parser incrementally splits an event stream into lines and extracts the
// text fragment of each complete data line. Partial lines are buffered
// until their terminator arrives, so events may be split across chunks.
type Parser struct {
	buf []byte
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends chunk and returns the fragments of every line completed by it.
func (p *Parser) Feed(chunk []byte) []string {
	p.buf = append(p.buf, chunk...)

	var fragments []string
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		if text, ok := parseLine(p.buf[:idx]); ok {
			fragments = append(fragments, text)
		}
		p.buf = p.buf[idx+1:]
	}

	// compact so the backing array does not grow without bound
	if len(p.buf) == 0 {
		p.buf = nil
	} else if cap(p.buf) > 4*len(p.buf) {
		p.buf = append([]byte(nil), p.buf...)
	}
	return fragments
}

// Flush parses a trailing line that never got a terminator.
func (p *Parser) Flush() []string {
	rest := p.buf
	p.buf = nil
	if text, ok := parseLine(rest); ok {
		return []string{text}
	}
	return nil
}

func parseLine(line []byte) (string, bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return "", false
	}

	var ev streamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger().Debugw("skip malformed event", "err", err)
		return "", false
	}
	text := ev.text()
	return text, text != ""
}
