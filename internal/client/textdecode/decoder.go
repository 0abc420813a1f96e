// Package textdecode turns a byte stream into text incrementally.
package textdecode

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const bufSize = 4 << 10

// Decoder decodes UTF-8 chunk by chunk. Bytes of a multi-byte sequence that
// is cut by a chunk boundary are carried over to the next call.
// Invalid sequences become U+FFFD.
type Decoder struct {
	t     transform.Transformer
	carry []byte
	dst   []byte
}

// New returns a UTF-8 decoder.
func New() *Decoder {
	return &Decoder{
		t:   unicode.UTF8.NewDecoder(),
		dst: make([]byte, bufSize),
	}
}

// Decode returns the text completed by chunk.
func (d *Decoder) Decode(chunk []byte) string {
	d.carry = append(d.carry, chunk...)
	return d.run(false)
}

// Flush decodes whatever is still carried over and resets the decoder.
func (d *Decoder) Flush() string {
	out := d.run(true)
	d.carry = d.carry[:0]
	d.t.Reset()
	return out
}

// Pending reports how many bytes are waiting for the rest of their sequence.
func (d *Decoder) Pending() int {
	return len(d.carry)
}

func (d *Decoder) run(atEOF bool) string {
	var out strings.Builder
	src := d.carry
	for len(src) > 0 {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortDst) {
			continue
		}
		// nil or ErrShortSrc: the rest needs more input
		break
	}
	d.carry = append(d.carry[:0], src...)
	return out.String()
}
