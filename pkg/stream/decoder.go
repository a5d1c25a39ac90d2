package stream

import (
	"bytes"
	"io"
	"strings"
)

const dataPrefix = "data: "

// Decoder reads events from an incremental byte stream. It makes no
// assumption that a frame arrives in one read: the trailing, possibly
// incomplete line is buffered until the next read completes it.
//
// Lines that carry a data prefix but fail to parse as JSON are skipped
// silently. That tolerance exists for frames split across network reads, not
// as a correctness guarantee on malformed input; skipped lines are counted
// and available via Anomalies.
type Decoder struct {
	r         io.Reader
	buf       []byte
	pending   [][]byte
	eof       bool
	anomalies int
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next event. It returns io.EOF once the underlying stream
// is exhausted and no complete event remains buffered.
func (d *Decoder) Next() (Event, error) {
	for {
		if ev, ok := d.nextBuffered(); ok {
			return ev, nil
		}
		if d.eof {
			return nil, io.EOF
		}
		if err := d.fill(); err != nil {
			return nil, err
		}
	}
}

// Anomalies reports how many data lines were skipped as unparseable.
func (d *Decoder) Anomalies() int { return d.anomalies }

// nextBuffered consumes buffered complete lines until one parses as an event.
func (d *Decoder) nextBuffered() (Event, bool) {
	for len(d.pending) > 0 {
		line := d.pending[0]
		d.pending = d.pending[1:]

		text := strings.TrimSuffix(string(line), "\r")
		if !strings.HasPrefix(text, dataPrefix) {
			// Blank separators and "event:" lines carry no payload.
			continue
		}

		ev, err := Unmarshal([]byte(text[len(dataPrefix):]))
		if err != nil {
			d.anomalies++
			continue
		}
		return ev, true
	}
	return nil, false
}

// fill reads one chunk and splits completed lines into the pending queue.
func (d *Decoder) fill() error {
	chunk := make([]byte, 4096)
	n, err := d.r.Read(chunk)
	if n > 0 {
		d.buf = append(d.buf, chunk[:n]...)
		for {
			i := bytes.IndexByte(d.buf, '\n')
			if i < 0 {
				break
			}
			line := make([]byte, i)
			copy(line, d.buf[:i])
			d.pending = append(d.pending, line)
			d.buf = d.buf[i+1:]
		}
	}
	if err == io.EOF {
		d.eof = true
		// A trailing line without a newline is still a complete line at EOF.
		if len(d.buf) > 0 {
			d.pending = append(d.pending, d.buf)
			d.buf = nil
		}
		return nil
	}
	return err
}
