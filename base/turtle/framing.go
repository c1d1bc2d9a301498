package turtle

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MaxLineLength is the longest line, excluding the terminator, either side may send. Longer
// inbound lines are dropped.
const MaxLineLength = 256

// LineKind is the type of an inbound line, given by its first byte.
type LineKind int

// The inbound line kinds.
const (
	KindDebug LineKind = iota
	KindAck
	KindNack
	KindReady
	KindTelemetry
)

func (k LineKind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindNack:
		return "nack"
	case KindReady:
		return "ready"
	case KindTelemetry:
		return "telemetry"
	case KindDebug:
	}
	return "debug"
}

// Line is one decoded inbound line. Text excludes the type prefix.
type Line struct {
	Kind LineKind
	Text string
}

// ParseLine types a line by its prefix: '@' ack, '#' nack, '!' ready, '$' telemetry. Anything
// else is a debug message from the firmware.
func ParseLine(raw string) Line {
	if raw == "" {
		return Line{Kind: KindDebug}
	}
	switch raw[0] {
	case '@':
		return Line{Kind: KindAck, Text: strings.TrimSpace(raw[1:])}
	case '#':
		return Line{Kind: KindNack, Text: strings.TrimSpace(raw[1:])}
	case '!':
		return Line{Kind: KindReady, Text: strings.TrimSpace(raw[1:])}
	case '$':
		return Line{Kind: KindTelemetry, Text: strings.TrimSpace(raw[1:])}
	}
	return Line{Kind: KindDebug, Text: raw}
}

// Decoder reassembles newline terminated lines from arbitrarily split chunks.
type Decoder struct {
	buf      []byte
	skipping bool
	dropped  int
}

// Feed consumes a chunk and returns the complete lines it finished, in order. Empty lines are
// skipped and a trailing '\r' is removed.
func (d *Decoder) Feed(chunk []byte) []Line {
	var lines []Line
	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			d.buffer(chunk)
			return lines
		}
		d.buffer(chunk[:idx])
		chunk = chunk[idx+1:]

		if d.skipping {
			d.skipping = false
			d.buf = d.buf[:0]
			continue
		}
		line := bytes.TrimSuffix(d.buf, []byte{'\r'})
		if len(line) > MaxLineLength {
			d.dropped++
			d.buf = d.buf[:0]
			continue
		}
		raw := strings.TrimSpace(string(line))
		d.buf = d.buf[:0]
		if raw == "" {
			continue
		}
		lines = append(lines, ParseLine(raw))
	}
	return lines
}

// buffer appends to the pending line, switching to skip mode once it grows past the limit.
// The +1 leaves room for a trailing '\r'; Feed enforces the exact limit once the line ends.
func (d *Decoder) buffer(b []byte) {
	if d.skipping {
		return
	}
	if len(d.buf)+len(b) > MaxLineLength+1 {
		d.skipping = true
		d.dropped++
		d.buf = d.buf[:0]
		return
	}
	d.buf = append(d.buf, b...)
}

// Dropped is the number of overlong lines discarded so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Reset discards any partial line.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.skipping = false
}

// Telemetry is one status record from the turtle, e.g. "$batt=7.4 state=idle".
type Telemetry struct {
	Fields map[string]string `json:"fields"`
	Raw    string            `json:"raw"`
	Time   time.Time         `json:"time"`
}

// ParseTelemetry parses space separated key=value pairs.
func ParseTelemetry(text string) (Telemetry, error) {
	t := Telemetry{Fields: map[string]string{}, Raw: text}
	for _, pair := range strings.Fields(text) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return Telemetry{}, errors.Errorf("malformed telemetry field %q", pair)
		}
		t.Fields[key] = value
	}
	if len(t.Fields) == 0 {
		return Telemetry{}, errors.New("empty telemetry record")
	}
	return t, nil
}

// Float returns a numeric field.
func (t Telemetry) Float(key string) (float64, bool) {
	v, ok := t.Fields[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
