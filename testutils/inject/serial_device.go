package inject

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// SerialDevice is an in-memory stand-in for a serial port with firmware behind it. Lines
// written by the host are recorded and, when RespondFunc is set, answered with the lines it
// returns.
type SerialDevice struct {
	RespondFunc func(cmd string) []string
	WriteErr    error

	mu        sync.Mutex
	written   []string
	partial   []byte
	data      chan []byte
	leftover  []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSerialDevice returns an open SerialDevice.
func NewSerialDevice(respond func(cmd string) []string) *SerialDevice {
	return &SerialDevice{
		RespondFunc: respond,
		data:        make(chan []byte, 256),
		closed:      make(chan struct{}),
	}
}

// Read returns bytes emitted by the device. It blocks until data arrives or the device is
// closed.
func (d *SerialDevice) Read(p []byte) (int, error) {
	if len(d.leftover) == 0 {
		select {
		case b := <-d.data:
			d.leftover = b
		case <-d.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, d.leftover)
	d.leftover = d.leftover[n:]
	return n, nil
}

// Write records complete command lines and queues the responses to them.
func (d *SerialDevice) Write(p []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	if d.WriteErr != nil {
		return 0, d.WriteErr
	}

	d.mu.Lock()
	d.partial = append(d.partial, p...)
	var cmds []string
	for {
		idx := bytes.IndexByte(d.partial, '\n')
		if idx < 0 {
			break
		}
		cmd := strings.TrimSpace(string(d.partial[:idx]))
		d.partial = d.partial[idx+1:]
		d.written = append(d.written, cmd)
		cmds = append(cmds, cmd)
	}
	respond := d.RespondFunc
	d.mu.Unlock()

	if respond != nil {
		for _, cmd := range cmds {
			for _, line := range respond(cmd) {
				d.Emit(line)
			}
		}
	}
	return len(p), nil
}

// Emit sends one line from the device to the host.
func (d *SerialDevice) Emit(line string) {
	d.EmitRaw([]byte(line + "\n"))
}

// EmitRaw sends raw bytes from the device to the host.
func (d *SerialDevice) EmitRaw(b []byte) {
	select {
	case d.data <- append([]byte(nil), b...):
	case <-d.closed:
	}
}

// Written returns the command lines the host has sent so far.
func (d *SerialDevice) Written() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.written...)
}

// Closed reports whether Close was called.
func (d *SerialDevice) Closed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

// Close closes the device. Pending reads return io.EOF.
func (d *SerialDevice) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}
