// Package serial opens and enumerates serial ports.
package serial

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/pkg/errors"
	ser "go.bug.st/serial"
	goutils "go.viam.com/utils"
)

// Defaults for Options.
const (
	DefaultBaudRate    = 9600
	DefaultDataBits    = 8
	DefaultOpenTimeout = 2 * time.Second
	DefaultReadTimeout = 100 * time.Millisecond
)

// Options to be passed to Open(), closely mirrors ser.Mode.
type Options struct {
	BaudRate int      `json:"baud_rate"`
	DataBits int      `json:"data_bits"`
	StopBits StopBits `json:"stop_bits"`
	Parity   Parity   `json:"parity"`
	// ReadTimeout bounds each Read so a reader can notice shutdown. Zero blocks forever.
	ReadTimeout time.Duration `json:"read_timeout"`
	// OpenTimeout bounds how long Open may block.
	OpenTimeout time.Duration `json:"open_timeout"`
}

// DefaultOptions is 9600 8N1.
func DefaultOptions() Options {
	return Options{
		BaudRate:    DefaultBaudRate,
		DataBits:    DefaultDataBits,
		StopBits:    OneStopBit,
		Parity:      NoParity,
		ReadTimeout: DefaultReadTimeout,
		OpenTimeout: DefaultOpenTimeout,
	}
}

// Validate ensures all parts of the options are valid.
func (o *Options) Validate(path string) error {
	if o.BaudRate <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("baud_rate %d must be positive", o.BaudRate))
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return goutils.NewConfigValidationError(path, errors.Errorf("data_bits %d must be in [5,8]", o.DataBits))
	}
	if o.StopBits < OneStopBit || o.StopBits > TwoStopBits {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid stop_bits %d", o.StopBits))
	}
	if o.Parity < NoParity || o.Parity > SpaceParity {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid parity %d", o.Parity))
	}
	if o.ReadTimeout < 0 || o.OpenTimeout < 0 {
		return goutils.NewConfigValidationError(path, errors.New("timeouts cannot be negative"))
	}
	return nil
}

// Parity describes a serial port parity setting.
type Parity int

const (
	// NoParity disable parity control (default).
	NoParity Parity = iota
	// OddParity enable odd-parity check.
	OddParity
	// EvenParity enable even-parity check.
	EvenParity
	// MarkParity enable mark-parity (always 1) check.
	MarkParity
	// SpaceParity enable space-parity (always 0) check.
	SpaceParity
)

// StopBits describe a serial port stop bits setting.
type StopBits int

const (
	// OneStopBit sets 1 stop bit (default).
	OneStopBit StopBits = iota
	// OnePointFiveStopBits sets 1.5 stop bits.
	OnePointFiveStopBits
	// TwoStopBits sets 2 stop bits.
	TwoStopBits
)

// Reason says why a port could not be used.
type Reason string

// The reasons a port is unavailable.
const (
	ReasonNotFound         Reason = "not found"
	ReasonBusy             Reason = "busy"
	ReasonPermissionDenied Reason = "permission denied"
	ReasonTimeout          Reason = "open timed out"
	ReasonOther            Reason = "unavailable"
)

// PortUnavailableError is returned when a port cannot be opened.
type PortUnavailableError struct {
	Path   string
	Reason Reason
	Err    error
}

func (e *PortUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("serial port %q %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("serial port %q %s: %v", e.Path, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *PortUnavailableError) Unwrap() error {
	return e.Err
}

// IsPortUnavailable reports whether err is or wraps a PortUnavailableError.
func IsPortUnavailable(err error) bool {
	var pue *PortUnavailableError
	return errors.As(err, &pue)
}

// port is the part of ser.Port that Open needs.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// openPort is the raw open call. It's a variable so tests can stand in for hardware.
var openPort = func(devicePath string, mode *ser.Mode) (port, error) {
	return ser.Open(devicePath, mode)
}

// Open attempts to open a serial device on the given path. It's a variable
// in case you need to override it during tests.
var Open = func(ctx context.Context, devicePath string, options Options) (io.ReadWriteCloser, error) {
	if devicePath == "" {
		return nil, &PortUnavailableError{Path: devicePath, Reason: ReasonNotFound, Err: errors.New("empty path")}
	}
	if err := options.Validate("serial"); err != nil {
		return nil, err
	}
	mode := &ser.Mode{
		BaudRate: options.BaudRate,
		Parity:   ser.Parity(options.Parity),
		DataBits: options.DataBits,
		StopBits: ser.StopBits(options.StopBits),
	}

	type openResult struct {
		p   port
		err error
	}
	// Buffered so the opener never blocks after a timeout.
	done := make(chan openResult, 1)
	abandoned := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		p, err := openPort(devicePath, mode)
		select {
		case done <- openResult{p, err}:
		case <-abandoned:
			if err == nil {
				goutils.UncheckedError(p.Close())
			}
		}
	})

	var timeout <-chan time.Time
	if options.OpenTimeout > 0 {
		timer := time.NewTimer(options.OpenTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var res openResult
	select {
	case res = <-done:
	case <-timeout:
		close(abandoned)
		return nil, &PortUnavailableError{Path: devicePath, Reason: ReasonTimeout}
	case <-ctx.Done():
		close(abandoned)
		return nil, errors.Wrapf(ctx.Err(), "opening serial port %q", devicePath)
	}
	if res.err != nil {
		return nil, classify(devicePath, res.err)
	}
	if options.ReadTimeout > 0 {
		if err := res.p.SetReadTimeout(options.ReadTimeout); err != nil {
			goutils.UncheckedError(res.p.Close())
			return nil, errors.Wrapf(err, "setting read timeout on %q", devicePath)
		}
	}
	return res.p, nil
}

func classify(devicePath string, err error) error {
	var portErr *ser.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case ser.PortBusy:
			return &PortUnavailableError{Path: devicePath, Reason: ReasonBusy, Err: err}
		case ser.PortNotFound, ser.InvalidSerialPort:
			return &PortUnavailableError{Path: devicePath, Reason: ReasonNotFound, Err: err}
		case ser.PermissionDenied:
			return &PortUnavailableError{Path: devicePath, Reason: ReasonPermissionDenied, Err: err}
		default:
			return &PortUnavailableError{Path: devicePath, Reason: ReasonOther, Err: err}
		}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &PortUnavailableError{Path: devicePath, Reason: ReasonNotFound, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &PortUnavailableError{Path: devicePath, Reason: ReasonPermissionDenied, Err: err}
	}
	return &PortUnavailableError{Path: devicePath, Reason: ReasonOther, Err: err}
}
