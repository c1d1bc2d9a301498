// Package turtle drives the wheeled turtle over its serial line protocol. Commands are single
// ASCII lines; the firmware answers each with an ack ('@' followed by the echoed command) or nack
// ('#' followed by a reason) line and may send ready banners ('!'), telemetry ('$') and free-form
// debug lines at any time.
package turtle

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/topogo/heading"
	"go.viam.com/topogo/intent"
	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/serial"
	"go.viam.com/topogo/utils"
)

// DefaultAckTimeout bounds how long Send waits for a reply.
const DefaultAckTimeout = time.Second

var (
	// ErrNotConnected is returned when the serial channel is closed or was never opened.
	ErrNotConnected = errors.New("turtle not connected")
	// ErrNack is returned when the firmware rejects a command.
	ErrNack = errors.New("turtle rejected command")
	// ErrAckTimeout is returned when no reply arrives in time.
	ErrAckTimeout = errors.New("timed out waiting for turtle ack")
)

// Config is how you configure a turtle.
type Config struct {
	// Port is the path to the serial device, e.g. /dev/ttyACM0 or COM3.
	Port   string         `json:"port"`
	Serial serial.Options `json:"serial"`
	// AckTimeout bounds each command round trip.
	AckTimeout time.Duration `json:"ack_timeout"`
	// ReadyTimeout, when positive, makes Open wait for the firmware's ready banner.
	ReadyTimeout time.Duration `json:"ready_timeout"`
}

// DefaultConfig returns a config with default serial options and timeouts and no port.
func DefaultConfig() Config {
	return Config{
		Serial:     serial.DefaultOptions(),
		AckTimeout: DefaultAckTimeout,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Port == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "port")
	}
	if cfg.AckTimeout <= 0 {
		return goutils.NewConfigValidationError(path, errors.New("ack_timeout must be positive"))
	}
	if cfg.ReadyTimeout < 0 {
		return goutils.NewConfigValidationError(path, errors.New("ready_timeout cannot be negative"))
	}
	return cfg.Serial.Validate(path + ".serial")
}

// Ack is a successful reply.
type Ack struct {
	Command string        `json:"command"`
	Reply   string        `json:"reply"`
	Latency time.Duration `json:"latency"`
}

// Stats counts protocol events.
type Stats struct {
	Sent        int64 `json:"sent"`
	Acked       int64 `json:"acked"`
	Nacked      int64 `json:"nacked"`
	TimedOut    int64 `json:"timed_out"`
	Unsolicited int64 `json:"unsolicited"`
	Telemetry   int64 `json:"telemetry"`
	Debug       int64 `json:"debug"`
	Dropped     int64 `json:"dropped"`

	// Ack round trip over the most recent latencyWindow acks, in milliseconds.
	LatencyMedianMS float64 `json:"latency_median_ms"`
	LatencyP95MS    float64 `json:"latency_p95_ms"`
}

const latencyWindow = 32

type reply struct {
	line Line
	at   time.Time
}

// Turtle is an open serial channel to the turtle. Commands are serialized: one is in flight at a
// time.
type Turtle struct {
	cfg    Config
	logger logging.Logger
	clk    clock.Clock
	port   io.ReadWriteCloser

	cmdLock sync.Mutex

	mu      sync.Mutex
	pending chan reply
	// pendingCmd is the payload the pending waiter is for; acks echo it.
	pendingCmd string
	closed  bool
	// done is closed when the channel can no longer carry commands.
	done      chan struct{}
	doneOnce  sync.Once
	ready     chan struct{}
	readyOnce sync.Once

	latencies stats.Float64Data

	telemetry utils.HandlerSet[Telemetry]
	workers   utils.StoppableWorkers

	sent, acked, nacked, timedOut atomic.Int64
	unsolicited, telemetryCount   atomic.Int64
	debug, dropped                atomic.Int64
}

// Open opens the configured port and starts reading from it.
func Open(ctx context.Context, cfg Config, clk clock.Clock, logger logging.Logger) (*Turtle, error) {
	if err := cfg.Validate("turtle"); err != nil {
		return nil, err
	}
	logger.Debugw("opening turtle", "port", cfg.Port, "baud", cfg.Serial.BaudRate)
	port, err := serial.Open(ctx, cfg.Port, cfg.Serial)
	if err != nil {
		return nil, err
	}
	t := NewFromPort(port, cfg, clk, logger.WithFields("port", cfg.Port))
	if cfg.ReadyTimeout > 0 {
		readyCtx, cancel := context.WithTimeout(ctx, cfg.ReadyTimeout)
		defer cancel()
		if err := t.WaitReady(readyCtx); err != nil {
			logger.Warnw("turtle did not announce itself, continuing", "port", cfg.Port, "error", err)
		}
	}
	return t, nil
}

// NewFromPort wraps an already open port. A nil clock uses the wall clock.
func NewFromPort(port io.ReadWriteCloser, cfg Config, clk clock.Clock, logger logging.Logger) *Turtle {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	t := &Turtle{
		cfg:    cfg,
		logger: logger,
		clk:    clk,
		port:   port,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
	t.workers = utils.NewStoppableWorkers(t.readLoop)
	return t
}

// Connected reports whether commands can still be sent.
func (t *Turtle) Connected() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// WaitReady blocks until the firmware sends its ready banner.
func (t *Turtle) WaitReady(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-t.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTelemetry registers a handler for telemetry records. Handlers run on the reader goroutine
// and must not block.
func (t *Turtle) OnTelemetry(handler func(Telemetry)) utils.Registration {
	return t.telemetry.Add(handler)
}

// Send writes one command line and waits for its reply. A nack is returned as an error wrapping
// ErrNack.
func (t *Turtle) Send(ctx context.Context, payload string) (Ack, error) {
	if err := validatePayload(payload); err != nil {
		return Ack{}, err
	}

	t.cmdLock.Lock()
	defer t.cmdLock.Unlock()

	if !t.Connected() {
		return Ack{}, ErrNotConnected
	}
	waiter := make(chan reply, 1)
	t.mu.Lock()
	t.pending = waiter
	t.pendingCmd = payload
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.pending = nil
		t.pendingCmd = ""
		t.mu.Unlock()
	}()

	t.logger.CDebugw(ctx, "sending command", "payload", payload)
	start := t.clk.Now()
	if _, err := t.port.Write([]byte(payload + "\n")); err != nil {
		t.markDone()
		return Ack{}, errors.Wrapf(err, "error sending %q to turtle", payload)
	}
	t.sent.Inc()

	timer := t.clk.Timer(t.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case r := <-waiter:
		if r.line.Kind == KindNack {
			t.nacked.Inc()
			return Ack{}, errors.Wrapf(ErrNack, "%q: %s", payload, r.line.Text)
		}
		t.acked.Inc()
		latency := r.at.Sub(start)
		t.recordLatency(latency)
		t.logger.CDebugw(ctx, "command acked", "payload", payload, "reply", r.line.Text, "latency", latency)
		return Ack{Command: payload, Reply: r.line.Text, Latency: latency}, nil
	case <-timer.C:
		t.timedOut.Inc()
		return Ack{}, errors.Wrapf(ErrAckTimeout, "%q after %v", payload, t.cfg.AckTimeout)
	case <-t.done:
		return Ack{}, ErrNotConnected
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}
}

// Do encodes and sends an intent issued under the given heading.
func (t *Turtle) Do(ctx context.Context, i intent.Intent, dir heading.Direction) (Ack, error) {
	payload, err := Encode(i, dir)
	if err != nil {
		return Ack{}, err
	}
	return t.Send(ctx, payload)
}

// Ping checks that the firmware is responsive.
func (t *Turtle) Ping(ctx context.Context) error {
	_, err := t.Send(ctx, CmdPing)
	return err
}

func (t *Turtle) recordLatency(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.latencies) == latencyWindow {
		t.latencies = t.latencies[1:]
	}
	t.latencies = append(t.latencies, float64(d)/float64(time.Millisecond))
}

// Stats returns a snapshot of the protocol counters.
func (t *Turtle) Stats() Stats {
	st := Stats{
		Sent:        t.sent.Load(),
		Acked:       t.acked.Load(),
		Nacked:      t.nacked.Load(),
		TimedOut:    t.timedOut.Load(),
		Unsolicited: t.unsolicited.Load(),
		Telemetry:   t.telemetryCount.Load(),
		Debug:       t.debug.Load(),
		Dropped:     t.dropped.Load(),
	}
	t.mu.Lock()
	latencies := append(stats.Float64Data(nil), t.latencies...)
	t.mu.Unlock()
	if len(latencies) > 0 {
		st.LatencyMedianMS, _ = stats.Median(latencies)
		st.LatencyP95MS, _ = stats.Percentile(latencies, 95)
	}
	return st
}

// Close closes the port and waits for the reader to exit. It is safe to call more than once.
func (t *Turtle) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.markDone()
	err := t.port.Close()
	t.workers.Stop()
	return err
}

func (t *Turtle) markDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Turtle) readLoop(ctx context.Context) {
	var dec Decoder
	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := t.port.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				t.handleLine(line)
			}
			t.dropped.Store(int64(dec.Dropped()))
		}
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed && ctx.Err() == nil {
				t.logger.Warnw("turtle serial read failed, disconnecting", "error", err)
			}
			t.markDone()
			return
		}
	}
}

func (t *Turtle) handleLine(line Line) {
	switch line.Kind {
	case KindAck, KindNack:
		// An ack echoes its command, so a late ack for a timed out command is never taken
		// as the reply to the one in flight. A nack carries a reason and belongs to the
		// in-flight command.
		t.mu.Lock()
		waiter := t.pending
		if waiter != nil && line.Kind == KindAck && line.Text != t.pendingCmd {
			waiter = nil
		}
		if waiter != nil {
			t.pending = nil
		}
		t.mu.Unlock()
		if waiter == nil {
			t.unsolicited.Inc()
			t.logger.Debugw("unsolicited reply from turtle", "kind", line.Kind, "text", line.Text)
			return
		}
		waiter <- reply{line: line, at: t.clk.Now()}
	case KindReady:
		t.logger.Infow("turtle ready", "banner", line.Text)
		t.readyOnce.Do(func() { close(t.ready) })
	case KindTelemetry:
		tel, err := ParseTelemetry(line.Text)
		if err != nil {
			t.logger.Debugw("bad telemetry from turtle", "line", line.Text, "error", err)
			return
		}
		tel.Time = t.clk.Now()
		t.telemetryCount.Inc()
		t.telemetry.Dispatch(tel)
	case KindDebug:
		t.debug.Inc()
		t.logger.Debugf("got debug message from turtle: %s", line.Text)
	}
}
