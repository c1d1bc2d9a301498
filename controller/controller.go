// Package controller wires the frame source, the speech recognizer and the turtle together.
//
// Frames are queued to a single frame worker that processes them in order. Recognized speech is
// classified on the recognizer's goroutine. Gesture and voice intents meet on one intent queue
// drained by a single intent worker, which alone mutates the heading and talks to the turtle.
package controller

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/topogo/base/turtle"
	"go.viam.com/topogo/config"
	"go.viam.com/topogo/gesture"
	"go.viam.com/topogo/heading"
	"go.viam.com/topogo/intent"
	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/sensor"
	"go.viam.com/topogo/skeleton"
	"go.viam.com/topogo/speech"
	"go.viam.com/topogo/utils"
	"go.viam.com/topogo/voice"
)

// ErrNothingToRun is returned by Start when no input and no actuator could be started.
var ErrNothingToRun = errors.New("no sensor, recognizer or turtle available")

// An Actuator carries intents to the turtle.
type Actuator interface {
	Do(ctx context.Context, i intent.Intent, dir heading.Direction) (turtle.Ack, error)
	OnTelemetry(handler func(turtle.Telemetry)) utils.Registration
	Connected() bool
	Stats() turtle.Stats
	Close(ctx context.Context) error
}

// OpenActuatorFunc opens the actuator described by cfg.
type OpenActuatorFunc func(ctx context.Context, cfg turtle.Config, clk clock.Clock, logger logging.Logger) (Actuator, error)

func openTurtle(ctx context.Context, cfg turtle.Config, clk clock.Clock, logger logging.Logger) (Actuator, error) {
	t, err := turtle.Open(ctx, cfg, clk, logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Deps are the collaborators of a Controller. Nil Source or Recognizer disables that path.
type Deps struct {
	Source       sensor.FrameSource
	Recognizer   speech.Recognizer
	Sink         Sink
	Clock        clock.Clock
	OpenActuator OpenActuatorFunc
}

// Status is a snapshot of what the controller can do and has done.
type Status struct {
	Sensor    bool `json:"sensor"`
	Voice     bool `json:"voice"`
	Actuation bool `json:"actuation"`

	Heading heading.Direction `json:"heading"`

	FramesProcessed   int64 `json:"frames_processed"`
	FramesDropped     int64 `json:"frames_dropped"`
	IntentsDispatched int64 `json:"intents_dispatched"`
	IntentsFailed     int64 `json:"intents_failed"`
	IntentsDropped    int64 `json:"intents_dropped"`

	VoiceStats  voice.Stats  `json:"voice_stats"`
	TurtleStats turtle.Stats `json:"turtle_stats"`
}

// Controller turns frames and speech into turtle commands.
type Controller struct {
	logger logging.Logger
	clk    clock.Clock
	deps   Deps

	cfgMu sync.Mutex
	cfg   *config.Config

	processor  *skeleton.Processor
	detector   *gesture.Detector
	classifier *voice.Classifier
	heading    *heading.Heading

	frames  chan skeleton.Frame
	intents chan intent.Event
	workers utils.StoppableWorkers

	mu       sync.Mutex
	started  bool
	closed   bool
	actuator Actuator
	regs     []utils.Registration

	sensorOK, voiceOK, actuationOK atomic.Bool

	framesProcessed, framesDropped                 atomic.Int64
	intentsDispatched, intentsFailed, intentsDropped atomic.Int64
}

// New returns a Controller for cfg. Nothing runs until Start.
func New(cfg *config.Config, deps Deps, logger logging.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Sink == nil {
		deps.Sink = LogSink{Logger: logger.Sublogger("sink")}
	}
	if deps.OpenActuator == nil {
		deps.OpenActuator = openTurtle
	}

	detector, err := gesture.NewDetector(cfg.Gesture, deps.Clock, logger.Sublogger("gesture"))
	if err != nil {
		return nil, err
	}
	classifier, err := voice.NewClassifier(cfg.Voice, deps.Clock, logger.Sublogger("voice"))
	if err != nil {
		return nil, err
	}
	h, err := heading.New(cfg.Controller.InitialHeading)
	if err != nil {
		return nil, err
	}

	return &Controller{
		logger: logger,
		clk:    deps.Clock,
		deps:   deps,
		cfg:    cfg,
		processor: skeleton.NewProcessor(skeleton.ProcessorConfig{
			Calibration:     cfg.Skeleton.Calibration,
			SmoothingWindow: cfg.Skeleton.SmoothingWindow,
		}, logger.Sublogger("skeleton")),
		detector:   detector,
		classifier: classifier,
		heading:    h,
		frames:     make(chan skeleton.Frame, cfg.Controller.FrameQueueSize),
		intents:    make(chan intent.Event, cfg.Controller.IntentQueueSize),
	}, nil
}

// Start brings up every available path. An unavailable sensor, recognizer or turtle is
// reported to the sink and skipped; Start only fails when none of them came up.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("controller closed")
	}
	if c.started {
		return errors.New("controller already started")
	}
	c.started = true

	c.workers = utils.NewStoppableWorkers(c.frameWorker, c.intentWorker)

	var startErrs error
	if err := c.startSensor(ctx); err != nil {
		startErrs = multierr.Append(startErrs, err)
	}
	if err := c.startVoice(ctx); err != nil {
		startErrs = multierr.Append(startErrs, err)
	}
	if err := c.startActuation(ctx); err != nil {
		startErrs = multierr.Append(startErrs, err)
	}

	if !c.sensorOK.Load() && !c.voiceOK.Load() && !c.actuationOK.Load() {
		c.workers.Stop()
		return multierr.Combine(ErrNothingToRun, startErrs)
	}
	c.logger.Infow("controller started",
		"sensor", c.sensorOK.Load(), "voice", c.voiceOK.Load(), "actuation", c.actuationOK.Load())
	return nil
}

func (c *Controller) startSensor(ctx context.Context) error {
	if c.deps.Source == nil {
		err := errors.Wrap(sensor.ErrUnavailable, "no frame source configured")
		c.deps.Sink.Capability(CapabilitySensor, err)
		return err
	}
	if err := c.deps.Source.Start(ctx); err != nil {
		c.deps.Sink.Capability(CapabilitySensor, err)
		return errors.Wrap(err, "starting frame source")
	}
	c.regs = append(c.regs, c.deps.Source.OnFrame(c.enqueueFrame))
	c.sensorOK.Store(true)
	c.deps.Sink.Capability(CapabilitySensor, nil)
	return nil
}

func (c *Controller) startVoice(ctx context.Context) error {
	if c.deps.Recognizer == nil {
		err := errors.Wrap(speech.ErrUnavailable, "no recognizer configured")
		c.deps.Sink.Capability(CapabilityVoice, err)
		return err
	}
	if err := c.deps.Recognizer.Start(ctx); err != nil {
		c.deps.Sink.Capability(CapabilityVoice, err)
		return errors.Wrap(err, "starting recognizer")
	}
	c.regs = append(c.regs,
		c.deps.Recognizer.OnResult(c.handleSpeech),
		c.deps.Recognizer.OnRejected(c.classifier.Reject),
	)
	c.voiceOK.Store(true)
	c.deps.Sink.Capability(CapabilityVoice, nil)
	return nil
}

func (c *Controller) startActuation(ctx context.Context) error {
	c.cfgMu.Lock()
	turtleCfg := c.cfg.Serial
	c.cfgMu.Unlock()

	if turtleCfg.Port == "" {
		err := errors.New("no serial port configured")
		c.deps.Sink.Capability(CapabilityActuation, err)
		return err
	}
	act, err := c.deps.OpenActuator(ctx, turtleCfg, c.clk, c.logger.Sublogger("turtle"))
	if err != nil {
		c.deps.Sink.Capability(CapabilityActuation, err)
		return errors.Wrap(err, "opening turtle")
	}
	c.actuator = act
	c.regs = append(c.regs, act.OnTelemetry(c.deps.Sink.Telemetry))
	c.actuationOK.Store(true)
	c.deps.Sink.Capability(CapabilityActuation, nil)
	return nil
}

// enqueueFrame runs on the source's goroutine. A full queue drops the incoming frame.
func (c *Controller) enqueueFrame(frame skeleton.Frame) {
	select {
	case c.frames <- frame:
	default:
		c.framesDropped.Inc()
	}
}

// handleSpeech runs on the recognizer's goroutine.
func (c *Controller) handleSpeech(res speech.Result) {
	ev, ok := c.classifier.Classify(res)
	if !ok {
		return
	}
	c.Submit(ev)
}

// Submit queues an intent for the turtle without blocking. It reports false when the queue is
// full and the intent was dropped.
func (c *Controller) Submit(ev intent.Event) bool {
	select {
	case c.intents <- ev:
		return true
	default:
		c.intentsDropped.Inc()
		c.logger.Warnw("intent queue full, dropping intent", "intent", ev.Intent, "source", ev.Source)
		return false
	}
}

func (c *Controller) frameWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.frames:
			c.processFrame(frame)
		}
	}
}

func (c *Controller) processFrame(frame skeleton.Frame) {
	result := c.processor.Process(frame)
	c.deps.Sink.Frame(result)
	c.framesProcessed.Inc()

	angles, trackingID, ok := result.PrimaryGesture()
	if !ok {
		return
	}
	if ev, fired := c.detector.Observe(trackingID, angles); fired {
		c.Submit(ev)
	}
}

func (c *Controller) intentWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.intents:
			c.dispatch(ctx, ev)
		}
	}
}

// dispatch applies a turn to the heading, then sends the intent under the resulting heading.
// The heading follows every turn intent whether or not the turtle is reachable.
func (c *Controller) dispatch(ctx context.Context, ev intent.Event) {
	dir, _ := c.heading.Apply(ev.Intent)
	outcome := IntentOutcome{Event: ev, Heading: dir}

	c.mu.Lock()
	act := c.actuator
	c.mu.Unlock()

	if act == nil {
		outcome.Err = turtle.ErrNotConnected
	} else {
		c.cfgMu.Lock()
		timeout := c.cfg.Controller.CommandTimeout
		trace := c.cfg.Controller.TraceCommands
		c.cfgMu.Unlock()

		cmdCtx, cancel := context.WithTimeout(ctx, timeout)
		if trace {
			cmdCtx = logging.WithTrace(cmdCtx, ev.Intent.String())
		}
		outcome.Ack, outcome.Err = act.Do(cmdCtx, ev.Intent, dir)
		cancel()
		if errors.Is(outcome.Err, turtle.ErrNotConnected) && c.actuationOK.CompareAndSwap(true, false) {
			c.deps.Sink.Capability(CapabilityActuation, outcome.Err)
		}
	}

	if outcome.Err != nil {
		c.intentsFailed.Inc()
	} else {
		c.intentsDispatched.Inc()
	}
	c.deps.Sink.Intent(outcome)
}

// Reconfigure applies a new config. Voice and gesture settings take effect immediately; other
// sections are stored and used the next time they are read, and serial or sensor changes
// require a restart.
func (c *Controller) Reconfigure(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := c.classifier.Reconfigure(cfg.Voice); err != nil {
		return err
	}
	if err := c.detector.Reconfigure(cfg.Gesture); err != nil {
		return err
	}

	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	if cfg.Serial.Port != c.cfg.Serial.Port || cfg.Serial.Serial != c.cfg.Serial.Serial {
		c.logger.Warn("serial settings changed; restart to apply")
	}
	if cfg.Skeleton != c.cfg.Skeleton || cfg.Sensor != c.cfg.Sensor {
		c.logger.Warn("sensor settings changed; restart to apply")
	}
	c.cfg = cfg
	c.logger.Infow("reconfigured", "threshold", cfg.Voice.Threshold,
		"raise_degrees", cfg.Gesture.RaiseDegrees, "lower_degrees", cfg.Gesture.LowerDegrees)
	return nil
}

// Status returns a snapshot of capabilities and counters.
func (c *Controller) Status() Status {
	st := Status{
		Sensor:            c.sensorOK.Load(),
		Voice:             c.voiceOK.Load(),
		Actuation:         c.actuationOK.Load(),
		Heading:           c.heading.Current(),
		FramesProcessed:   c.framesProcessed.Load(),
		FramesDropped:     c.framesDropped.Load(),
		IntentsDispatched: c.intentsDispatched.Load(),
		IntentsFailed:     c.intentsFailed.Load(),
		IntentsDropped:    c.intentsDropped.Load(),
		VoiceStats:        c.classifier.Stats(),
	}
	c.mu.Lock()
	if c.actuator != nil {
		st.TurtleStats = c.actuator.Stats()
	}
	c.mu.Unlock()
	return st
}

// Close tears down in a fixed order: stop the frame stream, detach every handler, stop
// recognition, stop the workers, close the turtle. It is safe to call more than once.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || !c.started {
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	regs := c.regs
	c.regs = nil
	act := c.actuator
	// The intent worker reads the actuator under mu, so the lock is released before the
	// workers are joined.
	c.mu.Unlock()

	var err error
	if c.sensorOK.Load() {
		err = multierr.Combine(err, errors.Wrap(c.deps.Source.Stop(ctx), "stopping frame source"))
	}
	for _, reg := range regs {
		err = multierr.Combine(err, reg.Close())
	}
	if c.voiceOK.Load() {
		err = multierr.Combine(err, errors.Wrap(c.deps.Recognizer.Stop(ctx), "stopping recognizer"))
	}
	c.workers.Stop()
	if act != nil {
		err = multierr.Combine(err, errors.Wrap(act.Close(ctx), "closing turtle"))
	}

	c.sensorOK.Store(false)
	c.voiceOK.Store(false)
	c.actuationOK.Store(false)
	return err
}
