package controller

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/topogo/base/turtle"
	"go.viam.com/topogo/config"
	"go.viam.com/topogo/heading"
	"go.viam.com/topogo/intent"
	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/serial"
	"go.viam.com/topogo/skeleton"
	"go.viam.com/topogo/speech"
	"go.viam.com/topogo/testutils/inject"
)

type recordingSink struct {
	mu           sync.Mutex
	frames       []skeleton.FrameResult
	outcomes     []IntentOutcome
	telemetry    []turtle.Telemetry
	capabilities map[string]error
	frameGate    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{capabilities: map[string]error{}}
}

func (s *recordingSink) Frame(result skeleton.FrameResult) {
	if s.frameGate != nil {
		<-s.frameGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, result)
}

func (s *recordingSink) Intent(o IntentOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *recordingSink) Telemetry(t turtle.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = append(s.telemetry, t)
}

func (s *recordingSink) Capability(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities[name] = err
}

func (s *recordingSink) Outcomes() []IntentOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]IntentOutcome(nil), s.outcomes...)
}

func (s *recordingSink) Capabilities() map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]error{}
	for k, v := range s.capabilities {
		out[k] = v
	}
	return out
}

func ackAll(cmd string) []string {
	return []string{"@" + cmd}
}

type harness struct {
	ctrl   *Controller
	source *inject.FrameSource
	rec    *inject.Recognizer
	dev    *inject.SerialDevice
	sink   *recordingSink
	clk    *clock.Mock
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	logger := logging.NewTestLogger(t)
	if cfg == nil {
		cfg = config.Default()
	}
	if cfg.Serial.Port == "" {
		cfg.Serial.Port = "/dev/ttyFAKE0"
	}
	h := &harness{
		source: &inject.FrameSource{},
		rec:    &inject.Recognizer{},
		dev:    inject.NewSerialDevice(ackAll),
		sink:   newRecordingSink(),
		clk:    clock.NewMock(),
	}
	ctrl, err := New(cfg, Deps{
		Source:     h.source,
		Recognizer: h.rec,
		Sink:       h.sink,
		Clock:      h.clk,
		OpenActuator: func(
			ctx context.Context, tcfg turtle.Config, clk clock.Clock, logger logging.Logger,
		) (Actuator, error) {
			return turtle.NewFromPort(h.dev, tcfg, nil, logger), nil
		},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	h.ctrl = ctrl
	return h
}

func (h *harness) waitOutcomes(t *testing.T, n int) []IntentOutcome {
	t.Helper()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.sink.Outcomes(), test.ShouldHaveLength, n)
	})
	return h.sink.Outcomes()
}

// bodyWithHands builds a tracked skeleton whose arm angles to the torso are set by where the
// hands are placed relative to the shoulders.
func bodyWithHands(rightHand, leftHand r3.Vector) skeleton.Skeleton {
	s := skeleton.NewSkeleton(1, skeleton.SkeletonTracked)
	set := func(jt skeleton.JointType, p r3.Vector) {
		s.Joints[jt] = skeleton.Joint{Type: jt, Position: p, TrackingState: skeleton.Tracked}
	}
	set(skeleton.HipCenter, r3.Vector{X: 0, Y: 0, Z: 2})
	set(skeleton.ShoulderCenter, r3.Vector{X: 0, Y: 0.5, Z: 2})
	set(skeleton.ShoulderRight, r3.Vector{X: 0.2, Y: 0.5, Z: 2})
	set(skeleton.ShoulderLeft, r3.Vector{X: -0.2, Y: 0.5, Z: 2})
	set(skeleton.HandRight, rightHand)
	set(skeleton.HandLeft, leftHand)
	return s
}

var (
	rightDown = r3.Vector{X: 0.2, Y: 0, Z: 2}
	leftDown  = r3.Vector{X: -0.2, Y: 0, Z: 2}
	rightOut  = r3.Vector{X: 0.8, Y: 0.5, Z: 2}
)

func TestVoiceIntent(t *testing.T) {
	h := newHarness(t, nil)
	test.That(t, h.ctrl.Start(context.Background()), test.ShouldBeNil)
	defer func() {
		test.That(t, h.ctrl.Close(context.Background()), test.ShouldBeNil)
	}()

	h.rec.EmitResult(speech.Result{Semantic: "SIT", Confidence: 0.9})
	h.rec.EmitResult(speech.Result{Semantic: "SIT", Confidence: 0.5})
	h.rec.EmitResult(speech.Result{Semantic: "DANCE", Confidence: 0.99})
	h.rec.EmitRejected(speech.Result{Text: "mumble"})
	h.rec.EmitResult(speech.Result{Semantic: "RIGHT", Confidence: 0.8})
	h.rec.EmitResult(speech.Result{Semantic: "MOVE", Confidence: 0.8})

	outcomes := h.waitOutcomes(t, 3)
	test.That(t, outcomes[0].Event.Intent, test.ShouldEqual, intent.Sit)
	test.That(t, outcomes[0].Err, test.ShouldBeNil)
	test.That(t, outcomes[1].Event.Intent, test.ShouldEqual, intent.TurnRight)
	test.That(t, outcomes[1].Heading, test.ShouldEqual, heading.Right)
	test.That(t, outcomes[2].Ack.Reply, test.ShouldEqual, "move 1 0")
	test.That(t, h.dev.Written(), test.ShouldResemble, []string{"sit", "turn r right", "move 1 0"})

	st := h.ctrl.Status()
	test.That(t, st.Sensor, test.ShouldBeTrue)
	test.That(t, st.Voice, test.ShouldBeTrue)
	test.That(t, st.Actuation, test.ShouldBeTrue)
	test.That(t, st.Heading, test.ShouldEqual, heading.Right)
	test.That(t, st.IntentsDispatched, test.ShouldEqual, 3)
	test.That(t, st.VoiceStats.Accepted, test.ShouldEqual, 3)
	test.That(t, st.VoiceStats.LowConfidence, test.ShouldEqual, 1)
	test.That(t, st.VoiceStats.Unmapped, test.ShouldEqual, 1)
	test.That(t, st.VoiceStats.Rejected, test.ShouldEqual, 1)
	test.That(t, st.TurtleStats.Acked, test.ShouldEqual, 3)
}

func TestGestureIntent(t *testing.T) {
	h := newHarness(t, nil)
	test.That(t, h.ctrl.Start(context.Background()), test.ShouldBeNil)
	defer func() {
		test.That(t, h.ctrl.Close(context.Background()), test.ShouldBeNil)
	}()

	emit := func(n int64, s skeleton.Skeleton) {
		h.source.Emit(skeleton.Frame{Number: n, Skeletons: []skeleton.Skeleton{s}})
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, h.ctrl.Status().FramesProcessed, test.ShouldEqual, n)
		})
	}

	emit(1, bodyWithHands(rightDown, leftDown))
	emit(2, bodyWithHands(rightOut, leftDown))
	outcomes := h.waitOutcomes(t, 1)
	test.That(t, outcomes[0].Event.Intent, test.ShouldEqual, intent.TurnRight)
	test.That(t, outcomes[0].Event.Source, test.ShouldEqual, intent.SourceGesture)
	test.That(t, outcomes[0].Heading, test.ShouldEqual, heading.Right)

	// Holding the arm out does not turn again.
	emit(3, bodyWithHands(rightOut, leftDown))
	test.That(t, h.ctrl.Status().IntentsDispatched, test.ShouldEqual, 1)

	h.sink.mu.Lock()
	test.That(t, h.sink.frames, test.ShouldHaveLength, 3)
	test.That(t, h.sink.frames[1].Skeletons[0].Gesture.Valid, test.ShouldBeTrue)
	h.sink.mu.Unlock()
}

func TestTelemetryReachesSink(t *testing.T) {
	h := newHarness(t, nil)
	test.That(t, h.ctrl.Start(context.Background()), test.ShouldBeNil)
	defer func() {
		test.That(t, h.ctrl.Close(context.Background()), test.ShouldBeNil)
	}()

	h.dev.Emit("$batt=7.5")
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		h.sink.mu.Lock()
		defer h.sink.mu.Unlock()
		test.That(tb, h.sink.telemetry, test.ShouldHaveLength, 1)
	})
}

func TestDegradedStartWhenSerialOpenFails(t *testing.T) {
	prevOpen := serial.Open
	defer func() { serial.Open = prevOpen }()
	serial.Open = func(ctx context.Context, path string, opts serial.Options) (io.ReadWriteCloser, error) {
		return nil, &serial.PortUnavailableError{Path: path, Reason: serial.ReasonBusy}
	}

	logger := logging.NewTestLogger(t)
	cfg := config.Default()
	cfg.Serial.Port = "COM3"
	sink := newRecordingSink()
	rec := &inject.Recognizer{}
	ctrl, err := New(cfg, Deps{Source: &inject.FrameSource{}, Recognizer: rec, Sink: sink}, logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, ctrl.Start(context.Background()), test.ShouldBeNil)
	defer func() {
		test.That(t, ctrl.Close(context.Background()), test.ShouldBeNil)
	}()

	st := ctrl.Status()
	test.That(t, st.Sensor, test.ShouldBeTrue)
	test.That(t, st.Voice, test.ShouldBeTrue)
	test.That(t, st.Actuation, test.ShouldBeFalse)
	capErr := sink.Capabilities()[CapabilityActuation]
	test.That(t, serial.IsPortUnavailable(capErr), test.ShouldBeTrue)
	test.That(t, sink.Capabilities()[CapabilityVoice], test.ShouldBeNil)

	// Voice keeps working and the heading still follows turns.
	rec.EmitResult(speech.Result{Semantic: "LEFT", Confidence: 0.9})
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, ctrl.Status().IntentsFailed, test.ShouldEqual, 1)
	})
	outcomes := sink.Outcomes()
	test.That(t, outcomes, test.ShouldHaveLength, 1)
	test.That(t, errors.Is(outcomes[0].Err, turtle.ErrNotConnected), test.ShouldBeTrue)
	test.That(t, ctrl.Status().Heading, test.ShouldEqual, heading.Left)
}

func TestDegradedStartWhenSourcesFail(t *testing.T) {
	h := newHarness(t, nil)
	h.source.StartFunc = func(ctx context.Context) error {
		return errors.New("no kinect")
	}
	h.rec.StartFunc = func(ctx context.Context) error {
		return speech.ErrUnavailable
	}
	test.That(t, h.ctrl.Start(context.Background()), test.ShouldBeNil)
	defer func() {
		test.That(t, h.ctrl.Close(context.Background()), test.ShouldBeNil)
	}()

	st := h.ctrl.Status()
	test.That(t, st.Sensor, test.ShouldBeFalse)
	test.That(t, st.Voice, test.ShouldBeFalse)
	test.That(t, st.Actuation, test.ShouldBeTrue)
	test.That(t, h.source.Handlers(), test.ShouldEqual, 0)
	test.That(t, h.rec.Handlers(), test.ShouldEqual, 0)

	// Intents can still be submitted directly.
	test.That(t, h.ctrl.Submit(intent.Event{Intent: intent.Greet}), test.ShouldBeTrue)
	outcomes := h.waitOutcomes(t, 1)
	test.That(t, outcomes[0].Ack.Reply, test.ShouldEqual, "greet")
}

func TestNothingToRun(t *testing.T) {
	cfg := config.Default()
	ctrl, err := New(cfg, Deps{Sink: newRecordingSink()}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	err = ctrl.Start(context.Background())
	test.That(t, errors.Is(err, ErrNothingToRun), test.ShouldBeTrue)
	test.That(t, ctrl.Close(context.Background()), test.ShouldBeNil)
}

type recordingActuator struct {
	Actuator
	closed func()
}

func (ra *recordingActuator) Close(ctx context.Context) error {
	ra.closed()
	return ra.Actuator.Close(ctx)
}

func TestCloseOrder(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := config.Default()
	cfg.Serial.Port = "/dev/ttyFAKE0"
	source := &inject.FrameSource{}
	rec := &inject.Recognizer{}
	dev := inject.NewSerialDevice(ackAll)

	var order []string
	source.StopFunc = func(ctx context.Context) error {
		order = append(order, "sensor.stop")
		// Handlers are still attached while the stream stops.
		test.That(t, source.Handlers(), test.ShouldEqual, 1)
		return nil
	}
	rec.StopFunc = func(ctx context.Context) error {
		order = append(order, "speech.stop")
		test.That(t, source.Handlers(), test.ShouldEqual, 0)
		test.That(t, rec.Handlers(), test.ShouldEqual, 0)
		return errors.New("mic stuck")
	}

	ctrl, err := New(cfg, Deps{
		Source:     source,
		Recognizer: rec,
		Sink:       newRecordingSink(),
		OpenActuator: func(
			ctx context.Context, tcfg turtle.Config, clk clock.Clock, logger logging.Logger,
		) (Actuator, error) {
			return &recordingActuator{
				Actuator: turtle.NewFromPort(dev, tcfg, nil, logger),
				closed:   func() { order = append(order, "turtle.close") },
			}, nil
		},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ctrl.Start(context.Background()), test.ShouldBeNil)
	test.That(t, ctrl.Start(context.Background()), test.ShouldNotBeNil)
	test.That(t, source.Handlers(), test.ShouldEqual, 1)
	test.That(t, rec.Handlers(), test.ShouldEqual, 2)

	err = ctrl.Close(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "mic stuck")
	test.That(t, order, test.ShouldResemble, []string{"sensor.stop", "speech.stop", "turtle.close"})
	test.That(t, dev.Closed(), test.ShouldBeTrue)
	test.That(t, ctrl.Status().Actuation, test.ShouldBeFalse)

	test.That(t, ctrl.Close(context.Background()), test.ShouldBeNil)
	test.That(t, order, test.ShouldHaveLength, 3)
}

func TestFrameQueueDropsNewest(t *testing.T) {
	h := newHarness(t, nil)
	h.sink.frameGate = make(chan struct{})
	test.That(t, h.ctrl.Start(context.Background()), test.ShouldBeNil)

	h.source.Emit(skeleton.Frame{Number: 1})
	// The worker picks up frame 1 and blocks in the sink.
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, len(h.ctrl.frames), test.ShouldEqual, 0)
	})
	h.source.Emit(skeleton.Frame{Number: 2})
	h.source.Emit(skeleton.Frame{Number: 3})
	h.source.Emit(skeleton.Frame{Number: 4})
	test.That(t, h.ctrl.Status().FramesDropped, test.ShouldEqual, 1)

	close(h.sink.frameGate)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, h.ctrl.Status().FramesProcessed, test.ShouldEqual, 3)
	})
	h.sink.mu.Lock()
	numbers := []int64{h.sink.frames[0].Number, h.sink.frames[1].Number, h.sink.frames[2].Number}
	h.sink.mu.Unlock()
	test.That(t, numbers, test.ShouldResemble, []int64{1, 2, 3})
	test.That(t, h.ctrl.Close(context.Background()), test.ShouldBeNil)
}

func TestReconfigure(t *testing.T) {
	h := newHarness(t, nil)
	test.That(t, h.ctrl.Start(context.Background()), test.ShouldBeNil)
	defer func() {
		test.That(t, h.ctrl.Close(context.Background()), test.ShouldBeNil)
	}()

	cfg := config.Default()
	cfg.Serial.Port = "/dev/ttyFAKE0"
	cfg.Voice.Threshold = 0.95
	test.That(t, h.ctrl.Reconfigure(cfg), test.ShouldBeNil)

	h.rec.EmitResult(speech.Result{Semantic: "SIT", Confidence: 0.9})
	h.rec.EmitResult(speech.Result{Semantic: "STOP", Confidence: 0.97})
	outcomes := h.waitOutcomes(t, 1)
	test.That(t, outcomes[0].Event.Intent, test.ShouldEqual, intent.Stop)

	bad := config.Default()
	bad.Voice.Threshold = 3
	test.That(t, h.ctrl.Reconfigure(bad), test.ShouldNotBeNil)
}
