package controller

import (
	"go.viam.com/topogo/base/turtle"
	"go.viam.com/topogo/heading"
	"go.viam.com/topogo/intent"
	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/skeleton"
)

// Capability names reported to a Sink.
const (
	CapabilitySensor    = "sensor"
	CapabilityVoice     = "voice"
	CapabilityActuation = "actuation"
)

// IntentOutcome is what happened to one intent.
type IntentOutcome struct {
	Event   intent.Event      `json:"event"`
	Heading heading.Direction `json:"heading"`
	Ack     turtle.Ack        `json:"ack"`
	Err     error             `json:"-"`
}

// A Sink receives everything the controller produces, e.g. a renderer. Methods are called from
// the controller's workers and the turtle's reader and must not block.
type Sink interface {
	Frame(result skeleton.FrameResult)
	Intent(outcome IntentOutcome)
	Telemetry(t turtle.Telemetry)
	// Capability reports a path becoming available (nil error) or unavailable.
	Capability(name string, err error)
}

// LogSink writes everything to a logger.
type LogSink struct {
	Logger logging.Logger
}

// Frame logs frames that carry a gesture measurement.
func (s LogSink) Frame(result skeleton.FrameResult) {
	g, id, ok := result.PrimaryGesture()
	if !ok {
		return
	}
	s.Logger.Debugw("frame", "number", result.Number, "skeletons", len(result.Skeletons),
		"tracking_id", id, "right_deg", g.Right, "left_deg", g.Left)
}

// Intent logs an intent and whether the turtle accepted it.
func (s LogSink) Intent(o IntentOutcome) {
	if o.Err != nil {
		s.Logger.Warnw("intent not delivered", "intent", o.Event.Intent, "source", o.Event.Source,
			"heading", o.Heading, "error", o.Err)
		return
	}
	s.Logger.Infow("intent", "intent", o.Event.Intent, "source", o.Event.Source,
		"confidence", o.Event.Confidence, "heading", o.Heading, "reply", o.Ack.Reply)
}

// Telemetry logs a telemetry record.
func (s LogSink) Telemetry(t turtle.Telemetry) {
	s.Logger.Debugw("telemetry", "fields", t.Fields)
}

// Capability logs a capability change.
func (s LogSink) Capability(name string, err error) {
	if err != nil {
		s.Logger.Warnw("capability unavailable", "capability", name, "error", err)
		return
	}
	s.Logger.Infow("capability available", "capability", name)
}
