// Package intent defines the closed set of motion intents the operator can issue and the
// event that carries one from a producer (voice or gesture) to the actuator.
package intent

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Intent is a discrete command for the turtle.
type Intent int

// The known intents. Unknown is never produced by a classifier.
const (
	Unknown Intent = iota
	Sit
	Move
	Greet
	Forward
	Backward
	TurnLeft
	TurnRight
	Stop
)

var intentNames = [...]string{
	Unknown:   "UNKNOWN",
	Sit:       "SIT",
	Move:      "MOVE",
	Greet:     "GREET",
	Forward:   "FORWARD",
	Backward:  "BACKWARD",
	TurnLeft:  "TURN_LEFT",
	TurnRight: "TURN_RIGHT",
	Stop:      "STOP",
}

// All lists every producible intent.
var All = []Intent{Sit, Move, Greet, Forward, Backward, TurnLeft, TurnRight, Stop}

func (i Intent) String() string {
	if i < 0 || int(i) >= len(intentNames) {
		return fmt.Sprintf("Intent(%d)", int(i))
	}
	return intentNames[i]
}

// IsTurn reports whether the intent changes the heading.
func (i Intent) IsTurn() bool {
	return i == TurnLeft || i == TurnRight
}

// Parse returns the intent with the given name, ignoring case.
func Parse(name string) (Intent, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, i := range All {
		if intentNames[i] == upper {
			return i, nil
		}
	}
	return Unknown, errors.Errorf("unknown intent %q", name)
}

// MarshalText encodes the intent by name.
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText decodes an intent name.
func (i *Intent) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Source identifies which input stream produced an event.
type Source string

// The event sources.
const (
	SourceVoice   Source = "voice"
	SourceGesture Source = "gesture"
)

// Event is one intent headed for the actuator.
type Event struct {
	Intent     Intent    `json:"intent"`
	Source     Source    `json:"source"`
	Confidence float64   `json:"confidence"`
	Time       time.Time `json:"time"`
}
