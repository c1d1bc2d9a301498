// Package heading tracks which cardinal direction the turtle faces.
package heading

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/topogo/intent"
)

// Direction is a cardinal facing in screen space, where Up is toward the top of the screen.
type Direction int

// The four directions, clockwise from Up.
const (
	Up Direction = iota
	Right
	Down
	Left
)

// NumDirections is the size of the Direction domain.
const NumDirections = 4

var directionNames = [NumDirections]string{
	Up:    "up",
	Right: "right",
	Down:  "down",
	Left:  "left",
}

// Valid reports whether d is one of the four directions.
func (d Direction) Valid() bool {
	return d >= 0 && d < NumDirections
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// ParseDirection returns the direction with the given name, ignoring case.
func ParseDirection(name string) (Direction, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for d, n := range directionNames {
		if n == lower {
			return Direction(d), nil
		}
	}
	return Up, errors.Errorf("unknown direction %q", name)
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var (
	turnRight = [NumDirections]Direction{Up: Right, Right: Down, Down: Left, Left: Up}
	turnLeft  = [NumDirections]Direction{Up: Left, Right: Up, Down: Right, Left: Down}
)

// TurnRight returns the direction a quarter turn clockwise from d. An invalid d is returned
// unchanged.
func TurnRight(d Direction) Direction {
	if !d.Valid() {
		return d
	}
	return turnRight[d]
}

// TurnLeft returns the direction a quarter turn counterclockwise from d. An invalid d is
// returned unchanged.
func TurnLeft(d Direction) Direction {
	if !d.Valid() {
		return d
	}
	return turnLeft[d]
}

// Vector is an integer screen-space step.
type Vector struct {
	X, Y int
}

var displacements = [NumDirections]Vector{
	Up:    {X: 0, Y: -1},
	Right: {X: 1, Y: 0},
	Down:  {X: 0, Y: 1},
	Left:  {X: -1, Y: 0},
}

// Displacement is the unit step taken when moving in direction d. Screen Y grows downward.
// An invalid d does not move.
func Displacement(d Direction) Vector {
	if !d.Valid() {
		return Vector{}
	}
	return displacements[d]
}

// Heading owns the current direction. All methods are safe for concurrent use.
type Heading struct {
	mu      sync.Mutex
	initial Direction
	current Direction
}

// New returns a Heading facing initial.
func New(initial Direction) (*Heading, error) {
	if !initial.Valid() {
		return nil, errors.Errorf("invalid initial direction %d", int(initial))
	}
	return &Heading{initial: initial, current: initial}, nil
}

// Current returns the current direction.
func (h *Heading) Current() Direction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// TurnLeft rotates counterclockwise and returns the new direction.
func (h *Heading) TurnLeft() Direction {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = turnLeft[h.current]
	return h.current
}

// TurnRight rotates clockwise and returns the new direction.
func (h *Heading) TurnRight() Direction {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = turnRight[h.current]
	return h.current
}

// Apply applies a turn intent and returns the resulting direction and whether it changed.
// Non-turn intents leave the heading untouched.
func (h *Heading) Apply(i intent.Intent) (Direction, bool) {
	switch i {
	case intent.TurnLeft:
		return h.TurnLeft(), true
	case intent.TurnRight:
		return h.TurnRight(), true
	case intent.Unknown, intent.Sit, intent.Move, intent.Greet, intent.Forward,
		intent.Backward, intent.Stop:
	}
	return h.Current(), false
}

// Reset restores the initial direction.
func (h *Heading) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = h.initial
}
