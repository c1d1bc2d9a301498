// Package gesture turns a stream of arm-to-torso angles into turn intents. Raising one arm away
// from the body turns the turtle toward that arm.
package gesture

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/topogo/intent"
	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/skeleton"
)

// Defaults for Config.
const (
	DefaultRaiseDegrees = 75.0
	DefaultLowerDegrees = 45.0
	DefaultCooldown     = time.Second
)

// Config holds the detector thresholds. An arm becomes raised at or above RaiseDegrees and
// lowered at or below LowerDegrees; between the two it keeps its previous state.
type Config struct {
	RaiseDegrees float64       `json:"raise_degrees"`
	LowerDegrees float64       `json:"lower_degrees"`
	Cooldown     time.Duration `json:"cooldown"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		RaiseDegrees: DefaultRaiseDegrees,
		LowerDegrees: DefaultLowerDegrees,
		Cooldown:     DefaultCooldown,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.RaiseDegrees <= 0 || cfg.RaiseDegrees > 180 {
		return goutils.NewConfigValidationError(path, errors.Errorf("raise_degrees %v must be in (0,180]", cfg.RaiseDegrees))
	}
	if cfg.LowerDegrees < 0 || cfg.LowerDegrees >= cfg.RaiseDegrees {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("lower_degrees %v must be in [0,raise_degrees)", cfg.LowerDegrees))
	}
	if cfg.Cooldown < 0 {
		return goutils.NewConfigValidationError(path, errors.New("cooldown cannot be negative"))
	}
	return nil
}

// Detector is a two-arm hysteresis latch with a shared cooldown. It is safe for concurrent use
// but is meant to be fed by a single frame worker.
type Detector struct {
	clk    clock.Clock
	logger logging.Logger

	mu          sync.Mutex
	cfg         Config
	trackingID  int
	tracking    bool
	rightRaised bool
	leftRaised  bool
	lastFire    time.Time
	hasFired    bool
}

// NewDetector returns a Detector. A nil clock uses the wall clock.
func NewDetector(cfg Config, clk clock.Clock, logger logging.Logger) (*Detector, error) {
	if err := cfg.Validate("gesture"); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Detector{cfg: cfg, clk: clk, logger: logger}, nil
}

// Reconfigure replaces the thresholds. Arm state is kept.
func (d *Detector) Reconfigure(cfg Config) error {
	if err := cfg.Validate("gesture"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	return nil
}

// Reset forgets arm state and the cooldown.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Detector) reset() {
	d.tracking = false
	d.rightRaised = false
	d.leftRaised = false
	d.hasFired = false
}

// Observe feeds one measurement for the given skeleton. It returns a turn event when exactly one
// arm was raised by this measurement and the other arm is down. A measurement for a different
// skeleton than the last one restarts arm tracking. Invalid measurements change nothing.
func (d *Detector) Observe(trackingID int, angles skeleton.GestureAngles) (intent.Event, bool) {
	if !angles.Valid {
		return intent.Event{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tracking && d.trackingID != trackingID {
		d.logger.Debugw("gesture skeleton changed", "from", d.trackingID, "to", trackingID)
		d.rightRaised, d.leftRaised = false, false
	}
	d.tracking = true
	d.trackingID = trackingID

	rightWas, leftWas := d.rightRaised, d.leftRaised
	d.rightRaised = d.latch(rightWas, angles.Right)
	d.leftRaised = d.latch(leftWas, angles.Left)

	var turn intent.Intent
	switch {
	case d.rightRaised && !rightWas && !d.leftRaised:
		turn = intent.TurnRight
	case d.leftRaised && !leftWas && !d.rightRaised:
		turn = intent.TurnLeft
	default:
		return intent.Event{}, false
	}

	now := d.clk.Now()
	if d.hasFired && now.Sub(d.lastFire) < d.cfg.Cooldown {
		d.logger.Debugw("gesture suppressed by cooldown", "intent", turn)
		return intent.Event{}, false
	}
	d.hasFired = true
	d.lastFire = now
	return intent.Event{Intent: turn, Source: intent.SourceGesture, Confidence: 1, Time: now}, true
}

func (d *Detector) latch(raised bool, angle float64) bool {
	switch {
	case angle >= d.cfg.RaiseDegrees:
		return true
	case angle <= d.cfg.LowerDegrees:
		return false
	default:
		return raised
	}
}
