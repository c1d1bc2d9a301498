// Package config defines the on-disk configuration of a topogo controller.
package config

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/topogo/base/turtle"
	"go.viam.com/topogo/gesture"
	"go.viam.com/topogo/heading"
	"go.viam.com/topogo/sensor/replay"
	"go.viam.com/topogo/spatialmath"
	"go.viam.com/topogo/voice"
)

// Defaults for ControllerConfig.
const (
	DefaultFrameQueueSize  = 2
	DefaultIntentQueueSize = 8
	DefaultCommandTimeout  = 2 * time.Second
	DefaultLogMaxSizeMB    = 10
)

// Config describes how to run a controller.
type Config struct {
	ConfigFilePath string `json:"-"`

	Serial     turtle.Config    `json:"serial"`
	Voice      voice.Config     `json:"voice"`
	Gesture    gesture.Config   `json:"gesture"`
	Skeleton   SkeletonConfig   `json:"skeleton"`
	Sensor     SensorConfig     `json:"sensor"`
	Speech     SpeechConfig     `json:"speech"`
	Controller ControllerConfig `json:"controller"`
	Log        LogConfig        `json:"log"`
	Debug      bool             `json:"debug"`
}

// LogConfig adds a rotated log file next to stdout logging.
type LogConfig struct {
	File      string `json:"file"`
	MaxSizeMB int    `json:"max_size_mb"`
}

// SkeletonConfig configures frame processing.
type SkeletonConfig struct {
	Calibration     spatialmath.Calibration `json:"calibration"`
	SmoothingWindow int                     `json:"smoothing_window"`
}

// SensorConfig selects the frame source. Without a replay path no sensor is attached.
type SensorConfig struct {
	Replay replay.Config `json:"replay"`
}

// SpeechConfig selects the speech recognizer.
type SpeechConfig struct {
	// Stdin reads "<TAG> [confidence]" lines from standard input.
	Stdin bool `json:"stdin"`
}

// ControllerConfig tunes the controller's queues and command handling.
type ControllerConfig struct {
	FrameQueueSize  int               `json:"frame_queue_size"`
	IntentQueueSize int               `json:"intent_queue_size"`
	InitialHeading  heading.Direction `json:"initial_heading"`
	// CommandTimeout bounds one intent's round trip to the turtle, including the ack.
	CommandTimeout time.Duration `json:"command_timeout"`
	// TraceCommands logs every turtle command at debug detail regardless of the log level.
	TraceCommands bool `json:"trace_commands"`
}

// Default returns a config with every default filled in and no devices attached.
func Default() *Config {
	return &Config{
		Serial:  turtle.DefaultConfig(),
		Voice:   voice.Config{Threshold: voice.DefaultThreshold},
		Gesture: gesture.DefaultConfig(),
		Skeleton: SkeletonConfig{
			Calibration:     spatialmath.DefaultCalibration(),
			SmoothingWindow: 1,
		},
		Sensor: SensorConfig{Replay: replay.Config{FPS: replay.DefaultFPS}},
		Controller: ControllerConfig{
			FrameQueueSize:  DefaultFrameQueueSize,
			IntentQueueSize: DefaultIntentQueueSize,
			InitialHeading:  heading.Up,
			CommandTimeout:  DefaultCommandTimeout,
		},
		Log: LogConfig{MaxSizeMB: DefaultLogMaxSizeMB},
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if cfg.Serial.Port != "" {
		if err := cfg.Serial.Validate("serial"); err != nil {
			return err
		}
	}
	if err := cfg.Voice.Validate("voice"); err != nil {
		return err
	}
	if err := cfg.Gesture.Validate("gesture"); err != nil {
		return err
	}
	if err := cfg.Skeleton.Calibration.Validate("skeleton.calibration"); err != nil {
		return err
	}
	if cfg.Skeleton.SmoothingWindow < 0 {
		return utils.NewConfigValidationError("skeleton", errors.New("smoothing_window cannot be negative"))
	}
	if cfg.Sensor.Replay.Path != "" {
		if err := cfg.Sensor.Replay.Validate("sensor.replay"); err != nil {
			return err
		}
	}
	if cfg.Log.File != "" && cfg.Log.MaxSizeMB < 1 {
		return utils.NewConfigValidationError("log", errors.New("max_size_mb must be at least 1"))
	}
	return cfg.Controller.Validate("controller")
}

// Validate ensures all parts of the config are valid.
func (cc *ControllerConfig) Validate(path string) error {
	if cc.FrameQueueSize < 1 {
		return utils.NewConfigValidationError(path, errors.New("frame_queue_size must be at least 1"))
	}
	if cc.IntentQueueSize < 1 {
		return utils.NewConfigValidationError(path, errors.New("intent_queue_size must be at least 1"))
	}
	if !cc.InitialHeading.Valid() {
		return utils.NewConfigValidationError(path, errors.Errorf("invalid initial_heading %d", int(cc.InitialHeading)))
	}
	if cc.CommandTimeout <= 0 {
		return utils.NewConfigValidationError(path, errors.New("command_timeout must be positive"))
	}
	return nil
}
