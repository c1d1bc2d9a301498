// Package replay implements a sensor.FrameSource that plays back skeleton frames recorded as
// JSON lines, one skeleton.Frame per line.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/sensor"
	"go.viam.com/topogo/skeleton"
	"go.viam.com/topogo/utils"
)

// DefaultFPS is the sensor's native frame rate.
const DefaultFPS = 30

// maxLineBytes bounds one recorded frame.
const maxLineBytes = 1 << 20

// Config configures a replay Source.
type Config struct {
	Path string  `json:"path"`
	FPS  float64 `json:"fps"`
	Loop bool    `json:"loop"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Path == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "path")
	}
	if cfg.FPS < 0 {
		return goutils.NewConfigValidationError(path, errors.New("fps cannot be negative"))
	}
	return nil
}

// Source replays a recording.
type Source struct {
	cfg    Config
	clk    clock.Clock
	logger logging.Logger

	frames utils.HandlerSet[skeleton.Frame]

	mu      sync.Mutex
	workers utils.StoppableWorkers
	file    *os.File
	played  int64
}

// New returns a Source for cfg. A nil clock uses the wall clock.
func New(cfg Config, clk clock.Clock, logger logging.Logger) *Source {
	if cfg.FPS == 0 {
		cfg.FPS = DefaultFPS
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Source{cfg: cfg, clk: clk, logger: logger.WithFields("path", cfg.Path)}
}

// Desc describes the source.
func (s *Source) Desc() sensor.Description {
	return sensor.Description{Type: sensor.TypeReplay, Path: s.cfg.Path}
}

// Start opens the recording and begins playback.
func (s *Source) Start(ctx context.Context) error {
	if err := s.cfg.Validate("replay"); err != nil {
		return errors.Wrap(sensor.ErrUnavailable, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workers != nil {
		return errors.New("replay already started")
	}
	//nolint:gosec
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return errors.Wrapf(sensor.ErrUnavailable, "opening recording: %v", err)
	}
	s.file = f
	s.workers = utils.NewStoppableWorkers(s.play)
	s.logger.Infow("replaying skeleton frames", "path", s.cfg.Path, "fps", s.cfg.FPS)
	return nil
}

// Stop ends playback and closes the recording.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	workers, f := s.workers, s.file
	s.workers, s.file = nil, nil
	s.mu.Unlock()
	if workers == nil {
		return nil
	}
	workers.Stop()
	return f.Close()
}

// OnFrame registers a frame handler.
func (s *Source) OnFrame(handler func(skeleton.Frame)) utils.Registration {
	return s.frames.Add(handler)
}

// Played is the number of frames delivered so far.
func (s *Source) Played() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}

func (s *Source) play(ctx context.Context) {
	s.mu.Lock()
	f := s.file
	s.mu.Unlock()

	interval := time.Duration(float64(time.Second) / s.cfg.FPS)
	var number int64
	for {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			if len(scanner.Bytes()) == 0 {
				continue
			}
			var frame skeleton.Frame
			if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
				s.logger.Warnw("skipping bad recorded frame", "line", lineNum, "error", err)
				continue
			}
			number++
			if frame.Number == 0 {
				frame.Number = number
			}
			if frame.Timestamp.IsZero() {
				frame.Timestamp = s.clk.Now()
			}
			s.frames.Dispatch(frame)
			s.mu.Lock()
			s.played++
			s.mu.Unlock()

			if !goutils.SelectContextOrWait(ctx, interval) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() == nil {
				s.logger.Warnw("reading recording failed", "error", err)
			}
			return
		}
		if !s.cfg.Loop {
			s.logger.Info("recording finished")
			return
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			s.logger.Warnw("cannot rewind recording", "error", err)
			return
		}
	}
}

// WriteFrames writes frames in the format Source plays back.
func WriteFrames(w io.Writer, frames ...skeleton.Frame) error {
	enc := json.NewEncoder(w)
	for _, frame := range frames {
		if err := enc.Encode(frame); err != nil {
			return errors.Wrapf(err, "encoding frame %d", frame.Number)
		}
	}
	return nil
}
