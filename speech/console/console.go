// Package console implements a speech.Recognizer that reads already-recognized utterances as
// text lines, one per line, in the form "<TAG> [confidence]". It stands in for a microphone
// engine during development and in scripted runs.
package console

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/speech"
	"go.viam.com/topogo/utils"
)

// DefaultConfidence is used for lines without an explicit confidence.
const DefaultConfidence = 1.0

// RejectPrefix marks a line as an utterance the engine rejected, e.g. "?mumble 0.2".
const RejectPrefix = "?"

// Recognizer reads utterances from an io.Reader.
type Recognizer struct {
	r      io.Reader
	logger logging.Logger
	clk    clock.Clock

	results  utils.HandlerSet[speech.Result]
	rejected utils.HandlerSet[speech.Result]

	mu      sync.Mutex
	workers utils.StoppableWorkers
}

// New returns a Recognizer over r. A nil clock uses the wall clock.
func New(r io.Reader, clk clock.Clock, logger logging.Logger) *Recognizer {
	if clk == nil {
		clk = clock.New()
	}
	return &Recognizer{r: r, clk: clk, logger: logger}
}

// Start begins reading. Reading stops at end of input or on Stop.
func (rec *Recognizer) Start(ctx context.Context) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.r == nil {
		return errors.Wrap(speech.ErrUnavailable, "no input")
	}
	if rec.workers != nil {
		return errors.New("recognizer already started")
	}
	rec.workers = utils.NewStoppableWorkers(rec.readLoop)
	return nil
}

// Stop stops reading and waits for the read loop to exit. An input that is an io.Closer is
// closed first. Otherwise the goroutine blocked in Read stays parked until that Read returns,
// then exits without delivering what it read; at most one such goroutine exists per Start.
func (rec *Recognizer) Stop(ctx context.Context) error {
	rec.mu.Lock()
	workers := rec.workers
	rec.workers = nil
	rec.mu.Unlock()
	if workers != nil {
		if c, ok := rec.r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				rec.logger.Debugw("error closing recognizer input", "error", err)
			}
		}
		workers.Stop()
	}
	return nil
}

// OnResult registers a handler for recognized utterances.
func (rec *Recognizer) OnResult(handler func(speech.Result)) utils.Registration {
	return rec.results.Add(handler)
}

// OnRejected registers a handler for rejected utterances.
func (rec *Recognizer) OnRejected(handler func(speech.Result)) utils.Registration {
	return rec.rejected.Add(handler)
}

func (rec *Recognizer) readLoop(ctx context.Context) {
	lines := make(chan string)
	goutils.PanicCapturingGo(func() {
		defer close(lines)
		scanner := bufio.NewScanner(rec.r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			rec.logger.Warnw("speech input failed", "error", err)
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				rec.logger.Debug("speech input ended")
				return
			}
			rec.handleLine(line)
		}
	}
}

func (rec *Recognizer) handleLine(line string) {
	res, rejected, err := ParseLine(line)
	if err != nil {
		rec.logger.Warnw("bad speech line", "line", line, "error", err)
		return
	}
	if res.Semantic == "" {
		return
	}
	res.Time = rec.clk.Now()
	if rejected {
		rec.rejected.Dispatch(res)
		return
	}
	rec.results.Dispatch(res)
}

// ParseLine parses "<TAG> [confidence]". A leading RejectPrefix marks the utterance as
// rejected. Blank lines and lines starting with "//" yield an empty result.
func ParseLine(line string) (speech.Result, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "//") {
		return speech.Result{}, false, nil
	}
	rejected := strings.HasPrefix(line, RejectPrefix)
	if rejected {
		line = strings.TrimSpace(strings.TrimPrefix(line, RejectPrefix))
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return speech.Result{}, false, errors.New("missing tag")
	}
	if len(fields) > 2 {
		return speech.Result{}, false, errors.Errorf("expected at most 2 fields, got %d", len(fields))
	}
	res := speech.Result{
		Text:       line,
		Semantic:   strings.ToUpper(fields[0]),
		Confidence: DefaultConfidence,
	}
	if len(fields) == 2 {
		conf, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return speech.Result{}, false, errors.Wrapf(err, "bad confidence %q", fields[1])
		}
		if !(conf >= 0 && conf <= 1) {
			return speech.Result{}, false, errors.Errorf("confidence %v out of range [0,1]", conf)
		}
		res.Confidence = conf
	}
	return res, rejected, nil
}
