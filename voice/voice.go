// Package voice maps speech recognition results onto intents.
package voice

import (
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/topogo/intent"
	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/speech"
)

// DefaultThreshold is the minimum confidence a result needs to be acted on.
const DefaultThreshold = 0.7

// Vocabulary maps recognizer semantic tags to intents. Tags are matched case-insensitively.
type Vocabulary map[string]intent.Intent

// DefaultVocabulary returns the built-in command words.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		"SIT":      intent.Sit,
		"MOVE":     intent.Move,
		"HI":       intent.Greet,
		"GREET":    intent.Greet,
		"FORWARD":  intent.Forward,
		"BACKWARD": intent.Backward,
		"LEFT":     intent.TurnLeft,
		"RIGHT":    intent.TurnRight,
		"STOP":     intent.Stop,
	}
}

// ParseVocabulary builds a Vocabulary from tag to intent-name pairs.
func ParseVocabulary(raw map[string]string) (Vocabulary, error) {
	vocab := make(Vocabulary, len(raw))
	for tag, name := range raw {
		i, err := intent.Parse(name)
		if err != nil {
			return nil, errors.Wrapf(err, "vocabulary tag %q", tag)
		}
		vocab[strings.ToUpper(tag)] = i
	}
	return vocab, nil
}

// Tags returns the vocabulary's tags, sorted.
func (v Vocabulary) Tags() []string {
	tags := make([]string, 0, len(v))
	for tag := range v {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Config configures a Classifier.
type Config struct {
	Threshold float64 `json:"threshold"`
	// Vocabulary replaces DefaultVocabulary when non-empty. Values are intent names.
	Vocabulary map[string]string `json:"vocabulary,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if !(cfg.Threshold >= 0 && cfg.Threshold <= 1) {
		return goutils.NewConfigValidationError(path, errors.Errorf("threshold %v must be in [0,1]", cfg.Threshold))
	}
	if _, err := ParseVocabulary(cfg.Vocabulary); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	return nil
}

// Stats counts what happened to classified results.
type Stats struct {
	Accepted      int64 `json:"accepted"`
	LowConfidence int64 `json:"low_confidence"`
	Unmapped      int64 `json:"unmapped"`
	Rejected      int64 `json:"rejected"`
}

// Classifier gates results by confidence and maps them through a Vocabulary. It is safe for
// concurrent use.
type Classifier struct {
	logger logging.Logger
	clk    clock.Clock

	mu        sync.RWMutex
	threshold float64
	vocab     Vocabulary

	accepted      atomic.Int64
	lowConfidence atomic.Int64
	unmapped      atomic.Int64
	rejected      atomic.Int64
}

// NewClassifier returns a Classifier for the given config. A nil clock uses the wall clock.
func NewClassifier(cfg Config, clk clock.Clock, logger logging.Logger) (*Classifier, error) {
	if clk == nil {
		clk = clock.New()
	}
	c := &Classifier{logger: logger, clk: clk}
	if err := c.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Reconfigure swaps the threshold and vocabulary.
func (c *Classifier) Reconfigure(cfg Config) error {
	if err := cfg.Validate("voice"); err != nil {
		return err
	}
	vocab := DefaultVocabulary()
	if len(cfg.Vocabulary) > 0 {
		var err error
		if vocab, err = ParseVocabulary(cfg.Vocabulary); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = cfg.Threshold
	c.vocab = vocab
	return nil
}

// Threshold returns the current confidence threshold.
func (c *Classifier) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// Classify returns the intent for a result. Results below the threshold or with a tag outside
// the vocabulary yield nothing; neither is an error.
func (c *Classifier) Classify(res speech.Result) (intent.Event, bool) {
	c.mu.RLock()
	threshold, vocab := c.threshold, c.vocab
	c.mu.RUnlock()

	// NaN never passes the gate.
	if !(res.Confidence >= threshold) {
		c.lowConfidence.Inc()
		c.logger.Debugw("ignoring low confidence result",
			"semantic", res.Semantic, "confidence", res.Confidence, "threshold", threshold)
		return intent.Event{}, false
	}
	i, ok := vocab[strings.ToUpper(res.Semantic)]
	if !ok {
		c.unmapped.Inc()
		c.logger.Debugw("ignoring unmapped result", "semantic", res.Semantic)
		return intent.Event{}, false
	}
	c.accepted.Inc()

	ts := res.Time
	if ts.IsZero() {
		ts = c.clk.Now()
	}
	return intent.Event{
		Intent:     i,
		Source:     intent.SourceVoice,
		Confidence: res.Confidence,
		Time:       ts,
	}, true
}

// Reject records an utterance the recognizer itself rejected.
func (c *Classifier) Reject(res speech.Result) {
	c.rejected.Inc()
	c.logger.Debugw("speech rejected", "text", res.Text, "confidence", res.Confidence)
}

// Stats returns a snapshot of the counters.
func (c *Classifier) Stats() Stats {
	return Stats{
		Accepted:      c.accepted.Load(),
		LowConfidence: c.lowConfidence.Load(),
		Unmapped:      c.unmapped.Load(),
		Rejected:      c.rejected.Load(),
	}
}
