// Package speech defines the boundary to a speech recognition engine.
package speech

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/topogo/utils"
)

// ErrUnavailable is returned by Start when no recognition engine can be used.
var ErrUnavailable = errors.New("speech recognizer unavailable")

// Result is one recognized utterance. Semantic is the grammar tag the engine attached to it.
type Result struct {
	Text       string    `json:"text"`
	Semantic   string    `json:"semantic"`
	Confidence float64   `json:"confidence"`
	Time       time.Time `json:"time"`
}

// A Recognizer turns audio into Results. Handlers registered with OnResult receive accepted
// recognitions and handlers registered with OnRejected receive utterances the engine itself
// rejected. Handlers run on the recognizer's goroutine.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	OnResult(handler func(Result)) utils.Registration
	OnRejected(handler func(Result)) utils.Registration
}
