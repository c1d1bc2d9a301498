package inject

import (
	"context"

	"go.viam.com/topogo/speech"
	"go.viam.com/topogo/utils"
)

// Recognizer is an injected speech.Recognizer. Utterances are pushed with EmitResult and
// EmitRejected.
type Recognizer struct {
	StartFunc func(ctx context.Context) error
	StopFunc  func(ctx context.Context) error

	results  utils.HandlerSet[speech.Result]
	rejected utils.HandlerSet[speech.Result]
}

// Start calls the injected Start or succeeds.
func (r *Recognizer) Start(ctx context.Context) error {
	if r.StartFunc == nil {
		return nil
	}
	return r.StartFunc(ctx)
}

// Stop calls the injected Stop or succeeds.
func (r *Recognizer) Stop(ctx context.Context) error {
	if r.StopFunc == nil {
		return nil
	}
	return r.StopFunc(ctx)
}

// OnResult registers a result handler.
func (r *Recognizer) OnResult(handler func(speech.Result)) utils.Registration {
	return r.results.Add(handler)
}

// OnRejected registers a rejection handler.
func (r *Recognizer) OnRejected(handler func(speech.Result)) utils.Registration {
	return r.rejected.Add(handler)
}

// EmitResult delivers a recognized utterance.
func (r *Recognizer) EmitResult(res speech.Result) {
	r.results.Dispatch(res)
}

// EmitRejected delivers a rejected utterance.
func (r *Recognizer) EmitRejected(res speech.Result) {
	r.rejected.Dispatch(res)
}

// Handlers is the number of attached handlers of both kinds.
func (r *Recognizer) Handlers() int {
	return r.results.Len() + r.rejected.Len()
}
