package inject

import (
	"context"

	"go.viam.com/topogo/sensor"
	"go.viam.com/topogo/skeleton"
	"go.viam.com/topogo/utils"
)

// FrameSource is an injected sensor.FrameSource. Frames are pushed with Emit.
type FrameSource struct {
	StartFunc   func(ctx context.Context) error
	StopFunc    func(ctx context.Context) error
	OnFrameFunc func(handler func(skeleton.Frame)) utils.Registration

	handlers utils.HandlerSet[skeleton.Frame]
}

// Start calls the injected Start or succeeds.
func (fs *FrameSource) Start(ctx context.Context) error {
	if fs.StartFunc == nil {
		return nil
	}
	return fs.StartFunc(ctx)
}

// Stop calls the injected Stop or succeeds.
func (fs *FrameSource) Stop(ctx context.Context) error {
	if fs.StopFunc == nil {
		return nil
	}
	return fs.StopFunc(ctx)
}

// OnFrame calls the injected OnFrame or registers the handler for Emit.
func (fs *FrameSource) OnFrame(handler func(skeleton.Frame)) utils.Registration {
	if fs.OnFrameFunc == nil {
		return fs.handlers.Add(handler)
	}
	return fs.OnFrameFunc(handler)
}

// Desc describes a fake source.
func (fs *FrameSource) Desc() sensor.Description {
	return sensor.Description{Type: sensor.TypeFake}
}

// Emit delivers a frame to the registered handlers on the calling goroutine.
func (fs *FrameSource) Emit(frame skeleton.Frame) {
	fs.handlers.Dispatch(frame)
}

// Handlers is the number of attached frame handlers.
func (fs *FrameSource) Handlers() int {
	return fs.handlers.Len()
}
