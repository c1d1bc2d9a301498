// Package sensor defines the boundary to a skeletal tracking device.
package sensor

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/topogo/skeleton"
	"go.viam.com/topogo/utils"
)

// ErrUnavailable is returned by Start when no tracking device can be used.
var ErrUnavailable = errors.New("skeleton sensor unavailable")

// Type specifies the type of frame source.
type Type string

// The known source types.
const (
	TypeReplay Type = "replay"
	TypeFake   Type = "fake"
)

// Description describes information about the device.
type Description struct {
	Type Type

	// Path is some universal descriptor of how to find the device.
	Path string
}

// A FrameSource streams skeleton frames. Handlers registered with OnFrame run on the source's
// goroutine, one frame at a time, and must not block for long.
type FrameSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	OnFrame(handler func(skeleton.Frame)) utils.Registration

	// Desc returns a description of this source.
	Desc() Description
}
