// Package spatialmath converts tracked sensor-space points into screen space and measures the
// angles between limb vectors.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// The output space every projection lands in.
const (
	RenderWidth  = 640.0
	RenderHeight = 480.0
)

// depthFocalLength640x480 is the depth camera's focal length in pixels at 640x480.
const depthFocalLength640x480 = 571.26

// ErrBehindSensor is returned when a point cannot be projected because it lies on or behind
// the sensor plane.
var ErrBehindSensor = errors.New("point is on or behind the sensor plane")

// Calibration describes the pinhole model used to map sensor space (meters, sensor at origin,
// +Z away from the sensor, +Y up) to screen pixels.
type Calibration struct {
	FocalLength float64 `json:"focal_length"`
	CenterX     float64 `json:"center_x"`
	CenterY     float64 `json:"center_y"`
}

// DefaultCalibration matches the skeleton-to-depth mapping of the tracking sensor at 640x480.
func DefaultCalibration() Calibration {
	return Calibration{
		FocalLength: depthFocalLength640x480,
		CenterX:     RenderWidth / 2,
		CenterY:     RenderHeight / 2,
	}
}

// Validate ensures all parts of the calibration are valid.
func (cal Calibration) Validate(path string) error {
	if cal.FocalLength <= 0 {
		return utils.NewConfigValidationError(path, errors.New("focal_length must be positive"))
	}
	if cal.CenterX < 0 || cal.CenterX > RenderWidth {
		return utils.NewConfigValidationError(path, errors.Errorf("center_x must be within [0, %v]", RenderWidth))
	}
	if cal.CenterY < 0 || cal.CenterY > RenderHeight {
		return utils.NewConfigValidationError(path, errors.Errorf("center_y must be within [0, %v]", RenderHeight))
	}
	return nil
}

// Project maps a sensor-space point to a screen point. The result may fall outside the render
// area for points outside the camera frustum; callers clip when drawing.
func Project(p r3.Vector, cal Calibration) (r2.Point, error) {
	if p.Z <= 0 || math.IsNaN(p.Z) {
		return r2.Point{}, ErrBehindSensor
	}
	return r2.Point{
		X: cal.CenterX + p.X*cal.FocalLength/p.Z,
		Y: cal.CenterY - p.Y*cal.FocalLength/p.Z,
	}, nil
}

// InRenderArea reports whether a projected point lies inside the 640x480 output space.
func InRenderArea(p r2.Point) bool {
	return p.X >= 0 && p.X < RenderWidth && p.Y >= 0 && p.Y < RenderHeight
}
