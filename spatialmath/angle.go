package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrZeroLengthVector is returned when an angle is requested against a vector with no direction.
var ErrZeroLengthVector = errors.New("cannot measure an angle against a zero-length vector")

// zeroNorm is the norm below which a vector is treated as having no direction.
const zeroNorm = 1e-9

// AngleBetween returns the angle between a and b in degrees, in [0, 180].
func AngleBetween(a, b r3.Vector) (float64, error) {
	if a.Norm() < zeroNorm || b.Norm() < zeroNorm {
		return 0, ErrZeroLengthVector
	}
	return a.Angle(b).Degrees(), nil
}
