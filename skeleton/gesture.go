package skeleton

import (
	"github.com/golang/geo/r3"

	"go.viam.com/topogo/spatialmath"
)

// gestureJointCount is how many joints the arm-to-torso angles need.
const gestureJointCount = 6

// GestureAngles are the angles, in degrees, between each arm (shoulder to hand) and the torso
// (shoulder center to hip center). Right and Left must only be read when Valid is true.
type GestureAngles struct {
	Right float64 `json:"right"`
	Left  float64 `json:"left"`
	Valid bool    `json:"valid"`
}

// GestureJoints holds the positions of the six joints the gesture angles are built from.
type GestureJoints struct {
	HandRight      r3.Vector
	HandLeft       r3.Vector
	ShoulderRight  r3.Vector
	ShoulderLeft   r3.Vector
	ShoulderCenter r3.Vector
	HipCenter      r3.Vector

	// Available counts the slots that were filled.
	Available int
}

// CollectGestureJoints scans the skeleton's joints once and fills the gesture slots. A joint
// fills its slot whenever the sensor reported a position for it, tracked or inferred. Every
// skeleton carries all 20 slots, so NotTracked is how a joint missing from the sensor's joint
// collection is represented; skipping it is the presence check, not a confidence gate.
func CollectGestureJoints(s *Skeleton) GestureJoints {
	var gj GestureJoints
	for _, joint := range s.Joints {
		if joint.TrackingState == NotTracked {
			continue
		}
		switch joint.Type {
		case HandRight:
			gj.HandRight = joint.Position
		case HandLeft:
			gj.HandLeft = joint.Position
		case ShoulderRight:
			gj.ShoulderRight = joint.Position
		case ShoulderLeft:
			gj.ShoulderLeft = joint.Position
		case ShoulderCenter:
			gj.ShoulderCenter = joint.Position
		case HipCenter:
			gj.HipCenter = joint.Position
		default:
			continue
		}
		gj.Available++
	}
	return gj
}

// Angles computes the gesture angles. The result is invalid unless all six joints are
// available and none of the three vectors is degenerate.
func (gj GestureJoints) Angles() GestureAngles {
	if gj.Available != gestureJointCount {
		return GestureAngles{}
	}

	rightHandVec := gj.HandRight.Sub(gj.ShoulderRight)
	leftHandVec := gj.HandLeft.Sub(gj.ShoulderLeft)
	bodyVec := gj.HipCenter.Sub(gj.ShoulderCenter)

	right, err := spatialmath.AngleBetween(rightHandVec, bodyVec)
	if err != nil {
		return GestureAngles{}
	}
	left, err := spatialmath.AngleBetween(leftHandVec, bodyVec)
	if err != nil {
		return GestureAngles{}
	}
	return GestureAngles{Right: right, Left: left, Valid: true}
}

// ComputeGestureAngles is CollectGestureJoints followed by Angles.
func ComputeGestureAngles(s *Skeleton) GestureAngles {
	return CollectGestureJoints(s).Angles()
}
