// Package skeleton turns tracked-body frames into renderable bones, joint markers and the two
// arm-to-torso gesture angles.
package skeleton

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// JointType identifies one of the tracked anatomical points.
type JointType int

// The tracked joints, in sensor order.
const (
	HipCenter JointType = iota
	Spine
	ShoulderCenter
	Head
	ShoulderLeft
	ElbowLeft
	WristLeft
	HandLeft
	ShoulderRight
	ElbowRight
	WristRight
	HandRight
	HipLeft
	KneeLeft
	AnkleLeft
	FootLeft
	HipRight
	KneeRight
	AnkleRight
	FootRight

	// JointCount is the number of joints in a skeleton.
	JointCount = int(FootRight) + 1
)

var jointNames = [JointCount]string{
	"HipCenter", "Spine", "ShoulderCenter", "Head",
	"ShoulderLeft", "ElbowLeft", "WristLeft", "HandLeft",
	"ShoulderRight", "ElbowRight", "WristRight", "HandRight",
	"HipLeft", "KneeLeft", "AnkleLeft", "FootLeft",
	"HipRight", "KneeRight", "AnkleRight", "FootRight",
}

func (jt JointType) String() string {
	if jt < 0 || int(jt) >= JointCount {
		return fmt.Sprintf("JointType(%d)", int(jt))
	}
	return jointNames[jt]
}

// Valid reports whether jt is one of the known joints.
func (jt JointType) Valid() bool {
	return jt >= 0 && int(jt) < JointCount
}

// ParseJointType parses a joint name, case-insensitively.
func ParseJointType(name string) (JointType, error) {
	for i, n := range jointNames {
		if strings.EqualFold(n, name) {
			return JointType(i), nil
		}
	}
	return 0, errors.Errorf("unknown joint %q", name)
}

// MarshalText encodes the joint by name.
func (jt JointType) MarshalText() ([]byte, error) {
	if !jt.Valid() {
		return nil, errors.Errorf("invalid joint %d", int(jt))
	}
	return []byte(jt.String()), nil
}

// UnmarshalText decodes a joint name.
func (jt *JointType) UnmarshalText(text []byte) error {
	parsed, err := ParseJointType(string(text))
	if err != nil {
		return err
	}
	*jt = parsed
	return nil
}

// JointTrackingState is how confidently a joint's position is known.
type JointTrackingState int

// The per-joint tracking states. The zero value is NotTracked so a missing joint is never
// mistaken for a tracked one.
const (
	NotTracked JointTrackingState = iota
	Inferred
	Tracked
)

func (s JointTrackingState) String() string {
	switch s {
	case NotTracked:
		return "not_tracked"
	case Inferred:
		return "inferred"
	case Tracked:
		return "tracked"
	}
	return fmt.Sprintf("JointTrackingState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s JointTrackingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *JointTrackingState) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "not_tracked", "nottracked", "":
		*s = NotTracked
	case "inferred":
		*s = Inferred
	case "tracked":
		*s = Tracked
	default:
		return errors.Errorf("unknown joint tracking state %q", text)
	}
	return nil
}

// Joint is a single tracked point of one skeleton in one frame.
type Joint struct {
	Type          JointType          `json:"type"`
	Position      r3.Vector          `json:"position"`
	TrackingState JointTrackingState `json:"tracking_state"`
}
