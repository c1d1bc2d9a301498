package skeleton

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// TrackingState is the whole-body tracking state of a skeleton.
type TrackingState int

// The skeleton tracking states.
const (
	SkeletonNotTracked TrackingState = iota
	PositionOnly
	SkeletonTracked
)

func (s TrackingState) String() string {
	switch s {
	case SkeletonNotTracked:
		return "not_tracked"
	case PositionOnly:
		return "position_only"
	case SkeletonTracked:
		return "tracked"
	}
	return fmt.Sprintf("TrackingState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s TrackingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *TrackingState) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "not_tracked", "nottracked", "":
		*s = SkeletonNotTracked
	case "position_only", "positiononly":
		*s = PositionOnly
	case "tracked":
		*s = SkeletonTracked
	default:
		return errors.Errorf("unknown skeleton tracking state %q", text)
	}
	return nil
}

// FrameEdges is a bitmask of the camera-frame edges a body extends beyond.
type FrameEdges uint8

// The clippable edges.
const (
	EdgeNone   FrameEdges = 0
	EdgeRight  FrameEdges = 1 << 0
	EdgeLeft   FrameEdges = 1 << 1
	EdgeTop    FrameEdges = 1 << 2
	EdgeBottom FrameEdges = 1 << 3
)

// AllEdges lists the edges in a stable order.
var AllEdges = []FrameEdges{EdgeBottom, EdgeTop, EdgeLeft, EdgeRight}

// Has reports whether every edge in e2 is set in e.
func (e FrameEdges) Has(e2 FrameEdges) bool {
	return e2 != EdgeNone && e&e2 == e2
}

func (e FrameEdges) String() string {
	if e == EdgeNone {
		return "none"
	}
	var names []string
	for _, edge := range AllEdges {
		if e.Has(edge) {
			names = append(names, edgeName(edge))
		}
	}
	return strings.Join(names, "|")
}

func edgeName(e FrameEdges) string {
	switch e {
	case EdgeRight:
		return "right"
	case EdgeLeft:
		return "left"
	case EdgeTop:
		return "top"
	case EdgeBottom:
		return "bottom"
	}
	return "unknown"
}

// Skeleton is one tracked body in one frame. Joints are indexed by JointType.
type Skeleton struct {
	TrackingID    int
	TrackingState TrackingState
	Position      r3.Vector
	ClippedEdges  FrameEdges
	Joints        [JointCount]Joint
}

// Joint returns the joint of the given type.
func (s *Skeleton) Joint(jt JointType) Joint {
	if !jt.Valid() {
		return Joint{Type: jt}
	}
	return s.Joints[jt]
}

// SetJoint stores a joint in its slot.
func (s *Skeleton) SetJoint(j Joint) error {
	if !j.Type.Valid() {
		return errors.Errorf("invalid joint %d", int(j.Type))
	}
	s.Joints[j.Type] = j
	return nil
}

// NewSkeleton returns a skeleton whose joint slots carry their types and are NotTracked.
func NewSkeleton(trackingID int, state TrackingState) Skeleton {
	s := Skeleton{TrackingID: trackingID, TrackingState: state}
	for i := range s.Joints {
		s.Joints[i].Type = JointType(i)
	}
	return s
}

// Frame is the set of skeletons captured at one sensor timestamp.
type Frame struct {
	Number    int64      `json:"number"`
	Timestamp time.Time  `json:"timestamp"`
	Skeletons []Skeleton `json:"skeletons"`
}
