package skeleton

import (
	"encoding/json"

	"github.com/golang/geo/r3"
)

// skeletonJSON is the wire form of a Skeleton: joints are listed, and missing joints stay
// NotTracked.
type skeletonJSON struct {
	TrackingID    int           `json:"tracking_id"`
	TrackingState TrackingState `json:"tracking_state"`
	Position      r3.Vector     `json:"position"`
	ClippedEdges  FrameEdges    `json:"clipped_edges"`
	Joints        []Joint       `json:"joints,omitempty"`
}

// MarshalJSON lists the joints that are not NotTracked.
func (s Skeleton) MarshalJSON() ([]byte, error) {
	out := skeletonJSON{
		TrackingID:    s.TrackingID,
		TrackingState: s.TrackingState,
		Position:      s.Position,
		ClippedEdges:  s.ClippedEdges,
	}
	for _, j := range s.Joints {
		if j.TrackingState != NotTracked {
			out.Joints = append(out.Joints, j)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON fills joint slots from the listed joints.
func (s *Skeleton) UnmarshalJSON(data []byte) error {
	var in skeletonJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = NewSkeleton(in.TrackingID, in.TrackingState)
	s.Position = in.Position
	s.ClippedEdges = in.ClippedEdges
	for _, j := range in.Joints {
		if err := s.SetJoint(j); err != nil {
			return err
		}
	}
	return nil
}
