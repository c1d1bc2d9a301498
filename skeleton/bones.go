package skeleton

import "fmt"

// BonePair is a segment between two anatomically adjacent joints.
type BonePair struct {
	From, To JointType
}

// Bones is the fixed list of drawable bones: torso, arms, then legs.
var Bones = [...]BonePair{
	// torso
	{Head, ShoulderCenter},
	{ShoulderCenter, ShoulderLeft},
	{ShoulderCenter, ShoulderRight},
	{ShoulderCenter, Spine},
	{Spine, HipCenter},
	{HipCenter, HipLeft},
	{HipCenter, HipRight},

	// left arm
	{ShoulderLeft, ElbowLeft},
	{ElbowLeft, WristLeft},
	{WristLeft, HandLeft},

	// right arm
	{ShoulderRight, ElbowRight},
	{ElbowRight, WristRight},
	{WristRight, HandRight},

	// left leg
	{HipLeft, KneeLeft},
	{KneeLeft, AnkleLeft},
	{AnkleLeft, FootLeft},

	// right leg
	{HipRight, KneeRight},
	{KneeRight, AnkleRight},
	{AnkleRight, FootRight},
}

// Quality is how reliable a rendered bone or joint marker is.
type Quality int

// Qualities. Skip means nothing is rendered.
const (
	QualitySkip Quality = iota
	QualityInferred
	QualityTracked
)

func (q Quality) String() string {
	switch q {
	case QualitySkip:
		return "skip"
	case QualityInferred:
		return "inferred"
	case QualityTracked:
		return "tracked"
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// MarshalText encodes the quality by name.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// BoneQuality grades the segment between two joints. A bone with a NotTracked end is skipped, as
// is a bone whose ends are both only inferred. Any other pairing has at least one tracked end and
// renders as tracked.
func BoneQuality(a, b JointTrackingState) Quality {
	if a == NotTracked || b == NotTracked {
		return QualitySkip
	}
	if a == Inferred && b == Inferred {
		return QualitySkip
	}
	return QualityTracked
}

// JointQuality grades a single joint marker.
func JointQuality(s JointTrackingState) Quality {
	switch s {
	case Tracked:
		return QualityTracked
	case Inferred:
		return QualityInferred
	case NotTracked:
	}
	return QualitySkip
}
