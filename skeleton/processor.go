package skeleton

import (
	"time"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"

	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/spatialmath"
	"go.viam.com/topogo/utils"
)

// Segment is a bone ready to draw.
type Segment struct {
	From    JointType `json:"from"`
	To      JointType `json:"to"`
	Start   r2.Point  `json:"start"`
	End     r2.Point  `json:"end"`
	Quality Quality   `json:"quality"`
}

// Marker is a joint ready to draw.
type Marker struct {
	Joint   JointType `json:"joint"`
	Point   r2.Point  `json:"point"`
	Quality Quality   `json:"quality"`
}

// SkeletonResult is everything derived from one skeleton of a frame.
type SkeletonResult struct {
	TrackingID    int           `json:"tracking_id"`
	TrackingState TrackingState `json:"tracking_state"`
	ClippedEdges  FrameEdges    `json:"clipped_edges"`
	Bones         []Segment     `json:"bones,omitempty"`
	Joints        []Marker      `json:"joints,omitempty"`
	// BodyCenter is set only for PositionOnly skeletons.
	BodyCenter *r2.Point      `json:"body_center,omitempty"`
	Gesture    GestureAngles `json:"gesture"`
}

// FrameResult is the processed form of a Frame.
type FrameResult struct {
	Number           int64            `json:"number"`
	Timestamp        time.Time        `json:"timestamp"`
	Skeletons        []SkeletonResult `json:"skeletons"`
	ProjectionErrors int              `json:"projection_errors,omitempty"`
}

// Gestures returns the valid gesture angles of the frame, in skeleton order.
func (fr FrameResult) Gestures() []GestureAngles {
	return lo.FilterMap(fr.Skeletons, func(sr SkeletonResult, _ int) (GestureAngles, bool) {
		return sr.Gesture, sr.Gesture.Valid
	})
}

// PrimaryGesture returns the first valid gesture of the frame and the skeleton it came from.
func (fr FrameResult) PrimaryGesture() (GestureAngles, int, bool) {
	for _, sr := range fr.Skeletons {
		if sr.Gesture.Valid {
			return sr.Gesture, sr.TrackingID, true
		}
	}
	return GestureAngles{}, 0, false
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	Calibration spatialmath.Calibration
	// SmoothingWindow averages each skeleton's gesture angles over this many consecutive valid
	// frames. Values <= 1 disable smoothing.
	SmoothingWindow int
}

type angleSmoother struct {
	right, left *utils.RollingAverage
}

// Processor turns frames into FrameResults. It keeps per-skeleton smoothing state, so a
// Processor must be driven by a single goroutine, one frame at a time.
type Processor struct {
	cfg       ProcessorConfig
	logger    logging.Logger
	smoothers map[int]*angleSmoother
}

// NewProcessor returns a Processor. A zero calibration is replaced by the default one.
func NewProcessor(cfg ProcessorConfig, logger logging.Logger) *Processor {
	if cfg.Calibration == (spatialmath.Calibration{}) {
		cfg.Calibration = spatialmath.DefaultCalibration()
	}
	return &Processor{
		cfg:       cfg,
		logger:    logger,
		smoothers: map[int]*angleSmoother{},
	}
}

// Process derives bones, markers, clipped edges and gesture angles for every skeleton of the
// frame.
func (p *Processor) Process(frame Frame) FrameResult {
	result := FrameResult{
		Number:    frame.Number,
		Timestamp: frame.Timestamp,
		Skeletons: make([]SkeletonResult, 0, len(frame.Skeletons)),
	}

	seen := make(map[int]struct{}, len(frame.Skeletons))
	for i := range frame.Skeletons {
		skel := &frame.Skeletons[i]
		sr := SkeletonResult{
			TrackingID:    skel.TrackingID,
			TrackingState: skel.TrackingState,
			ClippedEdges:  skel.ClippedEdges,
		}

		switch skel.TrackingState {
		case SkeletonTracked:
			seen[skel.TrackingID] = struct{}{}
			result.ProjectionErrors += p.bonesAndJoints(skel, &sr)
			sr.Gesture = p.smooth(skel.TrackingID, ComputeGestureAngles(skel))
		case PositionOnly:
			center, err := spatialmath.Project(skel.Position, p.cfg.Calibration)
			if err != nil {
				result.ProjectionErrors++
			} else {
				sr.BodyCenter = &center
			}
		case SkeletonNotTracked:
		}

		result.Skeletons = append(result.Skeletons, sr)
	}

	for id := range p.smoothers {
		if _, ok := seen[id]; !ok {
			delete(p.smoothers, id)
		}
	}

	if result.ProjectionErrors > 0 {
		p.logger.Debugw("frame had unprojectable points", "frame", frame.Number, "count", result.ProjectionErrors)
	}
	return result
}

// bonesAndJoints fills the bone segments and joint markers of a tracked skeleton and returns
// how many points could not be projected.
func (p *Processor) bonesAndJoints(skel *Skeleton, sr *SkeletonResult) int {
	var failures int
	var projected [JointCount]*r2.Point
	var failed [JointCount]bool
	project := func(jt JointType) *r2.Point {
		if projected[jt] != nil || failed[jt] {
			return projected[jt]
		}
		pt, err := spatialmath.Project(skel.Joints[jt].Position, p.cfg.Calibration)
		if err != nil {
			failed[jt] = true
			failures++
			return nil
		}
		projected[jt] = &pt
		return &pt
	}

	for _, bone := range Bones {
		quality := BoneQuality(skel.Joints[bone.From].TrackingState, skel.Joints[bone.To].TrackingState)
		if quality == QualitySkip {
			continue
		}
		start, end := project(bone.From), project(bone.To)
		if start == nil || end == nil {
			continue
		}
		sr.Bones = append(sr.Bones, Segment{From: bone.From, To: bone.To, Start: *start, End: *end, Quality: quality})
	}

	for _, joint := range skel.Joints {
		quality := JointQuality(joint.TrackingState)
		if quality == QualitySkip {
			continue
		}
		pt := project(joint.Type)
		if pt == nil {
			continue
		}
		sr.Joints = append(sr.Joints, Marker{Joint: joint.Type, Point: *pt, Quality: quality})
	}
	return failures
}

// smooth averages valid measurements per skeleton. An invalid measurement clears the window so
// a later valid one never mixes with values from before the gap.
func (p *Processor) smooth(trackingID int, angles GestureAngles) GestureAngles {
	if p.cfg.SmoothingWindow <= 1 {
		return angles
	}
	if !angles.Valid {
		delete(p.smoothers, trackingID)
		return angles
	}
	s, ok := p.smoothers[trackingID]
	if !ok {
		s = &angleSmoother{
			right: utils.NewRollingAverage(p.cfg.SmoothingWindow),
			left:  utils.NewRollingAverage(p.cfg.SmoothingWindow),
		}
		p.smoothers[trackingID] = s
	}
	s.right.Add(angles.Right)
	s.left.Add(angles.Left)
	return GestureAngles{Right: s.right.Average(), Left: s.left.Average(), Valid: true}
}
