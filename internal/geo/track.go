// Package geo samples observer poses into a line geometry for mission
// history.
//
// World coordinates are local Cartesian with y up. Geometries put the
// horizontal plane (x, z) in XY and height in Z, so Length is the
// distance travelled over the ground.
package geo

import (
	"sync"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
)

// Track keeps at most one pose per interval.
type Track struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	poses    []core.Pose
}

// NewTrack creates a track that samples every interval. Zero keeps every pose.
func NewTrack(interval time.Duration) *Track {
	return &Track{interval: interval}
}

// Add records p if at least interval has passed since the last sample.
func (t *Track) Add(at time.Time, p core.Pose) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.poses) > 0 && at.Sub(t.last) < t.interval {
		return false
	}
	t.last = at
	t.poses = append(t.poses, p)
	return true
}

// Poses returns a copy of the samples.
func (t *Track) Poses() []core.Pose {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Pose(nil), t.poses...)
}

// Len returns the number of samples.
func (t *Track) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.poses)
}

// LineString returns the samples as a line. Fewer than two samples give
// an empty line.
func (t *Track) LineString() geom.LineString {
	return PosesToLineString(t.Poses())
}

// PosesToLineString converts poses to an XYZ line.
func PosesToLineString(poses []core.Pose) geom.LineString {
	if len(poses) < 2 {
		return geom.LineString{}
	}
	coords := make([]float64, 0, len(poses)*3)
	for _, p := range poses {
		coords = append(coords, float64(p.X), float64(p.Z), float64(p.Y))
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXYZ))
}

// LineStringToPoses is the inverse of PosesToLineString. Orientation is not
// stored in the geometry and comes back as zero.
func LineStringToPoses(ls geom.LineString) []core.Pose {
	seq := ls.Coordinates()
	n := seq.Length()
	if n == 0 {
		return nil
	}
	poses := make([]core.Pose, n)
	for i := 0; i < n; i++ {
		c := seq.Get(i)
		poses[i] = core.Pose{X: float32(c.X), Y: float32(c.Z), Z: float32(c.Y)}
	}
	return poses
}

// Distance is the ground distance covered by poses.
func Distance(poses []core.Pose) float64 {
	return PosesToLineString(poses).Length()
}
