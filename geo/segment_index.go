package geo

import (
	"sync"

	"github.com/golang/geo/s2"

	"santiago-a-pie/models"
)

// indexLevel trades cell size against candidate counts. Level 15 cells are
// roughly 300m across, about one city block in central Santiago.
const indexLevel = 15

// SegmentIndex answers nearest-segment queries over the street network.
// Segments are registered under the S2 cells their polylines touch; a query
// inspects the query point's cell and its neighbors.
type SegmentIndex struct {
	mu       sync.RWMutex
	cells    map[s2.CellID][]int64
	segments map[int64]models.Segment
}

// NewSegmentIndex creates an empty index.
func NewSegmentIndex() *SegmentIndex {
	return &SegmentIndex{
		cells:    make(map[s2.CellID][]int64),
		segments: make(map[int64]models.Segment),
	}
}

// Add registers a segment under every index cell its polyline touches.
func (idx *SegmentIndex) Add(s models.Segment) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.segments[s.ID] = s
	seen := make(map[s2.CellID]bool)
	for _, p := range s.Points {
		cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(p[1], p[0])).Parent(indexLevel)
		if seen[cell] {
			continue
		}
		seen[cell] = true
		idx.cells[cell] = append(idx.cells[cell], s.ID)
	}
}

// Len returns the number of indexed segments.
func (idx *SegmentIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.segments)
}

// Get returns a segment by id.
func (idx *SegmentIndex) Get(id int64) (models.Segment, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s, ok := idx.segments[id]
	return s, ok
}

// All returns a snapshot of every indexed segment.
func (idx *SegmentIndex) All() []models.Segment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]models.Segment, 0, len(idx.segments))
	for _, s := range idx.segments {
		out = append(out, s)
	}
	return out
}

// Nearest returns the segment closest to p within maxDistM meters. The
// second return is false when no indexed segment is close enough.
func (idx *SegmentIndex) Nearest(p models.Point, maxDistM float64) (models.Segment, float64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon)).Parent(indexLevel)
	candidates := make(map[int64]bool)
	for _, id := range idx.cells[cell] {
		candidates[id] = true
	}
	for _, n := range cell.EdgeNeighbors() {
		for _, id := range idx.cells[n] {
			candidates[id] = true
		}
	}
	// Corner-diagonal cells are reached through the neighbors' neighbors.
	if len(candidates) == 0 {
		for _, n := range cell.EdgeNeighbors() {
			for _, nn := range n.EdgeNeighbors() {
				for _, id := range idx.cells[nn] {
					candidates[id] = true
				}
			}
		}
	}

	var (
		best     models.Segment
		bestDist = maxDistM
		found    bool
	)
	for id := range candidates {
		s := idx.segments[id]
		d := DistanceToPolylineM(p, s.Points)
		if d <= bestDist {
			best = s
			bestDist = d
			found = true
		}
	}
	return best, bestDist, found
}
