package routing

import (
	"fmt"
	"sync"

	"github.com/golang/geo/s2"

	"santiago-a-pie/geo"
	"santiago-a-pie/models"
)

// Segment endpoints closer than ~1m collapse into one graph node.
// Rounding to 5 decimal places of a degree gives roughly that.
const nodeKeyPrecision = 1e5

// Cell level for the node snap index, matching the segment index.
const nodeIndexLevel = 15

// NeutralScore is assumed for segments without enough reports to score.
const NeutralScore = 50.0

type nodeKey struct {
	lat, lon int64
}

func keyFor(lat, lon float64) nodeKey {
	return nodeKey{
		lat: int64(lat*nodeKeyPrecision + 0.5*sign(lat)),
		lon: int64(lon*nodeKeyPrecision + 0.5*sign(lon)),
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// edge is one directed traversal of a street segment.
type edge struct {
	to        int
	segmentID int64
	lengthM   float64
	reversed  bool
}

// Graph is the walkable street network as a weighted undirected graph.
// Nodes are segment endpoints, merged when they coincide.
type Graph struct {
	mu       sync.RWMutex
	nodes    []models.Point
	adj      [][]edge
	segments map[int64]models.Segment
	scores   map[int64]float64

	nodeKeys  map[nodeKey]int
	nodeCells map[s2.CellID][]int
}

// NewGraph builds the graph from the street segments.
func NewGraph(segments []models.Segment) *Graph {
	g := &Graph{
		segments:  make(map[int64]models.Segment, len(segments)),
		scores:    make(map[int64]float64),
		nodeKeys:  make(map[nodeKey]int),
		nodeCells: make(map[s2.CellID][]int),
	}
	for _, s := range segments {
		g.addSegment(s)
	}
	return g
}

func (g *Graph) addSegment(s models.Segment) {
	if len(s.Points) < 2 {
		return
	}
	g.segments[s.ID] = s

	first := s.Points[0]
	last := s.Points[len(s.Points)-1]
	from := g.nodeFor(first[1], first[0])
	to := g.nodeFor(last[1], last[0])
	if from == to {
		// Closed loops contribute no connectivity.
		return
	}

	length := s.LengthM
	if length <= 0 {
		length = geo.PolylineLengthM(s.Points)
	}

	g.adj[from] = append(g.adj[from], edge{to: to, segmentID: s.ID, lengthM: length})
	g.adj[to] = append(g.adj[to], edge{to: from, segmentID: s.ID, lengthM: length, reversed: true})
}

func (g *Graph) nodeFor(lat, lon float64) int {
	key := keyFor(lat, lon)
	if id, ok := g.nodeKeys[key]; ok {
		return id
	}
	id := len(g.nodes)
	g.nodes = append(g.nodes, models.Point{Lat: lat, Lon: lon})
	g.adj = append(g.adj, nil)
	g.nodeKeys[key] = id

	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(nodeIndexLevel)
	g.nodeCells[cell] = append(g.nodeCells[cell], id)
	return id
}

// NodeCount returns the number of graph nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// SegmentCount returns the number of segments in the graph.
func (g *Graph) SegmentCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.segments)
}

// UpdateScores replaces the segment scores used as routing weights.
func (g *Graph) UpdateScores(scores map[int64]models.SegmentScore) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scores = make(map[int64]float64, len(scores))
	for id, s := range scores {
		g.scores[id] = s.Score
	}
}

// scoreOf returns a segment's score, neutral when unscored. Caller holds the lock.
func (g *Graph) scoreOf(segmentID int64) float64 {
	if score, ok := g.scores[segmentID]; ok {
		return score
	}
	return NeutralScore
}

// nearestNode returns the graph node closest to p within maxDistM meters.
func (g *Graph) nearestNode(p models.Point, maxDistM float64) (int, error) {
	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon)).Parent(nodeIndexLevel)

	candidates := []int{}
	seen := map[s2.CellID]bool{}
	collect := func(c s2.CellID) {
		if seen[c] {
			return
		}
		seen[c] = true
		candidates = append(candidates, g.nodeCells[c]...)
	}
	collect(cell)
	for _, n := range cell.EdgeNeighbors() {
		collect(n)
	}
	if len(candidates) == 0 {
		for _, n := range cell.EdgeNeighbors() {
			for _, nn := range n.EdgeNeighbors() {
				collect(nn)
			}
		}
	}

	best := -1
	bestDist := maxDistM
	for _, id := range candidates {
		d := geo.DistanceM(p, g.nodes[id])
		if d <= bestDist {
			best = id
			bestDist = d
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("no street within %.0fm of %.5f,%.5f", maxDistM, p.Lat, p.Lon)
	}
	return best, nil
}
