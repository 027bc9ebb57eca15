package routing

import (
	"container/heap"
	"fmt"

	geojson "github.com/paulmach/go.geojson"

	"santiago-a-pie/geo"
	"santiago-a-pie/models"
)

// How far a route endpoint may be from the nearest street node.
const maxSnapDistM = 500.0

// riskWeight scales how strongly a bad score stretches an edge. A segment
// scored 0 costs (1 + riskWeight) times its real length; a segment scored
// 100 costs its real length.
const riskWeight = 4.0

func riskFactor(score float64) float64 {
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}
	return 1.0 + riskWeight*(100.0-score)/100.0
}

// SafestRoute returns the route from one point to another that minimizes
// risk-weighted walking distance over the street network.
func (g *Graph) SafestRoute(from, to models.Point) (*models.RouteResponse, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	src, err := g.nearestNode(from, maxSnapDistM)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	dst, err := g.nearestNode(to, maxSnapDistM)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	if src == dst {
		return &models.RouteResponse{Score: NeutralScore, SegmentIDs: []int64{}}, nil
	}

	path, found := g.dijkstra(src, dst)
	if !found {
		return nil, fmt.Errorf("no route between the given points")
	}

	return g.buildResponse(path), nil
}

// ScoreRoute scores an arbitrary walked polyline by matching each leg to its
// nearest street segment. Legs with no nearby segment count as neutral.
func (g *Graph) ScoreRoute(points []models.Point, index *geo.SegmentIndex) (*models.RouteResponse, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("route needs at least 2 points, got %d", len(points))
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	totalLength := 0.0
	weightedScore := 0.0
	segmentIDs := []int64{}
	seen := map[int64]bool{}

	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lon, p.Lat}
	}

	for i := 1; i < len(points); i++ {
		length := geo.DistanceM(points[i-1], points[i])
		if length == 0 {
			continue
		}

		mid := models.Point{
			Lat: (points[i-1].Lat + points[i].Lat) / 2,
			Lon: (points[i-1].Lon + points[i].Lon) / 2,
		}
		score := NeutralScore
		if segment, _, ok := index.Nearest(mid, maxSnapDistM/10); ok {
			score = g.scoreOf(segment.ID)
			if !seen[segment.ID] {
				seen[segment.ID] = true
				segmentIDs = append(segmentIDs, segment.ID)
			}
		}

		totalLength += length
		weightedScore += score * length
	}

	resp := &models.RouteResponse{
		Geometry:   geojson.NewLineStringGeometry(coords),
		LengthM:    totalLength,
		Score:      NeutralScore,
		SegmentIDs: segmentIDs,
	}
	if totalLength > 0 {
		resp.Score = weightedScore / totalLength
	}
	return resp, nil
}

// pqItem is a priority queue entry for Dijkstra.
type pqItem struct {
	node int
	cost float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].cost < pq[j].cost }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// dijkstra finds the cheapest path from src to dst. Caller holds the lock.
func (g *Graph) dijkstra(src, dst int) ([]edge, bool) {
	const unvisited = -1

	dist := make(map[int]float64, len(g.nodes))
	prev := make(map[int]edge)
	prevNode := make(map[int]int)
	done := make(map[int]bool)

	dist[src] = 0
	prevNode[src] = unvisited

	pq := &priorityQueue{{node: src, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if done[item.node] {
			continue
		}
		done[item.node] = true
		if item.node == dst {
			break
		}

		for _, e := range g.adj[item.node] {
			if done[e.to] {
				continue
			}
			cost := item.cost + e.lengthM*riskFactor(g.scoreOf(e.segmentID))
			if d, ok := dist[e.to]; !ok || cost < d {
				dist[e.to] = cost
				prev[e.to] = e
				prevNode[e.to] = item.node
				heap.Push(pq, pqItem{node: e.to, cost: cost})
			}
		}
	}

	if !done[dst] {
		return nil, false
	}

	// Walk predecessors back to the source.
	path := []edge{}
	for node := dst; node != src; node = prevNode[node] {
		path = append(path, prev[node])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}

// buildResponse assembles the route geometry and quality breakdown from a
// sequence of traversed edges. Caller holds the lock.
func (g *Graph) buildResponse(path []edge) *models.RouteResponse {
	coords := [][]float64{}
	segmentIDs := make([]int64, 0, len(path))
	totalLength := 0.0
	weightedScore := 0.0

	for _, e := range path {
		segment := g.segments[e.segmentID]
		points := segment.Points
		if e.reversed {
			points = reversePoints(points)
		}
		start := 0
		if len(coords) > 0 {
			// The first point repeats the previous segment's endpoint.
			start = 1
		}
		for _, p := range points[start:] {
			coords = append(coords, []float64{p[0], p[1]})
		}

		segmentIDs = append(segmentIDs, e.segmentID)
		totalLength += e.lengthM
		weightedScore += g.scoreOf(e.segmentID) * e.lengthM
	}

	resp := &models.RouteResponse{
		Geometry:   geojson.NewLineStringGeometry(coords),
		LengthM:    totalLength,
		Score:      NeutralScore,
		SegmentIDs: segmentIDs,
	}
	if totalLength > 0 {
		resp.Score = weightedScore / totalLength
	}
	return resp
}

func reversePoints(points [][2]float64) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[len(points)-1-i] = p
	}
	return out
}
