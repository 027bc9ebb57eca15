package geo

import (
	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"santiago-a-pie/models"
)

type aggrUnit struct {
	cnt      int64
	origCell s2.CellID
}

// MapAggregator buckets report points into S2 cells sized for the viewport.
type MapAggregator struct {
	level int
	aggrs map[s2.CellID]*aggrUnit
}

const (
	expectedCells = 160
	minLevel      = 6
	maxLevel      = 16
)

func cellBaseLevel(vp *models.ViewPort, center *models.Point) int {
	minLL := s2.LatLngFromDegrees(vp.LatMin, vp.LonMin)
	maxLL := s2.LatLngFromDegrees(vp.LatMax, vp.LonMax)

	rect := s2.Rect{
		Lat: r1.Interval{
			Lo: minLL.Lat.Radians(),
			Hi: maxLL.Lat.Radians()},
		Lng: s1.Interval{
			Lo: minLL.Lng.Radians(),
			Hi: maxLL.Lng.Radians()},
	}

	vpArea := rect.Area()

	centerLL := s2.CellIDFromLatLng(s2.LatLngFromDegrees(center.Lat, center.Lon))

	for lv := maxLevel; lv >= minLevel; lv-- {
		cc := s2.CellFromCellID(centerLL.Parent(lv))
		if vpArea/cc.ApproxArea() < expectedCells {
			return lv
		}
	}
	return minLevel // Large enough level
}

// NewMapAggregator picks a cell level so that the viewport holds roughly
// expectedCells cells and returns an empty aggregator at that level.
func NewMapAggregator(vp *models.ViewPort) MapAggregator {
	center := &models.Point{
		Lat: (vp.LatMin + vp.LatMax) / 2,
		Lon: (vp.LonMin + vp.LonMax) / 2,
	}
	lv := cellBaseLevel(vp, center)
	return MapAggregator{
		level: lv,
		aggrs: make(map[s2.CellID]*aggrUnit),
	}
}

// AddPoint adds one report location to its covering cell.
func (a *MapAggregator) AddPoint(lat, lon float64) {
	pc := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon))
	parent := pc.Parent(a.level)
	if _, ok := a.aggrs[parent]; !ok {
		a.aggrs[parent] = &aggrUnit{}
	}
	a.aggrs[parent].cnt += 1
	a.aggrs[parent].origCell = pc
}

// ToArray flattens the cells to map results. A cell holding a single report
// keeps the exact report coordinates instead of the cell center.
func (a *MapAggregator) ToArray() []models.MapResult {
	r := make([]models.MapResult, 0, len(a.aggrs))
	for c, unit := range a.aggrs {
		ll := c.LatLng()
		if unit.cnt == 1 {
			ll = unit.origCell.LatLng()
		}
		r = append(r, models.MapResult{
			Latitude:  ll.Lat.Degrees(),
			Longitude: ll.Lng.Degrees(),
			Count:     unit.cnt,
		})
	}
	return r
}
