package models

import (
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// Report sources
const (
	SourceApp    = "app"
	SourceSoSafe = "sosafe"
)

// Report categories. SoSafe incident types are mapped onto these at import.
const (
	CategoryHarassment   = "harassment"
	CategoryCrime        = "crime"
	CategoryPoorLighting = "poor_lighting"
	CategoryBrokenPath   = "broken_path"
	CategoryTraffic      = "traffic"
	CategoryDog          = "stray_dog"
	CategoryOther        = "other"
)

// Report is a single citizen perception report tied to a point in the city.
type Report struct {
	Seq        int     `json:"seq"`
	Source     string  `json:"source"`
	ReporterID string  `json:"reporter_id"`
	ExternalID string  `json:"external_id,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Category   string  `json:"category"`
	Severity   int     `json:"severity"` // 1 (mild) .. 5 (severe)
	Comment    string  `json:"comment,omitempty"`
	SegmentID  *int64  `json:"segment_id,omitempty"`
	ComunaID   *int64  `json:"comuna_id,omitempty"`
	GeoFlagged bool    `json:"geo_flagged,omitempty"`
	Timestamp  string  `json:"ts"`
}

// SubmitReportRequest is the payload for POST /api/v3/reports.
type SubmitReportRequest struct {
	Version    string  `json:"version"` // Must be "2.0"
	ReporterID string  `json:"reporter_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Category   string  `json:"category"`
	Severity   int     `json:"severity"`
	Comment    string  `json:"comment"`
	Photo      []byte  `json:"photo,omitempty"` // optional JPEG, EXIF may carry coordinates
}

// Segment is a walkable street segment from the street network GeoJSON.
type Segment struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Comuna  string       `json:"comuna"`
	OSMID   int64        `json:"osm_id,omitempty"`
	Points  [][2]float64 `json:"points"` // lon, lat pairs, GeoJSON order
	LengthM float64      `json:"length_m"`
}

// Comuna is an administrative area of the Región Metropolitana.
type Comuna struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	OSMID    int64             `json:"osm_id,omitempty"`
	Geometry *geojson.Geometry `json:"geometry,omitempty"`
}

// SegmentScore is the perception score of one segment, 0 (avoid) .. 100 (safe).
type SegmentScore struct {
	SegmentID   int64   `json:"segment_id"`
	Score       float64 `json:"score"`
	ReportCount int     `json:"report_count"`
	UpdatedAt   string  `json:"updated_at"`
}

// ComunaScore aggregates segment scores over a comuna.
type ComunaScore struct {
	ComunaID     int64   `json:"comuna_id"`
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	ReportCount  int     `json:"report_count"`
	ReportMedian float64 `json:"report_median"`
	UpdatedAt    string  `json:"updated_at"`
}

// ViewPort is a lat/lon bounding box, south-west to north-east.
type ViewPort struct {
	LatMin float64 `json:"latmin"`
	LonMin float64 `json:"lonmin"`
	LatMax float64 `json:"latmax"`
	LonMax float64 `json:"lonmax"`
}

// Point is a single WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MapResult is one aggregated cell of the report map.
type MapResult struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Count     int64   `json:"count"`
}

// MapResponse is the body of GET /api/v3/map.
type MapResponse struct {
	Results []MapResult `json:"results"`
}

// RouteRequest asks for a scored route through the given points.
type RouteRequest struct {
	Version string  `json:"version"` // Must be "2.0"
	Points  []Point `json:"points"`
}

// RouteResponse carries a route geometry and its quality breakdown.
type RouteResponse struct {
	Geometry   *geojson.Geometry `json:"geometry"`
	LengthM    float64           `json:"length_m"`
	Score      float64           `json:"score"`
	SegmentIDs []int64           `json:"segment_ids"`
}

// SubscribeRequest subscribes a contact to comuna score alerts.
type SubscribeRequest struct {
	Version  string `json:"version"` // Must be "2.0"
	ComunaID int64  `json:"comuna_id"`
	Email    string `json:"email"`
	Consent  bool   `json:"consent"`
}

// ReportBatch represents a batch of reports for WebSocket broadcast
type ReportBatch struct {
	Reports []Report `json:"reports"`
	Count   int      `json:"count"`
	FromSeq int      `json:"from_seq"`
	ToSeq   int      `json:"to_seq"`
}

// BroadcastMessage is the envelope for WebSocket messages
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	Timestamp        string `json:"timestamp"`
	ConnectedClients int    `json:"connected_clients"`
	LastBroadcastSeq int    `json:"last_broadcast_seq"`
}

// ValidCategory reports whether c is a known report category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryHarassment, CategoryCrime, CategoryPoorLighting,
		CategoryBrokenPath, CategoryTraffic, CategoryDog, CategoryOther:
		return true
	}
	return false
}
