package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	geojson "github.com/paulmach/go.geojson"

	"santiago-a-pie/config"
	"santiago-a-pie/database"
	"santiago-a-pie/geo"
	"santiago-a-pie/models"
	"santiago-a-pie/render"
	"santiago-a-pie/routing"
	"santiago-a-pie/services"
	"santiago-a-pie/sosafe"
	ws "santiago-a-pie/websocket"
)

const (
	// APIVersion is the only accepted payload version.
	APIVersion = "2.0"

	// MaxReportsLimit is the maximum number of reports that can be requested in a single query
	MaxReportsLimit = 10000

	defaultSinceDays = 90
)

// Handlers contains all HTTP handlers
type Handlers struct {
	cfg      *config.Config
	db       *database.Database
	hub      *ws.Hub
	reports  *services.ReportService
	streets  *services.StreetsService
	scores   *services.ScoreService
	alerts   *services.AlertsService
	graph    *routing.Graph
	importer *sosafe.Importer // nil when the feed is not configured
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, db *database.Database, hub *ws.Hub,
	reports *services.ReportService, streets *services.StreetsService,
	scores *services.ScoreService, alerts *services.AlertsService,
	graph *routing.Graph, importer *sosafe.Importer) *Handlers {
	return &Handlers{
		cfg:      cfg,
		db:       db,
		hub:      hub,
		reports:  reports,
		streets:  streets,
		scores:   scores,
		alerts:   alerts,
		graph:    graph,
		importer: importer,
	}
}

// SubmitReport handles POST /api/v3/reports
func (h *Handlers) SubmitReport(c *gin.Context) {
	var req models.SubmitReportRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Version != APIVersion {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "bad API version, expecting " + APIVersion})
		return
	}

	report, err := h.reports.Submit(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetReportsByLatLng returns reports within a radius around given coordinates
func (h *Handlers) GetReportsByLatLng(c *gin.Context) {
	latitude, ok := queryFloat(c, "latitude")
	if !ok {
		return
	}
	longitude, ok := queryFloat(c, "longitude")
	if !ok {
		return
	}

	radiusKm := 1.0
	if parsed, err := strconv.ParseFloat(c.DefaultQuery("radius_km", "1.0"), 64); err == nil && parsed > 0 {
		radiusKm = parsed
	} else {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'radius_km' parameter. Must be a positive number."})
		return
	}
	// Limit the maximum radius to prevent abuse
	if radiusKm > 25 {
		radiusKm = 25
	}

	n := queryLimit(c, "n", 10)

	reports, err := h.db.GetReportsByLatLng(c.Request.Context(), latitude, longitude, radiusKm*1000, n)
	if err != nil {
		log.Errorf("Failed to get reports by lat/lng (%.6f, %.6f): %v", latitude, longitude, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reports"})
		return
	}

	c.JSON(http.StatusOK, reportBatch(reports))
}

// GetLastReports returns the most recent N reports
func (h *Handlers) GetLastReports(c *gin.Context) {
	n := queryLimit(c, "n", 10)

	reports, err := h.db.GetLastNReports(c.Request.Context(), n)
	if err != nil {
		log.Errorf("Failed to get last reports: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reports"})
		return
	}

	c.JSON(http.StatusOK, reportBatch(reports))
}

// GetMap returns viewport report counts aggregated into S2 cells
func (h *Handlers) GetMap(c *gin.Context) {
	vp, ok := queryViewPort(c)
	if !ok {
		return
	}

	sinceDays := defaultSinceDays
	if parsed, err := strconv.Atoi(c.DefaultQuery("since_days", strconv.Itoa(defaultSinceDays))); err == nil && parsed > 0 {
		sinceDays = parsed
	}
	since := time.Now().AddDate(0, 0, -sinceDays)

	reports, err := h.db.GetReportsForViewport(c.Request.Context(), vp, since)
	if err != nil {
		log.Errorf("Failed to get viewport reports: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reports"})
		return
	}

	aggr := geo.NewMapAggregator(vp)
	for _, r := range reports {
		aggr.AddPoint(r.Latitude, r.Longitude)
	}

	c.JSON(http.StatusOK, models.MapResponse{Results: aggr.ToArray()})
}

// GetComunas returns comuna polygons with their current scores as GeoJSON
func (h *Handlers) GetComunas(c *gin.Context) {
	comunas, err := h.db.GetComunas(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to get comunas: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve comunas"})
		return
	}
	scores, err := h.db.GetComunaScores(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to get comuna scores: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve comuna scores"})
		return
	}
	scoreByID := make(map[int64]models.ComunaScore, len(scores))
	for _, s := range scores {
		scoreByID[s.ComunaID] = s
	}

	collection := geojson.NewFeatureCollection()
	for _, comuna := range comunas {
		feature := geojson.NewFeature(comuna.Geometry)
		feature.SetProperty("id", comuna.ID)
		feature.SetProperty("name", comuna.Name)
		if s, ok := scoreByID[comuna.ID]; ok {
			feature.SetProperty("score", s.Score)
			feature.SetProperty("report_count", s.ReportCount)
			feature.SetProperty("report_median", s.ReportMedian)
		}
		collection.AddFeature(feature)
	}

	c.JSON(http.StatusOK, collection)
}

// GetSegments returns scored street segments inside the viewport as GeoJSON
func (h *Handlers) GetSegments(c *gin.Context) {
	vp, ok := queryViewPort(c)
	if !ok {
		return
	}

	scores, err := h.db.GetSegmentScores(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to get segment scores: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve segment scores"})
		return
	}

	collection := geojson.NewFeatureCollection()
	for _, segment := range h.segmentsInViewport(vp) {
		coords := make([][]float64, len(segment.Points))
		for i, p := range segment.Points {
			coords[i] = []float64{p[0], p[1]}
		}
		feature := geojson.NewLineStringFeature(coords)
		feature.SetProperty("id", segment.ID)
		feature.SetProperty("name", segment.Name)
		feature.SetProperty("comuna", segment.Comuna)
		feature.SetProperty("length_m", segment.LengthM)
		if s, ok := scores[segment.ID]; ok {
			feature.SetProperty("score", s.Score)
			feature.SetProperty("report_count", s.ReportCount)
		}
		collection.AddFeature(feature)
	}

	c.JSON(http.StatusOK, collection)
}

// RenderSegments returns a PNG of viewport segment scores
func (h *Handlers) RenderSegments(c *gin.Context) {
	vp, ok := queryViewPort(c)
	if !ok {
		return
	}

	opts := render.DefaultOptions
	if parsed, err := strconv.Atoi(c.DefaultQuery("width", "0")); err == nil && parsed > 0 && parsed <= 4096 {
		opts.Width = parsed
	}
	if parsed, err := strconv.Atoi(c.DefaultQuery("buckets", "0")); err == nil && parsed > 0 {
		opts.Buckets = parsed
	}
	if parsed, err := strconv.ParseFloat(c.DefaultQuery("line_width", "0"), 64); err == nil && parsed > 0 {
		opts.LineWidth = parsed
	}

	scores, err := h.db.GetSegmentScores(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to get segment scores: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve segment scores"})
		return
	}

	img, err := render.Map(h.segmentsInViewport(vp), scores, *vp, opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "image/png", img)
}

// SafestRoute returns the safest walking route between two points
func (h *Handlers) SafestRoute(c *gin.Context) {
	fromLat, ok := queryFloat(c, "from_lat")
	if !ok {
		return
	}
	fromLon, ok := queryFloat(c, "from_lon")
	if !ok {
		return
	}
	toLat, ok := queryFloat(c, "to_lat")
	if !ok {
		return
	}
	toLon, ok := queryFloat(c, "to_lon")
	if !ok {
		return
	}

	route, err := h.graph.SafestRoute(
		models.Point{Lat: fromLat, Lon: fromLon},
		models.Point{Lat: toLat, Lon: toLon})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, route)
}

// ScoreRoute handles POST /api/v3/route/score
func (h *Handlers) ScoreRoute(c *gin.Context) {
	var req models.RouteRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Version != APIVersion {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "bad API version, expecting " + APIVersion})
		return
	}

	resp, err := h.graph.ScoreRoute(req.Points, h.streets.Index())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Subscribe handles POST /api/v3/comunas/subscribe
func (h *Handlers) Subscribe(c *gin.Context) {
	var req models.SubscribeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Version != APIVersion {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "bad API version, expecting " + APIVersion})
		return
	}
	if req.ComunaID <= 0 || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comuna_id and email required"})
		return
	}

	if err := h.db.AddComunaContact(c.Request.Context(), req.ComunaID, req.Email, req.Consent); err != nil {
		log.Errorf("Failed to store comuna contact: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscribed": req.Consent})
}

// TriggerRecompute handles POST /api/v3/admin/recompute
func (h *Handlers) TriggerRecompute(c *gin.Context) {
	comunaScores, err := h.scores.Recompute(c.Request.Context())
	if err != nil {
		log.Errorf("On-demand recompute failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Recompute failed"})
		return
	}

	h.alerts.CheckScores(comunaScores)

	segScores, err := h.db.GetSegmentScores(c.Request.Context())
	if err == nil {
		h.graph.UpdateScores(segScores)
	}

	c.JSON(http.StatusOK, gin.H{"comunas": len(comunaScores)})
}

// TriggerImport handles POST /api/v3/admin/import
func (h *Handlers) TriggerImport(c *gin.Context) {
	if h.importer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "SoSafe feed not configured"})
		return
	}

	imported, err := h.importer.ImportOnce(c.Request.Context())
	if err != nil {
		log.Errorf("On-demand import failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Import failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

// HealthCheck returns the service health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	connectedClients, lastBroadcastSeq := h.hub.GetStats()

	response := models.HealthResponse{
		Status:           "healthy",
		Service:          "santiago-a-pie",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ConnectedClients: connectedClients,
		LastBroadcastSeq: lastBroadcastSeq,
	}

	c.JSON(http.StatusOK, response)
}

// segmentsInViewport filters the indexed segments down to those with at
// least one point inside the viewport.
func (h *Handlers) segmentsInViewport(vp *models.ViewPort) []models.Segment {
	segments := []models.Segment{}
	for _, segment := range h.streets.Index().All() {
		for _, p := range segment.Points {
			if p[1] >= vp.LatMin && p[1] <= vp.LatMax && p[0] >= vp.LonMin && p[0] <= vp.LonMax {
				segments = append(segments, segment)
				break
			}
		}
	}
	return segments
}

func queryFloat(c *gin.Context, name string) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing '" + name + "' parameter"})
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid '" + name + "' parameter. Must be a valid number."})
		return 0, false
	}
	return value, true
}

func queryLimit(c *gin.Context, name string, def int) int {
	n := def
	if parsed, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def))); err == nil && parsed > 0 {
		n = parsed
	}
	if n > MaxReportsLimit {
		n = MaxReportsLimit
	}
	return n
}

func queryViewPort(c *gin.Context) (*models.ViewPort, bool) {
	latMin, ok := queryFloat(c, "latmin")
	if !ok {
		return nil, false
	}
	lonMin, ok := queryFloat(c, "lonmin")
	if !ok {
		return nil, false
	}
	latMax, ok := queryFloat(c, "latmax")
	if !ok {
		return nil, false
	}
	lonMax, ok := queryFloat(c, "lonmax")
	if !ok {
		return nil, false
	}
	if latMin >= latMax || lonMin >= lonMax {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty viewport"})
		return nil, false
	}
	return &models.ViewPort{LatMin: latMin, LonMin: lonMin, LatMax: latMax, LonMax: lonMax}, true
}

func reportBatch(reports []models.Report) models.ReportBatch {
	batch := models.ReportBatch{
		Reports: reports,
		Count:   len(reports),
	}
	if len(reports) > 0 {
		batch.FromSeq = reports[0].Seq
		batch.ToSeq = reports[len(reports)-1].Seq
	}
	return batch
}
