package services

import (
	"context"
	"fmt"
	"os"

	"github.com/apex/log"
	geojson "github.com/paulmach/go.geojson"

	"santiago-a-pie/config"
	"santiago-a-pie/database"
	"santiago-a-pie/geo"
	"santiago-a-pie/models"
)

// StreetsService owns the street network: comuna polygons and walkable
// segments, loaded from GeoJSON exports and mirrored into MySQL so spatial
// queries can run against them.
type StreetsService struct {
	cfg   *config.Config
	db    *database.Database
	index *geo.SegmentIndex
}

// NewStreetsService creates the streets service with an empty index.
func NewStreetsService(cfg *config.Config, db *database.Database) *StreetsService {
	return &StreetsService{
		cfg:   cfg,
		db:    db,
		index: geo.NewSegmentIndex(),
	}
}

// Index returns the in-memory segment index.
func (s *StreetsService) Index() *geo.SegmentIndex {
	return s.index
}

// Load populates comunas and segments. GeoJSON files win when present;
// otherwise previously persisted rows are used.
func (s *StreetsService) Load(ctx context.Context) error {
	if err := s.loadComunas(ctx); err != nil {
		return err
	}
	return s.loadSegments(ctx)
}

func (s *StreetsService) loadComunas(ctx context.Context) error {
	data, err := os.ReadFile(s.cfg.ComunasFile)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("Comunas file %s not found, using stored comunas", s.cfg.ComunasFile)
			return nil
		}
		return fmt.Errorf("failed to read comunas file: %w", err)
	}

	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("failed to parse comunas GeoJSON: %w", err)
	}

	loaded := 0
	for _, feature := range collection.Features {
		comuna, err := parseComunaFeature(feature)
		if err != nil {
			log.Warnf("Skipping comuna feature: %v", err)
			continue
		}
		if _, err := s.db.UpsertComuna(ctx, comuna); err != nil {
			return fmt.Errorf("failed to store comuna %q: %w", comuna.Name, err)
		}
		loaded++
	}

	log.Infof("Loaded %d comunas from %s", loaded, s.cfg.ComunasFile)
	return nil
}

func (s *StreetsService) loadSegments(ctx context.Context) error {
	data, err := os.ReadFile(s.cfg.SegmentsFile)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("Segments file %s not found, using stored segments", s.cfg.SegmentsFile)
			return s.loadSegmentsFromDB(ctx)
		}
		return fmt.Errorf("failed to read segments file: %w", err)
	}

	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("failed to parse segments GeoJSON: %w", err)
	}

	loaded := 0
	for i, feature := range collection.Features {
		segment, err := ParseSegmentFeature(feature, int64(i+1))
		if err != nil {
			log.Warnf("Skipping segment feature %d: %v", i, err)
			continue
		}
		if err := s.db.UpsertSegment(ctx, segment); err != nil {
			return fmt.Errorf("failed to store segment %d: %w", segment.ID, err)
		}
		s.index.Add(*segment)
		loaded++
	}

	log.Infof("Loaded %d street segments from %s", loaded, s.cfg.SegmentsFile)
	return nil
}

func (s *StreetsService) loadSegmentsFromDB(ctx context.Context) error {
	segments, err := s.db.GetSegments(ctx)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("no segments available: file missing and database empty")
	}
	for _, segment := range segments {
		s.index.Add(segment)
	}
	log.Infof("Loaded %d street segments from database", len(segments))
	return nil
}

func parseComunaFeature(feature *geojson.Feature) (*models.Comuna, error) {
	if feature.Geometry == nil {
		return nil, fmt.Errorf("feature has no geometry")
	}
	if !feature.Geometry.IsPolygon() && !feature.Geometry.IsMultiPolygon() {
		return nil, fmt.Errorf("unexpected comuna geometry type: %s", feature.Geometry.Type)
	}

	name, err := feature.PropertyString("name")
	if err != nil || name == "" {
		return nil, fmt.Errorf("comuna feature has no name")
	}

	comuna := &models.Comuna{
		Name:     name,
		Geometry: feature.Geometry,
	}
	if osmID, err := feature.PropertyInt("osm_id"); err == nil {
		comuna.OSMID = int64(osmID)
	}
	return comuna, nil
}

// ParseSegmentFeature converts a GeoJSON LineString feature into a Segment.
// fallbackID is used when the feature carries no id property.
func ParseSegmentFeature(feature *geojson.Feature, fallbackID int64) (*models.Segment, error) {
	if feature.Geometry == nil || !feature.Geometry.IsLineString() {
		return nil, fmt.Errorf("segment feature is not a LineString")
	}
	if len(feature.Geometry.LineString) < 2 {
		return nil, fmt.Errorf("segment has fewer than 2 points")
	}

	points := make([][2]float64, len(feature.Geometry.LineString))
	for i, coord := range feature.Geometry.LineString {
		if len(coord) < 2 {
			return nil, fmt.Errorf("segment point %d has %d coordinates", i, len(coord))
		}
		points[i] = [2]float64{coord[0], coord[1]}
	}

	segment := &models.Segment{
		ID:      fallbackID,
		Points:  points,
		LengthM: geo.PolylineLengthM(points),
	}
	if id, err := feature.PropertyInt("id"); err == nil {
		segment.ID = int64(id)
	}
	if osmID, err := feature.PropertyInt("osm_id"); err == nil {
		segment.OSMID = int64(osmID)
	}
	if name, err := feature.PropertyString("name"); err == nil {
		segment.Name = name
	}
	if comuna, err := feature.PropertyString("comuna"); err == nil {
		segment.Comuna = comuna
	}
	return segment, nil
}
