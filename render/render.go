package render

import (
	"bytes"
	"fmt"
	"image/png"
	"math"
	"sort"

	"github.com/fogleman/gg"

	"santiago-a-pie/models"
)

// Options control the rendered map image.
type Options struct {
	Width     int     // image width in pixels
	LineWidth float64 // stroke width for street segments
	Buckets   int     // number of score buckets
}

// DefaultOptions are used for zero-valued option fields.
var DefaultOptions = Options{
	Width:     1024,
	LineWidth: 2.0,
	Buckets:   5,
}

// Background and padding of the rendered map.
const (
	bgR, bgG, bgB = 16, 16, 24
	paddingPx     = 24.0
)

// bucketColor is the stroke color for one score bucket. Bucket 0 holds the
// worst-scored segments.
type bucketColor struct {
	r, g, b int
}

// Red through amber to green, worst first.
var palette = []bucketColor{
	{214, 48, 49},
	{225, 112, 85},
	{253, 203, 110},
	{163, 203, 56},
	{0, 184, 148},
}

// Map renders the scored street network inside the viewport as a PNG.
// Segments without a score are drawn in a neutral gray.
func Map(segments []models.Segment, scores map[int64]models.SegmentScore, vp models.ViewPort, opts Options) ([]byte, error) {
	if opts.Width <= 0 {
		opts.Width = DefaultOptions.Width
	}
	if opts.LineWidth <= 0 {
		opts.LineWidth = DefaultOptions.LineWidth
	}
	if opts.Buckets <= 0 || opts.Buckets > len(palette) {
		opts.Buckets = DefaultOptions.Buckets
	}
	if vp.LonMax <= vp.LonMin || vp.LatMax <= vp.LatMin {
		return nil, fmt.Errorf("degenerate viewport")
	}

	proj := newProjection(vp, opts.Width)
	dc := gg.NewContext(proj.width, proj.height)
	dc.SetRGB255(bgR, bgG, bgB)
	dc.Clear()
	dc.SetLineWidth(opts.LineWidth)
	dc.SetLineCapRound()

	// Worst segments draw last so they stay visible at crossings.
	ordered := make([]models.Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return segmentScore(scores, ordered[i].ID) > segmentScore(scores, ordered[j].ID)
	})

	for _, segment := range ordered {
		if len(segment.Points) < 2 {
			continue
		}
		if _, ok := scores[segment.ID]; ok {
			c := palette[scoreBucket(segmentScore(scores, segment.ID), opts.Buckets)]
			dc.SetRGB255(c.r, c.g, c.b)
		} else {
			dc.SetRGB255(110, 110, 120)
		}

		x, y := proj.toPixel(segment.Points[0][1], segment.Points[0][0])
		dc.MoveTo(x, y)
		for _, p := range segment.Points[1:] {
			x, y = proj.toPixel(p[1], p[0])
			dc.LineTo(x, y)
		}
		dc.Stroke()
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode map image: %w", err)
	}
	return buf.Bytes(), nil
}

// scoreBucket maps a 0..100 score onto a palette bucket, 0 being the worst.
func scoreBucket(score float64, buckets int) int {
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}
	b := int(score / 100.0 * float64(buckets))
	if b >= buckets {
		b = buckets - 1
	}
	// Spread the configured bucket count over the fixed palette.
	return b * len(palette) / buckets
}

func segmentScore(scores map[int64]models.SegmentScore, id int64) float64 {
	if s, ok := scores[id]; ok {
		return s.Score
	}
	return 50.0
}

// projection maps WGS84 coordinates onto image pixels. Equirectangular with
// the longitude span compressed by cos(midLat) so streets keep their shape.
type projection struct {
	vp            models.ViewPort
	width, height int
	scaleX        float64
	scaleY        float64
}

func newProjection(vp models.ViewPort, width int) *projection {
	lonSpan := vp.LonMax - vp.LonMin
	latSpan := vp.LatMax - vp.LatMin
	midLat := (vp.LatMin + vp.LatMax) / 2 * math.Pi / 180.0

	drawW := float64(width) - 2*paddingPx
	drawH := drawW * latSpan / (lonSpan * math.Cos(midLat))
	height := int(drawH + 2*paddingPx)

	return &projection{
		vp:     vp,
		width:  width,
		height: height,
		scaleX: drawW / lonSpan,
		scaleY: drawH / latSpan,
	}
}

func (p *projection) toPixel(lat, lon float64) (x, y float64) {
	x = paddingPx + (lon-p.vp.LonMin)*p.scaleX
	y = paddingPx + (p.vp.LatMax-lat)*p.scaleY
	return
}
