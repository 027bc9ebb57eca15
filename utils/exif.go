package utils

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"
)

// PhotoLocation extracts GPS coordinates from a JPEG's EXIF block. The
// second return is false when the photo carries no usable location.
func PhotoLocation(photo []byte) (lat, lon float64, ok bool) {
	if len(photo) == 0 {
		return 0, 0, false
	}
	x, err := exif.Decode(bytes.NewReader(photo))
	if err != nil {
		return 0, 0, false
	}
	lat, lon, err = x.LatLong()
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
