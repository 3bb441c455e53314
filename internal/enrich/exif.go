package enrich

import (
	"bytes"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/tracehq/trace-backend/pkg/types"
)

// captureMetadata is what EXIF parsing recovered from an image. Every field
// is optional; cameras routinely strip or omit tags.
type captureMetadata struct {
	CapturedAt  *time.Time
	Location    *types.GeographyPoint
	CameraMake  string
	CameraModel string
}

// parseCaptureMetadata extracts capture time and GPS position from raw image
// bytes. Parsing is best effort: an image with no EXIF block, or with a
// corrupt one, yields an empty result rather than an error.
func parseCaptureMetadata(raw []byte) captureMetadata {
	var meta captureMetadata

	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return meta
	}

	if capturedAt, err := x.DateTime(); err == nil {
		meta.CapturedAt = &capturedAt
	}

	if lat, lng, err := x.LatLong(); err == nil {
		meta.Location = &types.GeographyPoint{
			Lat: lat,
			Lng: lng,
			Alt: gpsAltitude(x),
		}
	}

	meta.CameraMake = stringTag(x, exif.Make)
	meta.CameraModel = stringTag(x, exif.Model)

	return meta
}

// gpsAltitude reads GPSAltitude as meters above sea level, negated when the
// altitude reference flags below sea level. Missing tags yield zero.
func gpsAltitude(x *exif.Exif) float64 {
	tag, err := x.Get(exif.GPSAltitude)
	if err != nil {
		return 0
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0
	}
	alt := float64(num) / float64(den)

	if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
		if v, err := ref.Int(0); err == nil && v == 1 {
			alt = -alt
		}
	}
	return alt
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	value, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return value
}
