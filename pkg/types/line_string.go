package types

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

const wkbLineString = 2

// LineStringZ represents a PostGIS 3D line geometry. Coordinates are stored
// in longitude-latitude-elevation order, matching GeoJSON position order.
type LineStringZ struct {
	Points []GeographyPoint `json:"points"`
}

// NewLineStringZ wraps a point slice. A valid line needs at least two points;
// callers enforce that before persisting.
func NewLineStringZ(points []GeographyPoint) LineStringZ {
	return LineStringZ{Points: points}
}

// Len returns the number of vertices.
func (l LineStringZ) Len() int {
	return len(l.Points)
}

// IsValid reports whether the geometry forms a line.
func (l LineStringZ) IsValid() bool {
	return len(l.Points) >= 2
}

// Value produces an EWKT literal so Postgres can cast the geometry.
func (l LineStringZ) Value() (driver.Value, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("linestring: need at least 2 points, have %d", len(l.Points))
	}
	var b strings.Builder
	b.WriteString("SRID=4326;LINESTRING(")
	for i, p := range l.Points {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatCoord(p.Lng))
		b.WriteByte(' ')
		b.WriteString(formatCoord(p.Lat))
		b.WriteByte(' ')
		b.WriteString(formatCoord(p.Alt))
	}
	b.WriteByte(')')
	return b.String(), nil
}

// Scan accepts WKT/EWKT text or (hex-encoded) WKB bytes returned by Postgres.
func (l *LineStringZ) Scan(value interface{}) error {
	if value == nil {
		*l = LineStringZ{}
		return nil
	}

	switch v := value.(type) {
	case string:
		return l.fromRaw(v)
	case []byte:
		return l.fromRaw(string(v))
	default:
		if stringer, ok := value.(fmt.Stringer); ok {
			return l.fromRaw(stringer.String())
		}
		return fmt.Errorf("linestring: unsupported scan type %T", value)
	}
}

func (l *LineStringZ) fromRaw(raw string) error {
	text := strings.TrimSpace(raw)
	upper := strings.ToUpper(text)
	if strings.HasPrefix(upper, "SRID=") || strings.HasPrefix(upper, "LINESTRING") {
		return l.fromText(text)
	}
	if decoded, err := hex.DecodeString(text); err == nil {
		return l.fromWKB(decoded)
	}
	return l.fromWKB([]byte(raw))
}

func (l *LineStringZ) fromText(raw string) error {
	coords, err := parseWKTCoords(raw, "LINESTRING")
	if err != nil {
		return err
	}
	points := make([]GeographyPoint, len(coords))
	for i, c := range coords {
		points[i] = GeographyPoint{Lng: c[0], Lat: c[1], Alt: c[2]}
	}
	l.Points = points
	return nil
}

func (l *LineStringZ) fromWKB(raw []byte) error {
	if len(raw) < 9 {
		return fmt.Errorf("linestring: wkb too short")
	}

	order, geomType, hasZ, offset, err := readWKBHeader(raw)
	if err != nil {
		return fmt.Errorf("linestring: %w", err)
	}
	if geomType != wkbLineString {
		return fmt.Errorf("linestring: unexpected geometry type %d", geomType)
	}

	if len(raw) < offset+4 {
		return fmt.Errorf("linestring: wkb truncated")
	}
	count := int(order.Uint32(raw[offset : offset+4]))
	offset += 4

	dims := 2
	if hasZ {
		dims = 3
	}
	if len(raw) < offset+count*dims*8 {
		return fmt.Errorf("linestring: wkb truncated")
	}

	points := make([]GeographyPoint, count)
	for i := 0; i < count; i++ {
		points[i].Lng = math.Float64frombits(order.Uint64(raw[offset : offset+8]))
		points[i].Lat = math.Float64frombits(order.Uint64(raw[offset+8 : offset+16]))
		offset += 16
		if hasZ {
			points[i].Alt = math.Float64frombits(order.Uint64(raw[offset : offset+8]))
			offset += 8
		}
	}
	l.Points = points
	return nil
}
