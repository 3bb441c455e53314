package types

import (
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	wkbPoint    = 1
	ewkbZFlag   = 0x80000000
	ewkbSRIDBit = 0x20000000
)

// GeographyPoint represents a PostGIS point with altitude, expressed in
// geography format. Altitude defaults to zero when the source carries no
// elevation.
type GeographyPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}

// Value produces an EWKT literal so Postgres can cast the geography.
func (g GeographyPoint) Value() (driver.Value, error) {
	return fmt.Sprintf("SRID=4326;POINT(%s %s %s)",
		formatCoord(g.Lng), formatCoord(g.Lat), formatCoord(g.Alt)), nil
}

// formatCoord renders a coordinate with the shortest representation that
// round-trips exactly. Fixed-precision formatting would truncate sub-decimeter
// detail.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Scan accepts WKT/EWKT text or (hex-encoded) WKB bytes returned by Postgres.
func (g *GeographyPoint) Scan(value interface{}) error {
	if value == nil {
		*g = GeographyPoint{}
		return nil
	}

	switch v := value.(type) {
	case string:
		return g.fromRaw(v)
	case []byte:
		return g.fromRaw(string(v))
	default:
		if stringer, ok := value.(fmt.Stringer); ok {
			return g.fromRaw(stringer.String())
		}
		return fmt.Errorf("geography: unsupported scan type %T", value)
	}
}

func (g *GeographyPoint) fromRaw(raw string) error {
	text := strings.TrimSpace(raw)
	upper := strings.ToUpper(text)
	if strings.HasPrefix(upper, "SRID=") || strings.HasPrefix(upper, "POINT") {
		return g.fromText(text)
	}
	if decoded, err := hex.DecodeString(text); err == nil {
		return g.fromWKB(decoded)
	}
	return g.fromWKB([]byte(raw))
}

func (g *GeographyPoint) fromText(raw string) error {
	coords, err := parseWKTCoords(raw, "POINT")
	if err != nil {
		return err
	}
	if len(coords) != 1 {
		return fmt.Errorf("geography: expected a single coordinate, got %d", len(coords))
	}
	g.Lng = coords[0][0]
	g.Lat = coords[0][1]
	g.Alt = coords[0][2]
	return nil
}

func (g *GeographyPoint) fromWKB(raw []byte) error {
	if len(raw) < 21 {
		return fmt.Errorf("geography: wkb too short")
	}

	order, geomType, hasZ, offset, err := readWKBHeader(raw)
	if err != nil {
		return fmt.Errorf("geography: %w", err)
	}
	if geomType != wkbPoint {
		return fmt.Errorf("geography: unexpected geometry type %d", geomType)
	}

	dims := 2
	if hasZ {
		dims = 3
	}
	if len(raw) < offset+dims*8 {
		return fmt.Errorf("geography: wkb truncated")
	}

	g.Lng = math.Float64frombits(order.Uint64(raw[offset : offset+8]))
	g.Lat = math.Float64frombits(order.Uint64(raw[offset+8 : offset+16]))
	if hasZ {
		g.Alt = math.Float64frombits(order.Uint64(raw[offset+16 : offset+24]))
	} else {
		g.Alt = 0
	}
	return nil
}

// readWKBHeader decodes byte order, base geometry type, the Z flag, and the
// offset of the first coordinate. Both EWKB (flag bits) and ISO (type+1000)
// Z encodings are accepted.
func readWKBHeader(raw []byte) (binary.ByteOrder, uint32, bool, int, error) {
	var order binary.ByteOrder
	switch raw[0] {
	case 0:
		order = binary.BigEndian
	case 1:
		order = binary.LittleEndian
	default:
		return nil, 0, false, 0, fmt.Errorf("invalid byte order %d", raw[0])
	}

	geomType := order.Uint32(raw[1:5])
	offset := 5

	hasZ := geomType&ewkbZFlag != 0
	hasSRID := geomType&ewkbSRIDBit != 0
	geomType &^= ewkbZFlag | ewkbSRIDBit

	if geomType >= 1000 && geomType < 2000 {
		hasZ = true
		geomType -= 1000
	}
	if hasSRID {
		if len(raw) < offset+4 {
			return nil, 0, false, 0, fmt.Errorf("wkb truncated before srid")
		}
		offset += 4
	}

	return order, geomType, hasZ, offset, nil
}

// parseWKTCoords extracts the coordinate list of a WKT/EWKT literal for the
// given geometry keyword. Missing third ordinates default to zero.
func parseWKTCoords(raw, keyword string) ([][3]float64, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToUpper(text), "SRID=") {
		if idx := strings.Index(text, ";"); idx != -1 {
			text = text[idx+1:]
		}
	}

	text = strings.TrimSpace(text)
	upper := strings.ToUpper(text)
	if !strings.HasPrefix(upper, keyword) {
		return nil, fmt.Errorf("geometry: expected %s, got %q", keyword, raw)
	}
	text = strings.TrimSpace(text[len(keyword):])
	text = strings.TrimSpace(strings.TrimPrefix(text, "Z"))
	if !strings.HasPrefix(text, "(") || !strings.HasSuffix(text, ")") {
		return nil, fmt.Errorf("geometry: malformed %s literal %q", keyword, raw)
	}

	content := strings.TrimSpace(text[1 : len(text)-1])
	if content == "" {
		return nil, fmt.Errorf("geometry: empty %s literal", keyword)
	}

	parts := strings.Split(content, ",")
	coords := make([][3]float64, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("geometry: unexpected coordinate %q", part)
		}
		var coord [3]float64
		for i, field := range fields {
			f, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("geometry: parse coordinate %w", err)
			}
			coord[i] = f
		}
		coords = append(coords, coord)
	}
	return coords, nil
}
