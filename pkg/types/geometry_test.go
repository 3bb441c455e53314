package types

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"testing"
)

func TestGeographyPointValueIsEWKT(t *testing.T) {
	p := GeographyPoint{Lat: 46.5, Lng: 7.25, Alt: 1203.4}
	v, err := p.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	text, ok := v.(string)
	if !ok {
		t.Fatalf("expected string literal, got %T", v)
	}
	if !strings.HasPrefix(text, "SRID=4326;POINT(") {
		t.Fatalf("unexpected literal %q", text)
	}
	if !strings.Contains(text, "7.25 46.5 1203.4") {
		t.Fatalf("unexpected coordinates in %q", text)
	}
}

func TestGeographyPointValuePreservesPrecision(t *testing.T) {
	p := GeographyPoint{Lat: 46.5234871193, Lng: 7.2518349027, Alt: 1203.41}
	v, err := p.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var scanned GeographyPoint
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned != p {
		t.Fatalf("coordinates changed through value/scan: got %+v want %+v", scanned, p)
	}
}

func TestGeographyPointScanText(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want GeographyPoint
	}{
		{"ewkt with z", "SRID=4326;POINT Z (7.25 46.5 1203.4)", GeographyPoint{Lat: 46.5, Lng: 7.25, Alt: 1203.4}},
		{"plain wkt", "POINT(7.25 46.5)", GeographyPoint{Lat: 46.5, Lng: 7.25}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p GeographyPoint
			if err := p.Scan(tc.raw); err != nil {
				t.Fatalf("scan: %v", err)
			}
			if p != tc.want {
				t.Fatalf("got %+v want %+v", p, tc.want)
			}
		})
	}
}

func TestGeographyPointScanHexEWKB(t *testing.T) {
	raw := encodePointEWKB(7.25, 46.5, 1203.4)
	var p GeographyPoint
	if err := p.Scan(hex.EncodeToString(raw)); err != nil {
		t.Fatalf("scan hex ewkb: %v", err)
	}
	if p.Lng != 7.25 || p.Lat != 46.5 || p.Alt != 1203.4 {
		t.Fatalf("unexpected point %+v", p)
	}
}

func TestGeographyPointScanNilResets(t *testing.T) {
	p := GeographyPoint{Lat: 1, Lng: 2, Alt: 3}
	if err := p.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if p != (GeographyPoint{}) {
		t.Fatalf("expected zero value, got %+v", p)
	}
}

func TestLineStringValueRejectsDegenerate(t *testing.T) {
	if _, err := (LineStringZ{}).Value(); err == nil {
		t.Fatal("expected error for empty line")
	}
	single := NewLineStringZ([]GeographyPoint{{Lat: 1, Lng: 2}})
	if _, err := single.Value(); err == nil {
		t.Fatal("expected error for single-point line")
	}
}

func TestLineStringRoundTripText(t *testing.T) {
	line := NewLineStringZ([]GeographyPoint{
		{Lat: 46.5, Lng: 7.25, Alt: 1200},
		{Lat: 46.6041877302, Lng: 7.2618349027, Alt: 1210.5},
		{Lat: 46.7, Lng: 7.3, Alt: 1190},
	})
	v, err := line.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var scanned LineStringZ
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned.Len() != 3 {
		t.Fatalf("expected 3 points, got %d", scanned.Len())
	}
	if scanned.Points[1] != line.Points[1] {
		t.Fatalf("precision lost: got %+v want %+v", scanned.Points[1], line.Points[1])
	}
	if !scanned.IsValid() {
		t.Fatal("expected valid line")
	}
}

func TestLineStringScanEWKB(t *testing.T) {
	raw := encodeLineEWKB([][3]float64{
		{7.25, 46.5, 1200},
		{7.26, 46.6, 1210},
	})
	var line LineStringZ
	if err := line.Scan(raw); err != nil {
		t.Fatalf("scan ewkb: %v", err)
	}
	if line.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", line.Len())
	}
	if line.Points[0].Lng != 7.25 || line.Points[1].Alt != 1210 {
		t.Fatalf("unexpected points %+v", line.Points)
	}
}

func encodePointEWKB(lng, lat, alt float64) []byte {
	buf := make([]byte, 0, 33)
	buf = append(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, wkbPoint|ewkbZFlag|ewkbSRIDBit)
	buf = binary.LittleEndian.AppendUint32(buf, 4326)
	for _, f := range []float64{lng, lat, alt} {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	}
	return buf
}

func encodeLineEWKB(coords [][3]float64) []byte {
	buf := make([]byte, 0, 13+len(coords)*24)
	buf = append(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, wkbLineString|ewkbZFlag|ewkbSRIDBit)
	buf = binary.LittleEndian.AppendUint32(buf, 4326)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(coords)))
	for _, c := range coords {
		for _, f := range c {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
		}
	}
	return buf
}
