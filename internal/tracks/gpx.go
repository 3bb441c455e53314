package tracks

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/types"
)

// decodeTrackPoints parses a GPX stream token by token and returns the
// decimated point sequence. The file is never held in memory whole; only the
// current point and the last kept point are retained. A point survives when
// it is the first one or lies at least minDistance meters from the last kept
// point on a spherical earth of the given radius.
func decodeTrackPoints(r io.Reader, minDistance, earthRadius float64) ([]types.GeographyPoint, error) {
	decoder := xml.NewDecoder(r)

	var (
		points  []types.GeographyPoint
		last    *types.GeographyPoint
		current types.GeographyPoint
		inPoint bool
		inEle   bool
		eleBuf  strings.Builder
	)

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "track file is not well-formed xml")
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "trkpt":
				point, err := pointFromAttrs(t.Attr)
				if err != nil {
					return nil, err
				}
				current = point
				inPoint = true
			case "ele":
				if inPoint {
					inEle = true
					eleBuf.Reset()
				}
			}
		case xml.CharData:
			if inEle {
				eleBuf.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "ele":
				if inEle {
					if alt, err := strconv.ParseFloat(strings.TrimSpace(eleBuf.String()), 64); err == nil {
						current.Alt = alt
					}
					inEle = false
				}
			case "trkpt":
				if !inPoint {
					continue
				}
				inPoint = false
				if last == nil || haversineMeters(*last, current, earthRadius) >= minDistance {
					points = append(points, current)
					kept := current
					last = &kept
				}
			}
		}
	}

	return points, nil
}

func pointFromAttrs(attrs []xml.Attr) (types.GeographyPoint, error) {
	var (
		point   types.GeographyPoint
		seenLat bool
		seenLng bool
	)
	for _, attr := range attrs {
		switch attr.Name.Local {
		case "lat":
			value, err := strconv.ParseFloat(attr.Value, 64)
			if err != nil {
				return point, pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("track point latitude %q is not a number", attr.Value))
			}
			point.Lat = value
			seenLat = true
		case "lon":
			value, err := strconv.ParseFloat(attr.Value, 64)
			if err != nil {
				return point, pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("track point longitude %q is not a number", attr.Value))
			}
			point.Lng = value
			seenLng = true
		}
	}
	if !seenLat || !seenLng {
		return point, pkgerrors.New(pkgerrors.CodeValidation, "track point is missing coordinates")
	}
	return point, nil
}

// haversineMeters computes the great-circle distance between two points on a
// sphere of the given radius.
func haversineMeters(a, b types.GeographyPoint, radius float64) float64 {
	const degToRad = math.Pi / 180

	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * radius * math.Asin(math.Sqrt(h))
}
