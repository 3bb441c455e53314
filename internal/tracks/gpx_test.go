package tracks

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/types"
)

const (
	testMinDistance = 2.0
	testEarthRadius = 6371000.0
)

func gpxDocument(points ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<gpx version="1.1" creator="test"><trk><trkseg>` + "\n")
	for _, p := range points {
		b.WriteString(p + "\n")
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	return b.String()
}

func trkpt(lat, lng float64) string {
	return fmt.Sprintf(`<trkpt lat="%.6f" lon="%.6f"></trkpt>`, lat, lng)
}

func trkptEle(lat, lng, ele float64) string {
	return fmt.Sprintf(`<trkpt lat="%.6f" lon="%.6f"><ele>%.1f</ele></trkpt>`, lat, lng, ele)
}

func TestDecodeTrackPointsDecimation(t *testing.T) {
	// 0.000004 deg of latitude is roughly 0.44 m, 0.00003 deg roughly 3.3 m.
	// Points 2-4 cluster within 2 m of point 1, points 6-8 within 2 m of
	// point 5; only 1, 5 and 9 survive.
	doc := gpxDocument(
		trkpt(46.000000, 7.0),
		trkpt(46.000004, 7.0),
		trkpt(46.000008, 7.0),
		trkpt(46.000012, 7.0),
		trkpt(46.000030, 7.0),
		trkpt(46.000034, 7.0),
		trkpt(46.000038, 7.0),
		trkpt(46.000042, 7.0),
		trkpt(46.000060, 7.0),
	)

	points, err := decodeTrackPoints(strings.NewReader(doc), testMinDistance, testEarthRadius)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 46.000000, points[0].Lat, 1e-9)
	assert.InDelta(t, 46.000030, points[1].Lat, 1e-9)
	assert.InDelta(t, 46.000060, points[2].Lat, 1e-9)
}

func TestDecodeTrackPointsFirstPointAlwaysKept(t *testing.T) {
	doc := gpxDocument(
		trkpt(46.0, 7.0),
		trkpt(46.0000005, 7.0),
	)
	points, err := decodeTrackPoints(strings.NewReader(doc), testMinDistance, testEarthRadius)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 46.0, points[0].Lat, 1e-9)
}

func TestDecodeTrackPointsReadsElevation(t *testing.T) {
	doc := gpxDocument(
		trkptEle(46.0, 7.0, 1203.4),
		trkptEle(46.001, 7.0, 1210.0),
	)
	points, err := decodeTrackPoints(strings.NewReader(doc), testMinDistance, testEarthRadius)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 1203.4, points[0].Alt, 1e-9)
	assert.InDelta(t, 1210.0, points[1].Alt, 1e-9)
}

func TestDecodeTrackPointsElevationDefaultsToZero(t *testing.T) {
	doc := gpxDocument(trkpt(46.0, 7.0))
	points, err := decodeTrackPoints(strings.NewReader(doc), testMinDistance, testEarthRadius)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Zero(t, points[0].Alt)
}

func TestDecodeTrackPointsEmptyDocument(t *testing.T) {
	points, err := decodeTrackPoints(strings.NewReader(gpxDocument()), testMinDistance, testEarthRadius)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestDecodeTrackPointsMalformedXML(t *testing.T) {
	_, err := decodeTrackPoints(strings.NewReader("<gpx><trkpt lat="), testMinDistance, testEarthRadius)
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetryable(err))
}

func TestDecodeTrackPointsRejectsBadCoordinates(t *testing.T) {
	doc := gpxDocument(`<trkpt lat="north" lon="7.0"></trkpt>`)
	_, err := decodeTrackPoints(strings.NewReader(doc), testMinDistance, testEarthRadius)
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetryable(err))

	doc = gpxDocument(`<trkpt lon="7.0"></trkpt>`)
	_, err = decodeTrackPoints(strings.NewReader(doc), testMinDistance, testEarthRadius)
	require.Error(t, err)
}

func TestHaversineMeters(t *testing.T) {
	// One degree of latitude on the reference sphere is about 111.19 km.
	a := types.GeographyPoint{Lat: 0, Lng: 0}
	b := types.GeographyPoint{Lat: 1, Lng: 0}
	assert.InDelta(t, 111194.9, haversineMeters(a, b, testEarthRadius), 1.0)

	assert.Zero(t, haversineMeters(a, a, testEarthRadius))
}
