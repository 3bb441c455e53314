package tracks

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tracehq/trace-backend/internal/jobs"
	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/db/models"
	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/storage/gcs"
	"github.com/tracehq/trace-backend/pkg/types"
)

type stubPolylineRepo struct {
	polylines map[string]*models.Polyline
	activated map[uuid.UUID]*types.LineStringZ
	failed    []string
	active    bool
}

func newStubPolylineRepo() *stubPolylineRepo {
	return &stubPolylineRepo{
		polylines: map[string]*models.Polyline{},
		activated: map[uuid.UUID]*types.LineStringZ{},
		active:    true,
	}
}

func (s *stubPolylineRepo) FindPolylineByStorageKey(_ context.Context, storageKey string) (*models.Polyline, error) {
	polyline, ok := s.polylines[storageKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return polyline, nil
}

func (s *stubPolylineRepo) ActivateTrack(_ *gorm.DB, polyline *models.Polyline, geom *types.LineStringZ) (bool, error) {
	s.activated[polyline.ID] = geom
	return s.active, nil
}

func (s *stubPolylineRepo) MarkFailed(_ context.Context, storageKey string) (bool, error) {
	s.failed = append(s.failed, storageKey)
	return true, nil
}

type stubFetcher struct {
	objects map[string]string
}

func (s *stubFetcher) FetchObject(_ context.Context, _, object string) (io.ReadCloser, error) {
	body, ok := s.objects[object]
	if !ok {
		return nil, gcs.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func newTestStreamer(t *testing.T, repo *stubPolylineRepo, fetcher *stubFetcher) *Streamer {
	t.Helper()
	streamer, err := NewStreamer(StreamerParams{
		Repo:   repo,
		DB:     stubTxRunner{},
		Store:  fetcher,
		Logger: logger.New(logger.Options{Output: io.Discard}),
		Bucket: "trace-media",
		Track:  config.TrackConfig{MinDistanceM: 2, EarthRadiusM: 6371000},
	})
	require.NoError(t, err)
	return streamer
}

func seedStreamerPolyline(repo *stubPolylineRepo) (*models.Polyline, jobs.UploadJob) {
	polyline := &models.Polyline{
		ID:         uuid.New(),
		TrackID:    uuid.New(),
		StorageKey: "activities/a1/tracks/p1.gpx",
	}
	repo.polylines[polyline.StorageKey] = polyline
	return polyline, jobs.UploadJob{
		RecordID:   polyline.TrackID,
		StorageKey: polyline.StorageKey,
		ActivityID: uuid.New(),
	}
}

func TestProcessTrackActivatesGeometry(t *testing.T) {
	repo := newStubPolylineRepo()
	polyline, job := seedStreamerPolyline(repo)
	fetcher := &stubFetcher{objects: map[string]string{
		job.StorageKey: gpxDocument(
			trkptEle(46.000, 7.000, 1200),
			trkptEle(46.001, 7.000, 1210),
			trkptEle(46.002, 7.000, 1220),
		),
	}}
	streamer := newTestStreamer(t, repo, fetcher)

	require.NoError(t, streamer.ProcessTrack(context.Background(), job, time.Now()))

	geom, ok := repo.activated[polyline.ID]
	require.True(t, ok)
	require.NotNil(t, geom)
	assert.Equal(t, 3, geom.Len())
	assert.InDelta(t, 1210.0, geom.Points[1].Alt, 1e-9)
}

func TestProcessTrackRejectsDegeneratePath(t *testing.T) {
	repo := newStubPolylineRepo()
	_, job := seedStreamerPolyline(repo)
	// Every point sits within 2 m of the first; only one survives, which
	// cannot form a line.
	fetcher := &stubFetcher{objects: map[string]string{
		job.StorageKey: gpxDocument(
			trkpt(46.000000, 7.0),
			trkpt(46.000004, 7.0),
			trkpt(46.000008, 7.0),
		),
	}}
	streamer := newTestStreamer(t, repo, fetcher)

	err := streamer.ProcessTrack(context.Background(), job, time.Now())
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetryable(err))
	assert.Empty(t, repo.activated, "a degenerate track must not activate")
}

func TestProcessTrackRejectsEmptyFile(t *testing.T) {
	repo := newStubPolylineRepo()
	_, job := seedStreamerPolyline(repo)
	fetcher := &stubFetcher{objects: map[string]string{
		job.StorageKey: gpxDocument(),
	}}
	streamer := newTestStreamer(t, repo, fetcher)

	err := streamer.ProcessTrack(context.Background(), job, time.Now())
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetryable(err))
}

func TestProcessTrackMissingObjectIsRetryable(t *testing.T) {
	repo := newStubPolylineRepo()
	_, job := seedStreamerPolyline(repo)
	streamer := newTestStreamer(t, repo, &stubFetcher{objects: map[string]string{}})

	err := streamer.ProcessTrack(context.Background(), job, time.Now())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestProcessTrackUnknownStorageKeyIsPermanent(t *testing.T) {
	repo := newStubPolylineRepo()
	streamer := newTestStreamer(t, repo, &stubFetcher{objects: map[string]string{}})

	job := jobs.UploadJob{
		RecordID:   uuid.New(),
		StorageKey: "activities/a1/tracks/orphan.gpx",
		ActivityID: uuid.New(),
	}
	err := streamer.ProcessTrack(context.Background(), job, time.Now())
	require.Error(t, err)
	assert.False(t, pkgerrors.IsRetryable(err))
}

func TestProcessTrackToleratesTerminalTrack(t *testing.T) {
	repo := newStubPolylineRepo()
	repo.active = false
	_, job := seedStreamerPolyline(repo)
	fetcher := &stubFetcher{objects: map[string]string{
		job.StorageKey: gpxDocument(
			trkpt(46.000, 7.0),
			trkpt(46.001, 7.0),
		),
	}}
	streamer := newTestStreamer(t, repo, fetcher)

	require.NoError(t, streamer.ProcessTrack(context.Background(), job, time.Now()))
}
