package tracks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/tracehq/trace-backend/internal/jobs"
	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/db/models"
	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/storage/gcs"
	"github.com/tracehq/trace-backend/pkg/types"
)

type polylineRepository interface {
	FindPolylineByStorageKey(ctx context.Context, storageKey string) (*models.Polyline, error)
	ActivateTrack(tx *gorm.DB, polyline *models.Polyline, geom *types.LineStringZ) (bool, error)
	MarkFailed(ctx context.Context, storageKey string) (bool, error)
}

type objectFetcher interface {
	FetchObject(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// Streamer turns an uploaded GPX file into line geometry. The file is
// decoded as a stream, decimated, and committed in one transaction that
// both stores the geometry and activates the owning track.
type Streamer struct {
	repo        polylineRepository
	db          dbClient
	store       objectFetcher
	logg        *logger.Logger
	bucket      string
	minDistance float64
	earthRadius float64
}

// StreamerParams wires the geometry streamer.
type StreamerParams struct {
	Repo   polylineRepository
	DB     dbClient
	Store  objectFetcher
	Logger *logger.Logger
	Bucket string
	Track  config.TrackConfig
}

// NewStreamer constructs the track geometry streamer.
func NewStreamer(params StreamerParams) (*Streamer, error) {
	if params.Repo == nil {
		return nil, errors.New("polyline repository is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Store == nil {
		return nil, errors.New("object store is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	minDistance := params.Track.MinDistanceM
	if minDistance <= 0 {
		minDistance = 2
	}
	earthRadius := params.Track.EarthRadiusM
	if earthRadius <= 0 {
		earthRadius = 6371000
	}

	return &Streamer{
		repo:        params.Repo,
		db:          params.DB,
		store:       params.Store,
		logg:        params.Logger,
		bucket:      params.Bucket,
		minDistance: minDistance,
		earthRadius: earthRadius,
	}, nil
}

// ProcessTrack runs one track job: resolve the polyline by storage key,
// stream and decimate the file, then activate. A track that decimates to
// fewer than two points is a permanent failure; a missing object or a
// database error leaves the job for retry.
func (s *Streamer) ProcessTrack(ctx context.Context, job jobs.UploadJob, _ time.Time) error {
	polyline, err := s.repo.FindPolylineByStorageKey(ctx, job.StorageKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "no polyline owns this storage key")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving polyline")
	}

	rc, err := s.store.FetchObject(ctx, s.bucket, job.StorageKey)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track file not uploaded yet")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetching track file")
	}
	defer func() { _ = rc.Close() }()

	points, err := decodeTrackPoints(rc, s.minDistance, s.earthRadius)
	if err != nil {
		return err
	}
	if len(points) < 2 {
		// A single kept point cannot form a line; activating it would
		// publish an empty path.
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("track decimated to %d points, need at least 2", len(points)))
	}

	geom := types.NewLineStringZ(points)
	var updated bool
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		updated, txErr = s.repo.ActivateTrack(tx, polyline, &geom)
		return txErr
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activating track")
	}
	if !updated {
		logCtx := s.logg.WithStorageKey(ctx, job.StorageKey)
		s.logg.Warn(logCtx, "track not in processing, skipping activation")
	}
	return nil
}

// MarkFailed exposes the repository transition for the consumer's terminal
// failure path.
func (s *Streamer) MarkFailed(ctx context.Context, storageKey string) (bool, error) {
	return s.repo.MarkFailed(ctx, storageKey)
}
