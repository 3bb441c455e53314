package enrich

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tracehq/trace-backend/internal/ingest"
	"github.com/tracehq/trace-backend/internal/jobs"
	"github.com/tracehq/trace-backend/pkg/config"
	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/storage/gcs"
	"github.com/tracehq/trace-backend/pkg/types"
)

type momentRepository interface {
	MarkActive(ctx context.Context, storageKey string, update ingest.ActivationUpdate) (bool, error)
	MarkFailed(ctx context.Context, storageKey string) (bool, error)
}

type objectStore interface {
	FetchObject(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucket, object, contentType string, body []byte) error
	StatObject(ctx context.Context, bucket, object string) (*gcs.ObjectInfo, error)
}

// Service resolves uploaded media to its final state. Images get a thumbnail
// and whatever capture metadata the file carries; video and audio are only
// checked for existence. Every path converges the record by storage key, so
// redelivered jobs are harmless.
type Service struct {
	repo         momentRepository
	store        objectStore
	logg         *logger.Logger
	bucket       string
	thumbSize    int
	thumbQuality int
}

// ServiceParams wires the enrichment service.
type ServiceParams struct {
	Repo   momentRepository
	Store  objectStore
	Logger *logger.Logger
	Bucket string
	Media  config.MediaConfig
}

// NewService constructs the enrichment service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("moment repository is required")
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

	size := params.Media.ThumbnailSize
	if size <= 0 {
		size = 300
	}
	quality := params.Media.ThumbnailQuality
	if quality <= 0 {
		quality = 80
	}

	return &Service{
		repo:         params.Repo,
		store:        params.Store,
		logg:         params.Logger,
		bucket:       params.Bucket,
		thumbSize:    size,
		thumbQuality: quality,
	}, nil
}

// EnrichImage runs the image pipeline: fetch the object, parse EXIF and
// render the thumbnail concurrently, upload the thumbnail, then activate the
// record. An image that does not decode is a permanent failure; everything
// touching storage or the database is retryable.
func (s *Service) EnrichImage(ctx context.Context, job jobs.UploadJob, publishedAt time.Time) error {
	raw, err := s.fetchBody(ctx, job.StorageKey)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "uploaded object is empty")
	}

	var (
		meta  captureMetadata
		thumb []byte
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		meta = parseCaptureMetadata(raw)
		return nil
	})
	g.Go(func() error {
		var buildErr error
		thumb, buildErr = buildThumbnail(raw, s.thumbSize, s.thumbQuality)
		return buildErr
	})
	if err := g.Wait(); err != nil {
		return err
	}

	thumbKey := thumbnailKeyFor(job.StorageKey)
	if err := s.store.PutObject(ctx, s.bucket, thumbKey, "image/jpeg", thumb); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "uploading thumbnail")
	}

	occurredAt := publishedAt
	if meta.CapturedAt != nil {
		occurredAt = *meta.CapturedAt
	}

	var md types.JSONMap
	if meta.CameraMake != "" || meta.CameraModel != "" {
		md = types.JSONMap{}
		if meta.CameraMake != "" {
			md["camera_make"] = meta.CameraMake
		}
		if meta.CameraModel != "" {
			md["camera_model"] = meta.CameraModel
		}
	}

	return s.activate(ctx, job.StorageKey, ingest.ActivationUpdate{
		ThumbnailKey: &thumbKey,
		OccurredAt:   occurredAt,
		Geom:         meta.Location,
		Metadata:     md,
	})
}

// EnrichExistence is the video and audio pipeline: confirm the object exists,
// record its observed metadata, and activate. No derivative is produced.
func (s *Service) EnrichExistence(ctx context.Context, job jobs.UploadJob, publishedAt time.Time) error {
	info, err := s.store.StatObject(ctx, s.bucket, job.StorageKey)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "object not uploaded yet")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking object")
	}

	return s.activate(ctx, job.StorageKey, ingest.ActivationUpdate{
		OccurredAt: publishedAt,
		Metadata: types.JSONMap{
			"content_type": info.ContentType,
			"size_bytes":   info.SizeBytes,
		},
	})
}

// MarkFailed exposes the repository transition for the consumer's terminal
// failure path.
func (s *Service) MarkFailed(ctx context.Context, storageKey string) (bool, error) {
	return s.repo.MarkFailed(ctx, storageKey)
}

func (s *Service) fetchBody(ctx context.Context, storageKey string) ([]byte, error) {
	rc, err := s.store.FetchObject(ctx, s.bucket, storageKey)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "object not uploaded yet")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetching object")
	}
	defer func() { _ = rc.Close() }()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading object body")
	}
	return raw, nil
}

func (s *Service) activate(ctx context.Context, storageKey string, update ingest.ActivationUpdate) error {
	updated, err := s.repo.MarkActive(ctx, storageKey, update)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activating record")
	}
	if !updated {
		// Redelivery after a terminal transition, or a record confirmed by a
		// path we do not own. Either way there is nothing left to do.
		s.logg.Warn(s.logg.WithStorageKey(ctx, storageKey), "record not in processing, skipping activation")
	}
	return nil
}
