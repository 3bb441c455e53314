package tracks

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tracehq/trace-backend/internal/ingest"
	"github.com/tracehq/trace-backend/internal/jobs"
	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/db/models"
	"github.com/tracehq/trace-backend/pkg/enums"
	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/logger"
)

const defaultTrackMime = "application/gpx+xml"

type trackRepository interface {
	Create(tx *gorm.DB, track *models.Track, polyline *models.Polyline) error
	DeletePair(ctx context.Context, trackID, polylineID uuid.UUID) error
	ConfirmTrack(tx *gorm.DB, activityID, trackID uuid.UUID) (*models.Track, *models.Polyline, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Track, error)
}

type dbClient interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type uploadSigner interface {
	SignedURL(bucket, object, contentType string, expires time.Duration) (string, error)
}

type jobPublisher interface {
	PublishTrack(ctx context.Context, job jobs.UploadJob) error
}

// Service exposes the track upload protocol: sign, confirm, poll. It mirrors
// the moment flow but with a single file per intent, since a track upload is
// one GPX file.
type Service interface {
	SignTrack(ctx context.Context, activityID uuid.UUID, input SignTrackInput) (*SignTrackResult, error)
	ConfirmTrack(ctx context.Context, activityID, trackID uuid.UUID) (bool, error)
	Status(ctx context.Context, trackIDs []uuid.UUID) ([]TrackStatusView, error)
}

type service struct {
	repo      trackRepository
	db        dbClient
	signer    uploadSigner
	publisher jobPublisher
	logg      *logger.Logger
	bucket    string
	uploadTTL time.Duration
	maxBytes  int64
	newID     func() (uuid.UUID, error)
}

// ServiceParams wires the track service dependencies.
type ServiceParams struct {
	Repo      trackRepository
	DB        dbClient
	Signer    uploadSigner
	Publisher jobPublisher
	Logger    *logger.Logger
	Bucket    string
	Track     config.TrackConfig
	UploadTTL time.Duration
}

// NewService constructs the track service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("track repository is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Signer == nil {
		return nil, errors.New("upload signer is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("job publisher is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if params.UploadTTL <= 0 {
		return nil, errors.New("upload ttl must be positive")
	}
	return &service{
		repo:      params.Repo,
		db:        params.DB,
		signer:    params.Signer,
		publisher: params.Publisher,
		logg:      params.Logger,
		bucket:    params.Bucket,
		uploadTTL: params.UploadTTL,
		maxBytes:  params.Track.MaxUploadBytes(),
		newID:     uuid.NewV7,
	}, nil
}

// SignTrackInput describes the track file the client wants to upload.
type SignTrackInput struct {
	Name      string `json:"name"`
	FileName  string `json:"file_name" validate:"required"`
	MimeType  string `json:"mime_type" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"required,gt=0"`
}

// SignTrackResult carries the created placeholder pair and the upload
// credential.
type SignTrackResult struct {
	TrackID     uuid.UUID `json:"track_id"`
	PolylineID  uuid.UUID `json:"polyline_id"`
	StorageKey  string    `json:"storage_key"`
	UploadURL   string    `json:"upload_url"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TrackStatusView is the status poll projection for one track.
type TrackStatusView struct {
	ID               uuid.UUID         `json:"id"`
	Status           enums.TrackStatus `json:"status"`
	ActivePolylineID *uuid.UUID        `json:"active_polyline_id,omitempty"`
}

// SignTrack creates a pending track with its placeholder polyline and
// returns a time-limited upload credential for the source file.
func (s *service) SignTrack(ctx context.Context, activityID uuid.UUID, input SignTrackInput) (*SignTrackResult, error) {
	if activityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "activity id is required")
	}
	if strings.TrimSpace(input.FileName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name is required")
	}
	if input.SizeBytes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file size must be positive")
	}
	if s.maxBytes > 0 && input.SizeBytes > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	if !ingest.IsTrackMime(input.MimeType, input.FileName) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unsupported track type: %s", input.MimeType))
	}

	contentType, err := ingest.NormalizeMime(input.MimeType)
	if err != nil {
		contentType = defaultTrackMime
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = input.FileName
	}

	trackID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generating track id: %w", err)
	}
	polylineID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generating polyline id: %w", err)
	}

	storageKey := buildTrackStorageKey(activityID, polylineID, input.FileName)
	track := &models.Track{
		ID:         trackID,
		ActivityID: activityID,
		Name:       name,
		Status:     enums.TrackStatusPending,
	}
	polyline := &models.Polyline{
		ID:         polylineID,
		TrackID:    trackID,
		SourceType: "gpx",
		StorageKey: storageKey,
		SizeBytes:  input.SizeBytes,
		MimeType:   contentType,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.Create(tx, track, polyline)
	})
	if err != nil {
		return nil, fmt.Errorf("creating track records: %w", err)
	}

	uploadURL, err := s.signer.SignedURL(s.bucket, storageKey, contentType, s.uploadTTL)
	if err != nil {
		if cleanupErr := s.repo.DeletePair(ctx, trackID, polylineID); cleanupErr != nil {
			s.logg.Error(ctx, "rolling back unsigned track", cleanupErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issuing upload credential")
	}

	return &SignTrackResult{
		TrackID:     trackID,
		PolylineID:  polylineID,
		StorageKey:  storageKey,
		UploadURL:   uploadURL,
		ContentType: contentType,
		ExpiresAt:   time.Now().Add(s.uploadTTL),
	}, nil
}

// ConfirmTrack flips one pending track to processing and enqueues its
// geometry job. The transition commits before the publish so a redelivered
// confirm cannot double-enqueue; a publish failure is converged later by the
// stuck-processing sweep.
func (s *service) ConfirmTrack(ctx context.Context, activityID, trackID uuid.UUID) (bool, error) {
	if activityID == uuid.Nil || trackID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "activity id and track id are required")
	}

	var (
		track    *models.Track
		polyline *models.Polyline
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		track, polyline, txErr = s.repo.ConfirmTrack(tx, activityID, trackID)
		return txErr
	})
	if err != nil {
		return false, fmt.Errorf("confirming track: %w", err)
	}
	if track == nil {
		return false, nil
	}

	job := jobs.UploadJob{
		RecordID:   track.ID,
		StorageKey: polyline.StorageKey,
		ActivityID: activityID,
	}
	if err := s.publisher.PublishTrack(ctx, job); err != nil {
		logCtx := s.logg.WithStorageKey(ctx, polyline.StorageKey)
		s.logg.Error(logCtx, "enqueueing track job", err)
	}
	return true, nil
}

// Status projects the current state of the requested tracks.
func (s *service) Status(ctx context.Context, trackIDs []uuid.UUID) ([]TrackStatusView, error) {
	if len(trackIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one track id is required")
	}
	rows, err := s.repo.ListByIDs(ctx, trackIDs)
	if err != nil {
		return nil, fmt.Errorf("loading tracks: %w", err)
	}
	views := make([]TrackStatusView, 0, len(rows))
	for _, row := range rows {
		views = append(views, TrackStatusView{
			ID:               row.ID,
			Status:           row.Status,
			ActivePolylineID: row.ActivePolylineID,
		})
	}
	return views, nil
}

// buildTrackStorageKey places track files under their own directory, keyed
// by polyline id so reprocessing never collides with an older upload.
func buildTrackStorageKey(activityID, polylineID uuid.UUID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		ext = ".gpx"
	}
	return fmt.Sprintf("activities/%s/tracks/%s%s", activityID, polylineID, ext)
}
