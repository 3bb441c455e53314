package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tracehq/trace-backend/internal/jobs"
	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/db/models"
	"github.com/tracehq/trace-backend/pkg/enums"
	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
	"github.com/tracehq/trace-backend/pkg/logger"
	"github.com/tracehq/trace-backend/pkg/types"
)

type momentRepository interface {
	Create(ctx context.Context, moment *models.Moment) (*models.Moment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindDuplicate(ctx context.Context, activityID uuid.UUID, name string, sizeBytes int64) (*models.Moment, error)
	ConfirmBatch(tx *gorm.DB, activityID uuid.UUID, ids []uuid.UUID) ([]models.Moment, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Moment, error)
}

type dbClient interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type uploadSigner interface {
	SignedURL(bucket, object, contentType string, expires time.Duration) (string, error)
}

type jobPublisher interface {
	PublishMedia(ctx context.Context, class enums.MediaClass, job jobs.UploadJob) error
}

// Service exposes the ingestion protocol: sign batch, confirm batch, poll.
type Service interface {
	SignBatch(ctx context.Context, activityID uuid.UUID, files []SignFileInput) ([]SignFileResult, error)
	ConfirmBatch(ctx context.Context, activityID uuid.UUID, recordIDs []uuid.UUID) ([]uuid.UUID, error)
	Status(ctx context.Context, recordIDs []uuid.UUID) ([]MomentStatusView, error)
}

type service struct {
	repo      momentRepository
	db        dbClient
	signer    uploadSigner
	publisher jobPublisher
	logg      *logger.Logger
	bucket    string
	uploadTTL time.Duration
	maxBatch  int
	maxBytes  int64
	newID     func() (uuid.UUID, error)
}

// ServiceParams wires the ingestion service dependencies.
type ServiceParams struct {
	Repo      momentRepository
	DB        dbClient
	Signer    uploadSigner
	Publisher jobPublisher
	Logger    *logger.Logger
	Bucket    string
	Media     config.MediaConfig
	UploadTTL time.Duration
}

// NewService constructs the ingestion service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("moment repository is required")
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
	maxBatch := params.Media.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 50
	}
	return &service{
		repo:      params.Repo,
		db:        params.DB,
		signer:    params.Signer,
		publisher: params.Publisher,
		logg:      params.Logger,
		bucket:    params.Bucket,
		uploadTTL: params.UploadTTL,
		maxBatch:  maxBatch,
		maxBytes:  params.Media.MaxUploadBytes(),
		newID:     uuid.NewV7,
	}, nil
}

// SignFileInput describes one file the client wants to upload. Token is a
// client-supplied correlation value echoed back on the matching result.
type SignFileInput struct {
	Token     string `json:"token" validate:"required"`
	FileName  string `json:"file_name" validate:"required"`
	MimeType  string `json:"mime_type" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"required,gt=0"`
}

// SignOutcome is the per-file result class.
type SignOutcome string

const (
	SignOutcomePending   SignOutcome = "pending"
	SignOutcomeDuplicate SignOutcome = "duplicate"
	SignOutcomeError     SignOutcome = "error"
)

// SignFileResult is one entry of the ordered sign-batch response.
type SignFileResult struct {
	Token       string      `json:"token"`
	Status      SignOutcome `json:"status"`
	RecordID    *uuid.UUID  `json:"record_id,omitempty"`
	StorageKey  string      `json:"storage_key,omitempty"`
	UploadURL   string      `json:"upload_url,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	Message     string      `json:"message,omitempty"`
}

// SignBatch validates each descriptor, skips duplicates, creates pending
// placeholder records, and returns per-file upload credentials in input
// order. One file's failure never aborts its siblings.
func (s *service) SignBatch(ctx context.Context, activityID uuid.UUID, files []SignFileInput) ([]SignFileResult, error) {
	if activityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "activity id is required")
	}
	if len(files) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no files provided")
	}
	if len(files) > s.maxBatch {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("batch limit exceeded: at most %d files per request", s.maxBatch))
	}

	results := make([]SignFileResult, len(files))
	for i, file := range files {
		results[i] = s.signOne(ctx, activityID, file)
	}
	return results, nil
}

func (s *service) signOne(ctx context.Context, activityID uuid.UUID, file SignFileInput) SignFileResult {
	name := strings.TrimSpace(file.FileName)
	if name == "" {
		return signError(file.Token, "file_name is required")
	}
	if file.SizeBytes <= 0 {
		return signError(file.Token, "size_bytes must be positive")
	}
	if file.SizeBytes > s.maxBytes {
		return signError(file.Token, fmt.Sprintf("file exceeds the %d byte upload limit", s.maxBytes))
	}

	class, mimeType, err := classifyMime(file.MimeType)
	if err != nil {
		return signError(file.Token, err.Error())
	}

	existing, err := s.repo.FindDuplicate(ctx, activityID, name, file.SizeBytes)
	if err != nil {
		s.logg.Error(ctx, "duplicate lookup failed", err)
		return signError(file.Token, "duplicate check failed")
	}
	if existing != nil {
		return SignFileResult{Token: file.Token, Status: SignOutcomeDuplicate}
	}

	momentID, err := s.newID()
	if err != nil {
		s.logg.Error(ctx, "id generation failed", err)
		return signError(file.Token, "could not allocate record id")
	}
	storageKey := buildStorageKey(activityID, class, momentID, name)

	moment := &models.Moment{
		ID:         momentID,
		ActivityID: activityID,
		Name:       name,
		SizeBytes:  file.SizeBytes,
		Class:      class,
		MimeType:   mimeType,
		Status:     enums.MediaStatusPending,
		StorageKey: storageKey,
	}
	if _, err := s.repo.Create(ctx, moment); err != nil {
		s.logg.Error(ctx, "persist moment placeholder failed", err)
		return signError(file.Token, "could not create record")
	}

	expiresAt := time.Now().Add(s.uploadTTL)
	uploadURL, err := s.signer.SignedURL(s.bucket, storageKey, mimeType, s.uploadTTL)
	if err != nil {
		// Placeholder without a credential would block dedup until cleanup.
		_ = s.repo.Delete(ctx, momentID)
		s.logg.Error(ctx, "sign upload url failed", err)
		return signError(file.Token, "could not issue upload credential")
	}

	return SignFileResult{
		Token:       file.Token,
		Status:      SignOutcomePending,
		RecordID:    &momentID,
		StorageKey:  storageKey,
		UploadURL:   uploadURL,
		ContentType: mimeType,
		ExpiresAt:   &expiresAt,
	}
}

func signError(token, message string) SignFileResult {
	return SignFileResult{Token: token, Status: SignOutcomeError, Message: message}
}

// ConfirmBatch atomically flips matching pending records to processing, then
// enqueues one job per transitioned record. The commit lands before any
// enqueue: a crash in between leaves an orphaned processing record that the
// stale-record sweep later converges to failed, never a job for a pending
// record.
func (s *service) ConfirmBatch(ctx context.Context, activityID uuid.UUID, recordIDs []uuid.UUID) ([]uuid.UUID, error) {
	if activityID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "activity id is required")
	}
	if len(recordIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no record ids provided")
	}
	if len(recordIDs) > s.maxBatch {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("batch limit exceeded: at most %d records per request", s.maxBatch))
	}

	var transitioned []models.Moment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.ConfirmBatch(tx, activityID, recordIDs)
		if err != nil {
			return err
		}
		transitioned = rows
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm batch")
	}

	ids := make([]uuid.UUID, 0, len(transitioned))
	for _, row := range transitioned {
		ids = append(ids, row.ID)

		job := jobs.UploadJob{
			RecordID:   row.ID,
			StorageKey: row.StorageKey,
			ActivityID: row.ActivityID,
		}
		if err := s.publisher.PublishMedia(ctx, row.Class, job); err != nil {
			// The record stays processing; the stale-record sweep converges
			// it to failed if no retry ever lands.
			logCtx := s.logg.WithStorageKey(ctx, row.StorageKey)
			s.logg.Error(logCtx, "enqueue upload job failed", err)
		}
	}
	return ids, nil
}

// MomentStatusView is the convergence-polling projection of a record.
type MomentStatusView struct {
	ID           uuid.UUID             `json:"id"`
	Status       enums.MediaStatus     `json:"status"`
	Class        enums.MediaClass      `json:"class"`
	ThumbnailKey *string               `json:"thumbnail_key,omitempty"`
	OccurredAt   *time.Time            `json:"occurred_at,omitempty"`
	Location     *types.GeographyPoint `json:"location,omitempty"`
}

// Status returns the current state of the given records. Unknown ids are
// omitted rather than erroring, so pollers can mix batches freely.
func (s *service) Status(ctx context.Context, recordIDs []uuid.UUID) ([]MomentStatusView, error) {
	if len(recordIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no record ids provided")
	}
	if len(recordIDs) > s.maxBatch {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("batch limit exceeded: at most %d records per request", s.maxBatch))
	}

	rows, err := s.repo.ListByIDs(ctx, recordIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list moments")
	}

	views := make([]MomentStatusView, len(rows))
	for i, row := range rows {
		views[i] = MomentStatusView{
			ID:           row.ID,
			Status:       row.Status,
			Class:        row.Class,
			ThumbnailKey: row.ThumbnailKey,
			OccurredAt:   row.OccurredAt,
			Location:     row.Geom,
		}
	}
	return views, nil
}
