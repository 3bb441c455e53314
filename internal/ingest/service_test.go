package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tracehq/trace-backend/internal/jobs"
	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/db/models"
	"github.com/tracehq/trace-backend/pkg/enums"
	"github.com/tracehq/trace-backend/pkg/logger"
)

type stubRepo struct {
	created    []*models.Moment
	deleted    []uuid.UUID
	duplicates map[string]*models.Moment
	confirmed  []models.Moment
	listed     []models.Moment
	createErr  error
	confirmErr error
}

func dedupKey(activityID uuid.UUID, name string, size int64) string {
	return fmt.Sprintf("%s|%s|%d", activityID, name, size)
}

func (s *stubRepo) Create(_ context.Context, moment *models.Moment) (*models.Moment, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, moment)
	return moment, nil
}

func (s *stubRepo) Delete(_ context.Context, id uuid.UUID) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRepo) FindDuplicate(_ context.Context, activityID uuid.UUID, name string, size int64) (*models.Moment, error) {
	if s.duplicates == nil {
		return nil, nil
	}
	return s.duplicates[dedupKey(activityID, name, size)], nil
}

func (s *stubRepo) ConfirmBatch(_ *gorm.DB, _ uuid.UUID, _ []uuid.UUID) ([]models.Moment, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return s.confirmed, nil
}

func (s *stubRepo) ListByIDs(_ context.Context, _ []uuid.UUID) ([]models.Moment, error) {
	return s.listed, nil
}

type stubDB struct{}

func (stubDB) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubSigner struct {
	url  string
	err  error
	keys []string
}

func (s *stubSigner) SignedURL(_, object, _ string, _ time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, object)
	return s.url, nil
}

type publishedJob struct {
	class enums.MediaClass
	job   jobs.UploadJob
}

type stubPublisher struct {
	published []publishedJob
	err       error
}

func (s *stubPublisher) PublishMedia(_ context.Context, class enums.MediaClass, job jobs.UploadJob) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, publishedJob{class: class, job: job})
	return nil
}

func newTestService(t *testing.T, repo *stubRepo, signer *stubSigner, publisher *stubPublisher) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      repo,
		DB:        stubDB{},
		Signer:    signer,
		Publisher: publisher,
		Logger:    logger.New(logger.Options{Output: io.Discard}),
		Bucket:    "bucket",
		Media:     config.MediaConfig{MaxUploadMB: 200, MaxBatchSize: 50},
		UploadTTL: 5 * time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func TestSignBatchPartialFailurePreservesOrder(t *testing.T) {
	repo := &stubRepo{}
	signer := &stubSigner{url: "https://signed.example"}
	publisher := &stubPublisher{}
	svc := newTestService(t, repo, signer, publisher)

	results, err := svc.SignBatch(context.Background(), uuid.New(), []SignFileInput{
		{Token: "t1", FileName: "a.jpg", MimeType: "image/jpeg", SizeBytes: 100},
		{Token: "t2", FileName: "b.xyz", MimeType: "application/octet-stream", SizeBytes: 100},
		{Token: "t3", FileName: "c.mp4", MimeType: "video/mp4", SizeBytes: 100},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "t1", results[0].Token)
	assert.Equal(t, SignOutcomePending, results[0].Status)
	require.NotNil(t, results[0].RecordID)
	assert.Equal(t, "https://signed.example", results[0].UploadURL)

	assert.Equal(t, "t2", results[1].Token)
	assert.Equal(t, SignOutcomeError, results[1].Status)
	assert.Contains(t, results[1].Message, "unsupported type")

	assert.Equal(t, "t3", results[2].Token)
	assert.Equal(t, SignOutcomePending, results[2].Status)

	require.Len(t, repo.created, 2, "only valid non-duplicate files create records")
	assert.Equal(t, enums.MediaClassImage, repo.created[0].Class)
	assert.Equal(t, enums.MediaClassVideo, repo.created[1].Class)
	assert.Equal(t, enums.MediaStatusPending, repo.created[0].Status)
}

func TestSignBatchReportsDuplicates(t *testing.T) {
	activityID := uuid.New()
	existing := &models.Moment{ID: uuid.New(), Status: enums.MediaStatusProcessing}
	repo := &stubRepo{duplicates: map[string]*models.Moment{
		dedupKey(activityID, "photo.jpg", 1_000_000): existing,
	}}
	signer := &stubSigner{url: "https://signed.example"}
	svc := newTestService(t, repo, signer, &stubPublisher{})

	results, err := svc.SignBatch(context.Background(), activityID, []SignFileInput{
		{Token: "dup", FileName: "photo.jpg", MimeType: "image/jpeg", SizeBytes: 1_000_000},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SignOutcomeDuplicate, results[0].Status)
	assert.Empty(t, results[0].UploadURL)
	assert.Empty(t, repo.created)
}

func TestSignBatchResignsAbandonedPending(t *testing.T) {
	db := setupMomentsTestDB(t)
	signer := &stubSigner{url: "https://signed.example/upload"}
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(db),
		DB:        stubDB{},
		Signer:    signer,
		Publisher: &stubPublisher{},
		Logger:    logger.New(logger.Options{Output: io.Discard}),
		Bucket:    "bucket",
		Media:     config.MediaConfig{MaxUploadMB: 200, MaxBatchSize: 50},
		UploadTTL: 5 * time.Minute,
	})
	require.NoError(t, err)

	ctx := context.Background()
	activityID := uuid.New()
	files := []SignFileInput{
		{Token: "t1", FileName: "photo.jpg", MimeType: "image/jpeg", SizeBytes: 1_000_000},
	}

	first, err := svc.SignBatch(ctx, activityID, files)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, SignOutcomePending, first[0].Status)

	// client abandoned the first intent without confirming; re-signing
	// the same file gets fresh credentials instead of an error
	second, err := svc.SignBatch(ctx, activityID, files)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, SignOutcomePending, second[0].Status, second[0].Message)
	assert.NotEqual(t, first[0].StorageKey, second[0].StorageKey)
}

func TestSignBatchRollsBackRecordWhenSigningFails(t *testing.T) {
	repo := &stubRepo{}
	signer := &stubSigner{err: errors.New("signing unavailable")}
	svc := newTestService(t, repo, signer, &stubPublisher{})

	results, err := svc.SignBatch(context.Background(), uuid.New(), []SignFileInput{
		{Token: "t1", FileName: "a.jpg", MimeType: "image/jpeg", SizeBytes: 100},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, SignOutcomeError, results[0].Status)
	require.Len(t, repo.created, 1)
	require.Len(t, repo.deleted, 1)
	assert.Equal(t, repo.created[0].ID, repo.deleted[0])
}

func TestSignBatchRejectsOversizedBatch(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, &stubSigner{url: "u"}, &stubPublisher{})

	files := make([]SignFileInput, 51)
	for i := range files {
		files[i] = SignFileInput{Token: "t", FileName: "a.jpg", MimeType: "image/jpeg", SizeBytes: 1}
	}
	_, err := svc.SignBatch(context.Background(), uuid.New(), files)
	require.Error(t, err)
}

func TestConfirmBatchEnqueuesPerTransitionedRecord(t *testing.T) {
	activityID := uuid.New()
	rowA := models.Moment{ID: uuid.New(), ActivityID: activityID, Class: enums.MediaClassImage, StorageKey: "activities/a/images/1.jpg", Status: enums.MediaStatusProcessing}
	rowB := models.Moment{ID: uuid.New(), ActivityID: activityID, Class: enums.MediaClassAudio, StorageKey: "activities/a/audio/2.m4a", Status: enums.MediaStatusProcessing}
	repo := &stubRepo{confirmed: []models.Moment{rowA, rowB}}
	publisher := &stubPublisher{}
	svc := newTestService(t, repo, &stubSigner{url: "u"}, publisher)

	ids, err := svc.ConfirmBatch(context.Background(), activityID, []uuid.UUID{rowA.ID, rowB.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{rowA.ID, rowB.ID}, ids)

	require.Len(t, publisher.published, 2)
	assert.Equal(t, enums.MediaClassImage, publisher.published[0].class)
	assert.Equal(t, rowA.StorageKey, publisher.published[0].job.StorageKey)
	assert.Equal(t, rowA.ID, publisher.published[0].job.RecordID)
}

func TestConfirmBatchSecondCallEnqueuesNothing(t *testing.T) {
	repo := &stubRepo{confirmed: nil}
	publisher := &stubPublisher{}
	svc := newTestService(t, repo, &stubSigner{url: "u"}, publisher)

	ids, err := svc.ConfirmBatch(context.Background(), uuid.New(), []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, publisher.published)
}

func TestConfirmBatchToleratesPublishFailure(t *testing.T) {
	activityID := uuid.New()
	row := models.Moment{ID: uuid.New(), ActivityID: activityID, Class: enums.MediaClassImage, StorageKey: "k", Status: enums.MediaStatusProcessing}
	repo := &stubRepo{confirmed: []models.Moment{row}}
	publisher := &stubPublisher{err: errors.New("broker down")}
	svc := newTestService(t, repo, &stubSigner{url: "u"}, publisher)

	ids, err := svc.ConfirmBatch(context.Background(), activityID, []uuid.UUID{row.ID})
	require.NoError(t, err, "enqueue failures must not fail the confirm response")
	assert.Equal(t, []uuid.UUID{row.ID}, ids)
}

func TestStatusProjectsEnrichmentFields(t *testing.T) {
	thumb := "activities/a/thumbnails/1.jpg"
	occurred := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	repo := &stubRepo{listed: []models.Moment{{
		ID:           uuid.New(),
		Status:       enums.MediaStatusActive,
		Class:        enums.MediaClassImage,
		ThumbnailKey: &thumb,
		OccurredAt:   &occurred,
	}}}
	svc := newTestService(t, repo, &stubSigner{url: "u"}, &stubPublisher{})

	views, err := svc.Status(context.Background(), []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, enums.MediaStatusActive, views[0].Status)
	require.NotNil(t, views[0].ThumbnailKey)
	assert.Equal(t, thumb, *views[0].ThumbnailKey)
}
