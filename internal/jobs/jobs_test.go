package jobs

import (
	"context"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tracehq/trace-backend/pkg/enums"
)

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeTopic struct {
	messages []*gcppubsub.Message
	result   fakePublishResult
}

func (f *fakeTopic) Publish(_ context.Context, msg *gcppubsub.Message) PublishResult {
	f.messages = append(f.messages, msg)
	return f.result
}

func newTestJob() UploadJob {
	return UploadJob{
		RecordID:   uuid.New(),
		StorageKey: "activities/act-1/images/a.jpg",
		ActivityID: uuid.New(),
	}
}

func TestUploadJobRoundTrip(t *testing.T) {
	job := newTestJob()
	data, err := job.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, job, decoded)
}

func TestDecodeRejectsInvalidPayloads(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)

	_, err = Decode([]byte(`{"record_id":"` + uuid.NewString() + `"}`))
	require.Error(t, err, "missing storage key must be rejected")
}

func TestPublishMediaRoutesByClass(t *testing.T) {
	image := &fakeTopic{}
	video := &fakeTopic{}
	track := &fakeTopic{}
	pub, err := NewPublisher(PublisherParams{Image: image, Video: video, Track: track})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, pub.PublishMedia(ctx, enums.MediaClassImage, newTestJob()))
	require.NoError(t, pub.PublishMedia(ctx, enums.MediaClassVideo, newTestJob()))
	require.NoError(t, pub.PublishMedia(ctx, enums.MediaClassAudio, newTestJob()))
	require.NoError(t, pub.PublishTrack(ctx, newTestJob()))

	require.Len(t, image.messages, 1)
	require.Len(t, video.messages, 2, "audio rides the video queue")
	require.Len(t, track.messages, 1)
}

func TestPublishMediaRejectsUnroutableClass(t *testing.T) {
	pub, err := NewPublisher(PublisherParams{Image: &fakeTopic{}, Video: &fakeTopic{}, Track: &fakeTopic{}})
	require.NoError(t, err)

	err = pub.PublishMedia(context.Background(), enums.MediaClassNote, newTestJob())
	require.Error(t, err)
}

func TestPublishSurfacesBrokerError(t *testing.T) {
	broken := &fakeTopic{result: fakePublishResult{err: errors.New("unavailable")}}
	pub, err := NewPublisher(PublisherParams{Image: broken, Video: &fakeTopic{}, Track: &fakeTopic{}})
	require.NoError(t, err)

	err = pub.PublishMedia(context.Background(), enums.MediaClassImage, newTestJob())
	require.ErrorContains(t, err, "unavailable")
}
