package jobs

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/tracehq/trace-backend/pkg/enums"
)

// TopicPublisher is the slice of a Pub/Sub publisher the job layer needs;
// tests substitute a fake.
type TopicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) PublishResult
}

// PublishResult mirrors the broker acknowledgment handle.
type PublishResult interface {
	Get(context.Context) (string, error)
}

// NewGCPTopicPublisher adapts a *pubsub.Publisher to the TopicPublisher interface.
func NewGCPTopicPublisher(p *gcppubsub.Publisher) TopicPublisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}

// Publisher routes upload jobs to the queue matching their media class.
// Audio rides the video queue: both only need an existence check today and
// share its conservative retry policy.
type Publisher struct {
	image TopicPublisher
	video TopicPublisher
	track TopicPublisher
}

// PublisherParams wires the per-class topic handles.
type PublisherParams struct {
	Image TopicPublisher
	Video TopicPublisher
	Track TopicPublisher
}

// NewPublisher constructs a job publisher over the per-class topics.
func NewPublisher(params PublisherParams) (*Publisher, error) {
	if params.Image == nil {
		return nil, errors.New("image topic publisher is required")
	}
	if params.Video == nil {
		return nil, errors.New("video topic publisher is required")
	}
	if params.Track == nil {
		return nil, errors.New("track topic publisher is required")
	}
	return &Publisher{
		image: params.Image,
		video: params.Video,
		track: params.Track,
	}, nil
}

// PublishMedia enqueues one job on the queue for the given media class and
// blocks until the broker acknowledges it.
func (p *Publisher) PublishMedia(ctx context.Context, class enums.MediaClass, job UploadJob) error {
	var topic TopicPublisher
	switch class {
	case enums.MediaClassImage:
		topic = p.image
	case enums.MediaClassVideo, enums.MediaClassAudio:
		topic = p.video
	default:
		return fmt.Errorf("no queue for media class %q", class)
	}
	return p.publish(ctx, topic, job)
}

// PublishTrack enqueues one track geometry job.
func (p *Publisher) PublishTrack(ctx context.Context, job UploadJob) error {
	return p.publish(ctx, p.track, job)
}

func (p *Publisher) publish(ctx context.Context, topic TopicPublisher, job UploadJob) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	result := topic.Publish(ctx, &gcppubsub.Message{Data: data})
	if result == nil {
		return errors.New("publisher not initialized")
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing job for %s: %w", job.StorageKey, err)
	}
	return nil
}
