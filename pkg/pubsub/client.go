package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/logger"
)

// Client wraps the Pub/Sub v2 client with the per-class topic and
// subscription handles the ingestion pipeline uses.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	queues    config.QueuesConfig
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscriptions   = errors.New("pubsub subscription name is required")
)

// NewClient creates a Pub/Sub v2 client, ensures the configured subscriptions
// exist, and aligns each subscription's retry policy with the per-queue
// backoff settings.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, queues config.QueuesConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
		queues:    queues,
	}

	if err := c.ensureSubscriptionsConfigured(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}

	return c, nil
}

func (c *Client) ensureSubscriptionsConfigured(ctx context.Context) error {
	bindings := c.subscriptionBindings()
	if len(bindings) == 0 {
		return errNoSubscriptions
	}
	for _, b := range bindings {
		sub, err := c.getSubscription(ctx, b.name)
		if err != nil {
			return err
		}
		if err := c.applyRetryPolicy(ctx, sub, b.settings); err != nil {
			return err
		}
	}
	return nil
}

type subscriptionBinding struct {
	name     string
	settings config.QueueSettings
}

func (c *Client) subscriptionBindings() []subscriptionBinding {
	bindings := []subscriptionBinding{}
	for _, b := range []subscriptionBinding{
		{c.cfg.ImageSubscription, c.queues.Image()},
		{c.cfg.VideoSubscription, c.queues.Video()},
		{c.cfg.TrackSubscription, c.queues.Track()},
	} {
		if trimmed := strings.TrimSpace(b.name); trimmed != "" {
			bindings = append(bindings, subscriptionBinding{trimmed, b.settings})
		}
	}
	return bindings
}

func (c *Client) getSubscription(ctx context.Context, name string) (*pubsubpb.Subscription, error) {
	fullName := c.subscriptionResourceName(name)
	if fullName == "" {
		return nil, fmt.Errorf("subscription %q not configured", name)
	}

	sub, err := c.client.SubscriptionAdminClient.GetSubscription(
		ctx,
		&pubsubpb.GetSubscriptionRequest{Subscription: fullName},
	)
	if err != nil {
		// v2 uses gRPC errors; NotFound means the subscription doesn't exist.
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("subscription %q does not exist", name)
		}
		return nil, fmt.Errorf("checking subscription %q: %w", name, err)
	}

	return sub, nil
}

// applyRetryPolicy pushes the configured exponential backoff window onto the
// subscription when it differs from the deployed policy.
func (c *Client) applyRetryPolicy(ctx context.Context, sub *pubsubpb.Subscription, settings config.QueueSettings) error {
	if settings.MinBackoff <= 0 && settings.MaxBackoff <= 0 {
		return nil
	}

	want := &pubsubpb.RetryPolicy{
		MinimumBackoff: durationpb.New(settings.MinBackoff),
		MaximumBackoff: durationpb.New(settings.MaxBackoff),
	}
	if current := sub.GetRetryPolicy(); current != nil &&
		current.GetMinimumBackoff().AsDuration() == settings.MinBackoff &&
		current.GetMaximumBackoff().AsDuration() == settings.MaxBackoff {
		return nil
	}

	_, err := c.client.SubscriptionAdminClient.UpdateSubscription(ctx, &pubsubpb.UpdateSubscriptionRequest{
		Subscription: &pubsubpb.Subscription{
			Name:        sub.GetName(),
			RetryPolicy: want,
		},
		UpdateMask: &fieldmaskpb.FieldMask{Paths: []string{"retry_policy"}},
	})
	if err != nil {
		return fmt.Errorf("updating retry policy for %q: %w", sub.GetName(), err)
	}
	return nil
}

// Subscription returns a v2 Subscriber handle for the configured subscription name (ID or full resource name).
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.subscriptionResourceName(name)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

// ImageSubscription returns the image queue subscriber.
func (c *Client) ImageSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.ImageSubscription)
}

// VideoSubscription returns the video/audio queue subscriber.
func (c *Client) VideoSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.VideoSubscription)
}

// TrackSubscription returns the track geometry queue subscriber.
func (c *Client) TrackSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.TrackSubscription)
}

// Publisher returns a publisher handle for the given topic ID/resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// ImagePublisher returns the image queue publisher.
func (c *Client) ImagePublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.ImageTopic)
}

// VideoPublisher returns the video/audio queue publisher.
func (c *Client) VideoPublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.VideoTopic)
}

// TrackPublisher returns the track geometry queue publisher.
func (c *Client) TrackPublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.TrackTopic)
}

// Ping verifies Pub/Sub connectivity by checking configured subscriptions exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("pubsub client not initialized")
	}
	bindings := c.subscriptionBindings()
	if len(bindings) == 0 {
		return errNoSubscriptions
	}
	for _, b := range bindings {
		if _, err := c.getSubscription(ctx, b.name); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/subscriptions/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/subscriptions/%s", p, n)
}

func (c *Client) topicResourceName(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}
