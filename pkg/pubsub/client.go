package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/courier-dispatch/pkg/config"
	"github.com/angelmondragon/courier-dispatch/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client publishes outbox events to the agent notification topic and the
// domain event topic. Publishers are created once per topic and flushed on
// Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails unless every configured topic exists.
// Topics are never created here; provisioning owns them.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	c := &Client{projectID: projectID, publishers: map[string]*pubsub.Publisher{}}
	for _, name := range topicNames(cfg) {
		c.topics = append(c.topics, c.topicResourceName(name))
	}
	if len(c.topics) == 0 {
		return nil, errNoTopics
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c.client = psClient
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", c.topics), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials over a key file; with neither the
// library falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.NotificationTopic, cfg.DomainTopic} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// Publisher returns the shared publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.topicResourceName(name)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[full]; ok {
		return p
	}
	p := c.client.Publisher(full)
	c.publishers[full] = p
	return p
}

// Ping checks that every configured topic still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, topic := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %q does not exist", topic)
		case err != nil:
			return fmt.Errorf("checking topic %q: %w", topic, err)
		}
	}
	return nil
}

// Close flushes pending messages on every publisher, then closes the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, p := range c.publishers {
		p.Stop()
	}
	c.publishers = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.client.Close()
}

func (c *Client) topicResourceName(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	switch {
	case n == "":
		return ""
	case strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/"):
		return n
	case c.projectID == "":
		return ""
	}
	return "projects/" + c.projectID + "/topics/" + n
}
