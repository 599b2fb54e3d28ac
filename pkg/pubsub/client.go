package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/buildmart/storefront/pkg/config"
	"github.com/buildmart/storefront/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errClosed            = errors.New("pubsub client closed")
	// ErrTopicMissing is returned when a configured topic has not been
	// provisioned.
	ErrTopicMissing = errors.New("pubsub topic does not exist")
)

// Publisher sends messages to one topic.
type Publisher interface {
	Publish(context.Context, *pubsub.Message) PublishResult
}

// PublishResult resolves to the server-assigned message id.
type PublishResult interface {
	Get(context.Context) (string, error)
}

type getTopicFunc func(context.Context, *pubsubpb.GetTopicRequest) (*pubsubpb.Topic, error)

// Client publishes storefront domain events. Topics are verified once at
// startup and again on every readiness ping; nothing is created here.
type Client struct {
	client   *pubsub.Client
	getTopic getTopicFunc
	project  string
	topics   []string
	ordered  bool

	mu         sync.Mutex
	closed     bool
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub for gcp.ProjectID and checks the orders topic and,
// when set, the cart topic. PUBSUB_EMULATOR_HOST is honoured by the SDK.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topics := configuredTopics(project, cfg)
	if len(topics) == 0 {
		return nil, errors.New("no pubsub topic configured")
	}

	raw, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("dial pubsub: %w", err)
	}
	c := &Client{
		client: raw,
		getTopic: func(ctx context.Context, req *pubsubpb.GetTopicRequest) (*pubsubpb.Topic, error) {
			return raw.TopicAdminClient.GetTopic(ctx, req)
		},
		project:    project,
		topics:     topics,
		ordered:    cfg.OrderBySession,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":  topics,
			"ordered": c.ordered,
		}), "pubsub client initialized")
	}
	return c, nil
}

func configuredTopics(project string, cfg config.PubSubConfig) []string {
	var out []string
	for _, name := range []string{cfg.OrdersTopic, cfg.CartTopic} {
		if full := TopicResourceName(project, name); full != "" {
			out = append(out, full)
		}
	}
	return out
}

// Ping confirms every configured topic still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.getTopic == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, topic := range c.topics {
		if _, err := c.getTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic}); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("%w: %s", ErrTopicMissing, topic)
			}
			return fmt.Errorf("get topic %s: %w", topic, err)
		}
	}
	return nil
}

// Publisher returns the shared publisher for a topic ID or resource name, or
// nil when the name is blank or the client is closed.
func (c *Client) Publisher(name string) Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := TopicResourceName(c.project, name)
	if full == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	pub, ok := c.publishers[full]
	if !ok {
		pub = c.client.Publisher(full)
		pub.EnableMessageOrdering = c.ordered
		c.publishers[full] = pub
	}
	return &topicPublisher{pub: pub, resume: pub.ResumePublish}
}

// Close flushes outstanding messages and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pubs := c.publishers
	c.publishers = nil
	c.mu.Unlock()

	for _, pub := range pubs {
		pub.Stop()
	}
	return c.client.Close()
}

// TopicResourceName expands a topic ID into projects/<p>/topics/<id>. Full
// resource names pass through unchanged.
func TopicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if n == "" || p == "" {
		return ""
	}
	return "projects/" + p + "/topics/" + n
}

type topicPublisher struct {
	pub    *pubsub.Publisher
	resume func(orderingKey string)
}

func (p *topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) PublishResult {
	if p.pub == nil {
		return failedResult{errClosed}
	}
	if !p.pub.EnableMessageOrdering {
		msg.OrderingKey = ""
	}
	return &orderedResult{res: p.pub.Publish(ctx, msg), key: msg.OrderingKey, resume: p.resume}
}

// orderedResult unpauses the ordering key after a failed publish. The SDK
// rejects further messages for a key until then.
type orderedResult struct {
	res    PublishResult
	key    string
	resume func(string)
}

func (r *orderedResult) Get(ctx context.Context) (string, error) {
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" && r.resume != nil {
		r.resume(r.key)
	}
	return id, err
}

type failedResult struct{ err error }

func (f failedResult) Get(context.Context) (string, error) { return "", f.err }
