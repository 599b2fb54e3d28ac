package pubsub

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/buildmart/storefront/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"proj", "orders", "projects/proj/topics/orders"},
		{"proj", " orders ", "projects/proj/topics/orders"},
		{"proj", "projects/other/topics/x", "projects/other/topics/x"},
		{"", "projects/other/topics/x", "projects/other/topics/x"},
		{"", "orders", ""},
		{"proj", "", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TopicResourceName(tc.project, tc.name), "%q/%q", tc.project, tc.name)
	}
}

func TestConfiguredTopicsSkipsBlank(t *testing.T) {
	got := configuredTopics("bm-prod", config.PubSubConfig{OrdersTopic: "bm-order-events", CartTopic: " "})
	assert.Equal(t, []string{"projects/bm-prod/topics/bm-order-events"}, got)
}

func TestPingReportsMissingTopic(t *testing.T) {
	var asked []string
	c := &Client{
		topics: []string{"projects/p/topics/orders", "projects/p/topics/cart"},
		getTopic: func(_ context.Context, req *pubsubpb.GetTopicRequest) (*pubsubpb.Topic, error) {
			asked = append(asked, req.GetTopic())
			if req.GetTopic() == "projects/p/topics/cart" {
				return nil, status.Error(codes.NotFound, "topic not found")
			}
			return &pubsubpb.Topic{Name: req.GetTopic()}, nil
		},
	}

	err := c.Ping(context.Background())
	require.ErrorIs(t, err, ErrTopicMissing)
	assert.Equal(t, []string{"projects/p/topics/orders", "projects/p/topics/cart"}, asked)

	c.getTopic = func(context.Context, *pubsubpb.GetTopicRequest) (*pubsubpb.Topic, error) {
		return nil, status.Error(codes.PermissionDenied, "denied")
	}
	err = c.Ping(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTopicMissing))
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	require.Error(t, c.Ping(context.Background()))
	require.NoError(t, c.Close())
}

func TestOrderedResultResumesKeyOnFailure(t *testing.T) {
	var resumed []string
	resume := func(k string) { resumed = append(resumed, k) }

	ok := &orderedResult{res: stubResult{id: "m-1"}, key: "sess-1", resume: resume}
	id, err := ok.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)
	assert.Empty(t, resumed)

	failed := &orderedResult{res: stubResult{err: errors.New("deadline exceeded")}, key: "sess-1", resume: resume}
	_, err = failed.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"sess-1"}, resumed)

	unkeyed := &orderedResult{res: stubResult{err: errors.New("deadline exceeded")}, resume: resume}
	_, _ = unkeyed.Get(context.Background())
	assert.Len(t, resumed, 1, "messages without a key never pause")
}

type stubResult struct {
	id  string
	err error
}

func (s stubResult) Get(context.Context) (string, error) { return s.id, s.err }
