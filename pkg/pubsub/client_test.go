package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saakshy/saakshy-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, topic, want string
	}{
		{"proj", "saakshy-ledger-events", "projects/proj/topics/saakshy-ledger-events"},
		{"proj", " projects/other/topics/t ", "projects/other/topics/t"},
		{"", "saakshy-ledger-events", ""},
		{"proj", "  ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TopicResourceName(tc.project, tc.topic), "%q/%q", tc.project, tc.topic)
	}
}

func TestCredentialsPreferInlineJSON(t *testing.T) {
	assert.Empty(t, credentials(config.GCPConfig{}))
	assert.Len(t, credentials(config.GCPConfig{ApplicationCredentials: "/secrets/sa.json"}), 1)
	assert.Len(t, credentials(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/secrets/sa.json"}), 1)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{LedgerTopic: "t"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "proj"}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errNoTopics)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
}
