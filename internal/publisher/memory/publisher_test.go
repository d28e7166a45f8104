package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "scrape-completed", map[string]string{"job_token": "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "scrape-failed", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "scrape-completed", msgs[0].Topic)
	assert.JSONEq(t, `{"job_token":"a"}`, string(msgs[0].Data))
	assert.Equal(t, "memory-2", msgs[1].ID)
	assert.JSONEq(t, `"payload"`, string(msgs[1].Data))

	msgs[0].Topic = "modified"
	assert.NotEqual(t, "modified", pub.Messages()[0].Topic, "Messages() must return a copy")
}

func TestPublisherFiltersByTopic(t *testing.T) {
	t.Parallel()

	pub := New()
	for _, topic := range []string{"a", "b", "a"} {
		_, err := pub.Publish(context.Background(), topic, struct{}{})
		require.NoError(t, err)
	}
	assert.Len(t, pub.Topic("a"), 2)
	assert.Len(t, pub.Topic("b"), 1)
	assert.Empty(t, pub.Topic("c"))
}

func TestPublisherRejectsBadInput(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "", struct{}{})
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "t", make(chan int))
	require.ErrorContains(t, err, "marshal notification")
	assert.Empty(t, pub.Messages())
}
