package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()

	id, err := pub.Publish(context.Background(), "crawl-events", map[string]string{"url": "https://shop.example/p/1"})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)

	id, err = pub.Publish(context.Background(), "crawl-runs", "run-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-2", id)

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "crawl-events", events[0].Topic)
	assert.Equal(t, "crawl-runs", events[1].Topic)
}

func TestEventsReturnsCopy(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "crawl-events", nil)
	require.NoError(t, err)

	events := pub.Events()
	events[0].Topic = "mutated"
	assert.Equal(t, "crawl-events", pub.Events()[0].Topic)
}
