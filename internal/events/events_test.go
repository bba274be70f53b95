package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	bus.Publish(TopicStreamUpdate, "payload")

	evt := <-ch
	assert.Equal(t, TopicStreamUpdate, evt.Topic)
	assert.Equal(t, "payload", evt.Payload)
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	// Fill the subscriber's buffer past capacity; none of these should block.
	for i := 0; i < 100; i++ {
		bus.Publish(TopicStreamSignal, i)
	}

	assert.Equal(t, 1, bus.SubscriberCount())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(TopicStreamSprite, SpritePayload{ID: "s1", URL: "data:image/jpeg;base64,abc"})
	})
}
