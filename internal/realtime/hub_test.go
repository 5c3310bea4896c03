package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("s1")
	b := h.Subscribe("s1")

	h.Publish("s1", EventSessionUpdate, "payload")

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventSessionUpdate, ev.Type)
			assert.Equal(t, "s1", ev.SessionID)
			assert.Equal(t, "payload", ev.Payload)
		default:
			t.Fatal("expected event on subscriber channel")
		}
	}
}

func TestPublishIsolatedPerSession(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("s1")
	b := h.Subscribe("s2")

	h.Publish("s1", EventConversationLog, nil)

	require.Len(t, a, 1)
	assert.Len(t, b, 0)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("s1")
	h.Unsubscribe("s1", ch)

	h.Publish("s1", EventSessionUpdate, nil)

	assert.Len(t, ch, 0)
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("s1")

	// Overfill the buffer; the extra publishes must drop, not block.
	for i := 0; i < subBuffer+10; i++ {
		h.Publish("s1", EventInterim, i)
	}

	assert.Len(t, ch, subBuffer)
}

func TestPublishOrderMatchesPublishOrder(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("s1")

	h.Publish("s1", EventSessionUpdate, 1)
	h.Publish("s1", EventConversationLog, 2)
	h.Publish("s1", EventAISuggestion, 3)

	require.Len(t, ch, 3)
	assert.Equal(t, 1, (<-ch).Payload)
	assert.Equal(t, 2, (<-ch).Payload)
	assert.Equal(t, 3, (<-ch).Payload)
}
