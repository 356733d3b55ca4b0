package hub

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/event"
)

func newTestHub(buffer int) *Hub {
	cfg := config.Config{}
	cfg.Tracking.SubscriberBuffer = buffer
	return New(cfg, zap.NewNop())
}

func collect(sub *Subscription) []event.Envelope {
	var out []event.Envelope
	for {
		select {
		case env := <-sub.Events():
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestHub_FanOutToChannelSubscribers(t *testing.T) {
	h := newTestHub(8)
	buyer := h.Subscribe("user:1")
	farmer := h.Subscribe("user:2")
	stranger := h.Subscribe("user:3")
	defer buyer.Close()
	defer farmer.Close()
	defer stranger.Close()

	h.Publish(event.Envelope{Type: event.TypeStatusChanged, Channels: []string{"user:1", "user:2"}})

	assert.Len(t, collect(buyer), 1)
	assert.Len(t, collect(farmer), 1)
	assert.Empty(t, collect(stranger), "uninvolved subscribers see nothing")
}

func TestHub_DeduplicatesAcrossChannels(t *testing.T) {
	h := newTestHub(8)
	sub := h.Subscribe("user:1", "delivery:9")
	defer sub.Close()

	h.Publish(event.Envelope{Type: event.TypeLocationUpdated, Channels: []string{"user:1", "delivery:9"}})

	assert.Len(t, collect(sub), 1, "a subscriber joined to several target channels receives the event once")
}

func TestHub_PerChannelOrdering(t *testing.T) {
	h := newTestHub(64)
	sub := h.Subscribe("delivery:9")
	defer sub.Close()

	for i := 0; i < 10; i++ {
		h.Publish(event.Envelope{
			Type:     event.TypeLocationUpdated,
			Channels: []string{"delivery:9"},
			Payload:  i,
		})
	}

	got := collect(sub)
	require.Len(t, got, 10)
	for i, env := range got {
		assert.Equal(t, i, env.Payload, "events arrive in publish order")
	}
}

func TestHub_NoDeliveryAfterClose(t *testing.T) {
	h := newTestHub(8)
	sub := h.Subscribe("user:1")
	sub.Close()

	h.Publish(event.Envelope{Type: event.TypeStatusChanged, Channels: []string{"user:1"}})
	assert.Equal(t, 0, h.SubscriberCount("user:1"))

	_, open := <-sub.Events()
	assert.False(t, open, "event stream is closed")
}

func TestHub_JoinAndLeave(t *testing.T) {
	h := newTestHub(8)
	sub := h.Subscribe("user:1")
	defer sub.Close()

	sub.Join("delivery:9")
	assert.Equal(t, 1, h.SubscriberCount("delivery:9"))

	h.Publish(event.Envelope{Type: event.TypeLocationUpdated, Channels: []string{"delivery:9"}})
	assert.Len(t, collect(sub), 1)

	sub.Leave("delivery:9")
	assert.Equal(t, 0, h.SubscriberCount("delivery:9"))
	h.Publish(event.Envelope{Type: event.TypeLocationUpdated, Channels: []string{"delivery:9"}})
	assert.Empty(t, collect(sub))
}

func TestHub_SlowSubscriberLosesEvents(t *testing.T) {
	h := newTestHub(2)
	sub := h.Subscribe("user:1")
	defer sub.Close()

	for i := 0; i < 5; i++ {
		h.Publish(event.Envelope{Type: event.TypeStatusChanged, Channels: []string{"user:1"}, Payload: i})
	}

	got := collect(sub)
	require.Len(t, got, 2, "no durable backlog: overflow is dropped")
	assert.Equal(t, 0, got[0].Payload)
	assert.Equal(t, 1, got[1].Payload)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "user:42", event.UserChannel(42))
	assert.Equal(t, "delivery:9", event.DeliveryChannel(9))
	assert.Equal(t, fmt.Sprintf("user:%d", int64(7)), event.UserChannel(7))
}

func TestHub_PublishWhileSubscriberDisconnects(t *testing.T) {
	h := newTestHub(1)

	// A subscriber tearing down mid-publish must never crash the
	// publishing request; the event is simply lost for that subscriber.
	for i := 0; i < 200; i++ {
		sub := h.Subscribe("delivery:1")
		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 20; j++ {
				h.Publish(event.Envelope{
					Type:     event.TypeLocationUpdated,
					Channels: []string{"delivery:1"},
					Payload:  j,
				})
			}
		}()
		sub.Close()
		<-done
	}

	assert.Zero(t, h.SubscriberCount("delivery:1"))
}
