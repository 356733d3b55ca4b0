package hub

import (
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/event"
)

// Module wires the hub and presence tracker into the Fx graph.
var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(NewPresence),
	fx.Provide(NewPublisher),
	fx.Invoke(runPresenceJanitor),
)

// Hub routes events to the subscribers of their logical channels. It keeps
// no backlog: events published while a client is disconnected are gone.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscription]struct{}
	buffer   int
	logger   *zap.Logger
}

// New constructs an empty Hub.
func New(cfg config.Config, logger *zap.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Subscription]struct{}),
		buffer:   cfg.Tracking.SubscriberBuffer,
		logger:   logger,
	}
}

// Subscription is one connected client's view of the hub. Events for all
// joined channels arrive on a single ordered stream.
type Subscription struct {
	hub    *Hub
	events chan event.Envelope

	mu       sync.Mutex
	channels map[string]struct{}
	closed   bool
}

// Subscribe creates a subscription joined to the given channels.
func (h *Hub) Subscribe(channels ...string) *Subscription {
	sub := &Subscription{
		hub:      h,
		events:   make(chan event.Envelope, h.buffer),
		channels: make(map[string]struct{}, len(channels)),
	}
	sub.Join(channels...)
	return sub
}

// Events exposes the subscriber's ordered event stream.
func (s *Subscription) Events() <-chan event.Envelope {
	return s.events
}

// Join adds the subscription to the given channels.
func (s *Subscription) Join(channels ...string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	joined := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch == "" {
			continue
		}
		if _, ok := s.channels[ch]; ok {
			continue
		}
		s.channels[ch] = struct{}{}
		joined = append(joined, ch)
	}
	s.mu.Unlock()

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	for _, ch := range joined {
		subs, ok := s.hub.channels[ch]
		if !ok {
			subs = make(map[*Subscription]struct{})
			s.hub.channels[ch] = subs
		}
		subs[s] = struct{}{}
	}
}

// Leave removes the subscription from a channel.
func (s *Subscription) Leave(channel string) {
	s.mu.Lock()
	delete(s.channels, channel)
	s.mu.Unlock()

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.detach(channel, s)
}

// Close detaches the subscription from every channel and closes its stream.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	channels := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	s.channels = nil
	// Sends hold s.mu via trySend, so closing here cannot race a send.
	close(s.events)
	s.mu.Unlock()

	s.hub.mu.Lock()
	for _, ch := range channels {
		s.hub.detach(ch, s)
	}
	s.hub.mu.Unlock()
}

// trySend delivers the envelope unless the subscription is closed or its
// buffer is full.
func (s *Subscription) trySend(env event.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- env:
		return true
	default:
		return false
	}
}

// caller must hold h.mu.
func (h *Hub) detach(channel string, s *Subscription) {
	subs, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
}

// Publish fans the envelope out to every subscription joined to at least one
// of its channels. A subscriber joined to several of those channels receives
// the event once. Slow subscribers with a full buffer lose the event; there
// is no durable queue to fall back on.
func (h *Hub) Publish(env event.Envelope) {
	h.mu.RLock()
	targets := make(map[*Subscription]struct{})
	for _, ch := range env.Channels {
		for sub := range h.channels[ch] {
			targets[sub] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for sub := range targets {
		if sub.trySend(env) {
			continue
		}
		h.logger.Warn("subscriber buffer full or closed; dropping event",
			zap.String("event", string(env.Type)),
		)
	}
}

// SubscriberCount reports how many subscriptions are joined to a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
