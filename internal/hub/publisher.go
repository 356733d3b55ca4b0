package hub

import (
	"context"
	"encoding/json"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/event"
	"github.com/agrilink/agrilink/internal/messaging"
)

// Publisher delivers an event to live subscribers through the hub and
// mirrors it onto the message bus as a journal for dispatch views and
// analytics. The journal is best effort; the hub fan-out is the delivery
// contract.
type Publisher struct {
	hub     *Hub
	client  messaging.Client
	enabled bool
	logger  *zap.Logger
}

// PublisherParams collects publisher dependencies via Fx.
type PublisherParams struct {
	fx.In

	Hub    *Hub
	Client messaging.Client
	Config config.Config
	Logger *zap.Logger
}

// NewPublisher wires a Publisher.
func NewPublisher(p PublisherParams) *Publisher {
	return &Publisher{
		hub:     p.Hub,
		client:  p.Client,
		enabled: p.Config.Messaging.Enabled,
		logger:  p.Logger,
	}
}

// Publish fans the envelope out to subscribers and appends it to the
// journal topic keyed by event type.
func (p *Publisher) Publish(ctx context.Context, env event.Envelope) {
	p.hub.Publish(env)

	if !p.enabled || p.client == nil {
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("marshal event for journal", zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, []byte(env.Type), payload); err != nil {
		p.logger.Error("journal publish failed",
			zap.String("event", string(env.Type)),
			zap.Error(err),
		)
	}
}
