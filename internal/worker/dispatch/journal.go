package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/cache"
	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/event"
	"github.com/agrilink/agrilink/internal/messaging"
	"github.com/agrilink/agrilink/internal/worker"
)

var workerTracer = otel.Tracer("github.com/agrilink/agrilink/worker/dispatch")

// Module registers the journal consumer with the worker engine.
var Module = fx.Module("worker_dispatch",
	fx.Provide(
		fx.Annotate(
			NewJournalHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

type journalEnvelope struct {
	Type event.Type      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewJournalHandler consumes the mirrored event journal. Status changes
// invalidate the cached order/delivery read models consumed by dispatch
// views; location updates are surfaced at debug level for traffic analysis.
func NewJournalHandler(logger *zap.Logger, cfg config.Config, store cache.Store) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.dispatch.journal", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var env journalEnvelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			logger.Error("failed to decode journal event", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		switch env.Type {
		case event.TypeStatusChanged:
			var payload event.StatusChanged
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				span.RecordError(err)
				return err
			}
			if payload.Entity == event.EntityOrder {
				key := fmt.Sprintf("orders:%d", payload.EntityID)
				if err := store.Delete(ctx, key); err != nil {
					logger.Warn("order cache invalidation failed", zap.String("key", key), zap.Error(err))
				}
			}
			logger.Info("status change journaled",
				zap.String("entity", string(payload.Entity)),
				zap.Int64("id", payload.EntityID),
				zap.String("from", payload.OldStatus),
				zap.String("to", payload.NewStatus),
			)

		case event.TypeLocationUpdated:
			var payload event.LocationUpdated
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				span.RecordError(err)
				return err
			}
			logger.Debug("location update journaled",
				zap.Int64("supplier_id", payload.SupplierID),
			)

		default:
			logger.Warn("unknown journal event type", zap.String("type", string(env.Type)))
		}
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
