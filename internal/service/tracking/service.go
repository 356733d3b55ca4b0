package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/cache"
	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/entity"
	"github.com/agrilink/agrilink/internal/event"
	"github.com/agrilink/agrilink/internal/geo"
	"github.com/agrilink/agrilink/internal/hub"
	"github.com/agrilink/agrilink/internal/port"
)

var serviceTracer = otel.Tracer("github.com/agrilink/agrilink/service/tracking")

const persistRetryBackoff = 250 * time.Millisecond

// Sample is one raw position report from a supplier's device.
type Sample struct {
	SupplierID int64
	Lat        float64
	Lon        float64
	Heading    float64
	Speed      float64
}

type lastAccepted struct {
	point geo.Point
	at    time.Time
}

// Service decides whether incoming position samples are worth propagating.
// A sample is accepted when it moved far enough from the last accepted one
// or when the wall-clock snapshot cadence has elapsed; everything else is
// dropped silently so write volume tracks meaningful movement, not device
// chattiness.
type Service struct {
	suppliers  port.SupplierRepository
	deliveries port.DeliveryRepository
	publisher  *hub.Publisher
	presence   *hub.Presence
	cache      cache.Store
	logger     *zap.Logger
	cfg        config.Tracking

	sem   chan struct{}
	now   func() time.Time
	sleep func(time.Duration)

	mu   sync.Mutex
	last map[int64]lastAccepted
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Suppliers  port.SupplierRepository
	Deliveries port.DeliveryRepository
	Publisher  *hub.Publisher
	Presence   *hub.Presence
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// Module provides the tracking service to Fx.
var Module = fx.Provide(NewService)

// NewService wires a new Service and hooks presence degradation to the
// persisted presence flag.
func NewService(p Params) *Service {
	workers := p.Config.Messaging.Workers.Concurrency
	if workers <= 0 {
		workers = 1
	}
	s := &Service{
		suppliers:  p.Suppliers,
		deliveries: p.Deliveries,
		publisher:  p.Publisher,
		presence:   p.Presence,
		cache:      p.Cache,
		logger:     p.Logger,
		cfg:        p.Config.Tracking,
		sem:        make(chan struct{}, workers),
		now:        time.Now,
		sleep:      time.Sleep,
		last:       make(map[int64]lastAccepted),
	}

	p.Presence.OnOffline(func(supplierID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.suppliers.UpdatePresence(ctx, supplierID, entity.PresenceOffline); err != nil {
			s.logger.Warn("persist offline presence failed", zap.Int64("supplier_id", supplierID), zap.Error(err))
		}
	})

	return s
}

// FineThreshold is the tighter threshold used by on-demand refresh calls.
func (s *Service) FineThreshold() float64 { return s.cfg.FineThresholdMeters }

// CoarseThreshold is the looser threshold used by continuous watch streams.
func (s *Service) CoarseThreshold() float64 { return s.cfg.CoarseThresholdMeters }

// RegisterSupplier handles the supplier.register handshake.
func (s *Service) RegisterSupplier(ctx context.Context, supplierID int64, displayName, serviceArea string) error {
	if _, err := s.suppliers.GetSupplier(ctx, supplierID); err != nil {
		return err
	}
	s.presence.Register(supplierID, displayName, serviceArea)
	if err := s.suppliers.UpdatePresence(ctx, supplierID, entity.PresenceIdle); err != nil {
		s.logger.Warn("persist idle presence failed", zap.Int64("supplier_id", supplierID), zap.Error(err))
	}
	return nil
}

// SetSupplierOffline handles the supplier.offline control message; the
// persisted flag follows via the presence OnOffline hook.
func (s *Service) SetSupplierOffline(supplierID int64) {
	s.presence.SetOffline(supplierID)
}

// TouchSupplier refreshes the supplier's liveness clock on heartbeat-style
// traffic that carries no location.
func (s *Service) TouchSupplier(supplierID int64) {
	s.presence.Touch(supplierID)
}

// OnlineSuppliers snapshots presence for dispatch views.
func (s *Service) OnlineSuppliers() []hub.SupplierInfo {
	return s.presence.Online()
}

// IngestAsync schedules an ingest on the bounded worker pool so a slow
// database write never blocks the connection's read loop.
func (s *Service) IngestAsync(ctx context.Context, sample Sample, thresholdMeters float64) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	go func() {
		defer func() { <-s.sem }()
		if _, err := s.Ingest(ctx, sample, thresholdMeters); err != nil {
			s.logger.Warn("async location ingest failed",
				zap.Int64("supplier_id", sample.SupplierID),
				zap.Error(err),
			)
		}
	}()
}

// Ingest applies the movement/time acceptance rule to one sample. It
// reports whether the sample was accepted and published. Dropped samples
// produce no write and no event.
func (s *Service) Ingest(ctx context.Context, sample Sample, thresholdMeters float64) (bool, error) {
	ctx, span := serviceTracer.Start(ctx, "Tracking.Ingest", trace.WithAttributes(
		attribute.Int64("supplier.id", sample.SupplierID),
		attribute.Float64("threshold_m", thresholdMeters),
	))
	defer span.End()

	s.presence.MarkTracking(sample.SupplierID)

	now := s.now().UTC()
	point := geo.Point{Lat: sample.Lat, Lon: sample.Lon}

	s.mu.Lock()
	prev, seen := s.last[sample.SupplierID]
	s.mu.Unlock()

	if seen {
		moved := geo.DistanceMeters(prev.point, point)
		elapsed := now.Sub(prev.at)
		if moved <= thresholdMeters && elapsed < s.cfg.SnapshotInterval {
			span.SetAttributes(attribute.Bool("accepted", false))
			return false, nil
		}
	}

	if !s.persistLocation(ctx, sample, now) {
		return false, nil
	}

	s.mu.Lock()
	s.last[sample.SupplierID] = lastAccepted{point: point, at: now}
	s.mu.Unlock()

	s.cacheSnapshot(ctx, sample, now)
	channels := s.refreshDeliveries(ctx, sample, point)

	s.publisher.Publish(ctx, event.Envelope{
		Type:     event.TypeLocationUpdated,
		Channels: channels,
		Payload: event.LocationUpdated{
			SupplierID: sample.SupplierID,
			Lat:        sample.Lat,
			Lon:        sample.Lon,
			Heading:    sample.Heading,
			Speed:      sample.Speed,
			At:         now,
		},
	})
	span.SetAttributes(attribute.Bool("accepted", true))
	return true, nil
}

// persistLocation writes the accepted sample, retrying once with backoff.
// Losing a single sample is acceptable; the next periodic or move-triggered
// sample self-corrects.
func (s *Service) persistLocation(ctx context.Context, sample Sample, at time.Time) bool {
	err := s.suppliers.UpdateLocation(ctx, sample.SupplierID, sample.Lat, sample.Lon, sample.Heading, sample.Speed, at)
	if err == nil {
		return true
	}
	s.sleep(persistRetryBackoff)
	if err = s.suppliers.UpdateLocation(ctx, sample.SupplierID, sample.Lat, sample.Lon, sample.Heading, sample.Speed, at); err == nil {
		return true
	}
	s.logger.Warn("dropping location sample after retry",
		zap.Int64("supplier_id", sample.SupplierID),
		zap.Error(err),
	)
	return false
}

func (s *Service) cacheSnapshot(ctx context.Context, sample Sample, at time.Time) {
	if s.cache == nil {
		return
	}
	snapshot, err := json.Marshal(event.LocationUpdated{
		SupplierID: sample.SupplierID,
		Lat:        sample.Lat,
		Lon:        sample.Lon,
		Heading:    sample.Heading,
		Speed:      sample.Speed,
		At:         at,
	})
	if err != nil {
		return
	}
	key := fmt.Sprintf("supplier:loc:%d", sample.SupplierID)
	if err := s.cache.Set(ctx, key, snapshot, 0); err != nil {
		s.logger.Debug("location cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// refreshDeliveries updates remaining-distance/ETA on the supplier's active
// deliveries and returns their channels for fan-out.
func (s *Service) refreshDeliveries(ctx context.Context, sample Sample, point geo.Point) []string {
	active, err := s.deliveries.ActiveForSupplier(ctx, sample.SupplierID)
	if err != nil {
		s.logger.Warn("list active deliveries failed", zap.Int64("supplier_id", sample.SupplierID), zap.Error(err))
		return nil
	}

	channels := make([]string, 0, len(active))
	for _, d := range active {
		remaining := geo.DistanceMeters(point, geo.Point{Lat: d.DropLat, Lon: d.DropLon})
		eta := geo.ETASeconds(remaining, sample.Speed)
		if err := s.deliveries.UpdateProgress(ctx, d.ID, sample.Lat, sample.Lon, remaining, eta); err != nil {
			s.logger.Warn("delivery progress write failed", zap.Int64("delivery_id", d.ID), zap.Error(err))
		}
		channels = append(channels, event.DeliveryChannel(d.ID))
	}
	return channels
}
