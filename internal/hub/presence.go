package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/entity"
)

// SupplierInfo is a point-in-time view of one supplier's presence.
type SupplierInfo struct {
	SupplierID  int64
	DisplayName string
	ServiceArea string
	State       entity.SupplierPresence
	LastSeenAt  time.Time
}

// OfflineFunc is invoked when a supplier goes offline, explicitly or by
// liveness timeout. It runs outside the tracker's lock.
type OfflineFunc func(supplierID int64)

// Presence tracks the per-supplier session state machine
// Offline -> OnlineIdle -> OnlineTracking and degrades stale suppliers back
// to Offline when they stop reporting.
type Presence struct {
	mu        sync.Mutex
	suppliers map[int64]*SupplierInfo
	window    time.Duration
	now       func() time.Time
	onOffline OfflineFunc
	logger    *zap.Logger
}

// NewPresence builds a tracker whose liveness window is the configured
// multiple of the tracking snapshot interval.
func NewPresence(cfg config.Config, logger *zap.Logger) *Presence {
	return &Presence{
		suppliers: make(map[int64]*SupplierInfo),
		window:    time.Duration(cfg.Tracking.LivenessMultiplier) * cfg.Tracking.SnapshotInterval,
		now:       time.Now,
		logger:    logger,
	}
}

// OnOffline registers the callback fired whenever a supplier goes offline.
func (p *Presence) OnOffline(fn OfflineFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onOffline = fn
}

// Register handles the supplier.register handshake: the supplier becomes
// Online-Idle until it starts transmitting location.
func (p *Presence) Register(supplierID int64, displayName, serviceArea string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suppliers[supplierID] = &SupplierInfo{
		SupplierID:  supplierID,
		DisplayName: displayName,
		ServiceArea: serviceArea,
		State:       entity.PresenceIdle,
		LastSeenAt:  p.now(),
	}
}

// MarkTracking flips the supplier to Online-Tracking on an accepted or
// attempted location push. Unregistered suppliers are ignored.
func (p *Presence) MarkTracking(supplierID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.suppliers[supplierID]
	if !ok {
		return
	}
	info.State = entity.PresenceTracking
	info.LastSeenAt = p.now()
}

// Touch refreshes the liveness clock without changing state.
func (p *Presence) Touch(supplierID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if info, ok := p.suppliers[supplierID]; ok {
		info.LastSeenAt = p.now()
	}
}

// SetOffline handles the supplier.offline control message. Reports whether
// the supplier was known and online.
func (p *Presence) SetOffline(supplierID int64) bool {
	p.mu.Lock()
	info, ok := p.suppliers[supplierID]
	if !ok || info.State == entity.PresenceOffline {
		p.mu.Unlock()
		return false
	}
	info.State = entity.PresenceOffline
	fn := p.onOffline
	p.mu.Unlock()

	if fn != nil {
		fn(supplierID)
	}
	return true
}

// State returns the current presence state for a supplier.
func (p *Presence) State(supplierID int64) entity.SupplierPresence {
	p.mu.Lock()
	defer p.mu.Unlock()
	if info, ok := p.suppliers[supplierID]; ok {
		return info.State
	}
	return entity.PresenceOffline
}

// Online snapshots every supplier currently Online-Idle or Online-Tracking,
// ordered by supplier id for stable dispatch views.
func (p *Presence) Online() []SupplierInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SupplierInfo, 0, len(p.suppliers))
	for _, info := range p.suppliers {
		if info.State != entity.PresenceOffline {
			out = append(out, *info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SupplierID < out[j].SupplierID })
	return out
}

// sweep marks suppliers silent beyond the liveness window as offline and
// returns their ids.
func (p *Presence) sweep(now time.Time) []int64 {
	p.mu.Lock()
	var stale []int64
	for id, info := range p.suppliers {
		if info.State == entity.PresenceOffline {
			continue
		}
		if now.Sub(info.LastSeenAt) > p.window {
			info.State = entity.PresenceOffline
			stale = append(stale, id)
		}
	}
	fn := p.onOffline
	p.mu.Unlock()

	if fn != nil {
		for _, id := range stale {
			fn(id)
		}
	}
	return stale
}

// Run periodically sweeps stale suppliers until the context is cancelled.
func (p *Presence) Run(ctx context.Context) {
	interval := p.window / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if stale := p.sweep(now); len(stale) > 0 {
				p.logger.Info("suppliers marked offline by liveness timeout",
					zap.Int64s("supplier_ids", stale),
				)
			}
		}
	}
}

func runPresenceJanitor(lc fx.Lifecycle, p *Presence) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c
			go p.Run(runCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
