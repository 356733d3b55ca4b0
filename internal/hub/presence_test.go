package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/entity"
)

func newTestPresence(window time.Duration) *Presence {
	cfg := config.Config{}
	cfg.Tracking.SnapshotInterval = window
	cfg.Tracking.LivenessMultiplier = 1
	return NewPresence(cfg, zap.NewNop())
}

func TestPresence_RegisterToIdle(t *testing.T) {
	p := newTestPresence(time.Minute)
	assert.Equal(t, entity.PresenceOffline, p.State(7), "unknown suppliers read as offline")

	p.Register(7, "Swift Haulage", "Nakuru")
	assert.Equal(t, entity.PresenceIdle, p.State(7))

	online := p.Online()
	require.Len(t, online, 1)
	assert.Equal(t, "Swift Haulage", online[0].DisplayName)
	assert.Equal(t, "Nakuru", online[0].ServiceArea)
}

func TestPresence_MarkTracking(t *testing.T) {
	p := newTestPresence(time.Minute)

	p.MarkTracking(7)
	assert.Equal(t, entity.PresenceOffline, p.State(7), "unregistered suppliers are ignored")

	p.Register(7, "Swift Haulage", "")
	p.MarkTracking(7)
	assert.Equal(t, entity.PresenceTracking, p.State(7))
}

func TestPresence_SetOffline(t *testing.T) {
	p := newTestPresence(time.Minute)
	var gone []int64
	p.OnOffline(func(id int64) { gone = append(gone, id) })

	assert.False(t, p.SetOffline(7), "unknown supplier")

	p.Register(7, "Swift Haulage", "")
	assert.True(t, p.SetOffline(7))
	assert.Equal(t, entity.PresenceOffline, p.State(7))
	assert.Equal(t, []int64{7}, gone)

	assert.False(t, p.SetOffline(7), "second offline is a no-op")
	assert.Len(t, gone, 1)
	assert.Empty(t, p.Online())
}

func TestPresence_SweepMarksStaleOffline(t *testing.T) {
	p := newTestPresence(30 * time.Second)
	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }

	var gone []int64
	p.OnOffline(func(id int64) { gone = append(gone, id) })

	p.Register(7, "stale", "")
	p.Register(8, "fresh", "")

	// Supplier 8 keeps its liveness clock fresh; supplier 7 goes silent.
	now = now.Add(25 * time.Second)
	p.Touch(8)

	stale := p.sweep(now.Add(10 * time.Second))
	assert.Equal(t, []int64{7}, stale)
	assert.Equal(t, entity.PresenceOffline, p.State(7))
	assert.Equal(t, entity.PresenceIdle, p.State(8))
	assert.Equal(t, []int64{7}, gone)

	// Already-offline suppliers are never swept again.
	stale = p.sweep(now.Add(time.Hour))
	assert.Equal(t, []int64{8}, stale, "only the remaining online supplier goes stale")
	assert.Equal(t, []int64{7, 8}, gone)
}
