package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TrackingDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.InDelta(t, 10, cfg.Tracking.FineThresholdMeters, 1e-9)
	assert.InDelta(t, 20, cfg.Tracking.CoarseThresholdMeters, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Tracking.SnapshotInterval)
	assert.Equal(t, 3, cfg.Tracking.LivenessMultiplier)
	assert.Equal(t, 10*time.Second, cfg.Tracking.AuthGracePeriod)
	assert.Equal(t, 64, cfg.Tracking.SubscriberBuffer)
}

func TestNew_TrackingOverrides(t *testing.T) {
	t.Setenv("TRACKING_FINE_THRESHOLD_M", "5")
	t.Setenv("TRACKING_COARSE_THRESHOLD_M", "50")
	t.Setenv("TRACKING_SNAPSHOT_INTERVAL", "10s")
	t.Setenv("TRACKING_LIVENESS_MULTIPLIER", "5")

	cfg, err := New()
	require.NoError(t, err)

	assert.InDelta(t, 5, cfg.Tracking.FineThresholdMeters, 1e-9)
	assert.InDelta(t, 50, cfg.Tracking.CoarseThresholdMeters, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Tracking.SnapshotInterval)
	assert.Equal(t, 5, cfg.Tracking.LivenessMultiplier)
}

func TestNew_NegativeThresholdRejected(t *testing.T) {
	t.Setenv("TRACKING_FINE_THRESHOLD_M", "-1")

	_, err := New()
	require.Error(t, err)
}

func TestNew_UnsupportedDriversRejected(t *testing.T) {
	t.Run("cache", func(t *testing.T) {
		t.Setenv("CACHE_DRIVER", "memcached")
		_, err := New()
		require.Error(t, err)
	})
	t.Run("messaging", func(t *testing.T) {
		t.Setenv("MESSAGING_DRIVER", "rabbitmq")
		_, err := New()
		require.Error(t, err)
	})
}

func TestNew_DisabledSubsystemsForceNoop(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("MESSAGING_ENABLED", "false")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "noop", cfg.Cache.Driver)
	assert.Equal(t, "noop", cfg.Messaging.Driver)
}

func TestNew_ReaderFallsBackToWriter(t *testing.T) {
	t.Setenv("DB_WRITER_DSN", "postgres://w")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
}
