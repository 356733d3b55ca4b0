package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/agrilink/agrilink/internal/auth"
	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/dto"
	"github.com/agrilink/agrilink/internal/entity"
	"github.com/agrilink/agrilink/internal/event"
	"github.com/agrilink/agrilink/internal/hub"
	"github.com/agrilink/agrilink/internal/port"
	"github.com/agrilink/agrilink/internal/service/tracking"
)

const (
	testSecret  = "ws-test-secret"
	supID       = int64(7)
	supUserID   = int64(101)
	buyerUserID = int64(201)
)

type fakeSuppliers struct {
	mu        sync.Mutex
	suppliers map[int64]*entity.Supplier
}

func (f *fakeSuppliers) GetSupplier(_ context.Context, id int64) (*entity.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suppliers[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSuppliers) UpdateLocation(_ context.Context, id int64, lat, lon, heading, speed float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suppliers[id]
	if !ok {
		return port.ErrNotFound
	}
	s.CurrentLat, s.CurrentLon = lat, lon
	s.Heading, s.Speed = heading, speed
	s.LocatedAt = &at
	return nil
}

func (f *fakeSuppliers) UpdatePresence(_ context.Context, id int64, presence entity.SupplierPresence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suppliers[id]
	if !ok {
		return port.ErrNotFound
	}
	s.Presence = presence
	return nil
}

type fakeDeliveries struct {
	deliveries []*entity.Delivery
}

func (f *fakeDeliveries) GetDelivery(context.Context, int64) (*entity.Delivery, error) {
	return nil, port.ErrNotFound
}

func (f *fakeDeliveries) ActiveForOrderItem(context.Context, int64) (*entity.Delivery, error) {
	return nil, nil
}

func (f *fakeDeliveries) ActiveForSupplier(_ context.Context, supplierID int64) ([]*entity.Delivery, error) {
	var out []*entity.Delivery
	for _, d := range f.deliveries {
		if d.SupplierID == supplierID && !d.Status.Terminal() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeliveries) ActiveForActor(_ context.Context, userID int64) ([]int64, error) {
	// The buyer holds the stake in every seeded delivery.
	if userID != buyerUserID {
		return nil, nil
	}
	var ids []int64
	for _, d := range f.deliveries {
		if !d.Status.Terminal() {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

func (f *fakeDeliveries) Create(context.Context, *entity.Delivery) error         { return nil }
func (f *fakeDeliveries) UpdateStatus(context.Context, *entity.Delivery) error   { return nil }
func (f *fakeDeliveries) Rate(context.Context, int64, int, string) error         { return nil }
func (f *fakeDeliveries) UpdateProgress(context.Context, int64, float64, float64, float64, float64) error {
	return nil
}

type testEnv struct {
	srv      *httptest.Server
	hub      *hub.Hub
	tracking *tracking.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Config{}
	cfg.Auth.JWTSecret = testSecret
	cfg.Tracking = config.Tracking{
		FineThresholdMeters:   10,
		CoarseThresholdMeters: 20,
		SnapshotInterval:      30 * time.Second,
		LivenessMultiplier:    3,
		AuthGracePeriod:       500 * time.Millisecond,
		SubscriberBuffer:      32,
	}
	cfg.Messaging.Workers.Concurrency = 2

	h := hub.New(cfg, zap.NewNop())
	pub := hub.NewPublisher(hub.PublisherParams{Hub: h, Config: cfg, Logger: zap.NewNop()})
	presence := hub.NewPresence(cfg, zap.NewNop())

	suppliers := &fakeSuppliers{suppliers: map[int64]*entity.Supplier{
		supID: {ID: supID, UserID: supUserID, DisplayName: "Swift Haulage"},
	}}
	deliveries := &fakeDeliveries{deliveries: []*entity.Delivery{
		{ID: 40, SupplierID: supID, Status: entity.DeliveryInTransit, DropLat: -1.2921, DropLon: 36.8219},
	}}

	tsvc := tracking.NewService(tracking.Params{
		Suppliers:  suppliers,
		Deliveries: deliveries,
		Publisher:  pub,
		Presence:   presence,
		Config:     cfg,
		Logger:     zap.NewNop(),
	})

	e := echo.New()
	gw := NewGateway(h, tsvc, deliveries, auth.NewVerifier(cfg), cfg, zap.NewNop())
	Register(e, gw)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, hub: h, tracking: tsvc}
}

func (te *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(te.srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(url, "", te.srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func signToken(t *testing.T, userID, supplierID int64, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	if supplierID > 0 {
		claims["supplier_id"] = supplierID
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func send(t *testing.T, conn *websocket.Conn, frameType string, data any) {
	t.Helper()
	require.NoError(t, websocket.JSON.Send(conn, map[string]any{"type": frameType, "data": data}))
}

type outboundFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func recv(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame outboundFrame
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	return frame
}

func authenticate(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	send(t, conn, dto.FrameAuth, dto.AuthFrame{Token: token})
}

func TestGateway_FirstFrameMustBeAuth(t *testing.T) {
	te := newTestEnv(t)
	conn := te.dial(t)

	send(t, conn, dto.FrameLocationPush, dto.LocationPushFrame{SupplierID: supID})
	frame := recv(t, conn)
	assert.Equal(t, dto.FrameError, frame.Type)
	assert.Equal(t, "unauthenticated", frame.Data["kind"])
}

func TestGateway_RejectsInvalidToken(t *testing.T) {
	te := newTestEnv(t)
	conn := te.dial(t)

	authenticate(t, conn, "not-a-token")
	frame := recv(t, conn)
	assert.Equal(t, dto.FrameError, frame.Type)
	assert.Equal(t, "unauthenticated", frame.Data["kind"])
}

func TestGateway_SupplierCannotSpeakForAnother(t *testing.T) {
	te := newTestEnv(t)
	conn := te.dial(t)

	authenticate(t, conn, signToken(t, supUserID, supID, "supplier"))
	send(t, conn, dto.FrameSupplierRegister, dto.SupplierRegisterFrame{SupplierID: 999, Username: "impostor"})

	frame := recv(t, conn)
	assert.Equal(t, dto.FrameError, frame.Type)
	assert.Equal(t, "forbidden", frame.Data["kind"])
}

func TestGateway_SupplierTrackingFlow(t *testing.T) {
	te := newTestEnv(t)

	// A buyer with a stake in delivery 40 watches the stream.
	buyer := te.dial(t)
	authenticate(t, buyer, signToken(t, buyerUserID, 0, "buyer"))
	require.Eventually(t, func() bool {
		return te.hub.SubscriberCount(event.DeliveryChannel(40)) == 1
	}, 2*time.Second, 10*time.Millisecond, "buyer joins its delivery channel")

	supplier := te.dial(t)
	authenticate(t, supplier, signToken(t, supUserID, supID, "supplier"))
	send(t, supplier, dto.FrameSupplierRegister, dto.SupplierRegisterFrame{
		SupplierID: supID, Username: "Swift Haulage", ServiceArea: "Nakuru",
	})

	require.Eventually(t, func() bool {
		return len(te.tracking.OnlineSuppliers()) == 1
	}, 2*time.Second, 10*time.Millisecond, "register flips the supplier online")

	send(t, supplier, dto.FrameLocationPush, dto.LocationPushFrame{
		SupplierID: supID, Lat: -1.30, Lon: 36.80, Heading: 90, Speed: 8,
	})

	frame := recv(t, buyer)
	require.Equal(t, string(event.TypeLocationUpdated), frame.Type)
	assert.InDelta(t, -1.30, frame.Data["lat"].(float64), 1e-9)
	assert.InDelta(t, float64(supID), frame.Data["supplierId"].(float64), 1e-9)

	send(t, supplier, dto.FrameSupplierOffline, dto.SupplierOfflineFrame{SupplierID: supID})
	require.Eventually(t, func() bool {
		return len(te.tracking.OnlineSuppliers()) == 0
	}, 2*time.Second, 10*time.Millisecond, "graceful offline clears presence")
}
