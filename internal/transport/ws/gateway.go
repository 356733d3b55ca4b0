package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/agrilink/agrilink/internal/auth"
	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/internal/dto"
	"github.com/agrilink/agrilink/internal/event"
	"github.com/agrilink/agrilink/internal/hub"
	"github.com/agrilink/agrilink/internal/port"
	"github.com/agrilink/agrilink/internal/service/tracking"
	"github.com/agrilink/agrilink/pkg/errorbank"
)

// Gateway terminates realtime client connections. Each connection runs one
// task that blocks on inbound frames while a companion goroutine pushes
// published events; state-machine and ingestion writes happen on the
// services' bounded pool, never on the fan-out path.
type Gateway struct {
	hub        *hub.Hub
	tracking   *tracking.Service
	deliveries port.DeliveryRepository
	verifier   *auth.Verifier
	logger     *zap.Logger
	authGrace  time.Duration
}

// NewGateway wires a Gateway.
func NewGateway(
	h *hub.Hub,
	t *tracking.Service,
	deliveries port.DeliveryRepository,
	verifier *auth.Verifier,
	cfg config.Config,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		hub:        h,
		tracking:   t,
		deliveries: deliveries,
		verifier:   verifier,
		logger:     logger,
		authGrace:  cfg.Tracking.AuthGracePeriod,
	}
}

// Register mounts the gateway endpoint on the Echo router.
func Register(e *echo.Echo, g *Gateway) {
	e.GET("/ws", func(c echo.Context) error {
		websocket.Handler(g.serve).ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

func (g *Gateway) serve(conn *websocket.Conn) {
	defer conn.Close()

	principal, err := g.handshake(conn)
	if err != nil {
		g.sendError(conn, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = auth.WithPrincipal(ctx, principal)

	sub := g.subscribe(ctx, principal)
	defer sub.Close()

	go g.writePump(conn, sub, cancel)
	g.readPump(ctx, conn, principal)
}

// handshake enforces the authentication grace period: a connection that has
// not presented a valid token in time is dropped.
func (g *Gateway) handshake(conn *websocket.Conn) (*auth.Principal, error) {
	if err := conn.SetReadDeadline(time.Now().Add(g.authGrace)); err != nil {
		return nil, errorbank.Internal("set handshake deadline", errorbank.WithCause(err))
	}

	var frame dto.Frame
	if err := websocket.JSON.Receive(conn, &frame); err != nil {
		return nil, errorbank.Unauthenticated("authentication handshake timed out", errorbank.WithCause(err))
	}
	if frame.Type != dto.FrameAuth {
		return nil, errorbank.Unauthenticated("first frame must be auth")
	}
	var af dto.AuthFrame
	if err := json.Unmarshal(frame.Data, &af); err != nil {
		return nil, errorbank.Unauthenticated("malformed auth frame", errorbank.WithCause(err))
	}
	principal, err := g.verifier.Verify(af.Token)
	if err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, errorbank.Internal("clear handshake deadline", errorbank.WithCause(err))
	}
	return principal, nil
}

// subscribe joins the client to its own user channel plus every delivery it
// currently has a stake in.
func (g *Gateway) subscribe(ctx context.Context, principal *auth.Principal) *hub.Subscription {
	channels := []string{event.UserChannel(principal.UserID)}

	ids, err := g.deliveries.ActiveForActor(ctx, principal.UserID)
	if err != nil {
		g.logger.Warn("active delivery lookup failed",
			zap.Int64("user_id", principal.UserID),
			zap.Error(err),
		)
	}
	for _, id := range ids {
		channels = append(channels, event.DeliveryChannel(id))
	}
	return g.hub.Subscribe(channels...)
}

func (g *Gateway) writePump(conn *websocket.Conn, sub *hub.Subscription, cancel context.CancelFunc) {
	for env := range sub.Events() {
		if err := websocket.JSON.Send(conn, env); err != nil {
			cancel()
			conn.Close()
			return
		}
	}
}

func (g *Gateway) readPump(ctx context.Context, conn *websocket.Conn, principal *auth.Principal) {
	for {
		var frame dto.Frame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := g.handleFrame(ctx, frame, principal); err != nil {
			g.sendError(conn, err)
		}
	}
}

func (g *Gateway) handleFrame(ctx context.Context, frame dto.Frame, principal *auth.Principal) error {
	switch frame.Type {
	case dto.FrameSupplierRegister:
		var f dto.SupplierRegisterFrame
		if err := json.Unmarshal(frame.Data, &f); err != nil {
			return errorbank.BadRequest("malformed register frame", errorbank.WithCause(err))
		}
		if err := g.requireSupplier(principal, f.SupplierID); err != nil {
			return err
		}
		return g.tracking.RegisterSupplier(ctx, f.SupplierID, f.Username, f.ServiceArea)

	case dto.FrameSupplierOffline:
		var f dto.SupplierOfflineFrame
		if err := json.Unmarshal(frame.Data, &f); err != nil {
			return errorbank.BadRequest("malformed offline frame", errorbank.WithCause(err))
		}
		if err := g.requireSupplier(principal, f.SupplierID); err != nil {
			return err
		}
		g.tracking.SetSupplierOffline(f.SupplierID)
		return nil

	case dto.FrameLocationPush:
		var f dto.LocationPushFrame
		if err := json.Unmarshal(frame.Data, &f); err != nil {
			return errorbank.BadRequest("malformed location frame", errorbank.WithCause(err))
		}
		if err := g.requireSupplier(principal, f.SupplierID); err != nil {
			return err
		}
		// Continuous watch streams use the coarse movement threshold.
		g.tracking.IngestAsync(ctx, tracking.Sample{
			SupplierID: f.SupplierID,
			Lat:        f.Lat,
			Lon:        f.Lon,
			Heading:    f.Heading,
			Speed:      f.Speed,
		}, g.tracking.CoarseThreshold())
		return nil

	default:
		return errorbank.BadRequest("unknown frame type: " + frame.Type)
	}
}

func (g *Gateway) requireSupplier(principal *auth.Principal, supplierID int64) error {
	if principal.Role != auth.RoleSupplier || principal.SupplierID != supplierID {
		return errorbank.Forbidden("frame is for another supplier")
	}
	g.tracking.TouchSupplier(supplierID)
	return nil
}

func (g *Gateway) sendError(conn *websocket.Conn, err error) {
	appErr := errorbank.From(err)
	frame := struct {
		Type string         `json:"type"`
		Data dto.ErrorFrame `json:"data"`
	}{
		Type: dto.FrameError,
		Data: dto.ErrorFrame{Kind: string(appErr.Kind()), Message: appErr.Message()},
	}
	if sendErr := websocket.JSON.Send(conn, frame); sendErr != nil {
		g.logger.Debug("error frame send failed", zap.Error(sendErr))
	}
}
