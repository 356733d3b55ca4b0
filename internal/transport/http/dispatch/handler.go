package dispatch

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrilink/agrilink/internal/auth"
	"github.com/agrilink/agrilink/internal/dto"
	"github.com/agrilink/agrilink/internal/entity"
	"github.com/agrilink/agrilink/internal/presentation/http/response"
	"github.com/agrilink/agrilink/internal/service/fulfillment"
	"github.com/agrilink/agrilink/internal/service/tracking"
	"github.com/agrilink/agrilink/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/agrilink/agrilink/transport/http/dispatch")

// Handler exposes the dispatch request/response surface. It holds no state
// of its own: it checks caller roles, invokes the services, and maps domain
// errors onto transport failures.
type Handler struct {
	fulfillment *fulfillment.Service
	tracking    *tracking.Service
}

// NewHandler constructs a dispatch Handler.
func NewHandler(f *fulfillment.Service, t *tracking.Service) *Handler {
	return &Handler{fulfillment: f, tracking: t}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler, verifier *auth.Verifier) {
	g := e.Group("/dispatch", authRequired(verifier))
	g.POST("/order-items/:id/accept", h.acceptOrderItem)
	g.POST("/order-items/:id/decline", h.declineOrderItem)
	g.POST("/order-items/:id/delivery", h.assignDelivery)
	g.POST("/deliveries/:id/status", h.advanceDeliveryStatus)
	g.POST("/deliveries/:id/rating", h.rateDelivery)
	g.POST("/location", h.pushLocation)
	g.GET("/suppliers/online", h.onlineSuppliers)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid id")
	}
	return id, nil
}

func principal(c echo.Context) (*auth.Principal, error) {
	p, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return nil, errorbank.Unauthenticated("missing principal")
	}
	return p, nil
}

func (h *Handler) acceptOrderItem(c echo.Context) error {
	return h.resolveOrderItem(c, true)
}

func (h *Handler) declineOrderItem(c echo.Context) error {
	return h.resolveOrderItem(c, false)
}

func (h *Handler) resolveOrderItem(c echo.Context, accept bool) error {
	b := response.New(c)

	p, err := principal(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	if p.Role != auth.RoleFarmer && p.Role != auth.RoleAdmin {
		return b.WithError(errorbank.Forbidden("only producers can resolve order items")).Build()
	}
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatch.resolveOrderItem", trace.WithAttributes(
		attribute.Int64("order_item.id", id),
		attribute.Bool("accept", accept),
	))
	defer span.End()

	actor := fulfillment.Actor{UserID: p.UserID, SupplierID: p.SupplierID, Role: p.Role}

	var item *entity.OrderItem
	if accept {
		item, err = h.fulfillment.AcceptOrderItem(ctx, id, actor)
	} else {
		item, err = h.fulfillment.DeclineOrderItem(ctx, id, actor)
	}
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrderItem(item)).Build()
}

func (h *Handler) assignDelivery(c echo.Context) error {
	b := response.New(c)

	p, err := principal(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	if p.Role != auth.RoleSupplier || p.SupplierID == 0 {
		return b.WithError(errorbank.Forbidden("only suppliers can take deliveries")).Build()
	}
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatch.assignDelivery", trace.WithAttributes(
		attribute.Int64("order_item.id", id),
		attribute.Int64("supplier.id", p.SupplierID),
	))
	defer span.End()

	d, err := h.fulfillment.AssignDelivery(ctx, id, p.SupplierID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromDelivery(d)).Build()
}

func (h *Handler) advanceDeliveryStatus(c echo.Context) error {
	b := response.New(c)

	p, err := principal(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Status entity.DeliveryStatus `json:"status"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Status == "" {
		return b.WithError(errorbank.BadRequest("status is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatch.advanceDeliveryStatus", trace.WithAttributes(
		attribute.Int64("delivery.id", id),
		attribute.String("delivery.next", string(payload.Status)),
	))
	defer span.End()

	actor := fulfillment.Actor{UserID: p.UserID, SupplierID: p.SupplierID, Role: p.Role}
	d, err := h.fulfillment.AdvanceDeliveryStatus(ctx, id, payload.Status, actor)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromDelivery(d)).Build()
}

func (h *Handler) rateDelivery(c echo.Context) error {
	b := response.New(c)

	p, err := principal(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Rating   int    `json:"rating"`
		Feedback string `json:"feedback"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatch.rateDelivery", trace.WithAttributes(attribute.Int64("delivery.id", id)))
	defer span.End()

	if err := h.fulfillment.RateDelivery(ctx, id, p.UserID, payload.Rating, payload.Feedback); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

// pushLocation is the synchronous on-demand refresh variant; it uses the
// fine movement threshold, unlike the continuous gateway stream.
func (h *Handler) pushLocation(c echo.Context) error {
	b := response.New(c)

	p, err := principal(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	if p.Role != auth.RoleSupplier || p.SupplierID == 0 {
		return b.WithError(errorbank.Forbidden("only suppliers can push location")).Build()
	}

	var payload dto.LocationPushFrame
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "dispatch.pushLocation", trace.WithAttributes(attribute.Int64("supplier.id", p.SupplierID)))
	defer span.End()

	accepted, err := h.tracking.Ingest(ctx, tracking.Sample{
		SupplierID: p.SupplierID,
		Lat:        payload.Lat,
		Lon:        payload.Lon,
		Heading:    payload.Heading,
		Speed:      payload.Speed,
	}, h.tracking.FineThreshold())
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]bool{"accepted": accepted}).Build()
}

func (h *Handler) onlineSuppliers(c echo.Context) error {
	b := response.New(c)

	out := make([]dto.SupplierPresenceResponse, 0)
	for _, info := range h.tracking.OnlineSuppliers() {
		out = append(out, dto.SupplierPresenceResponse{
			SupplierID:  info.SupplierID,
			DisplayName: info.DisplayName,
			ServiceArea: info.ServiceArea,
			State:       info.State,
			LastSeenAt:  info.LastSeenAt,
		})
	}
	return b.WithData(out).Build()
}
