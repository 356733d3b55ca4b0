package dispatch

import (
	"go.uber.org/fx"

	"github.com/labstack/echo/v4"

	"github.com/agrilink/agrilink/internal/auth"
)

// Module wires HTTP dispatch handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(func(e *echo.Echo, h *Handler, v *auth.Verifier) {
		Register(e, h, v)
	}),
)
