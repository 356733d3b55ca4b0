package ws

import (
	"go.uber.org/fx"

	"github.com/labstack/echo/v4"
)

// Module wires the realtime gateway onto the HTTP server.
var Module = fx.Options(
	fx.Provide(NewGateway),
	fx.Invoke(func(e *echo.Echo, g *Gateway) {
		Register(e, g)
	}),
)
